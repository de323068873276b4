package onboarding

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tricktime/tricktime/internal/platform/httpx"
	"github.com/tricktime/tricktime/internal/shared"
)

// ActionCreate is the only action accepted by the endpoint.
const ActionCreate = "create"

// Handler wires the account finalizer endpoint.
type Handler struct {
	service   *Service
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, validator: httpx.NewValidator(), logger: logger}
}

// MountRoutes registers the endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/create-account", h.create)
}

type createAccountRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	SessionID string `json:"sessionId"`
	Nome      string `json:"nome" validate:"max=120"`
	Action    string `json:"action" validate:"omitempty,oneof=create"`
}

type createAccountResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = shared.NormalizeEmail(req.Email)
	req.Nome = strings.TrimSpace(req.Nome)
	if err := h.validator.Struct(req); err != nil {
		fail(w, http.StatusBadRequest, httpx.ValidationMessage(err))
		return
	}

	result, err := h.service.Finalize(r.Context(), Request{
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Nome,
		SessionID: req.SessionID,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, shared.ErrValidation) {
			status = http.StatusBadRequest
		}
		h.logger.Error("finalize account", slog.String("email", req.Email), slog.Any("error", err))
		fail(w, status, err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, createAccountResponse{Success: true, Message: result.Message, UserID: result.UserID})
}

func fail(w http.ResponseWriter, status int, message string) {
	success := false
	httpx.JSON(w, status, httpx.ErrorBody{Error: message, Success: &success})
}
