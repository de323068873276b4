package checkout

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tricktime/tricktime/internal/platform/httpx"
	"github.com/tricktime/tricktime/internal/shared"
)

// Handler wires the checkout endpoint.
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
	r.Post("/create-checkout", h.create)
}

type createRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type createResponse struct {
	URL string `json:"url"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = shared.NormalizeEmail(req.Email)
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.ValidationMessage(err))
		return
	}
	h.logger.Info("creating checkout", slog.String("email", req.Email))

	session, err := h.service.CreateSession(r.Context(), Request{Email: req.Email, Origin: r.Header.Get("Origin")})
	if err != nil {
		if errors.Is(err, shared.ErrConfigMissing) {
			h.logger.Error("checkout misconfigured", slog.Any("error", err))
		} else {
			h.logger.Error("create checkout session", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, createResponse{URL: session.URL})
}
