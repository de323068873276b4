package notify

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tricktime/tricktime/internal/platform/httpx"
	"github.com/tricktime/tricktime/internal/shared"
	"github.com/tricktime/tricktime/jobs"
)

// Deliverer sends a welcome email synchronously.
type Deliverer interface {
	Deliver(ctx context.Context, payload jobs.WelcomeEmailPayload) (string, error)
}

// Handler serves the synchronous welcome email endpoint for service callers.
type Handler struct {
	deliverer Deliverer
	token     string
	logger    *slog.Logger
}

// NewHandler constructs the handler. An empty token rejects every request.
func NewHandler(deliverer Deliverer, token string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{deliverer: deliverer, token: token, logger: logger}
}

// MountRoutes registers the endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/send-welcome-email", h.send)
}

type sendRequest struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req sendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = shared.NormalizeEmail(req.Email)
	if req.Email == "" {
		httpx.Error(w, http.StatusBadRequest, "email is required")
		return
	}
	h.logger.Info("sending welcome email", slog.String("email", req.Email))
	id, err := h.deliverer.Deliver(r.Context(), jobs.WelcomeEmailPayload{Email: req.Email, UserID: req.UserID})
	if err != nil {
		h.logger.Error("send welcome email", slog.String("email", req.Email), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, sendResponse{Success: true, ID: id})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.token == "" {
		return false
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(h.token)) == 1
}
