package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tricktime/tricktime/internal/billing"
	"github.com/tricktime/tricktime/internal/platform/httpx"
)

// SignatureHeader carries the provider's HMAC signature.
const SignatureHeader = "Stripe-Signature"

// EventHandler applies a parsed event.
type EventHandler interface {
	Handle(ctx context.Context, evt billing.Event) Outcome
}

// Handler receives provider webhooks.
type Handler struct {
	events          EventHandler
	secret          string
	allowUnverified bool
	logger          *slog.Logger
}

// NewHandler constructs the webhook endpoint. allowUnverified lets bodies with
// a bad signature through and must only be set outside production.
func NewHandler(events EventHandler, secret string, allowUnverified bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{events: events, secret: secret, allowUnverified: allowUnverified, logger: logger}
}

// MountRoutes registers the endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stripe-webhook", h.receive)
}

type receivedResponse struct {
	Received bool `json:"received"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		httpx.Error(w, http.StatusBadRequest, "missing "+SignatureHeader+" header")
		return
	}
	payload, err := httpx.ReadBody(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "could not read body")
		return
	}

	if err := billing.VerifySignature(payload, signature, h.secret); err != nil {
		if !h.allowUnverified {
			h.logger.Warn("webhook rejected", slog.Any("error", err))
			httpx.Error(w, http.StatusBadRequest, "webhook signature verification failed")
			return
		}
		h.logger.Warn("processing unverified webhook", slog.Any("error", err))
	}

	evt, err := billing.ParseEvent(payload)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, billing.ErrMalformedEvent) {
			status = http.StatusInternalServerError
		}
		h.logger.Warn("webhook body rejected", slog.Any("error", err))
		httpx.Error(w, status, err.Error())
		return
	}

	outcome := h.events.Handle(r.Context(), evt)
	h.logger.Info("webhook handled",
		slog.String("event_id", evt.EventID()),
		slog.String("event_type", evt.EventType()),
		slog.String("outcome", string(outcome)))
	httpx.JSON(w, http.StatusOK, receivedResponse{Received: true})
}
