package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tricktime/tricktime/internal/checkout"
	"github.com/tricktime/tricktime/internal/notify"
	"github.com/tricktime/tricktime/internal/observability"
	"github.com/tricktime/tricktime/internal/onboarding"
	"github.com/tricktime/tricktime/internal/platform/httpx"
	"github.com/tricktime/tricktime/internal/webhook"
	"github.com/tricktime/tricktime/jobs"
)

// FunctionsPrefix is the path under which the provisioning functions live.
const FunctionsPrefix = "/functions/v1"

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Metrics           *observability.Metrics
	CheckoutHandler   *checkout.Handler
	WebhookHandler    *webhook.Handler
	OnboardingHandler *onboarding.Handler
	NotifyHandler     *notify.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with TrickTime defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route(FunctionsPrefix, func(r chi.Router) {
		// The payment provider retries in bursts, so the webhook is not throttled.
		if params.WebhookHandler != nil {
			params.WebhookHandler.MountRoutes(r)
		}
		if params.NotifyHandler != nil {
			params.NotifyHandler.MountRoutes(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(params.Config))
			if params.CheckoutHandler != nil {
				params.CheckoutHandler.MountRoutes(r)
			}
			if params.OnboardingHandler != nil {
				params.OnboardingHandler.MountRoutes(r)
			}
		})
	})

	return r
}
