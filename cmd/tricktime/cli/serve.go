package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/tricktime/tricktime/internal/accounts"
	"github.com/tricktime/tricktime/internal/app"
	"github.com/tricktime/tricktime/internal/billing"
	"github.com/tricktime/tricktime/internal/checkout"
	"github.com/tricktime/tricktime/internal/identity"
	jobmetrics "github.com/tricktime/tricktime/internal/jobs"
	"github.com/tricktime/tricktime/internal/mailer"
	"github.com/tricktime/tricktime/internal/notify"
	"github.com/tricktime/tricktime/internal/observability"
	"github.com/tricktime/tricktime/internal/onboarding"
	"github.com/tricktime/tricktime/internal/platform/cache"
	"github.com/tricktime/tricktime/internal/platform/db"
	"github.com/tricktime/tricktime/internal/shared"
	"github.com/tricktime/tricktime/internal/view"
	"github.com/tricktime/tricktime/internal/webhook"
	"github.com/tricktime/tricktime/jobs"
)

const (
	customerCacheTTL = 24 * time.Hour
	shutdownTimeout  = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the provisioning HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	identities := newIdentityStore(cfg, pool)
	profiles := accounts.NewRepository(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	var gateway billing.Gateway
	if cfg.StripeSecretKey != "" {
		gateway = billing.NewStripeGateway(cfg.StripeSecretKey, cfg.OutboundCallTimeout, nil)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, checkout and webhook reconciliation will fail")
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue := jobs.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("queue inspector close", slog.Any("error", err))
		}
	}()

	welcomeJob, err := newWelcomeEmailJob(cfg, logger, jobMetrics)
	if err != nil {
		return err
	}

	checkoutService := checkout.NewService(checkout.Config{
		SecretKey:     cfg.StripeSecretKey,
		PriceID:       cfg.PriceID,
		FrontendURL:   cfg.FrontendURL,
		LookupTimeout: cfg.OutboundCallTimeout,
	}, gateway, checkout.NewRedisCustomerCache(redisClient, customerCacheTTL), logger)

	reconciler := webhook.NewReconciler(webhook.Config{
		Billing:     gateway,
		Identities:  identities,
		Accounts:    profiles,
		Notifier:    notify.NewNotifier(idempotencyStore, queue, logger),
		CallTimeout: cfg.OutboundCallTimeout,
		Logger:      logger,
		Metrics:     webhook.NewMetrics(metrics.Registerer()),
	})
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, webhook deliveries will be rejected")
	}
	if cfg.AcceptUnverifiedWebhooks() {
		logger.Warn("processing webhooks that fail signature verification")
	}

	onboardingService := onboarding.NewService(identities, profiles, cfg.OutboundCallTimeout, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           metrics,
		CheckoutHandler:   checkout.NewHandler(checkoutService, logger),
		WebhookHandler:    webhook.NewHandler(reconciler, cfg.StripeWebhookSecret, cfg.AcceptUnverifiedWebhooks(), logger),
		OnboardingHandler: onboarding.NewHandler(onboardingService, logger),
		NotifyHandler:     notify.NewHandler(welcomeJob, cfg.ServiceToken, logger),
		JobHandler:        jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("identity_backend", cfg.IdentityBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func newIdentityStore(cfg *app.Config, pool *pgxpool.Pool) identity.Store {
	if cfg.IdentityBackend == app.IdentityBackendPostgres {
		return identity.NewPGStore(pool)
	}
	return identity.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.OutboundCallTimeout)
}

func newWelcomeEmailJob(cfg *app.Config, logger *slog.Logger, metrics *jobmetrics.Metrics) (*jobs.WelcomeEmailJob, error) {
	templates, err := view.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	sender, provider := mailer.NewSender(cfg.ResendAPIKey, logger)
	if provider == mailer.ProviderLog {
		logger.Warn("RESEND_API_KEY not set, emails will only be logged")
	}
	return jobs.NewWelcomeEmailJob(jobs.WelcomeEmailConfig{
		Sender:   sender,
		Renderer: templates,
		From:     cfg.MailFrom,
		AppURL:   cfg.AppPublicURL,
		Provider: provider,
		Logger:   logger,
		Metrics:  metrics,
	}), nil
}
