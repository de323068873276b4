// Package webhook converges local account state with payment provider events.
package webhook

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tricktime/tricktime/internal/accounts"
	"github.com/tricktime/tricktime/internal/billing"
	"github.com/tricktime/tricktime/internal/identity"
	"github.com/tricktime/tricktime/internal/notify"
	"github.com/tricktime/tricktime/internal/shared"
)

// Outcome summarises what handling an event did.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeNoop      Outcome = "noop"
	OutcomeFailed    Outcome = "failed"
)

// SubscriptionFetcher loads subscription details from the payment provider.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*billing.Subscription, error)
}

// WelcomeNotifier hands a newly activated subscriber to the email notifier.
type WelcomeNotifier interface {
	WelcomeSubscriber(ctx context.Context, w notify.Welcome) (bool, error)
}

// Config wires Reconciler dependencies.
type Config struct {
	Billing    SubscriptionFetcher
	Identities identity.Store
	Accounts   accounts.Repository
	Notifier   WelcomeNotifier
	// CallTimeout bounds each outbound call. Zero disables the bound.
	CallTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *Metrics
}

// Reconciler applies payment events to identities, profiles and subscriptions.
// Every path is safe to re-run with the same event.
type Reconciler struct {
	billing    SubscriptionFetcher
	identities identity.Store
	accounts   accounts.Repository
	notifier   WelcomeNotifier
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *Metrics
	password   func() (string, error)
}

// NewReconciler constructs a Reconciler.
func NewReconciler(cfg Config) *Reconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		billing:    cfg.Billing,
		identities: cfg.Identities,
		accounts:   cfg.Accounts,
		notifier:   cfg.Notifier,
		timeout:    cfg.CallTimeout,
		logger:     logger,
		metrics:    cfg.Metrics,
		password:   temporaryPassword,
	}
}

// Handle dispatches evt and reports the outcome. Failures are logged rather
// than returned: the provider only needs to know the event was received.
func (r *Reconciler) Handle(ctx context.Context, evt billing.Event) Outcome {
	logger := r.logger.With(slog.String("event_id", evt.EventID()), slog.String("event_type", evt.EventType()))

	var outcome Outcome
	switch e := evt.(type) {
	case billing.CheckoutSessionCompleted:
		outcome = r.checkoutCompleted(ctx, logger, e)
	case billing.SubscriptionChanged:
		outcome = r.subscriptionChanged(ctx, logger, e)
	default:
		logger.Info("unhandled event type")
		outcome = OutcomeIgnored
	}
	r.metrics.Observe(evt.EventType(), outcome)
	return outcome
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, logger *slog.Logger, evt billing.CheckoutSessionCompleted) Outcome {
	logger = logger.With(slog.String("session_id", evt.SessionID))
	if evt.Mode != billing.ModeSubscription {
		logger.Info("checkout session is not a subscription", slog.String("mode", evt.Mode))
		return OutcomeIgnored
	}
	if evt.SubscriptionID == "" {
		logger.Error("reconcile checkout", slog.Any("error", errors.New("session has no subscription")))
		return OutcomeFailed
	}

	sub, err := r.fetchSubscription(ctx, evt.SubscriptionID)
	if err != nil {
		logger.Error("reconcile checkout", slog.String("subscription_id", evt.SubscriptionID), slog.Any("error", err))
		return OutcomeFailed
	}

	email := shared.NormalizeEmail(evt.PurchaserEmail())
	if email == "" {
		logger.Warn("checkout session has no purchaser email")
		return OutcomeSkipped
	}
	logger = logger.With(slog.String("email", email))

	userID, err := r.resolveIdentity(ctx, logger, email)
	if err != nil {
		logger.Error("reconcile checkout", slog.Any("error", err))
		return OutcomeFailed
	}
	logger = logger.With(slog.String("user_id", userID))

	if err := r.withTimeout(ctx, func(ctx context.Context) error {
		return r.accounts.EnsureProfile(ctx, accounts.Profile{
			UserID: userID,
			Name:   shared.EmailLocalPart(email),
			Email:  email,
			Active: true,
		})
	}); err != nil {
		logger.Error("ensure profile", slog.Any("error", err))
	}

	customerID := evt.CustomerID
	if customerID == "" {
		customerID = sub.CustomerID
	}
	if err := r.withTimeout(ctx, func(ctx context.Context) error {
		return r.accounts.UpsertSubscription(ctx, accounts.Subscription{
			UserID:             userID,
			CustomerID:         customerID,
			SubscriptionID:     sub.ID,
			Status:             sub.Status,
			PriceID:            sub.PriceID,
			CurrentPeriodStart: sub.CurrentPeriodStart,
			CurrentPeriodEnd:   sub.CurrentPeriodEnd,
			CanceledAt:         sub.CanceledAt,
		})
	}); err != nil {
		logger.Error("reconcile checkout", slog.String("subscription_id", sub.ID), slog.Any("error", err))
		return OutcomeFailed
	}
	logger.Info("subscription activated", slog.String("subscription_id", sub.ID), slog.String("status", sub.Status))

	r.welcome(ctx, logger, notify.Welcome{Email: email, UserID: userID, SubscriptionID: sub.ID})
	return OutcomeProcessed
}

// resolveIdentity creates the identity with a throwaway password, falling back
// to a lookup when creation fails for any reason.
func (r *Reconciler) resolveIdentity(ctx context.Context, logger *slog.Logger, email string) (string, error) {
	password, err := r.password()
	if err != nil {
		return "", fmt.Errorf("generate temporary password: %w", err)
	}

	var created *identity.Identity
	createErr := r.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		created, err = r.identities.Create(ctx, identity.CreateParams{Email: email, Password: password, Confirmed: true})
		return err
	})
	if createErr == nil && created != nil && created.ID != "" {
		logger.Info("identity created")
		return created.ID, nil
	}
	if createErr != nil && !errors.Is(createErr, identity.ErrAlreadyExists) {
		logger.Warn("create identity", slog.Any("error", createErr))
	}

	var found *identity.Identity
	findErr := r.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		found, err = r.identities.FindByEmail(ctx, email)
		return err
	})
	if findErr != nil {
		return "", fmt.Errorf("resolve identity: %w", errors.Join(createErr, findErr))
	}
	if found == nil || found.ID == "" {
		return "", errors.New("resolve identity: no identity id")
	}
	return found.ID, nil
}

func (r *Reconciler) welcome(ctx context.Context, logger *slog.Logger, w notify.Welcome) {
	if r.notifier == nil {
		return
	}
	if err := r.withTimeout(ctx, func(ctx context.Context) error {
		_, err := r.notifier.WelcomeSubscriber(ctx, w)
		return err
	}); err != nil {
		logger.Error("hand off welcome email", slog.Any("error", err))
	}
}

func (r *Reconciler) subscriptionChanged(ctx context.Context, logger *slog.Logger, evt billing.SubscriptionChanged) Outcome {
	sub := evt.Subscription
	logger = logger.With(slog.String("subscription_id", sub.ID))

	var affected int64
	err := r.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		affected, err = r.accounts.UpdateSubscriptionState(ctx, accounts.SubscriptionState{
			SubscriptionID:     sub.ID,
			Status:             sub.Status,
			CurrentPeriodStart: sub.CurrentPeriodStart,
			CurrentPeriodEnd:   sub.CurrentPeriodEnd,
			CanceledAt:         sub.CanceledAt,
		})
		return err
	})
	if err != nil {
		logger.Error("update subscription", slog.Any("error", err))
		return OutcomeFailed
	}
	if affected == 0 {
		logger.Info("subscription not tracked locally")
		return OutcomeNoop
	}
	logger.Info("subscription updated", slog.String("status", sub.Status), slog.Bool("deleted", evt.Deleted()))
	return OutcomeProcessed
}

func (r *Reconciler) fetchSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	if r.billing == nil {
		return nil, fmt.Errorf("%w: STRIPE_SECRET_KEY", shared.ErrConfigMissing)
	}
	var sub *billing.Subscription
	err := r.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		sub, err = r.billing.GetSubscription(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("subscription %s: %w", id, shared.ErrNotFound)
	}
	return sub, nil
}

func (r *Reconciler) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if r.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return fn(ctx)
}

// temporaryPassword returns a random credential the purchaser never sees; the
// account finalizer replaces it.
func temporaryPassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
