// Package notify hands activated subscribers to the welcome email queue and
// exposes the synchronous welcome email endpoint.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/tricktime/tricktime/internal/shared"
	"github.com/tricktime/tricktime/jobs"
)

// IdempotencyModule scopes welcome keys in the idempotency ledger.
const IdempotencyModule = "notify"

// KeyStore records side effects that already happened.
type KeyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Enqueuer submits welcome email tasks.
type Enqueuer interface {
	EnqueueWelcome(ctx context.Context, payload jobs.WelcomeEmailPayload, taskID string) (*asynq.TaskInfo, error)
}

// Welcome identifies a newly activated subscriber.
type Welcome struct {
	Email          string
	UserID         string
	SubscriptionID string
}

// Key returns the idempotency key for the welcome email.
func (w Welcome) Key() string {
	if w.SubscriptionID != "" {
		return "welcome:" + w.SubscriptionID
	}
	return "welcome:user:" + w.UserID
}

// Notifier queues at most one welcome email per subscription.
type Notifier struct {
	keys   KeyStore
	queue  Enqueuer
	logger *slog.Logger
}

// NewNotifier constructs a Notifier. A nil KeyStore relies on the queue's task
// id uniqueness alone.
func NewNotifier(keys KeyStore, queue Enqueuer, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{keys: keys, queue: queue, logger: logger}
}

// WelcomeSubscriber queues the welcome email. It reports false without error
// when the email was already handed off for this subscription.
func (n *Notifier) WelcomeSubscriber(ctx context.Context, w Welcome) (bool, error) {
	if n == nil || n.queue == nil {
		return false, errors.New("notify: queue not configured")
	}
	if w.Email == "" {
		return false, fmt.Errorf("notify: %w: email required", shared.ErrValidation)
	}
	key := w.Key()
	logger := n.logger.With(slog.String("key", key), slog.String("email", w.Email))

	if n.keys != nil {
		if err := n.keys.CheckAndInsert(ctx, key, IdempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				logger.Info("welcome email already queued")
				return false, nil
			}
			return false, fmt.Errorf("notify: record key: %w", err)
		}
	}

	_, err := n.queue.EnqueueWelcome(ctx, jobs.WelcomeEmailPayload{Email: w.Email, UserID: w.UserID}, key)
	switch {
	case errors.Is(err, jobs.ErrAlreadyQueued):
		logger.Info("welcome email task already retained")
		return false, nil
	case err != nil:
		if n.keys != nil {
			if delErr := n.keys.Delete(ctx, key); delErr != nil {
				logger.Warn("release welcome key", slog.Any("error", delErr))
			}
		}
		return false, fmt.Errorf("notify: enqueue welcome: %w", err)
	}
	logger.Info("welcome email queued", slog.String("user_id", w.UserID))
	return true, nil
}
