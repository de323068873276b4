package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendWelcomeEmail delivers the welcome email after activation.
	TaskTypeSendWelcomeEmail = "mail:welcome"
	// TaskTypeIdempotencyCleanup prunes old side-effect keys.
	TaskTypeIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// Delivery policy for welcome emails.
const (
	WelcomeMaxRetry  = 5
	WelcomeTimeout   = 30 * time.Second
	WelcomeRetention = 24 * time.Hour
)

// WelcomeEmailPayload is the notifier contract: who to greet.
type WelcomeEmailPayload struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
}

// Validate ensures the payload can be delivered.
func (p WelcomeEmailPayload) Validate() error {
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("email is required")
	}
	return nil
}

// NewWelcomeEmailTask constructs an Asynq task. A non-empty taskID makes the
// enqueue unique for as long as the task is retained.
func NewWelcomeEmailTask(payload WelcomeEmailPayload, taskID string) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode welcome payload: %w", err)
	}
	opts := []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(WelcomeMaxRetry),
		asynq.Timeout(WelcomeTimeout),
		asynq.Retention(WelcomeRetention),
	}
	if taskID != "" {
		opts = append(opts, asynq.TaskID(taskID))
	}
	return asynq.NewTask(TaskTypeSendWelcomeEmail, data, opts...), nil
}

// IdempotencyCleanupPayload carries the retention window to enforce.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask constructs the periodic cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
