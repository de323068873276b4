package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tricktime/tricktime/internal/jobs"
	"github.com/tricktime/tricktime/internal/mailer"
	"github.com/tricktime/tricktime/internal/view"
)

// WelcomeSubject is the subject line of the welcome email.
const WelcomeSubject = "Bem-vindo ao TrickTime! 🚀"

// Renderer renders a named template into markup.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// WelcomeEmailConfig wires dependencies of WelcomeEmailJob.
type WelcomeEmailConfig struct {
	Sender   mailer.Sender
	Renderer Renderer
	From     string
	AppURL   string
	// Provider labels the email metric, e.g. "resend" or "log".
	Provider string
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// WelcomeEmailJob renders and delivers the welcome email.
type WelcomeEmailJob struct {
	cfg   WelcomeEmailConfig
	clock func() time.Time
}

// NewWelcomeEmailJob wires dependencies for the welcome email handler.
func NewWelcomeEmailJob(cfg WelcomeEmailConfig) *WelcomeEmailJob {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Provider == "" {
		cfg.Provider = "unknown"
	}
	return &WelcomeEmailJob{
		cfg: cfg,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Deliver sends the welcome email synchronously and returns the provider id.
func (j *WelcomeEmailJob) Deliver(ctx context.Context, payload WelcomeEmailPayload) (string, error) {
	if j == nil || j.cfg.Sender == nil || j.cfg.Renderer == nil {
		return "", errors.New("welcome email: handler not configured")
	}
	if err := payload.Validate(); err != nil {
		return "", err
	}
	html, err := j.cfg.Renderer.Render(view.TemplateWelcome, view.WelcomeData{
		Email:  payload.Email,
		UserID: payload.UserID,
		AppURL: j.cfg.AppURL,
		Year:   j.clock().Year(),
	})
	if err != nil {
		return "", fmt.Errorf("welcome email: render: %w", err)
	}
	id, err := j.cfg.Sender.Send(ctx, mailer.Message{
		From:    j.cfg.From,
		To:      []string{payload.Email},
		Subject: WelcomeSubject,
		HTML:    html,
	})
	if err != nil {
		return "", err
	}
	j.cfg.Metrics.EmailSent("welcome", j.cfg.Provider)
	j.cfg.Logger.Info("welcome email sent",
		slog.String("email", payload.Email),
		slog.String("user_id", payload.UserID),
		slog.String("message_id", id))
	return id, nil
}

// Handle processes TaskTypeSendWelcomeEmail tasks.
func (j *WelcomeEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload WelcomeEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := j.cfg.Metrics.Track(TaskTypeSendWelcomeEmail)
	_, err := j.Deliver(ctx, payload)
	if err != nil {
		j.cfg.Logger.Error("send welcome email", slog.String("email", payload.Email), slog.Any("error", err))
	}
	return tracker.End(err)
}
