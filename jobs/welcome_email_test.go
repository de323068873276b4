package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/tricktime/tricktime/internal/jobs"
	"github.com/tricktime/tricktime/internal/mailer"
	"github.com/tricktime/tricktime/internal/view"
)

type recordingSender struct {
	sent []mailer.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg mailer.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, msg)
	return "email_1", nil
}

func newTestWelcomeJob(t *testing.T, sender mailer.Sender) *WelcomeEmailJob {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	job := NewWelcomeEmailJob(WelcomeEmailConfig{
		Sender:   sender,
		Renderer: engine,
		From:     "TrickTime <onboarding@resend.dev>",
		AppURL:   "https://tricktime.vercel.app/",
		Provider: "test",
		Metrics:  jobmetrics.NewMetrics(prometheus.NewRegistry()),
	})
	job.clock = func() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC) }
	return job
}

func TestWelcomeEmailDeliver(t *testing.T) {
	sender := &recordingSender{}
	job := newTestWelcomeJob(t, sender)

	id, err := job.Deliver(context.Background(), WelcomeEmailPayload{Email: "a@b.com", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "email_1", id)
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, []string{"a@b.com"}, msg.To)
	assert.Equal(t, WelcomeSubject, msg.Subject)
	assert.Equal(t, "TrickTime <onboarding@resend.dev>", msg.From)
	assert.Contains(t, msg.HTML, "https://tricktime.vercel.app/")
	assert.Contains(t, msg.HTML, "© 2026 TrickTime")
}

func TestWelcomeEmailDeliverRequiresEmail(t *testing.T) {
	sender := &recordingSender{}
	job := newTestWelcomeJob(t, sender)

	_, err := job.Deliver(context.Background(), WelcomeEmailPayload{UserID: "u1"})
	assert.EqualError(t, err, "email is required")
	assert.Empty(t, sender.sent)
}

func TestWelcomeEmailHandle(t *testing.T) {
	sender := &recordingSender{}
	job := newTestWelcomeJob(t, sender)

	task, err := NewWelcomeEmailTask(WelcomeEmailPayload{Email: "a@b.com", UserID: "u1"}, "welcome:sub_1")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Len(t, sender.sent, 1)

	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendWelcomeEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendWelcomeEmail, []byte(`{"userId":"u1"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestWelcomeEmailHandleProviderFailureIsRetried(t *testing.T) {
	job := newTestWelcomeJob(t, &recordingSender{err: errors.New("provider down")})
	task, err := NewWelcomeEmailTask(WelcomeEmailPayload{Email: "a@b.com"}, "")
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestNewWelcomeEmailTask(t *testing.T) {
	task, err := NewWelcomeEmailTask(WelcomeEmailPayload{Email: "a@b.com", UserID: "u1"}, "welcome:sub_1")
	require.NoError(t, err)
	assert.Equal(t, TaskTypeSendWelcomeEmail, task.Type())

	var payload WelcomeEmailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "u1", payload.UserID)

	_, err = NewWelcomeEmailTask(WelcomeEmailPayload{}, "")
	assert.Error(t, err)
}

type pruner struct {
	olderThan time.Duration
	err       error
}

func (p *pruner) Cleanup(_ context.Context, olderThan time.Duration) error {
	p.olderThan = olderThan
	return p.err
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	store := &pruner{}
	job := NewIdempotencyCleanupJob(store, nil, nil)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskTypeIdempotencyCleanup, []byte(`{}`))))
	assert.Equal(t, DefaultIdempotencyRetention, store.olderThan)

	task, err := NewIdempotencyCleanupTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, time.Hour, store.olderThan)
}
