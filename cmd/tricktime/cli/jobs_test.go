package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tricktime/tricktime/jobs"
	_ "github.com/tricktime/tricktime/testing"
)

type fakeEnqueuer struct {
	payloads []jobs.WelcomeEmailPayload
	taskIDs  []string
	closed   bool
}

func (f *fakeEnqueuer) EnqueueWelcome(_ context.Context, payload jobs.WelcomeEmailPayload, taskID string) (*asynq.TaskInfo, error) {
	f.payloads = append(f.payloads, payload)
	f.taskIDs = append(f.taskIDs, taskID)
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error {
	f.closed = true
	return nil
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func (fakeInspector) Close() error { return nil }

func TestResendWelcomeNormalizesEmail(t *testing.T) {
	enq := &fakeEnqueuer{}
	c := &JobsCLI{client: enq}

	info, err := c.ResendWelcome(context.Background(), "  Buyer@Example.COM ", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "task-1", info.ID)
	require.Len(t, enq.payloads, 1)
	assert.Equal(t, "buyer@example.com", enq.payloads[0].Email)
	assert.Equal(t, "user-1", enq.payloads[0].UserID)
	assert.Equal(t, "", enq.taskIDs[0])
}

func TestResendWelcomeRequiresEmail(t *testing.T) {
	enq := &fakeEnqueuer{}
	_, err := (&JobsCLI{client: enq}).ResendWelcome(context.Background(), " ", "")
	require.Error(t, err)
	assert.Empty(t, enq.payloads)

	_, err = (*JobsCLI)(nil).ResendWelcome(context.Background(), "a@b.com", "")
	assert.Error(t, err)
}

func TestInspectQueue(t *testing.T) {
	c := &JobsCLI{inspector: fakeInspector{info: &asynq.QueueInfo{Pending: 3, Retry: 1, Archived: 2}}}
	stats, err := c.InspectQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 3, Retry: 1, Archived: 2}, stats)

	c = &JobsCLI{inspector: fakeInspector{err: errors.New("redis down")}}
	_, err = c.InspectQueue(context.Background())
	assert.EqualError(t, err, "redis down")
}

func TestResendWelcomeCommand(t *testing.T) {
	// Operational commands only need Redis or Postgres settings.
	t.Setenv("APP_ENV", "test")
	t.Setenv("IDENTITY_BACKEND", "supabase")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "")

	enq := &fakeEnqueuer{}
	original := newJobsCLI
	newJobsCLI = func(string) *JobsCLI { return &JobsCLI{client: enq} }
	t.Cleanup(func() { newJobsCLI = original })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"jobs", "resend-welcome", "--email", "buyer@example.com", "--user-id", "u-9"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Equal(t, "queued task-1\n", out.String())
	require.Len(t, enq.payloads, 1)
	assert.Equal(t, "u-9", enq.payloads[0].UserID)
	assert.True(t, enq.closed)
}

func TestParseSteps(t *testing.T) {
	steps, err := parseSteps(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, steps)

	steps, err = parseSteps([]string{"3"})
	require.NoError(t, err)
	assert.Equal(t, 3, steps)

	_, err = parseSteps([]string{"0"})
	assert.Error(t, err)
	_, err = parseSteps([]string{"x"})
	assert.Error(t, err)
}

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"serve", "worker", "migrate", "jobs"} {
		assert.True(t, names[want], want)
	}
}
