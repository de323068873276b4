package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	_ = m.Track("mail:welcome").End(nil)
	err := m.Track("mail:welcome").End(errors.New("boom"))
	assert.EqualError(t, err, "boom")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("mail:welcome", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("mail:welcome", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("mail:welcome")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NoError(t, m.Track("x").End(nil))
	m.EmailSent("welcome", "log")
}
