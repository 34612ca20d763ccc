package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func collectCount(c prometheus.Collector) int {
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	return len(ch)
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	assert.WithinDuration(t, time.Now(), timer.start, time.Second)

	time.Sleep(50 * time.Millisecond)
	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 50*time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first, "duration should keep growing")
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_timer_observe_seconds",
		Help: "test",
	})

	timer := NewTimer()
	timer.ObserveDuration(histogram)
	timer.ObserveDuration(histogram)

	assert.Equal(t, 1, collectCount(histogram))
}

func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_timer_observe_vec_seconds",
		Help: "test",
	}, []string{"operation"})

	timer := NewTimer()
	timer.ObserveDurationVec(vec, "create")
	timer.ObserveDurationVec(vec, "attach")

	assert.Equal(t, 2, collectCount(vec))
}
