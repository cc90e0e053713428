package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetReadiness(t *testing.T) {
	SetReadiness("probing_sensors")
	assert.Equal(t, 1.0, testutil.ToFloat64(ReadinessState.WithLabelValues("probing_sensors")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ReadinessState.WithLabelValues("ready")))

	SetReadiness("ready")
	assert.Equal(t, 0.0, testutil.ToFloat64(ReadinessState.WithLabelValues("probing_sensors")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ReadinessState.WithLabelValues("ready")))
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	if timer.start.IsZero() {
		t.Fatal("NewTimer() start time is zero")
	}

	time.Sleep(20 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 20*time.Millisecond)

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_duration_seconds",
		Help: "Test duration histogram",
	})
	timer.ObserveDuration(histogram)
	assert.Equal(t, 1, testutil.CollectAndCount(histogram))
}

func TestHandler(t *testing.T) {
	FanRPM.WithLabelValues("Fan1").Set(3600)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `bmcfanctl_fan_rpm{fan="Fan1"} 3600`), body)
}
