// Package telemetry exposes the daemon's current state as Prometheus
// metrics. Only the latest values are kept; nothing here is a history.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"codeberg.org/mutker/bmcfanctl/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

var (
	ReadinessState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bmcfanctl_readiness_state",
			Help: "Current controller readiness state (1 for the active state)",
		},
		[]string{"state"},
	)

	ReconcileCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmcfanctl_reconcile_cycles_total",
			Help: "Reconciliation cycles by result",
		},
		[]string{"result"},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bmcfanctl_reconcile_duration_seconds",
			Help:    "Time taken by one reconciliation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	PolicyPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bmcfanctl_policy_percent",
			Help: "Fan percent of the stored policy, -1 for automatic control",
		},
	)

	FanRPM = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bmcfanctl_fan_rpm",
			Help: "Last observed fan speed in RPM",
		},
		[]string{"fan"},
	)

	DriftNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmcfanctl_drift_notifications_total",
			Help: "Fan speed change notifications by fan",
		},
		[]string{"fan"},
	)
)

var readinessStates = []string{"unknown", "probing_reachability", "probing_sensors", "ready"}

func init() {
	prometheus.MustRegister(ReadinessState)
	prometheus.MustRegister(ReconcileCyclesTotal)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(PolicyPercent)
	prometheus.MustRegister(FanRPM)
	prometheus.MustRegister(DriftNotificationsTotal)
}

// SetReadiness marks state as the active readiness state.
func SetReadiness(state string) {
	for _, s := range readinessStates {
		v := 0.0
		if s == state {
			v = 1
		}
		ReadinessState.WithLabelValues(s).Set(v)
	}
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in seconds on o.
func (t *Timer) ObserveDuration(o prometheus.Observer) {
	o.Observe(t.Duration().Seconds())
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
