// Package drift watches fan speeds and reports significant changes.
package drift

import (
	"context"

	"codeberg.org/mutker/bmcfanctl/internal/ipmi"
	"codeberg.org/mutker/bmcfanctl/internal/logger"
	"codeberg.org/mutker/bmcfanctl/internal/notify"
	"codeberg.org/mutker/bmcfanctl/internal/policy"
	"codeberg.org/mutker/bmcfanctl/internal/telemetry"
)

type Sensors interface {
	ReadSensors(ctx context.Context) ([]ipmi.Reading, error)
}

type Readiness interface {
	Ready() bool
	Observe(outcome ipmi.Outcome)
}

type Publisher interface {
	Publish(event *notify.Event)
}

// PolicySource supplies the current policy for the manual-control flag on
// notifications.
type PolicySource interface {
	Load() policy.Policy
}

// Monitor remembers the last RPM per fan. It is owned by a single
// goroutine.
type Monitor struct {
	sensors Sensors
	ready   Readiness
	pub     Publisher
	policy  PolicySource
	delta   int
	last    map[string]int
	logger  logger.Logger
}

func New(sensors Sensors, ready Readiness, pub Publisher, src PolicySource, delta int, log logger.Logger) *Monitor {
	return &Monitor{
		sensors: sensors,
		ready:   ready,
		pub:     pub,
		policy:  src,
		delta:   delta,
		last:    make(map[string]int),
		logger:  log,
	}
}

// Last returns the last recorded RPM for fanID.
func (m *Monitor) Last(fanID string) (int, bool) {
	rpm, ok := m.last[fanID]
	return rpm, ok
}

// Poll reads the fans once and publishes an event for every fan whose
// speed moved by at least the configured delta since the previous reading.
// A failed read is skipped entirely and its outcome handed to the prober.
func (m *Monitor) Poll(ctx context.Context) []*notify.Event {
	if !m.ready.Ready() {
		return nil
	}

	readings, err := m.sensors.ReadSensors(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		outcome := ipmi.OutcomeOf(err)
		m.logger.Debug().Err(err).Str("outcome", outcome.String()).Msg("Skipping fan poll")
		m.ready.Observe(outcome)
		return nil
	}

	var (
		events []*notify.Event
		manual bool
		loaded bool
	)

	for _, r := range readings {
		telemetry.FanRPM.WithLabelValues(r.FanID).Set(float64(r.RPM))

		old, seen := m.last[r.FanID]
		m.last[r.FanID] = r.RPM
		if !seen || abs(r.RPM-old) < m.delta {
			continue
		}

		if !loaded {
			manual = m.policy.Load().IsManual()
			loaded = true
		}

		ev := &notify.Event{
			Kind:          notify.KindFanDrift,
			FanID:         r.FanID,
			OldRPM:        old,
			NewRPM:        r.RPM,
			ManualControl: manual,
		}
		ev.Message = ev.String()

		m.logger.Info().
			Str("fan", r.FanID).
			Int("old_rpm", old).
			Int("new_rpm", r.RPM).
			Msg("Fan speed changed")
		telemetry.DriftNotificationsTotal.WithLabelValues(r.FanID).Inc()
		m.pub.Publish(ev)
		events = append(events, ev)
	}

	return events
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
