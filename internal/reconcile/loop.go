// Package reconcile drives the controller towards the stored fan policy.
package reconcile

import (
	"context"
	"time"

	"codeberg.org/mutker/bmcfanctl/internal/ipmi"
	"codeberg.org/mutker/bmcfanctl/internal/journal"
	"codeberg.org/mutker/bmcfanctl/internal/logger"
	"codeberg.org/mutker/bmcfanctl/internal/policy"
	"codeberg.org/mutker/bmcfanctl/internal/telemetry"
)

// Controller is the subset of the controller client used to apply a policy.
type Controller interface {
	EnableManualControl(ctx context.Context) error
	SetManualPercent(ctx context.Context, percent int) error
	DisableManualControl(ctx context.Context) error
}

// Readiness reports whether the controller may be commanded and accepts
// outcomes observed while applying.
type Readiness interface {
	Ready() bool
	Observe(outcome ipmi.Outcome)
}

type Config struct {
	// SettleDelay is the pause between enabling manual control and setting
	// the percent. Some controllers ignore a percent sent too early.
	SettleDelay time.Duration
}

// Result describes one reconciliation cycle.
type Result struct {
	Skipped bool
	Policy  policy.Policy
	Outcome ipmi.Outcome
	Err     error
}

// Applied reports whether the controller accepted the full policy.
func (r Result) Applied() bool {
	return !r.Skipped && r.Err == nil
}

func (r Result) label() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Err == nil:
		return "applied"
	default:
		return "failed"
	}
}

// Loop applies the stored policy. It keeps no memory of what was applied
// before: every cycle re-issues the full command sequence. Not safe for
// concurrent use.
type Loop struct {
	ctrl    Controller
	store   policy.Store
	ready   Readiness
	journal journal.Recorder
	cfg     Config
	logger  logger.Logger

	bootComplete bool
	lastEntry    string
}

func New(ctrl Controller, store policy.Store, ready Readiness, rec journal.Recorder, cfg Config, log logger.Logger) *Loop {
	return &Loop{
		ctrl:    ctrl,
		store:   store,
		ready:   ready,
		journal: rec,
		cfg:     cfg,
		logger:  log,
	}
}

// BootComplete reports whether a policy has been applied successfully
// since the daemon started.
func (l *Loop) BootComplete() bool {
	return l.bootComplete
}

// Reconcile runs one cycle. Controller failures are absorbed into the
// result; an Unreachable outcome is fed back to the readiness prober.
func (l *Loop) Reconcile(ctx context.Context) Result {
	if !l.ready.Ready() {
		res := Result{Skipped: true}
		telemetry.ReconcileCyclesTotal.WithLabelValues(res.label()).Inc()
		return res
	}

	timer := telemetry.NewTimer()
	defer timer.ObserveDuration(telemetry.ReconcileDuration)

	p := l.store.Load()
	telemetry.PolicyPercent.Set(policyGauge(p))

	err := l.apply(ctx, p)
	res := Result{Policy: p, Outcome: ipmi.OutcomeOf(err), Err: err}

	if ctx.Err() != nil {
		// Shutting down; a cancelled command says nothing about the controller.
		res.Skipped = true
		return res
	}

	telemetry.ReconcileCyclesTotal.WithLabelValues(res.label()).Inc()

	if err != nil {
		l.logger.Warn().
			Err(err).
			Str("policy", p.String()).
			Str("outcome", res.Outcome.String()).
			Msg("Failed to apply fan policy")
		if res.Outcome == ipmi.Unreachable {
			l.ready.Observe(res.Outcome)
		}
	} else {
		if !l.bootComplete {
			l.logger.Info().Str("policy", p.String()).Msg("Boot sequence complete")
		}
		l.bootComplete = true
		l.logger.Debug().Str("policy", p.String()).Msg("Fan policy applied")
	}

	l.record(ctx, res)

	return res
}

func (l *Loop) apply(ctx context.Context, p policy.Policy) error {
	if !p.IsManual() {
		return l.ctrl.DisableManualControl(ctx)
	}

	if err := l.ctrl.EnableManualControl(ctx); err != nil {
		return err
	}
	if err := sleep(ctx, l.cfg.SettleDelay); err != nil {
		return err
	}

	return l.ctrl.SetManualPercent(ctx, p.Percent)
}

// record journals the cycle when its policy or outcome differs from the
// previous cycle, so steady re-applies don't flood the journal.
func (l *Loop) record(ctx context.Context, res Result) {
	entry := &journal.Entry{
		Kind:    journal.KindApply,
		Policy:  res.Policy.String(),
		Outcome: res.Outcome.String(),
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}

	key := entry.Policy + "/" + entry.Outcome
	if key == l.lastEntry {
		return
	}
	l.lastEntry = key

	if err := l.journal.Record(ctx, entry); err != nil {
		l.logger.Warn().Err(err).Msg("Failed to journal apply result")
	}
}

func policyGauge(p policy.Policy) float64 {
	if !p.IsManual() {
		return -1
	}
	return float64(p.Percent)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
