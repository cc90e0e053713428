// Package daemon runs the readiness prober, reconciliation loop and drift
// monitor on a single goroutine.
package daemon

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/bmcfanctl/internal/drift"
	"codeberg.org/mutker/bmcfanctl/internal/ipmi"
	"codeberg.org/mutker/bmcfanctl/internal/journal"
	"codeberg.org/mutker/bmcfanctl/internal/logger"
	"codeberg.org/mutker/bmcfanctl/internal/notify"
	"codeberg.org/mutker/bmcfanctl/internal/policy"
	"codeberg.org/mutker/bmcfanctl/internal/readiness"
	"codeberg.org/mutker/bmcfanctl/internal/reconcile"
	"codeberg.org/mutker/bmcfanctl/internal/telemetry"
)

const restoreTimeout = 30 * time.Second

type Config struct {
	Readiness         readiness.Config
	SettleDelay       time.Duration
	NotifyDelta       int
	ReapplyInterval   time.Duration
	PollInterval      time.Duration
	RestoreAutoOnExit bool
}

type Daemon struct {
	ctrl    ipmi.Controller
	prober  *readiness.Prober
	loop    *reconcile.Loop
	monitor *drift.Monitor
	board   *StatusBoard
	broker  *notify.Broker
	trigger chan struct{}
	cfg     Config
	logger  logger.Logger

	// set when another task knocked the prober out of Ready
	reprobe bool
}

func New(
	ctrl ipmi.Controller,
	store policy.Store,
	broker *notify.Broker,
	rec journal.Recorder,
	cfg Config,
	log logger.Logger,
) *Daemon {
	d := &Daemon{
		ctrl:    ctrl,
		board:   &StatusBoard{},
		broker:  broker,
		trigger: make(chan struct{}, 1),
		cfg:     cfg,
		logger:  log,
	}

	d.prober = readiness.NewProber(ctrl, cfg.Readiness, log.With("component", "readiness"))
	d.prober.OnTransition(d.readinessChanged)
	d.loop = reconcile.New(ctrl, store, d.prober, rec, reconcile.Config{SettleDelay: cfg.SettleDelay}, log.With("component", "reconcile"))
	d.monitor = drift.New(ctrl, d.prober, broker, store, cfg.NotifyDelta, log.With("component", "drift"))

	telemetry.SetReadiness(d.prober.State().String())

	return d
}

// Status returns the board other goroutines read the daemon's state from.
func (d *Daemon) Status() *StatusBoard {
	return d.board
}

// Trigger requests an out-of-cycle reconciliation. It never blocks;
// requests made while one is pending are coalesced.
func (d *Daemon) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Run owns the controller until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	probe := time.NewTimer(0)
	defer probe.Stop()
	reapply := time.NewTicker(d.cfg.ReapplyInterval)
	defer reapply.Stop()
	poll := time.NewTicker(d.cfg.PollInterval)
	defer poll.Stop()

	d.logger.Info().
		Dur("reapply_interval", d.cfg.ReapplyInterval).
		Dur("poll_interval", d.cfg.PollInterval).
		Msg("Daemon started")

	d.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case <-probe.C:
			probe.Reset(d.prober.Step(ctx))
			d.reprobe = false
			continue
		case <-reapply.C:
			d.reconcile(ctx)
		case <-poll.C:
			d.monitor.Poll(ctx)
		case <-d.trigger:
			d.reconcile(ctx)
		}

		if d.reprobe {
			d.reprobe = false
			probe.Reset(0)
		}
	}
}

func (d *Daemon) reconcile(ctx context.Context) {
	wasBooted := d.loop.BootComplete()

	res := d.loop.Reconcile(ctx)
	if res.Skipped {
		return
	}

	d.board.recordApply(res, d.loop.BootComplete())

	if !wasBooted && d.loop.BootComplete() {
		d.broker.Publish(&notify.Event{
			Kind:    notify.KindReadiness,
			Message: fmt.Sprintf("Boot sequence complete, fan policy %s applied", res.Policy),
		})
	}
}

func (d *Daemon) readinessChanged(from, to readiness.State) {
	telemetry.SetReadiness(to.String())
	d.board.setReadiness(to)

	d.broker.Publish(&notify.Event{
		Kind:    notify.KindReadiness,
		Message: fmt.Sprintf("Controller readiness changed: %s -> %s", from, to),
	})

	switch {
	case to == readiness.Ready:
		d.Trigger()
	case from == readiness.Ready:
		d.reprobe = true
	}
}

func (d *Daemon) shutdown() {
	if !d.cfg.RestoreAutoOnExit {
		d.logger.Info().Msg("Daemon stopped, fan policy left in place")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()

	if err := d.ctrl.DisableManualControl(ctx); err != nil {
		d.logger.Error().Err(err).Msg("Failed to restore automatic fan control")
		return
	}
	d.logger.Info().Msg("Automatic fan control restored")
}
