package readiness

import (
	"context"
	"time"

	"codeberg.org/mutker/bmcfanctl/internal/ipmi"
	"codeberg.org/mutker/bmcfanctl/internal/logger"
)

// Controller is the subset of the controller client the prober needs.
type Controller interface {
	Probe(ctx context.Context) error
	ReadSensors(ctx context.Context) ([]ipmi.Reading, error)
}

type Config struct {
	BackoffMin         time.Duration
	BackoffMax         time.Duration
	SensorRetryDelay   time.Duration
	ReadyCheckInterval time.Duration
}

// Prober drives a Machine against a real controller. It is owned by a single
// goroutine and is not safe for concurrent use.
type Prober struct {
	ctrl    Controller
	cfg     Config
	machine *Machine
	backoff time.Duration
	logger  logger.Logger

	onTransition func(from, to State)
}

func NewProber(ctrl Controller, cfg Config, log logger.Logger) *Prober {
	return &Prober{
		ctrl:    ctrl,
		cfg:     cfg,
		machine: NewMachine(),
		logger:  log,
	}
}

// OnTransition registers fn to be called after every state change.
func (p *Prober) OnTransition(fn func(from, to State)) {
	p.onTransition = fn
}

func (p *Prober) State() State {
	return p.machine.State()
}

func (p *Prober) Ready() bool {
	return p.machine.State() == Ready
}

// Step performs the probing action for the current state and returns how
// long to wait before the next step. It never gives up: failures only
// lengthen the delay, up to BackoffMax.
func (p *Prober) Step(ctx context.Context) time.Duration {
	if p.State() != ProbingSensors {
		if err := p.ctrl.Probe(ctx); err != nil {
			p.apply(ProbeFailed)
			delay := p.nextBackoff()
			p.logger.Debug().Err(err).Dur("retry_in", delay).Msg("Controller not reachable")
			return delay
		}

		p.backoff = 0
		if p.apply(ProbeOK) == Ready {
			return p.cfg.ReadyCheckInterval
		}
	}

	return p.checkSensors(ctx)
}

func (p *Prober) checkSensors(ctx context.Context) time.Duration {
	_, err := p.ctrl.ReadSensors(ctx)

	switch ipmi.OutcomeOf(err) {
	case ipmi.OK:
		p.apply(SensorsOK)
		return p.cfg.ReadyCheckInterval
	case ipmi.SensorsNotReady:
		p.apply(SensorsNotReady)
		p.logger.Debug().Dur("retry_in", p.cfg.SensorRetryDelay).Msg("Waiting for sensor repository")
		return p.cfg.SensorRetryDelay
	default:
		p.apply(ProbeFailed)
		delay := p.nextBackoff()
		p.logger.Debug().Err(err).Dur("retry_in", delay).Msg("Sensor read failed")
		return delay
	}
}

// Observe feeds an outcome seen by another task back into the machine, so a
// controller that silently reset is noticed before the next probe.
func (p *Prober) Observe(outcome ipmi.Outcome) {
	switch outcome {
	case ipmi.Unreachable:
		p.apply(ProbeFailed)
	case ipmi.SensorsNotReady:
		p.apply(SensorsNotReady)
	}
}

func (p *Prober) apply(ev Event) State {
	from := p.machine.State()
	to := p.machine.Transition(ev)

	if from != to {
		p.logger.Info().
			Str("from", from.String()).
			Str("to", to.String()).
			Str("event", ev.String()).
			Msg("Readiness changed")
		if p.onTransition != nil {
			p.onTransition(from, to)
		}
	}

	return to
}

func (p *Prober) nextBackoff() time.Duration {
	if p.backoff == 0 {
		p.backoff = p.cfg.BackoffMin
	} else {
		p.backoff = min(p.backoff*2, p.cfg.BackoffMax)
	}

	return p.backoff
}
