// Package operator is the operator-facing API of the daemon: status
// queries and persistent fan policy changes.
package operator

import (
	"context"
	"fmt"

	"codeberg.org/mutker/bmcfanctl/internal/daemon"
	"codeberg.org/mutker/bmcfanctl/internal/errors"
	"codeberg.org/mutker/bmcfanctl/internal/journal"
	"codeberg.org/mutker/bmcfanctl/internal/logger"
	"codeberg.org/mutker/bmcfanctl/internal/notify"
	"codeberg.org/mutker/bmcfanctl/internal/policy"
	"codeberg.org/mutker/bmcfanctl/internal/readiness"
)

type StatusSource interface {
	Snapshot() daemon.Snapshot
}

type Trigger interface {
	Trigger()
}

type ModeReader interface {
	ManualModeActive(ctx context.Context) (bool, error)
}

type Publisher interface {
	Publish(event *notify.Event)
}

// Status is the operator's view of desired and observed state.
type Status struct {
	Policy               policy.Policy
	Readiness            readiness.State
	BootComplete         bool
	AppliedMatchesPolicy bool
	LastApplyError       string
	ManualModeActive     bool
}

func (s Status) String() string {
	msg := fmt.Sprintf("Policy: %s\nReadiness: %s\nBoot complete: %t\nApplied: %t\nManual mode active: %t",
		s.Policy, s.Readiness, s.BootComplete, s.AppliedMatchesPolicy, s.ManualModeActive)
	if s.LastApplyError != "" {
		msg += "\nLast error: " + s.LastApplyError
	}
	return msg
}

type Option func(*Service)

func WithAuthorizer(a Authorizer) Option {
	return func(s *Service) { s.auth = a }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

func WithJournal(r journal.Recorder) Option {
	return func(s *Service) { s.journal = r }
}

// WithModeReader lets Status query whether manual mode is active on the
// controller.
func WithModeReader(m ModeReader) Option {
	return func(s *Service) { s.mode = m }
}

// Service is safe for concurrent use. It never commands the controller:
// changes are persisted and the daemon is asked to reconcile.
type Service struct {
	store   policy.Store
	status  StatusSource
	trigger Trigger
	auth    Authorizer
	pub     Publisher
	journal journal.Recorder
	mode    ModeReader
	logger  logger.Logger
}

func New(store policy.Store, status StatusSource, trigger Trigger, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		status:  status,
		trigger: trigger,
		auth:    Allowlist(nil),
		logger:  log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Authorized(requester string) bool {
	return s.auth.IsAuthorized(requester)
}

func (s *Service) Status(ctx context.Context) Status {
	snap := s.status.Snapshot()

	st := Status{
		Policy:               s.store.Load(),
		Readiness:            snap.Readiness,
		BootComplete:         snap.BootComplete,
		AppliedMatchesPolicy: snap.AppliedMatchesPolicy,
		LastApplyError:       snap.LastApplyError,
	}

	if s.mode != nil && snap.Readiness == readiness.Ready {
		active, err := s.mode.ManualModeActive(ctx)
		if err != nil {
			s.logger.Debug().Err(err).Msg("Failed to query manual mode")
		}
		st.ManualModeActive = active
	}

	return st
}

func (s *Service) SetManualPolicy(ctx context.Context, requester string, percent int) error {
	return s.setPolicy(ctx, requester, policy.Manual(percent))
}

func (s *Service) SetAutoPolicy(ctx context.Context, requester string) error {
	return s.setPolicy(ctx, requester, policy.Auto())
}

func (s *Service) setPolicy(ctx context.Context, requester string, p policy.Policy) error {
	errFactory := errors.New()

	if !s.auth.IsAuthorized(requester) {
		s.logger.Warn().Str("requester", requester).Msg("Unauthorized policy change rejected")
		return errFactory.WithData(errors.ErrUnauthorized, requester)
	}

	if err := p.Validate(); err != nil {
		return err
	}

	if err := s.store.Save(p); err != nil {
		s.logger.Error().Err(err).Str("policy", p.String()).Msg("Failed to persist fan policy")
		return err
	}

	s.logger.Info().
		Str("policy", p.String()).
		Str("requester", requester).
		Msg("Fan policy changed")

	if s.journal != nil {
		if err := s.journal.Record(ctx, &journal.Entry{
			Kind:      journal.KindPolicyChange,
			Policy:    p.String(),
			Requester: requester,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to journal policy change")
		}
	}

	if s.pub != nil {
		s.pub.Publish(&notify.Event{
			Kind:    notify.KindPolicy,
			Message: fmt.Sprintf("Fan policy set to %s by %s", p, requester),
		})
	}

	s.trigger.Trigger()

	return nil
}
