package operator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/bmcfanctl/internal/daemon"
	"codeberg.org/mutker/bmcfanctl/internal/errors"
	"codeberg.org/mutker/bmcfanctl/internal/ipmi"
	"codeberg.org/mutker/bmcfanctl/internal/ipmi/ipmitest"
	"codeberg.org/mutker/bmcfanctl/internal/journal"
	"codeberg.org/mutker/bmcfanctl/internal/logger"
	"codeberg.org/mutker/bmcfanctl/internal/notify"
	"codeberg.org/mutker/bmcfanctl/internal/policy"
	"codeberg.org/mutker/bmcfanctl/internal/readiness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	p        policy.Policy
	saves    int
	failSave bool
}

func (m *memStore) Load() policy.Policy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.p
}

func (m *memStore) Save(p policy.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failSave {
		return errors.New().New(errors.ErrPersistenceFailed)
	}
	m.p = p
	return nil
}

type staticStatus daemon.Snapshot

func (s staticStatus) Snapshot() daemon.Snapshot { return daemon.Snapshot(s) }

type countingTrigger struct{ n int }

func (c *countingTrigger) Trigger() { c.n++ }

type memJournal struct{ entries []journal.Entry }

func (j *memJournal) Record(_ context.Context, e *journal.Entry) error {
	j.entries = append(j.entries, *e)
	return nil
}

func (*memJournal) Close() error { return nil }

func TestAllowlist(t *testing.T) {
	assert.True(t, NewAllowlist(nil).IsAuthorized("anyone"))
	assert.True(t, NewAllowlist([]string{" ", ""}).IsAuthorized("anyone"))

	a := NewAllowlist([]string{"123", " 456 "})
	assert.True(t, a.IsAuthorized("123"))
	assert.True(t, a.IsAuthorized("456"))
	assert.False(t, a.IsAuthorized("789"))
	assert.False(t, a.IsAuthorized(""))
}

func TestStatusDefaultPolicy(t *testing.T) {
	store := &memStore{p: policy.Default(30)}
	ctrl := ipmitest.New()
	require.NoError(t, ctrl.EnableManualControl(context.Background()))

	svc := New(store, staticStatus{Readiness: readiness.Ready, BootComplete: true, AppliedMatchesPolicy: true},
		&countingTrigger{}, logger.Nop(), WithModeReader(ctrl))

	st := svc.Status(context.Background())
	assert.Equal(t, policy.Manual(30), st.Policy)
	assert.Equal(t, readiness.Ready, st.Readiness)
	assert.True(t, st.BootComplete)
	assert.True(t, st.AppliedMatchesPolicy)
	assert.True(t, st.ManualModeActive)
	assert.Contains(t, st.String(), "Policy: manual:30")
}

func TestStatusSkipsModeQueryWhenNotReady(t *testing.T) {
	ctrl := ipmitest.New()
	require.NoError(t, ctrl.EnableManualControl(context.Background()))

	svc := New(&memStore{p: policy.Auto()}, staticStatus{Readiness: readiness.ProbingSensors, LastApplyError: "boom"},
		&countingTrigger{}, logger.Nop(), WithModeReader(ctrl))

	st := svc.Status(context.Background())
	assert.False(t, st.ManualModeActive)
	assert.Contains(t, st.String(), "Last error: boom")
}

func TestSetManualPolicy(t *testing.T) {
	store := &memStore{p: policy.Auto()}
	trigger := &countingTrigger{}
	broker := notify.NewBroker()
	rec := &memJournal{}
	svc := New(store, staticStatus{}, trigger, logger.Nop(), WithPublisher(broker), WithJournal(rec))

	require.NoError(t, svc.SetManualPolicy(context.Background(), "123", 50))

	assert.Equal(t, policy.Manual(50), store.Load())
	assert.Equal(t, 1, trigger.n)

	events := broker.Recent(0)
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindPolicy, events[0].Kind)
	assert.Contains(t, events[0].Message, "manual:50")

	require.Len(t, rec.entries, 1)
	assert.Equal(t, journal.KindPolicyChange, rec.entries[0].Kind)
	assert.Equal(t, "123", rec.entries[0].Requester)
}

func TestSetAutoPolicy(t *testing.T) {
	store := &memStore{p: policy.Manual(30)}
	trigger := &countingTrigger{}
	svc := New(store, staticStatus{}, trigger, logger.Nop())

	require.NoError(t, svc.SetAutoPolicy(context.Background(), "123"))
	assert.Equal(t, policy.Auto(), store.Load())
	assert.Equal(t, 1, trigger.n)
}

func TestSetManualPolicyRejectsInvalidPercent(t *testing.T) {
	store := &memStore{p: policy.Auto()}
	trigger := &countingTrigger{}
	svc := New(store, staticStatus{}, trigger, logger.Nop())

	for _, percent := range []int{-1, 101} {
		err := svc.SetManualPolicy(context.Background(), "123", percent)
		assert.True(t, errors.HasCode(err, errors.ErrInvalidPercent), "percent %d", percent)
	}

	assert.Zero(t, store.saves)
	assert.Zero(t, trigger.n)
	assert.Equal(t, policy.Auto(), store.Load())
}

func TestSetPolicyPersistenceFailure(t *testing.T) {
	store := &memStore{p: policy.Auto(), failSave: true}
	trigger := &countingTrigger{}
	svc := New(store, staticStatus{}, trigger, logger.Nop())

	err := svc.SetManualPolicy(context.Background(), "123", 40)

	assert.True(t, errors.HasCode(err, errors.ErrPersistenceFailed))
	assert.Zero(t, trigger.n)
}

func TestSetPolicyUnauthorized(t *testing.T) {
	store := &memStore{p: policy.Auto()}
	trigger := &countingTrigger{}
	svc := New(store, staticStatus{}, trigger, logger.Nop(), WithAuthorizer(NewAllowlist([]string{"123"})))

	err := svc.SetAutoPolicy(context.Background(), "999")

	assert.True(t, errors.HasCode(err, errors.ErrUnauthorized))
	assert.Zero(t, store.saves)
	assert.False(t, svc.Authorized("999"))
	assert.True(t, svc.Authorized("123"))
}

func TestSetManualPolicyWhileUnreachable(t *testing.T) {
	ctrl := ipmitest.New(ipmi.Reading{FanID: "Fan1", RPM: 3000})
	ctrl.SetReachable(false)

	store := policy.Open(filepath.Join(t.TempDir(), "fan_policy.json"), policy.Manual(30), logger.Nop())
	rec, err := journal.NewService(journal.DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	d := daemon.New(ctrl, store, notify.NewBroker(), rec, daemon.Config{
		Readiness: readiness.Config{
			BackoffMin:         5 * time.Millisecond,
			BackoffMax:         20 * time.Millisecond,
			SensorRetryDelay:   5 * time.Millisecond,
			ReadyCheckInterval: 20 * time.Millisecond,
		},
		NotifyDelta:     200,
		ReapplyInterval: time.Hour,
		PollInterval:    time.Hour,
	}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	svc := New(store, d.Status(), d, logger.Nop(), WithModeReader(ctrl))

	require.NoError(t, svc.SetManualPolicy(ctx, "123", 50))
	assert.NotEqual(t, readiness.Ready, svc.Status(ctx).Readiness)

	stored := policy.Open(store.Path(), policy.Auto(), logger.Nop()).Load()
	assert.Equal(t, policy.Manual(50), stored)

	ctrl.SetReachable(true)

	require.Eventually(t, func() bool {
		manual, percent := ctrl.State()
		return manual && percent == 50
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return svc.Status(ctx).BootComplete
	}, 2*time.Second, 5*time.Millisecond)
}
