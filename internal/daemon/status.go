package daemon

import (
	"sync"
	"time"

	"codeberg.org/mutker/bmcfanctl/internal/readiness"
	"codeberg.org/mutker/bmcfanctl/internal/reconcile"
)

// Snapshot is the observed state of the controller as last seen by the
// daemon. It is never persisted.
type Snapshot struct {
	Readiness            readiness.State
	BootComplete         bool
	AppliedMatchesPolicy bool
	LastApplyError       string
	LastApply            time.Time
}

// StatusBoard publishes the daemon's observed state to other goroutines.
type StatusBoard struct {
	mu   sync.RWMutex
	snap Snapshot
}

func (b *StatusBoard) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

func (b *StatusBoard) setReadiness(state readiness.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.Readiness = state
}

func (b *StatusBoard) recordApply(res reconcile.Result, bootComplete bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.snap.BootComplete = bootComplete
	b.snap.AppliedMatchesPolicy = res.Applied()
	b.snap.LastApply = time.Now()
	b.snap.LastApplyError = ""
	if res.Err != nil {
		b.snap.LastApplyError = res.Err.Error()
	}
}
