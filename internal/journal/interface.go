package journal

import (
	"context"
	"time"
)

// Recorder is the audit journal used by the daemon and operator service.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	Close() error
}

// Repository stores journal entries.
type Repository interface {
	Record(entry *Entry) error
	Entries(limit int) ([]Entry, error)
	Close() error
}

type Kind string

const (
	KindPolicyChange Kind = "policy_change"
	KindApply        Kind = "apply"
)

// Entry is a single audit record. Policy is the textual policy form
// ("auto" or "manual:<percent>").
type Entry struct {
	Timestamp time.Time
	Kind      Kind
	Policy    string
	Requester string
	Outcome   string
	Error     string
}
