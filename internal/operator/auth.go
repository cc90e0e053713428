package operator

import "strings"

// Authorizer decides whether a requester may change the fan policy.
type Authorizer interface {
	IsAuthorized(requester string) bool
}

// Allowlist authorizes the listed requesters. An empty list authorizes
// everyone.
type Allowlist map[string]struct{}

func NewAllowlist(ids []string) Allowlist {
	a := make(Allowlist, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			a[id] = struct{}{}
		}
	}
	return a
}

func (a Allowlist) IsAuthorized(requester string) bool {
	if len(a) == 0 {
		return true
	}
	_, ok := a[strings.TrimSpace(requester)]
	return ok
}
