package devices

import (
	"fmt"

	"netsentry/internal/config"
)

// Policy selects how committed MACs age out of the presence set.
type Policy string

const (
	// PolicyAccumulate never forgets a MAC for the life of the process.
	PolicyAccumulate Policy = config.PolicyAccumulate
	// PolicySnapshot replaces the set each cycle, so a device that leaves and
	// rejoins is new again.
	PolicySnapshot Policy = config.PolicySnapshot
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyAccumulate, PolicySnapshot:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown presence policy %q", s)
}

// PresenceTracker is the set of MACs already handled this run. It is not safe
// for concurrent use; the poll loop owns it.
type PresenceTracker struct {
	policy Policy
	known  map[string]struct{}
}

func NewPresenceTracker(policy Policy) *PresenceTracker {
	return &PresenceTracker{
		policy: policy,
		known:  make(map[string]struct{}),
	}
}

func (t *PresenceTracker) Policy() Policy { return t.policy }

func (t *PresenceTracker) Len() int { return len(t.known) }

func (t *PresenceTracker) Contains(mac string) bool {
	_, ok := t.known[mac]
	return ok
}

// FilterNew returns the records whose MAC is not yet known, in input order.
// A MAC repeated within records is returned once.
func (t *PresenceTracker) FilterNew(records []Record) []Record {
	var fresh []Record
	seen := make(map[string]struct{})
	for _, rec := range records {
		if rec.MAC == "" {
			continue
		}
		if _, ok := t.known[rec.MAC]; ok {
			continue
		}
		if _, dup := seen[rec.MAC]; dup {
			continue
		}
		seen[rec.MAC] = struct{}{}
		fresh = append(fresh, rec)
	}
	return fresh
}

// Commit folds this cycle's records into the set according to the policy.
// Under PolicySnapshot records must be the full cycle observation, not only
// the new devices.
func (t *PresenceTracker) Commit(records []Record) {
	if t.policy == PolicySnapshot {
		t.known = make(map[string]struct{}, len(records))
	}
	for _, rec := range records {
		if rec.MAC != "" {
			t.known[rec.MAC] = struct{}{}
		}
	}
}

// Reset forgets every MAC.
func (t *PresenceTracker) Reset() {
	t.known = make(map[string]struct{})
}
