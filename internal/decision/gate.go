// Package decision implements the user-gated decision points of spec §4.3
// (AWAITING_RETRY_APPROVAL, AWAITING_IMPROVEMENT_DECISION). It is grounded on
// the teacher's internal/permission.Checker request/approval pattern, adapted
// from tool-call permission prompts to workflow retry/improvement prompts.
package decision

import (
	"fmt"
	"sync"
)

// Kind distinguishes the two decision points the phase machine defines.
type Kind string

const (
	KindRetry       Kind = "retry_approval"
	KindImprovement Kind = "improvement_decision"
)

// Pending records that a decision of Kind is outstanding for the session.
// The spec is single-session, so Gate tracks at most one Pending at a time;
// asking a second question while one is outstanding is a programming error.
type Pending struct {
	Kind Kind
}

// Gate tracks the single outstanding decision for the session. It does not
// block a goroutine waiting for the answer — per SPEC_FULL.md §6, the
// Session's own status (AWAITING_RETRY_APPROVAL / AWAITING_IMPROVEMENT_DECISION)
// is the durable record that a decision is pending; Gate exists to reject a
// decision POST that doesn't match what's actually pending, and to reject
// asking two questions at once.
type Gate struct {
	mu      sync.Mutex
	pending *Pending
}

// New creates an empty Gate.
func New() *Gate {
	return &Gate{}
}

// Ask records that a decision of the given kind is now pending. Returns an
// error if any decision, of either kind, is already pending.
func (g *Gate) Ask(kind Kind) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending != nil {
		return fmt.Errorf("decision %s already pending, cannot ask %s", g.pending.Kind, kind)
	}
	g.pending = &Pending{Kind: kind}
	return nil
}

// Resolve clears the pending decision of the given kind. Returns an error if
// no decision is pending, or the pending decision doesn't match kind.
func (g *Gate) Resolve(kind Kind) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		return fmt.Errorf("no decision pending")
	}
	if g.pending.Kind != kind {
		return fmt.Errorf("pending decision is %s, not %s", g.pending.Kind, kind)
	}
	g.pending = nil
	return nil
}

// Current returns the pending decision, or nil if none.
func (g *Gate) Current() *Pending {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return nil
	}
	p := *g.pending
	return &p
}
