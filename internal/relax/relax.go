// Package relax implements the progressive relaxation ladder as a pure
// state machine. It decides what to give up next; running the relaxed
// query is the planner's job.
package relax

import (
	"fmt"
	"time"

	"github.com/reelquery/reelquery/internal/constraint"
)

// State is a rung of the relaxation ladder.
type State string

// Ladder states, strictest first.
const (
	Strict           State = "STRICT"
	RelaxTertiary    State = "RELAX_TERTIARY"
	RelaxSecondary   State = "RELAX_SECONDARY"
	SemanticFallback State = "SEMANTIC_FALLBACK"
	GenericDiscovery State = "GENERIC_DISCOVERY"
	Exhausted        State = "EXHAUSTED"
)

var ladder = []State{Strict, RelaxTertiary, RelaxSecondary, SemanticFallback, GenericDiscovery, Exhausted}

// Ladder returns the states in order.
func Ladder() []State {
	out := make([]State, len(ladder))
	copy(out, ladder)
	return out
}

// Index returns the position of s on the ladder, or -1.
func (s State) Index() int {
	for i, l := range ladder {
		if l == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Exhausted
}

func (s State) next() State {
	i := s.Index()
	if i < 0 || i >= len(ladder)-1 {
		return Exhausted
	}
	return ladder[i+1]
}

// Thresholds are the minimum result counts that make an answer useful.
type Thresholds struct {
	List  int
	Other int
}

// DefaultThresholds returns 3 for list questions and 1 otherwise.
func DefaultThresholds() Thresholds {
	return Thresholds{List: 3, Other: 1}
}

// For returns the minimum for a question type.
func (t Thresholds) For(list bool) int {
	n := t.Other
	if list {
		n = t.List
	}
	if n < 1 {
		return 1
	}
	return n
}

// Signal is what the last attempt produced.
type Signal struct {
	Results int
	Min     int

	// SelectionFailed is set when no endpoint cleared the coverage
	// threshold, so nothing was executed.
	SelectionFailed bool
}

// Sufficient reports whether the attempt is good enough to stop.
func (s Signal) Sufficient() bool {
	need := s.Min
	if need < 1 {
		need = 1
	}
	return !s.SelectionFailed && s.Results >= need
}

// Removed is one constraint given up by a transition.
type Removed struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Tier  string `json:"tier"`
}

// Event records one transition. Events are appended, never rewritten.
type Event struct {
	From       State     `json:"from"`
	To         State     `json:"to"`
	Removed    []Removed `json:"removed"`
	Reason     string    `json:"reason"`
	TierBefore string    `json:"tier_before"`
	TierAfter  string    `json:"tier_after"`
	Timestamp  time.Time `json:"timestamp"`
}

// Changed reports whether the transition removed any constraint.
func (e Event) Changed() bool {
	return len(e.Removed) > 0
}

// Depth names the loosest tier still present in tree, or "none".
func Depth(tree *constraint.Tree) string {
	for _, t := range []constraint.Tier{constraint.Tertiary, constraint.Secondary, constraint.Primary} {
		if tree.HasTier(t) {
			return t.String()
		}
	}
	return "none"
}

// Next is the transition function. When sig is sufficient or state is
// terminal it returns the inputs unchanged and a nil event. Otherwise it
// moves exactly one rung down (or straight to SEMANTIC_FALLBACK after a
// failed endpoint selection) and returns the relaxed tree with the event
// describing it. The event timestamp is left for the caller to stamp.
// tree is never modified.
func Next(state State, sig Signal, tree *constraint.Tree) (State, *constraint.Tree, *Event) {
	if state.Terminal() || sig.Sufficient() {
		return state, tree, nil
	}
	if state.Index() < 0 {
		state = Strict
	}

	ev := &Event{From: state, TierBefore: Depth(tree)}
	next := state.next()
	out := tree
	var reason string

	if sig.SelectionFailed && state.Index() < SemanticFallback.Index() {
		next = SemanticFallback
		var removed []constraint.Leaf
		out, removed = tree.WithoutTier(constraint.Tertiary)
		ev.Removed = append(ev.Removed, toRemoved(removed)...)
		out, removed = out.WithoutTier(constraint.Secondary)
		ev.Removed = append(ev.Removed, toRemoved(removed)...)
		reason = "no endpoint cleared the coverage threshold"
	} else {
		switch next {
		case RelaxTertiary:
			out, ev.Removed, reason = drop(tree, constraint.Tertiary, sig)
		case RelaxSecondary:
			out, ev.Removed, reason = drop(tree, constraint.Secondary, sig)
		case SemanticFallback:
			reason = fmt.Sprintf("%s; using the best semantic endpoint without symbolic filtering", shortfall(sig))
		case GenericDiscovery:
			out, ev.Removed, reason = drop(tree, constraint.Primary, sig)
			reason += "; falling back to media-type discovery"
		default:
			reason = fmt.Sprintf("%s; nothing left to relax", shortfall(sig))
		}
	}

	ev.To = next
	ev.Reason = reason
	ev.TierAfter = Depth(out)
	if ev.Removed == nil {
		ev.Removed = []Removed{}
	}
	return next, out, ev
}

func drop(tree *constraint.Tree, tier constraint.Tier, sig Signal) (*constraint.Tree, []Removed, string) {
	out, removed := tree.WithoutTier(tier)
	if len(removed) == 0 {
		return out, nil, fmt.Sprintf("%s; no %s constraints to remove", shortfall(sig), tier)
	}
	return out, toRemoved(removed), fmt.Sprintf("%s; removed %d %s constraint(s)", shortfall(sig), len(removed), tier)
}

func toRemoved(leaves []constraint.Leaf) []Removed {
	out := make([]Removed, 0, len(leaves))
	for _, l := range leaves {
		out = append(out, Removed{Key: l.Key, Value: l.Value.Label(), Tier: l.Tier.String()})
	}
	return out
}

func shortfall(sig Signal) string {
	if sig.SelectionFailed {
		return "no viable endpoint"
	}
	need := sig.Min
	if need < 1 {
		need = 1
	}
	return fmt.Sprintf("%d result(s), need %d", sig.Results, need)
}
