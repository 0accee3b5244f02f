package relax

import (
	"testing"

	"github.com/reelquery/reelquery/internal/constraint"
	"github.com/reelquery/reelquery/internal/entity"
)

func strictTree() *constraint.Tree {
	return constraint.Build([]entity.Value{
		entity.Genre{Name: "horror", ID: 27},
		entity.Year{Year: 1987},
		entity.Keyword{Name: "found footage", ID: 163053},
		entity.Runtime{Minutes: 90, Op: entity.LessThan},
	})
}

func TestNext_ZeroResultsWalksTheLadder(t *testing.T) {
	tree := strictTree()
	state := Strict
	zero := Signal{Results: 0, Min: 3}

	want := []struct {
		state   State
		removed []string
		depth   string
	}{
		{RelaxTertiary, []string{"with_keywords", "with_runtime"}, "secondary"},
		{RelaxSecondary, []string{"primary_release_year"}, "primary"},
		{SemanticFallback, nil, "primary"},
		{GenericDiscovery, []string{"with_genres"}, "none"},
		{Exhausted, nil, "none"},
	}

	var events []*Event
	for i, w := range want {
		var ev *Event
		state, tree, ev = Next(state, zero, tree)
		if ev == nil {
			t.Fatalf("step %d: no event", i)
		}
		events = append(events, ev)

		if state != w.state || ev.To != w.state {
			t.Fatalf("step %d: state = %s, event to %s; want %s", i, state, ev.To, w.state)
		}
		if len(ev.Removed) != len(w.removed) {
			t.Fatalf("step %d: removed = %+v, want keys %v", i, ev.Removed, w.removed)
		}
		for j, key := range w.removed {
			if ev.Removed[j].Key != key {
				t.Errorf("step %d: removed[%d] = %s, want %s", i, j, ev.Removed[j].Key, key)
			}
		}
		if ev.TierAfter != w.depth || Depth(tree) != w.depth {
			t.Errorf("step %d: depth = %s, want %s", i, ev.TierAfter, w.depth)
		}
		if ev.Reason == "" {
			t.Errorf("step %d: empty reason", i)
		}
	}

	if len(events) != 5 {
		t.Errorf("events = %d", len(events))
	}
	if events[0].From != Strict || events[0].TierBefore != "tertiary" {
		t.Errorf("first event = %+v", events[0])
	}

	final, finalTree, ev := Next(state, zero, tree)
	if final != Exhausted || ev != nil || finalTree != tree {
		t.Errorf("Exhausted must be terminal, got %s %v", final, ev)
	}
}

func TestNext_OneEventPerTier(t *testing.T) {
	tree := strictTree()
	zero := Signal{Min: 1}

	state, tree, ev := Next(Strict, zero, tree)
	if ev == nil || state != RelaxTertiary {
		t.Fatalf("first transition = %s", state)
	}
	if tree.HasTier(constraint.Tertiary) || !tree.HasTier(constraint.Secondary) {
		t.Error("first event must remove exactly the tertiary tier")
	}

	state, tree, ev = Next(state, zero, tree)
	if ev == nil || state != RelaxSecondary {
		t.Fatalf("second transition = %s", state)
	}
	if tree.HasTier(constraint.Secondary) || !tree.HasTier(constraint.Primary) {
		t.Error("second event must remove exactly the secondary tier")
	}
}

func TestNext_EmptyTierStillRecorded(t *testing.T) {
	tree := constraint.Build([]entity.Value{entity.Person{Name: "Tom Hanks", ID: 31}})

	state, out, ev := Next(Strict, Signal{Results: 0, Min: 1}, tree)
	if state != RelaxTertiary || ev == nil {
		t.Fatalf("state = %s, event = %v", state, ev)
	}
	if ev.Changed() {
		t.Errorf("removed = %+v, want none", ev.Removed)
	}
	if ev.Removed == nil {
		t.Error("Removed should be an empty list, not nil")
	}
	if out.Signature() != tree.Signature() {
		t.Error("tree changed although nothing was removed")
	}
}

func TestNext_SufficientStops(t *testing.T) {
	tree := strictTree()
	for _, s := range Ladder() {
		state, out, ev := Next(s, Signal{Results: 5, Min: 3}, tree)
		if state != s || out != tree || ev != nil {
			t.Errorf("%s: transitioned on a sufficient result", s)
		}
	}
}

func TestNext_SelectionFailureJumps(t *testing.T) {
	tests := []struct {
		from State
		want State
	}{
		{Strict, SemanticFallback},
		{RelaxTertiary, SemanticFallback},
		{RelaxSecondary, SemanticFallback},
		{SemanticFallback, GenericDiscovery},
		{GenericDiscovery, Exhausted},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			state, out, ev := Next(tt.from, Signal{Results: 10, SelectionFailed: true}, strictTree())
			if state != tt.want {
				t.Fatalf("state = %s, want %s", state, tt.want)
			}
			if ev == nil || ev.From != tt.from {
				t.Fatalf("event = %+v", ev)
			}
			if tt.want == SemanticFallback && (out.HasTier(constraint.Secondary) || out.HasTier(constraint.Tertiary)) {
				t.Error("fallback tree should keep only primary constraints")
			}
		})
	}
}

func TestNext_DoesNotModifyInput(t *testing.T) {
	tree := strictTree()
	before := tree.Signature()
	_, out, _ := Next(Strict, Signal{}, tree)
	if tree.Signature() != before {
		t.Error("input tree modified")
	}
	if out == tree {
		t.Error("relaxed tree shares identity with input")
	}
}

func TestLadder_Monotonic(t *testing.T) {
	l := Ladder()
	for i, s := range l {
		if s.Index() != i {
			t.Errorf("%s index = %d, want %d", s, s.Index(), i)
		}
	}
	if !Exhausted.Terminal() || Strict.Terminal() {
		t.Error("only EXHAUSTED is terminal")
	}

	state := Strict
	tree := strictTree()
	seen := map[State]bool{state: true}
	for !state.Terminal() {
		prev := state.Index()
		state, tree, _ = Next(state, Signal{}, tree)
		if state.Index() != prev+1 {
			t.Fatalf("skipped from index %d to %d", prev, state.Index())
		}
		if seen[state] {
			t.Fatalf("repeated %s", state)
		}
		seen[state] = true
	}
	if len(seen) != len(l) {
		t.Errorf("visited %d states, want %d", len(seen), len(l))
	}
}

func TestThresholds(t *testing.T) {
	th := DefaultThresholds()
	if th.For(true) != 3 || th.For(false) != 1 {
		t.Errorf("defaults = %d/%d", th.For(true), th.For(false))
	}
	if (Thresholds{}).For(true) != 1 {
		t.Error("zero threshold must clamp to 1")
	}
	if (Signal{Results: 0, Min: 0}).Sufficient() {
		t.Error("zero results are never sufficient")
	}
}
