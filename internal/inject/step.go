// Package inject builds the concrete call parameters for an endpoint from
// the constraint tree in four ordered phases.
//
// Precedence is constraint > entity > semantic inference > default. It is
// enforced only by the order in which phases run and by whether a phase
// overrides (Set) or fills gaps (SetIfAbsent).
package inject

import (
	"github.com/reelquery/reelquery/internal/entity"
	"github.com/reelquery/reelquery/internal/pkg/hash"
)

// Phase identifies which injection phase set a parameter.
type Phase string

// Injection phases in execution order. PhaseSort is applied by the sort
// strategy after the pipeline.
const (
	PhaseEntity     Phase = "entity"
	PhaseConstraint Phase = "constraint"
	PhaseSemantic   Phase = "semantic"
	PhaseDefault    Phase = "default"
	PhaseRevenue    Phase = "revenue"
	PhaseSort       Phase = "sort"
)

// RevenueFilter is a box office threshold checked after enrichment. It is
// step metadata, never a query parameter.
type RevenueFilter struct {
	Threshold int64           `json:"threshold"`
	Op        entity.Operator `json:"operator"`
}

// Matches reports whether revenue satisfies the filter. Unknown revenue
// (zero) never does.
func (f RevenueFilter) Matches(revenue int64) bool {
	if revenue <= 0 {
		return false
	}
	return f.Op.Compare(float64(revenue), float64(f.Threshold))
}

// Change records one parameter write, for auditing conflicts.
type Change struct {
	Phase    Phase  `json:"phase"`
	Key      string `json:"key"`
	Value    string `json:"value,omitempty"`
	Previous string `json:"previous,omitempty"`
	From     Phase  `json:"from,omitempty"`
	Removed  bool   `json:"removed,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Step is one parameterized endpoint call.
type Step struct {
	Endpoint   string            `json:"endpoint"`
	Media      entity.Media      `json:"media,omitempty"`
	Parameters map[string]string `json:"parameters"`
	Sources    map[string]Phase  `json:"sources"`
	DependsOn  string            `json:"depends_on,omitempty"`
	Revenue    []RevenueFilter   `json:"revenue,omitempty"`
	Changes    []Change          `json:"changes,omitempty"`
}

// NewStep creates an empty step for endpoint.
func NewStep(endpoint string, media entity.Media) *Step {
	return &Step{
		Endpoint:   endpoint,
		Media:      media,
		Parameters: make(map[string]string),
		Sources:    make(map[string]Phase),
	}
}

// Set writes key unconditionally.
func (s *Step) Set(phase Phase, key, value, reason string) {
	prev, had := s.Parameters[key]
	if had && prev == value && s.Sources[key] == phase {
		return
	}
	c := Change{Phase: phase, Key: key, Value: value, Reason: reason}
	if had {
		c.Previous = prev
		c.From = s.Sources[key]
	}
	s.Parameters[key] = value
	s.Sources[key] = phase
	s.Changes = append(s.Changes, c)
}

// SetIfAbsent writes key only if no earlier phase set it. It reports
// whether the value was written.
func (s *Step) SetIfAbsent(phase Phase, key, value, reason string) bool {
	if _, ok := s.Parameters[key]; ok {
		return false
	}
	s.Set(phase, key, value, reason)
	return true
}

// Delete removes key.
func (s *Step) Delete(phase Phase, key, reason string) {
	prev, ok := s.Parameters[key]
	if !ok {
		return
	}
	s.Changes = append(s.Changes, Change{
		Phase: phase, Key: key, Previous: prev, From: s.Sources[key], Removed: true, Reason: reason,
	})
	delete(s.Parameters, key)
	delete(s.Sources, key)
}

// Has reports whether key is set.
func (s *Step) Has(key string) bool {
	_, ok := s.Parameters[key]
	return ok
}

// Overrides returns the changes that replaced a different value, or
// removed one, written by another phase.
func (s *Step) Overrides() []Change {
	var out []Change
	for _, c := range s.Changes {
		if c.From != "" && c.From != c.Phase && (c.Removed || c.Previous != c.Value) {
			out = append(out, c)
		}
	}
	return out
}

// Fingerprint is a stable digest of the endpoint and parameters.
func (s *Step) Fingerprint() string {
	return hash.Fingerprint(s.Endpoint, s.Parameters)
}

// Clone returns a deep copy.
func (s *Step) Clone() *Step {
	c := NewStep(s.Endpoint, s.Media)
	c.DependsOn = s.DependsOn
	for k, v := range s.Parameters {
		c.Parameters[k] = v
	}
	for k, v := range s.Sources {
		c.Sources[k] = v
	}
	c.Revenue = append([]RevenueFilter(nil), s.Revenue...)
	c.Changes = append([]Change(nil), s.Changes...)
	return c
}
