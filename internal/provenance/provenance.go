// Package provenance records every constraint added, kept or removed while a
// query is planned, so the caller can explain what was given up.
package provenance

import (
	"sync"
	"time"
)

// Stage names the pipeline stage that produced an entry.
type Stage string

// Pipeline stages.
const (
	StageResolve Stage = "resolve"
	StageBuild   Stage = "build"
	StageScore   Stage = "score"
	StageInject  Stage = "inject"
	StageSort    Stage = "sort"
	StageExecute Stage = "execute"
	StageRelax   Stage = "relax"
)

// Action is what happened to a constraint or parameter.
type Action string

// Actions.
const (
	ActionAdded    Action = "added"
	ActionKept     Action = "kept"
	ActionRemoved  Action = "removed"
	ActionOverride Action = "overridden"
	ActionSelected Action = "selected"
	ActionBypassed Action = "bypassed"
	ActionFiltered Action = "filtered"
	ActionFailed   Action = "failed"
)

// Entry is one line of the provenance trail.
type Entry struct {
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Stage     Stage     `json:"stage"`
	Action    Action    `json:"action"`
	Key       string    `json:"key,omitempty"`
	Value     string    `json:"value,omitempty"`
	Tier      string    `json:"tier,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Log is an append-only provenance trail. It is the only state shared by
// concurrent tasks of a query; entries are never modified or removed.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// NewLog creates an empty log. now may be nil to use the wall clock.
func NewLog(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{now: now}
}

// Append adds an entry, stamping its sequence number and time.
func (l *Log) Append(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Seq = len(l.entries) + 1
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	l.entries = append(l.entries, e)
	return e
}

// Record is shorthand for Append without tier or value.
func (l *Log) Record(stage Stage, action Action, key, reason string) {
	l.Append(Entry{Stage: stage, Action: action, Key: key, Reason: reason})
}

// Entries returns a copy of the trail in append order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Filter returns the entries of one stage.
func (l *Log) Filter(stage Stage) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}
