// Package observability provides the query log and per-stage tracing.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/reelquery/reelquery/internal/pkg/logger"
)

// DefaultMaxLogs bounds the in-memory query log.
const DefaultMaxLogs = 10000

// Service keeps a bounded, time-ordered log of answered queries.
type Service struct {
	mu       sync.RWMutex
	queryLog []QueryLogEntry
	maxLogs  int
	log      *logger.Logger
}

// NewService creates a new observability service. maxLogs <= 0 uses
// DefaultMaxLogs.
func NewService(maxLogs int, log *logger.Logger) *Service {
	if maxLogs <= 0 {
		maxLogs = DefaultMaxLogs
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		queryLog: make([]QueryLogEntry, 0, min(maxLogs, 1000)),
		maxLogs:  maxLogs,
		log:      log,
	}
}

// LogQuery records a query.
func (s *Service) LogQuery(entry QueryLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queryLog = append(s.queryLog, entry)

	if len(s.queryLog) > s.maxLogs {
		// Drop the oldest tenth at once to amortize the copy.
		removeCount := max(s.maxLogs/10, 1)
		s.queryLog = append(s.queryLog[:0:0], s.queryLog[removeCount:]...)
	}

	s.log.Debug("Query logged",
		"query_id", entry.QueryID,
		"final_state", entry.FinalState,
		"results", entry.ResultCount,
	)
}

// Recent returns up to n of the newest entries, newest first.
func (s *Service) Recent(n int) []QueryLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.queryLog) {
		n = len(s.queryLog)
	}
	out := make([]QueryLogEntry, 0, n)
	for i := len(s.queryLog) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.queryLog[i])
	}
	return out
}

// Len returns the number of logged queries.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queryLog)
}

// GetQueriesInRange returns queries within a time range, optionally
// restricted to one final relaxation state.
func (s *Service) GetQueriesInRange(ctx context.Context, finalState string, from, to time.Time) ([]QueryLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []QueryLogEntry
	for _, entry := range s.queryLog {
		if finalState != "" && entry.FinalState != finalState {
			continue
		}
		if entry.Timestamp.Before(from) || entry.Timestamp.After(to) {
			continue
		}
		results = append(results, entry)
	}
	return results, nil
}
