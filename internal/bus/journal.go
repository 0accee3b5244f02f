package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/pkg/logger"
)

// JournalEntry is one line of the event journal.
type JournalEntry struct {
	Topic    string    `json:"topic"`
	Event    Event     `json:"event"`
	Recorded time.Time `json:"recorded"`
}

// Journal appends published events to a JSON lines file so answers and
// relaxation traces can be inspected or replayed later.
type Journal struct {
	path string

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// OpenJournal opens path for appending, creating parent directories.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "failed to create journal directory", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "failed to open journal", err)
	}
	return &Journal{path: path, file: f, encoder: json.NewEncoder(f)}, nil
}

// Append writes one event.
func (j *Journal) Append(topic string, event Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.New(errors.CodeUnavailable, "journal is closed")
	}
	if err := j.encoder.Encode(JournalEntry{Topic: topic, Event: event, Recorded: time.Now().UTC()}); err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	return nil
}

// Read returns entries recorded after since, oldest first. limit <= 0 means
// no limit. Malformed lines are skipped.
func (j *Journal) Read(since time.Time, limit int) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ReadJournal(j.path, since, limit)
}

// ReadJournal reads a journal file without opening it for writing.
func ReadJournal(path string, since time.Time, limit int) ([]JournalEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []JournalEntry{}, nil
		}
		return nil, errors.Wrap(errors.CodeInternal, "failed to open journal", err)
	}
	defer f.Close()

	entries := []JournalEntry{}
	scanner := bufio.NewScanner(f)
	const maxLine = 1 << 20
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	for scanner.Scan() {
		var e JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if !e.Recorded.After(since) {
			continue
		}
		entries = append(entries, e)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "failed to scan journal", err)
	}
	return entries, nil
}

// Replay republishes journal entries recorded after since onto b, in order.
func Replay(ctx context.Context, path string, b Bus, since time.Time) (int, error) {
	entries, err := ReadJournal(path, since, 0)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := b.Publish(ctx, e.Topic, e.Event); err != nil {
			return i, fmt.Errorf("replay event %s: %w", e.Event.ID, err)
		}
	}
	return len(entries), nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	j.encoder = nil
	return err
}

// JournaledBus appends every event to a Journal before publishing it on
// the wrapped bus.
type JournaledBus struct {
	inner   Bus
	journal *Journal
	log     *logger.Logger
}

// NewJournaledBus wraps inner.
func NewJournaledBus(inner Bus, journal *Journal, log *logger.Logger) *JournaledBus {
	if log == nil {
		log = logger.Default()
	}
	return &JournaledBus{inner: inner, journal: journal, log: log}
}

// Publish journals the event, best effort, then delegates.
func (b *JournaledBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.journal.Append(topic, event); err != nil {
		b.log.Warn("Failed to journal event", "topic", topic, "error", err)
	}
	return b.inner.Publish(ctx, topic, event)
}

// Subscribe delegates to the inner bus.
func (b *JournaledBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Close closes the journal and the inner bus.
func (b *JournaledBus) Close() error {
	if err := b.journal.Close(); err != nil {
		b.log.Warn("Failed to close journal", "error", err)
	}
	return b.inner.Close()
}
