package bus

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitGroup(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("Timeout waiting for handlers")
	}
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(TypeAnswerCompleted, "q-1", map[string]int{"results": 3})
	if ev.ID == "" {
		t.Error("ID should be set")
	}
	if ev.Source != Source {
		t.Errorf("Source = %q, want %q", ev.Source, Source)
	}
	if ev.CorrelationID != "q-1" {
		t.Errorf("CorrelationID = %q, want q-1", ev.CorrelationID)
	}
	if ev.Timestamp <= 0 {
		t.Error("Timestamp should be set")
	}
	if other := NewEvent(TypeAnswerCompleted, "q-1", nil); other.ID == ev.ID {
		t.Error("event ids should be unique")
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	err := bus.Subscribe(context.Background(), TopicAnswer, func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	wg.Add(3)
	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), TopicAnswer, NewEvent(TypeAnswerCompleted, "q", i)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	waitGroup(t, &wg, time.Second)

	if got := received.Load(); got != 3 {
		t.Errorf("Received %d events, want 3", got)
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var a, b atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)

	bus.Subscribe(context.Background(), TopicRelaxation, func(ctx context.Context, event Event) error {
		a.Add(1)
		wg.Done()
		return nil
	})
	bus.Subscribe(context.Background(), TopicRelaxation, func(ctx context.Context, event Event) error {
		b.Add(1)
		wg.Done()
		return nil
	})

	if err := bus.Publish(context.Background(), TopicRelaxation, NewEvent(TypeRelaxed, "q", nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitGroup(t, &wg, time.Second)

	if a.Load() != 1 || b.Load() != 1 {
		t.Errorf("subscribers received %d and %d events, want 1 each", a.Load(), b.Load())
	}
}

func TestMemoryBus_NoSubscribers(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	if err := bus.Publish(context.Background(), "empty.topic", Event{ID: "test", Type: "test"}); err != nil {
		t.Errorf("Publish() to empty topic error = %v", err)
	}
}

func TestMemoryBus_HandlerOutlivesRequestContext(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var sawCancel atomic.Bool
	bus.Subscribe(context.Background(), TopicAnswer, func(ctx context.Context, event Event) error {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		sawCancel.Store(ctx.Err() != nil)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := bus.Publish(ctx, TopicAnswer, Event{ID: "e"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	cancel()
	waitGroup(t, &wg, time.Second)

	if sawCancel.Load() {
		t.Error("handler context should not be cancelled with the request")
	}
}

func TestMemoryBus_CloseDrains(t *testing.T) {
	bus := NewMemoryBus(nil)

	var finished atomic.Bool
	bus.Subscribe(context.Background(), TopicAnswer, func(ctx context.Context, event Event) error {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	bus.Publish(context.Background(), TopicAnswer, Event{ID: "e"})

	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !finished.Load() {
		t.Error("Close() should wait for in-flight handlers")
	}

	if err := bus.Publish(context.Background(), "test", Event{}); err == nil {
		t.Error("Publish() after Close() should error")
	}
	err := bus.Subscribe(context.Background(), "test", func(ctx context.Context, event Event) error { return nil })
	if err == nil {
		t.Error("Subscribe() after Close() should error")
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestMemoryBus_Concurrent(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	bus.Subscribe(context.Background(), "concurrent", func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	numPublishers := 10
	eventsPerPublisher := 100
	wg.Add(numPublishers * eventsPerPublisher)

	for p := 0; p < numPublishers; p++ {
		go func() {
			for i := 0; i < eventsPerPublisher; i++ {
				bus.Publish(context.Background(), "concurrent", Event{ID: "test", Type: "test"})
			}
		}()
	}
	waitGroup(t, &wg, 5*time.Second)

	expected := int32(numPublishers * eventsPerPublisher)
	if got := received.Load(); got != expected {
		t.Errorf("Received %d events, want %d", got, expected)
	}
}

type recordingMetrics struct {
	mu     sync.Mutex
	topics []string
	errs   int
}

func (m *recordingMetrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
	if err != nil {
		m.errs++
	}
}

func TestInstrumentedBus_RecordsPublish(t *testing.T) {
	inner := NewMemoryBus(nil)
	m := &recordingMetrics{}
	bus := NewInstrumentedBus(inner, m)

	if err := bus.Publish(context.Background(), TopicAnswer, Event{ID: "a"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	bus.Close()
	if err := bus.Publish(context.Background(), TopicAnswer, Event{ID: "b"}); err == nil {
		t.Fatal("Publish() after Close() should error")
	}

	if len(m.topics) != 2 || m.topics[0] != TopicAnswer {
		t.Errorf("recorded topics = %v", m.topics)
	}
	if m.errs != 1 {
		t.Errorf("recorded errors = %d, want 1", m.errs)
	}
}

func TestJournal_AppendReadReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events", "journal.jsonl")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal() error = %v", err)
	}

	inner := NewMemoryBus(nil)
	bus := NewJournaledBus(inner, j, nil)

	before := time.Now().Add(-time.Second)
	bus.Publish(context.Background(), TopicRelaxation, NewEvent(TypeRelaxed, "q-1", nil))
	bus.Publish(context.Background(), TopicAnswer, NewEvent(TypeAnswerCompleted, "q-1", nil))

	entries, err := j.Read(before, 0)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Read() returned %d entries, want 2", len(entries))
	}
	if entries[0].Topic != TopicRelaxation || entries[1].Topic != TopicAnswer {
		t.Errorf("topics = %s, %s", entries[0].Topic, entries[1].Topic)
	}
	if entries[1].Event.CorrelationID != "q-1" {
		t.Errorf("CorrelationID = %q, want q-1", entries[1].Event.CorrelationID)
	}

	limited, _ := j.Read(before, 1)
	if len(limited) != 1 {
		t.Errorf("Read(limit=1) returned %d entries", len(limited))
	}
	none, _ := j.Read(time.Now().Add(time.Hour), 0)
	if len(none) != 0 {
		t.Errorf("Read(future) returned %d entries", len(none))
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	target := NewMemoryBus(nil)
	defer target.Close()
	var wg sync.WaitGroup
	wg.Add(2)
	var replayed atomic.Int32
	for _, topic := range []string{TopicAnswer, TopicRelaxation} {
		target.Subscribe(context.Background(), topic, func(ctx context.Context, event Event) error {
			replayed.Add(1)
			wg.Done()
			return nil
		})
	}

	n, err := Replay(context.Background(), path, target, before)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Replay() = %d, want 2", n)
	}
	waitGroup(t, &wg, time.Second)
	if replayed.Load() != 2 {
		t.Errorf("replayed %d events, want 2", replayed.Load())
	}
}

func TestReadJournal_Missing(t *testing.T) {
	entries, err := ReadJournal(filepath.Join(t.TempDir(), "nope.jsonl"), time.Time{}, 0)
	if err != nil {
		t.Fatalf("ReadJournal() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}
