package bus

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/reelquery/reelquery/internal/config"
	"github.com/reelquery/reelquery/internal/pkg/errors"
)

func TestKafkaConfig_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KafkaConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     KafkaConfig{Brokers: []string{"localhost:9092"}, ConsumerGroup: "g"},
			wantErr: false,
		},
		{
			name:    "empty brokers",
			cfg:     KafkaConfig{Brokers: []string{}, ConsumerGroup: "g"},
			wantErr: true,
		},
		{
			name:    "empty consumer group",
			cfg:     KafkaConfig{Brokers: []string{"localhost:9092"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.normalize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if cfg.ClientID != "reelquery" || cfg.Version != "2.8.0" || cfg.Timeout == 0 {
					t.Errorf("defaults not applied: %+v", cfg)
				}
			}
		})
	}
}

func TestSaramaConfig(t *testing.T) {
	cfg := KafkaConfig{Brokers: []string{"b:9092"}, ConsumerGroup: "g"}
	if err := cfg.normalize(); err != nil {
		t.Fatal(err)
	}
	sc, err := saramaConfig(cfg)
	if err != nil {
		t.Fatalf("saramaConfig() error = %v", err)
	}
	if !sc.Producer.Return.Successes {
		t.Error("sync producer requires Return.Successes")
	}
	if sc.ClientID != "reelquery" {
		t.Errorf("ClientID = %q", sc.ClientID)
	}

	cfg.Version = "invalid"
	if _, err := saramaConfig(cfg); !errors.IsValidation(err) {
		t.Errorf("invalid version error = %v, want validation error", err)
	}
}

func TestParseKafkaBrokers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single broker", input: "localhost:9092", want: []string{"localhost:9092"}},
		{name: "multiple brokers", input: "b1:9092,b2:9092,b3:9092", want: []string{"b1:9092", "b2:9092", "b3:9092"}},
		{name: "with whitespace", input: "b1:9092 , b2:9092 ,", want: []string{"b1:9092", "b2:9092"}},
		{name: "empty string", input: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseKafkaBrokers(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseKafkaBrokers() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseKafkaBrokers()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestKafkaBus_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Type != TypeAnswerCompleted || ev.CorrelationID != "q-7" {
			return stderrors.New("unexpected event " + ev.Type + "/" + ev.CorrelationID)
		}
		return nil
	})

	b := newKafkaBus(KafkaConfig{}, producer, nil)
	if err := b.Publish(context.Background(), TopicAnswer, NewEvent(TypeAnswerCompleted, "q-7", nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestKafkaBus_PublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	b := newKafkaBus(KafkaConfig{}, producer, nil)
	defer b.Close()

	err := b.Publish(context.Background(), TopicAnswer, Event{ID: "e"})
	if !errors.IsTransient(err) {
		t.Errorf("Publish() error = %v, want transient unavailable error", err)
	}
}

func TestKafkaBus_AfterClose(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	b := newKafkaBus(KafkaConfig{}, producer, nil)

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := b.Publish(context.Background(), "t", Event{}); err == nil {
		t.Error("Publish() after Close() should error")
	}
	if err := b.Subscribe(context.Background(), "t", func(context.Context, Event) error { return nil }); err == nil {
		t.Error("Subscribe() after Close() should error")
	}
}

func TestKafkaBus_SubscribeWithoutClient(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	b := newKafkaBus(KafkaConfig{ConsumerGroup: "g"}, producer, nil)
	defer b.Close()

	err := b.Subscribe(context.Background(), "t", func(context.Context, Event) error { return nil })
	if !errors.IsTransient(err) {
		t.Errorf("Subscribe() error = %v, want unavailable", err)
	}
}

func TestConsumerGroupHandler_Dispatch(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	b := newKafkaBus(KafkaConfig{}, producer, nil)
	defer b.Close()

	var mu sync.Mutex
	var got []Event
	b.handlers[TopicAnswer] = []Handler{func(ctx context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		return nil
	}}

	h := &consumerGroupHandler{bus: b, topic: TopicAnswer}
	data, _ := json.Marshal(NewEvent(TypeAnswerCompleted, "q-1", nil))
	h.dispatch(context.Background(), data)
	h.dispatch(context.Background(), []byte("{not json"))

	if len(got) != 1 || got[0].CorrelationID != "q-1" {
		t.Errorf("dispatched = %+v, want one event for q-1", got)
	}
}

func TestNewBus(t *testing.T) {
	b, err := NewBus(config.BusConfig{Type: "memory"}, nil)
	if err != nil {
		t.Fatalf("NewBus(memory) error = %v", err)
	}
	if _, ok := b.(*MemoryBus); !ok {
		t.Errorf("NewBus(memory) = %T", b)
	}
	b.Close()

	if _, err := NewBus(config.BusConfig{Type: "carrier-pigeon"}, nil); !errors.IsValidation(err) {
		t.Errorf("unknown type error = %v", err)
	}
	if _, err := NewBus(config.BusConfig{Type: "kafka", KafkaGroupID: "g"}, nil); !errors.IsValidation(err) {
		t.Errorf("kafka without brokers error = %v", err)
	}

	path := t.TempDir() + "/journal.jsonl"
	jb, err := NewBus(config.BusConfig{Type: "memory", JournalPath: path}, nil)
	if err != nil {
		t.Fatalf("NewBus(journal) error = %v", err)
	}
	if _, ok := jb.(*JournaledBus); !ok {
		t.Errorf("NewBus(journal) = %T", jb)
	}
	jb.Close()
}
