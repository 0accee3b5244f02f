// Package bus publishes planner events (answers, relaxations) to
// interested consumers, in process or over Kafka.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "answer.completed").
	Type string `json:"type"`

	// Source is the service that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID is the query the event belongs to.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Source is the default event source.
const Source = "reelquery"

// NewEvent creates an event with a fresh id, stamped now.
func NewEvent(eventType, queryID string, payload any) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        Source,
		Timestamp:     time.Now().UnixMilli(),
		CorrelationID: queryID,
		Payload:       payload,
	}
}

// Topics.
const (
	// TopicAnswer carries one summary per answered query.
	TopicAnswer = "reelquery.answer"

	// TopicRelaxation carries one event per relaxation step.
	TopicRelaxation = "reelquery.relaxation"
)

// Event types.
const (
	TypeAnswerCompleted = "answer.completed"
	TypeAnswerFailed    = "answer.failed"
	TypeRelaxed         = "relaxation.step"
)
