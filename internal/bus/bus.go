// Package bus provides event bus implementations for publishing
// evaluation-run lifecycle events.
package bus

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
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

	// Type is the event type (e.g., "eval.run.progress").
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created.
	Timestamp int64 `json:"timestamp"`

	// RunID identifies the evaluation run this event belongs to.
	RunID string `json:"run_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Topics for evaluation-run events.
const (
	TopicRunStarted  = "eval.run.started"
	TopicRunProgress = "eval.run.progress"
	TopicRunFinished = "eval.run.finished"
	TopicRunFailed   = "eval.run.failed"
)

// RunStartedPayload is published when an evaluation run begins.
type RunStartedPayload struct {
	NumTriples  int   `json:"num_triples"`
	BatchSize   int   `json:"batch_size"`
	Filtered    bool  `json:"filtered"`
	NumEntities int64 `json:"num_entities"`
}

// RunProgressPayload is published periodically while batches are scored.
type RunProgressPayload struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// RunFinishedPayload is published after metrics have been aggregated. It
// carries everything needed to persist the run as a report.
type RunFinishedPayload struct {
	NumTriples int                `json:"num_triples"`
	BatchSize  int                `json:"batch_size"`
	Filtered   bool               `json:"filtered"`
	DurationMs int64              `json:"duration_ms"`
	Metrics    map[string]float64 `json:"metrics"`
}

// RunFailedPayload is published when an evaluation run aborts.
type RunFailedPayload struct {
	Error string `json:"error"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType, source, runID string, payload any) Event {
	return Event{
		ID:        eventID(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		RunID:     runID,
		Payload:   payload,
	}
}

func eventID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
