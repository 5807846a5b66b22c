package bus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventLogger(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "events.log")

	t.Run("Enabled", func(t *testing.T) {
		l, err := NewEventLogger(logPath, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer l.Close()

		if !l.IsEnabled() {
			t.Error("Expected logger to be enabled")
		}

		event := NewEvent(TopicRunStarted, "evaluator", "run-1", RunStartedPayload{NumTriples: 3})
		if err := l.Log(TopicRunStarted, event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}

		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			t.Fatal("Log file was not created")
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		l, err := NewEventLogger(logPath, false)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer l.Close()

		if l.IsEnabled() {
			t.Error("Expected logger to be disabled")
		}

		// No-op, no error.
		if err := l.Log(TopicRunStarted, Event{ID: "x"}); err != nil {
			t.Fatalf("Log failed: %v", err)
		}

		if _, err := l.GetEvents(time.Time{}, 0); err == nil {
			t.Error("GetEvents() on a disabled logger should error")
		}
	})

	t.Run("GetEvents", func(t *testing.T) {
		path := filepath.Join(tempDir, "get-events.log")
		l, err := NewEventLogger(path, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer l.Close()

		for i := 0; i < 5; i++ {
			event := NewEvent(TopicRunProgress, "evaluator", "run-1", RunProgressPayload{
				Processed: i + 1,
				Total:     5,
			})
			event.ID = fmt.Sprintf("event-%d", i)
			if err := l.Log(TopicRunProgress, event); err != nil {
				t.Fatalf("Log failed: %v", err)
			}
		}

		events, err := l.GetEvents(time.Time{}, 0)
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}
		if len(events) != 5 {
			t.Fatalf("GetEvents() returned %d events, want 5", len(events))
		}
		if events[0].Event.ID != "event-0" || events[4].Event.ID != "event-4" {
			t.Errorf("events out of order: first=%s last=%s", events[0].Event.ID, events[4].Event.ID)
		}

		limited, err := l.GetEvents(time.Time{}, 2)
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}
		if len(limited) != 2 {
			t.Errorf("GetEvents(limit=2) returned %d events", len(limited))
		}
	})

	t.Run("Replay", func(t *testing.T) {
		path := filepath.Join(tempDir, "replay.log")
		l, err := NewEventLogger(path, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer l.Close()

		for i := 0; i < 3; i++ {
			event := NewEvent(TopicRunProgress, "evaluator", "run-1", nil)
			if err := l.Log(TopicRunProgress, event); err != nil {
				t.Fatalf("Log failed: %v", err)
			}
		}

		memBus := NewMemoryBus()
		defer memBus.Close()

		var replayed atomic.Int32
		memBus.Subscribe(context.Background(), TopicRunProgress, func(ctx context.Context, event Event) error {
			replayed.Add(1)
			return nil
		})

		if err := l.Replay(context.Background(), memBus, time.Time{}); err != nil {
			t.Fatalf("Replay failed: %v", err)
		}

		if !memBus.DrainTimeout(time.Second) {
			t.Fatal("Timeout draining replayed events")
		}
		if got := replayed.Load(); got != 3 {
			t.Errorf("Replayed %d events, want 3", got)
		}
	})
}

func TestLoggedBus(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "logged-bus.log")

	eventLogger, err := NewEventLogger(logPath, true)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	inner := NewMemoryBus()
	logged := NewLoggedBus(inner, eventLogger, nil)
	defer logged.Close()

	var received atomic.Int32
	logged.Subscribe(context.Background(), TopicRunFinished, func(ctx context.Context, event Event) error {
		received.Add(1)
		return nil
	})

	event := NewEvent(TopicRunFinished, "evaluator", "run-9", RunFinishedPayload{NumTriples: 10})
	if err := logged.Publish(context.Background(), TopicRunFinished, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if !inner.DrainTimeout(time.Second) {
		t.Fatal("Timeout waiting for handler")
	}
	if received.Load() != 1 {
		t.Errorf("Received %d events, want 1", received.Load())
	}

	// The publish must also have been persisted.
	events, err := eventLogger.GetEvents(time.Time{}, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Persisted %d events, want 1", len(events))
	}
	if events[0].Event.RunID != "run-9" {
		t.Errorf("Persisted RunID = %s, want run-9", events[0].Event.RunID)
	}
}
