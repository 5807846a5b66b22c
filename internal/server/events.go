package server

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/kgelab/kge-rank/internal/bus"
	"github.com/kgelab/kge-rank/internal/evaluation"
	"github.com/kgelab/kge-rank/internal/ranking"
	"github.com/kgelab/kge-rank/internal/report"
)

// subscribeRunEvents keeps the run counters current and persists finished
// runs arriving on the bus as reports. With a Kafka-backed bus the
// publisher is typically an evaluate process on another machine.
func (s *Server) subscribeRunEvents(ctx context.Context) error {
	if err := s.bus.Subscribe(ctx, bus.TopicRunStarted, func(ctx context.Context, event bus.Event) error {
		s.metrics.RecordRunStarted()
		return nil
	}); err != nil {
		return err
	}

	if err := s.bus.Subscribe(ctx, bus.TopicRunFailed, func(ctx context.Context, event bus.Event) error {
		s.metrics.RecordRunFailed()
		s.log.Warn("evaluation run failed", "run_id", event.RunID)
		return nil
	}); err != nil {
		return err
	}

	return s.bus.Subscribe(ctx, bus.TopicRunFinished, s.handleRunFinished)
}

// handleRunFinished persists one finished run as a report. Malformed events
// are logged and dropped rather than retried.
func (s *Server) handleRunFinished(ctx context.Context, event bus.Event) error {
	if event.RunID == "" {
		s.log.Warn("run finished event has no run ID, dropping")
		return nil
	}

	var payload bus.RunFinishedPayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		s.log.Warn("malformed run finished event, dropping", "run_id", event.RunID, "error", err.Error())
		return nil
	}

	rep := &report.RunReport{
		RunID:      event.RunID,
		CreatedAt:  time.UnixMilli(event.Timestamp),
		NumTriples: payload.NumTriples,
		Filtered:   payload.Filtered,
		BatchSize:  payload.BatchSize,
		DurationMs: payload.DurationMs,
		Result:     resultFromFlatMap(payload.Metrics),
	}
	if err := s.store.Save(ctx, rep); err != nil {
		return err
	}

	s.metrics.RecordRunFinished(payload.NumTriples, time.Duration(payload.DurationMs)*time.Millisecond)
	s.log.Info("persisted run report", "run_id", event.RunID, "num_triples", payload.NumTriples)
	return nil
}

// decodePayload converts an event payload into the given struct. In-process
// buses deliver the typed struct while Kafka delivers a decoded JSON map; a
// marshal round trip handles both.
func decodePayload(payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// resultFromFlatMap rebuilds a metric report from its "side.rank_type.metric"
// flat form. Entries that do not match the form are skipped.
func resultFromFlatMap(flat map[string]float64) *evaluation.Result {
	rows := make([]evaluation.Row, 0, len(flat))
	for key, value := range flat {
		parts := strings.SplitN(key, ".", 3)
		if len(parts) != 3 {
			continue
		}
		rows = append(rows, evaluation.Row{
			Side:     ranking.Side(parts[0]),
			RankType: ranking.RankType(parts[1]),
			Metric:   parts[2],
			Value:    value,
		})
	}
	return evaluation.ResultFromRows(rows)
}
