package report

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kgelab/kge-rank/internal/pkg/errors"
)

// MemoryStore is an in-memory report store for tests and for serving
// without Redis.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*RunReport
}

// NewMemoryStore creates an empty in-memory report store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports: make(map[string]*RunReport),
	}
}

// Save persists a report under its run ID.
func (ms *MemoryStore) Save(_ context.Context, report *RunReport) error {
	if report == nil || report.RunID == "" {
		return errors.ValidationError("a report with a run ID is required")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.reports[report.RunID] = report
	return nil
}

// Get loads the report for a run ID.
func (ms *MemoryStore) Get(_ context.Context, runID string) (*RunReport, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	report, ok := ms.reports[runID]
	if !ok {
		return nil, errors.NotFoundError(fmt.Sprintf("report for run %q", runID))
	}
	return report, nil
}

// List returns up to limit run IDs, newest first.
func (ms *MemoryStore) List(_ context.Context, limit int) ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	reports := make([]*RunReport, 0, len(ms.reports))
	for _, r := range ms.reports {
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})

	runIDs := make([]string, 0, len(reports))
	for _, r := range reports {
		if limit > 0 && len(runIDs) >= limit {
			break
		}
		runIDs = append(runIDs, r.RunID)
	}
	return runIDs, nil
}

// Delete removes the report for a run ID.
func (ms *MemoryStore) Delete(_ context.Context, runID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.reports, runID)
	return nil
}

// Close is a no-op for the in-memory store.
func (ms *MemoryStore) Close() error {
	return nil
}
