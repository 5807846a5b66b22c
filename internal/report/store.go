package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kgelab/kge-rank/internal/evaluation"
	"github.com/kgelab/kge-rank/internal/pkg/errors"
)

// RunReport is a persisted evaluation run: its metadata plus the final
// metric report.
type RunReport struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	NumTriples  int       `json:"num_triples"`
	DatasetHash string    `json:"dataset_hash,omitempty"`

	Filtered   bool               `json:"filtered"`
	BatchSize  int                `json:"batch_size"`
	DurationMs int64              `json:"duration_ms"`
	Result     *evaluation.Result `json:"result"`
}

// Store persists evaluation run reports.
type Store interface {
	// Save persists a report under its run ID.
	Save(ctx context.Context, report *RunReport) error

	// Get loads the report for a run ID.
	Get(ctx context.Context, runID string) (*RunReport, error)

	// List returns up to limit run IDs, newest first. limit <= 0 returns
	// all.
	List(ctx context.Context, limit int) ([]string, error)

	// Delete removes the report for a run ID.
	Delete(ctx context.Context, runID string) error

	// Close releases store resources.
	Close() error
}

// RedisStore is a Redis-backed report store. Reports live under
// <prefix>report:<run_id>; a sorted set under <prefix>runs indexes run IDs
// by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // 0 = keep forever
}

// NewRedisStore creates a Redis-backed report store and verifies the
// connection.
func NewRedisStore(url, prefix string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "invalid redis URL", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.StorageError("connecting to redis", err)
	}

	if prefix == "" {
		prefix = "kge:"
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (rs *RedisStore) reportKey(runID string) string {
	return rs.prefix + "report:" + runID
}

func (rs *RedisStore) indexKey() string {
	return rs.prefix + "runs"
}

// Save persists a report under its run ID.
func (rs *RedisStore) Save(ctx context.Context, report *RunReport) error {
	if report == nil || report.RunID == "" {
		return errors.ValidationError("a report with a run ID is required")
	}

	data, err := json.Marshal(report)
	if err != nil {
		return errors.StorageError("marshaling report", err)
	}

	pipe := rs.client.Pipeline()
	pipe.Set(ctx, rs.reportKey(report.RunID), data, rs.ttl)
	pipe.ZAdd(ctx, rs.indexKey(), redis.Z{
		Score:  float64(report.CreatedAt.Unix()),
		Member: report.RunID,
	})
	if rs.ttl > 0 {
		// Expire index entries along with their reports.
		minScore := time.Now().Add(-rs.ttl).Unix()
		pipe.ZRemRangeByScore(ctx, rs.indexKey(), "-inf", fmt.Sprintf("%d", minScore))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.StorageError("saving report", err)
	}

	return nil
}

// Get loads the report for a run ID.
func (rs *RedisStore) Get(ctx context.Context, runID string) (*RunReport, error) {
	data, err := rs.client.Get(ctx, rs.reportKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, errors.NotFoundError(fmt.Sprintf("report for run %q", runID))
	}
	if err != nil {
		return nil, errors.StorageError("loading report", err)
	}

	var report RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.StorageError("unmarshaling report", err)
	}
	return &report, nil
}

// List returns up to limit run IDs, newest first.
func (rs *RedisStore) List(ctx context.Context, limit int) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	runIDs, err := rs.client.ZRevRange(ctx, rs.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, errors.StorageError("listing runs", err)
	}
	return runIDs, nil
}

// Delete removes the report for a run ID.
func (rs *RedisStore) Delete(ctx context.Context, runID string) error {
	pipe := rs.client.Pipeline()
	pipe.Del(ctx, rs.reportKey(runID))
	pipe.ZRem(ctx, rs.indexKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.StorageError("deleting report", err)
	}
	return nil
}

// Close closes the Redis connection.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
