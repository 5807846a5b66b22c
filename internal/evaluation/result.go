package evaluation

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/kgelab/kge-rank/internal/metric"
	"github.com/kgelab/kge-rank/internal/pkg/errors"
	"github.com/kgelab/kge-rank/internal/ranking"
)

// Row is one entry of a metric report: the value of one metric for one
// (side, rank type) combination.
type Row struct {
	Side     ranking.Side     `json:"side"`
	RankType ranking.RankType `json:"rank_type"`
	Metric   string           `json:"metric"`
	Value    float64          `json:"value"`
}

type resultKey struct {
	metric   string
	side     ranking.Side
	rankType ranking.RankType
}

// Result is a finalized metric report. It supports exact lookup through
// the metric-name grammar and flat enumeration for export.
type Result struct {
	rows   []Row
	values map[resultKey]float64
}

func newResult() *Result {
	return &Result{values: make(map[resultKey]float64)}
}

// ResultFromRows rebuilds a report from previously exported rows.
func ResultFromRows(rows []Row) *Result {
	r := newResult()
	for _, row := range rows {
		r.add(row)
	}
	return r
}

func (r *Result) add(row Row) {
	key := resultKey{metric: row.Metric, side: row.Side, rankType: row.RankType}
	if _, exists := r.values[key]; !exists {
		r.rows = append(r.rows, row)
	}
	r.values[key] = row.Value
}

// Get looks up a metric value by a free-form query string, e.g. "mrr",
// "hits@10.head" or "mean_rank.both.pessimistic". Absent combinations
// mean "not computed", and yield a not-found error.
func (r *Result) Get(query string) (float64, error) {
	key, err := metric.ResolveMetricName(query)
	if err != nil {
		return 0, err
	}
	value, ok := r.values[resultKey{metric: key.InstanceKey(), side: key.Side, rankType: key.RankType}]
	if !ok {
		return 0, errors.NotFoundError(fmt.Sprintf("metric %q", key.String()))
	}
	return value, nil
}

// Rows returns the report as a flat table in finalization order.
func (r *Result) Rows() []Row {
	return r.rows
}

// Len returns the number of report entries.
func (r *Result) Len() int {
	return len(r.rows)
}

// IsEmpty reports whether the report has no entries.
func (r *Result) IsEmpty() bool {
	return len(r.rows) == 0
}

// FlatMap returns the report keyed by "side.rank_type.metric".
func (r *Result) FlatMap() map[string]float64 {
	flat := make(map[string]float64, len(r.rows))
	for _, row := range r.rows {
		flat[fmt.Sprintf("%s.%s.%s", row.Side, row.RankType, row.Metric)] = row.Value
	}
	return flat
}

// Table renders the report as an aligned text table.
func (r *Result) Table() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SIDE\tTYPE\tMETRIC\tVALUE")
	for _, row := range r.rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.6f\n", row.Side, row.RankType, row.Metric, row.Value)
	}
	w.Flush()
	return sb.String()
}

// MarshalJSON encodes the report as its flat row list.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.rows)
}

// UnmarshalJSON decodes a report from its flat row list.
func (r *Result) UnmarshalJSON(data []byte) error {
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	*r = *ResultFromRows(rows)
	return nil
}
