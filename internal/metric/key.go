package metric

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kgelab/kge-rank/internal/pkg/errors"
	"github.com/kgelab/kge-rank/internal/ranking"
)

// MetricKey is the canonical identity of a requested metric: its canonical
// name, the prediction side, the rank type, and, for hits_at_k only, the
// threshold k (zero means absent).
type MetricKey struct {
	Name     string
	Side     ranking.Side
	RankType ranking.RankType
	K        int
}

// String renders the key in its canonical dotted form,
// "name.side.rank_type[.k]". Keys are totally ordered by this form.
func (k MetricKey) String() string {
	parts := []string{k.Name, string(k.Side), string(k.RankType)}
	if k.K > 0 {
		parts = append(parts, strconv.Itoa(k.K))
	}
	return strings.Join(parts, ".")
}

// InstanceKey returns the per-instance report name: "hits_at_<k>" for
// hits_at_k, the canonical name otherwise.
func (k MetricKey) InstanceKey() string {
	if k.Name == HitsAtKName {
		return fmt.Sprintf("hits_at_%d", k.K)
	}
	return k.Name
}

// rankTypeSynonyms maps alternate rank type spellings to rank types.
var rankTypeSynonyms = map[string]ranking.RankType{
	"optimistic":  ranking.RankOptimistic,
	"realistic":   ranking.RankRealistic,
	"pessimistic": ranking.RankPessimistic,
	"best":        ranking.RankOptimistic,
	"worst":       ranking.RankPessimistic,
	"avg":         ranking.RankRealistic,
	"average":     ranking.RankRealistic,
}

// realisticOnlyNames are the metrics restricted to the realistic rank type.
var realisticOnlyNames = map[string]bool{
	AdjustedArithmeticMeanRankName:      true,
	AdjustedArithmeticMeanRankIndexName: true,
}

var hitsPattern = regexp.MustCompile(`^(?:hits_at_|hits@|h@)(\d+)$`)

// ResolveMetricName parses a free-form metric query into a canonical
// MetricKey.
//
// The grammar is "<name>[.<side>][.<rank-type>][.<k>]", case-insensitive,
// with spaces folded to underscores. The name also matches the patterns
// "hits_at_<k>", "hits@<k>" and "h@<k>", which set k directly. Side
// defaults to "both" and rank type to "realistic"; "best", "worst", "avg"
// and "average" are accepted rank type synonyms. Each malformed input is
// rejected with a message naming the offending component.
func ResolveMetricName(query string) (MetricKey, error) {
	trimmed := strings.ToLower(strings.TrimSpace(query))
	if trimmed == "" {
		return MetricKey{}, errors.InvalidMetricError("a metric name must be provided")
	}

	// Components may carry surrounding whitespace ("mean rank . head"), so
	// split first, then fold inner spaces to underscores per component.
	parts := strings.Split(trimmed, ".")
	for i, p := range parts {
		p = strings.ReplaceAll(strings.TrimSpace(p), " ", "_")
		if p == "" {
			return MetricKey{}, errors.InvalidMetricError(fmt.Sprintf("invalid metric name: %q", query))
		}
		parts[i] = p
	}

	name := parts[0]
	rest := parts[1:]

	// hits@k style patterns carry their own k; it takes precedence over a
	// trailing ".k" component.
	k := 0
	kExplicit := false
	if m := hitsPattern.FindStringSubmatch(name); m != nil {
		parsed, err := strconv.Atoi(m[1])
		if err != nil {
			return MetricKey{}, errors.InvalidMetricError(fmt.Sprintf("invalid k=%q for hits_at_k", m[1]))
		}
		name = HitsAtKName
		k = parsed
		kExplicit = true
	}

	side := ranking.SideBoth
	rankType := ranking.RankRealistic
	sideExplicit := false
	typeExplicit := false
	kConsumed := false

	for _, part := range rest {
		switch {
		case !sideExplicit && !typeExplicit && isSide(part):
			side = ranking.Side(part)
			sideExplicit = true
		case !typeExplicit && rankTypeSynonyms[part] != "":
			rankType = rankTypeSynonyms[part]
			typeExplicit = true
		case isDigits(part) && !kConsumed:
			parsed, err := strconv.Atoi(part)
			if err != nil {
				return MetricKey{}, errors.InvalidMetricError(fmt.Sprintf("invalid k=%q for hits_at_k", part))
			}
			kConsumed = true
			// A k embedded in a hits@<k> pattern takes precedence over the
			// trailing component.
			if !kExplicit {
				k = parsed
				kExplicit = true
			}
		case !sideExplicit && !typeExplicit:
			return MetricKey{}, errors.InvalidMetricError(fmt.Sprintf(
				"invalid side: %q, allowed are head, tail, both", part))
		case !typeExplicit:
			return MetricKey{}, errors.InvalidMetricError(fmt.Sprintf(
				"invalid rank type: %q, allowed are optimistic, realistic, pessimistic", part))
		default:
			return MetricKey{}, errors.InvalidMetricError(fmt.Sprintf("invalid metric name: %q", query))
		}
	}

	canonical, ok := CanonicalName(name)
	if !ok {
		return MetricKey{}, errors.InvalidMetricError(fmt.Sprintf("unknown metric: %q", name))
	}
	name = canonical

	if name == HitsAtKName {
		if k < 0 {
			return MetricKey{}, errors.InvalidMetricError(fmt.Sprintf(
				"hits_at_k requires a positive k, got %d", k))
		}
		if !kExplicit {
			k = 10
		}
	} else if kExplicit {
		return MetricKey{}, errors.InvalidMetricError(fmt.Sprintf(
			"k=%d is only valid for hits_at_k, not for %s", k, name))
	}

	if rankType != ranking.RankRealistic && realisticOnlyNames[name] {
		return MetricKey{}, errors.InvalidMetricError(fmt.Sprintf(
			"invalid rank type for %s: %s, allowed type: %s", name, rankType, ranking.RankRealistic))
	}

	return MetricKey{Name: name, Side: side, RankType: rankType, K: k}, nil
}

func isSide(s string) bool {
	switch ranking.Side(s) {
	case ranking.SideHead, ranking.SideTail, ranking.SideBoth:
		return true
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
