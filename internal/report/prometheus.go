package report

import (
	"fmt"
	"sort"
	"strings"
)

// PrometheusFormat exports all metrics in Prometheus text exposition format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func (m *Metrics) PrometheusFormat() string {
	m.CollectSystem()

	var sb strings.Builder

	writeCounter(&sb, m.EvalRunsStarted)
	writeCounter(&sb, m.EvalRunsFinished)
	writeCounter(&sb, m.EvalRunsFailed)
	writeCounter(&sb, m.EvalTriples)
	writeHistogram(&sb, m.EvalRunDuration)

	writeCounter(&sb, m.ReportsSaved)
	writeCounterVec(&sb, m.ReportErrors)

	writeCounterVec(&sb, m.BusEventsPublished)
	writeHistogramVec(&sb, m.BusEventLatency)
	writeCounterVec(&sb, m.BusErrors)

	writeCounterVec(&sb, m.HTTPRequests)
	writeHistogramVec(&sb, m.HTTPDuration)
	writeGauge(&sb, m.HTTPRequestsInFlight)

	writeGauge(&sb, m.GoroutineCount)
	writeGauge(&sb, m.MemoryUsage)

	// Uptime is derived rather than stored.
	sb.WriteString("# HELP kge_uptime_seconds Seconds since process start\n")
	sb.WriteString("# TYPE kge_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "kge_uptime_seconds %.0f\n", m.UptimeSeconds())

	return sb.String()
}

func writeCounter(sb *strings.Builder, c *Counter) {
	fmt.Fprintf(sb, "# HELP %s %s\n", c.Name(), c.Help())
	fmt.Fprintf(sb, "# TYPE %s counter\n", c.Name())
	sb.WriteString(c.Name())
	writeLabels(sb, c.Labels())
	fmt.Fprintf(sb, " %d\n", c.Value())
}

func writeGauge(sb *strings.Builder, g *Gauge) {
	fmt.Fprintf(sb, "# HELP %s %s\n", g.Name(), g.Help())
	fmt.Fprintf(sb, "# TYPE %s gauge\n", g.Name())
	sb.WriteString(g.Name())
	writeLabels(sb, g.Labels())
	fmt.Fprintf(sb, " %g\n", g.Value())
}

func writeHistogram(sb *strings.Builder, h *Histogram) {
	fmt.Fprintf(sb, "# HELP %s %s\n", h.Name(), h.Help())
	fmt.Fprintf(sb, "# TYPE %s histogram\n", h.Name())
	writeHistogramSamples(sb, h)
}

func writeHistogramSamples(sb *strings.Builder, h *Histogram) {
	buckets := h.Buckets()
	counts := h.BucketCounts()
	labels := h.Labels()

	for i, bucket := range buckets {
		writeBucketSample(sb, h.Name(), labels, fmt.Sprintf("%g", bucket), counts[i])
	}
	writeBucketSample(sb, h.Name(), labels, "+Inf", counts[len(counts)-1])

	sb.WriteString(h.Name())
	sb.WriteString("_sum")
	writeLabels(sb, labels)
	fmt.Fprintf(sb, " %g\n", h.Sum())

	sb.WriteString(h.Name())
	sb.WriteString("_count")
	writeLabels(sb, labels)
	fmt.Fprintf(sb, " %d\n", h.Count())
}

// writeBucketSample writes one _bucket line, merging the le label with the
// histogram's own labels.
func writeBucketSample(sb *strings.Builder, name string, labels map[string]string, le string, count int64) {
	merged := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		merged[k] = v
	}
	merged["le"] = le

	sb.WriteString(name)
	sb.WriteString("_bucket")
	writeLabels(sb, merged)
	fmt.Fprintf(sb, " %d\n", count)
}

func writeCounterVec(sb *strings.Builder, cv *CounterVec) {
	counters := cv.GetAll()
	if len(counters) == 0 {
		return
	}

	fmt.Fprintf(sb, "# HELP %s %s\n", cv.Name(), cv.Help())
	fmt.Fprintf(sb, "# TYPE %s counter\n", cv.Name())

	for _, c := range counters {
		sb.WriteString(c.Name())
		writeLabels(sb, c.Labels())
		fmt.Fprintf(sb, " %d\n", c.Value())
	}
}

func writeHistogramVec(sb *strings.Builder, hv *HistogramVec) {
	histograms := hv.GetAll()
	if len(histograms) == 0 {
		return
	}

	fmt.Fprintf(sb, "# HELP %s %s\n", hv.Name(), hv.Help())
	fmt.Fprintf(sb, "# TYPE %s histogram\n", hv.Name())

	for _, h := range histograms {
		writeHistogramSamples(sb, h)
	}
}

// writeLabels writes labels in Prometheus format {key="value",key2="value2"}.
func writeLabels(sb *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}

	// Sort keys for stable output.
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(k)
		sb.WriteString("=\"")
		sb.WriteString(escapeString(labels[k]))
		sb.WriteString("\"")
	}
	sb.WriteString("}")
}

// escapeString escapes special characters in label values.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
