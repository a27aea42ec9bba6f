package collector

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter bridges the published measurement set into a Prometheus registry.
// It is an unchecked collector: the series it emits are fully dynamic
// (appliance-defined field bags), so Describe intentionally sends nothing.
type Exporter struct {
	pub *Published
}

// NewExporter returns a collector reading from pub.
func NewExporter(pub *Published) *Exporter {
	return &Exporter{pub: pub}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(_ chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector. It reads the last published
// snapshot and emits it as const metrics — it never triggers or waits for a
// poll cycle, so scrapes stay fast and always succeed.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	st := e.pub.Snapshot()

	for _, m := range st.Measurements {
		keys := make([]string, 0, len(m.Labels))
		for k := range m.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		vals := make([]string, len(keys))
		for i, k := range keys {
			vals[i] = m.Labels[k]
		}

		desc := prometheus.NewDesc(m.Name, m.Help, keys, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, m.Value, vals...)
	}

	e.collectMeta(ch, st)
}

// collectMeta emits the exporter's self-observability series. The staleness
// of fnos_exporter_last_poll_success_timestamp_seconds is the operator's
// signal for upstream trouble.
func (e *Exporter) collectMeta(ch chan<- prometheus.Metric, st State) {
	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc("fnos_exporter_poll_cycles_total",
			"Total poll cycles attempted against the fnOS appliance.", nil, nil),
		prometheus.CounterValue, st.Cycles)

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc("fnos_exporter_poll_failures_total",
			"Poll cycles in which every source failed.", nil, nil),
		prometheus.CounterValue, st.Failures)

	var lastSuccess float64
	if !st.LastSuccess.IsZero() {
		lastSuccess = float64(st.LastSuccess.Unix())
	}
	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc("fnos_exporter_last_poll_success_timestamp_seconds",
			"Unix timestamp of the last cycle that published data.", nil, nil),
		prometheus.GaugeValue, lastSuccess)

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc("fnos_exporter_poll_duration_seconds",
			"Duration of the most recent poll cycle.", nil, nil),
		prometheus.GaugeValue, st.LastDuration.Seconds())

	upDesc := prometheus.NewDesc("fnos_exporter_source_up",
		"Whether the last fetch of each source succeeded (1 = up).", []string{"source"}, nil)
	srcs := make([]string, 0, len(st.SourceUp))
	for s := range st.SourceUp {
		srcs = append(srcs, s)
	}
	sort.Strings(srcs)
	for _, s := range srcs {
		ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, st.SourceUp[s], s)
	}
}
