package collector

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/timandes/fnos-exporter/internal/fnos"
	"github.com/timandes/fnos-exporter/internal/mapper"
)

// scrape registers the exporter, serves one /metrics request and parses the
// body back into metric families.
func scrape(t *testing.T, pub *Published) map[string]*dto.MetricFamily {
	t.Helper()

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewExporter(pub))

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("scrape status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	var parser expfmt.TextParser
	fams, err := parser.TextToMetricFamilies(strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("parse exposition: %v", err)
	}
	return fams
}

// gaugeValue finds the sample of family name whose labels include want.
func gaugeValue(t *testing.T, fams map[string]*dto.MetricFamily, name string, want map[string]string) float64 {
	t.Helper()
	fam, ok := fams[name]
	if !ok {
		t.Fatalf("family %s absent from exposition", name)
	}
next:
	for _, m := range fam.Metric {
		labels := make(map[string]string, len(m.Label))
		for _, lp := range m.Label {
			labels[lp.GetName()] = lp.GetValue()
		}
		for k, v := range want {
			if labels[k] != v {
				continue next
			}
		}
		if m.Gauge != nil {
			return m.Gauge.GetValue()
		}
		if m.Counter != nil {
			return m.Counter.GetValue()
		}
		return m.GetUntyped().GetValue()
	}
	t.Fatalf("family %s has no sample matching %v", name, want)
	return 0
}

func TestExporter_Exposition(t *testing.T) {
	api := healthyAPI()
	pub := NewPublished()
	p := NewPoller(api, pub, time.Minute, false)
	p.Poll(context.Background())

	fams := scrape(t, pub)

	sda := map[string]string{"device_name": "sda"}
	if got := gaugeValue(t, fams, "fnos_disk_size", sda); got != 500107862016 {
		t.Errorf("fnos_disk_size{device_name=sda} = %v, want 500107862016", got)
	}
	if got := gaugeValue(t, fams, "fnos_disk_temp", sda); got != 38 {
		t.Errorf("fnos_disk_temp{device_name=sda} = %v, want 38", got)
	}
	if got := gaugeValue(t, fams, "fnos_disk_busy", sda); got != 1 {
		t.Errorf("fnos_disk_busy{device_name=sda} = %v, want 1", got)
	}
	if got := gaugeValue(t, fams, "fnos_disk_standby", sda); got != 0 {
		t.Errorf("fnos_disk_standby{device_name=sda} = %v, want 0", got)
	}
	if got := gaugeValue(t, fams, "fnos_disk_read", sda); got != 1024 {
		t.Errorf("fnos_disk_read{device_name=sda} = %v, want 1024", got)
	}
	if got := gaugeValue(t, fams, "fnos_uptime_days", nil); got != 12 {
		t.Errorf("fnos_uptime_days = %v, want 12", got)
	}

	// Info series: constant 1, fact in the attribute label.
	if got := gaugeValue(t, fams, "fnos_disk_serial_number",
		map[string]string{"device_name": "sda", "serial_number": "s"}); got != 1 {
		t.Errorf("fnos_disk_serial_number = %v, want 1", got)
	}
	if got := gaugeValue(t, fams, "fnos_uptime_hostname",
		map[string]string{"value": "nas1"}); got != 1 {
		t.Errorf("fnos_uptime_hostname{value=nas1} = %v, want 1", got)
	}
}

func TestExporter_MetaMetrics(t *testing.T) {
	api := healthyAPI()
	pub := NewPublished()
	p := NewPoller(api, pub, time.Minute, false)
	p.Poll(context.Background())

	fams := scrape(t, pub)

	if got := gaugeValue(t, fams, "fnos_exporter_poll_cycles_total", nil); got != 1 {
		t.Errorf("poll_cycles_total = %v, want 1", got)
	}
	if got := gaugeValue(t, fams, "fnos_exporter_poll_failures_total", nil); got != 0 {
		t.Errorf("poll_failures_total = %v, want 0", got)
	}
	if got := gaugeValue(t, fams, "fnos_exporter_last_poll_success_timestamp_seconds", nil); got <= 0 {
		t.Errorf("last_poll_success_timestamp_seconds = %v, want > 0", got)
	}
	for _, src := range []string{SourceUptime, SourceInventory, SourceTelemetry} {
		if got := gaugeValue(t, fams, "fnos_exporter_source_up",
			map[string]string{"source": src}); got != 1 {
			t.Errorf("source_up{source=%s} = %v, want 1", src, got)
		}
	}
}

func TestExporter_EmptyStateStillScrapes(t *testing.T) {
	// Before the first successful cycle the endpoint answers with meta
	// metrics only — never an error.
	fams := scrape(t, NewPublished())

	if got := gaugeValue(t, fams, "fnos_exporter_poll_cycles_total", nil); got != 0 {
		t.Errorf("poll_cycles_total = %v, want 0", got)
	}
	if got := gaugeValue(t, fams, "fnos_exporter_last_poll_success_timestamp_seconds", nil); got != 0 {
		t.Errorf("timestamp before any success = %v, want 0", got)
	}
	if _, ok := fams["fnos_disk_size"]; ok {
		t.Error("no disk series may appear before a successful cycle")
	}
}

func TestExporter_MixedSmartTypesGatherCleanly(t *testing.T) {
	// The appliance may report the same SMART attribute as a number on one
	// disk and a string on another. Both land in one family, so they must
	// carry identical help or Gather flags the family on every scrape.
	ms := mapper.Map(mapper.Input{Smart: map[string]fnos.SmartInfo{
		"sda": {"firmwareVersion": "U0906000"},
		"sdb": {"firmwareVersion": float64(906)},
	}})
	pub := NewPublished()
	pub.Replace(ms, map[string]bool{SourceSmart: true}, 0)

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewExporter(pub))
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() reported an inconsistency: %v", err)
	}
}

func TestPublished_ReplaceAndFailure(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pub := NewPublished()
	pub.now = func() time.Time { return base }

	pub.Replace(nil, map[string]bool{SourceUptime: true}, 250*time.Millisecond)
	st := pub.Snapshot()
	if !st.LastSuccess.Equal(base) {
		t.Errorf("LastSuccess = %v, want %v", st.LastSuccess, base)
	}
	if st.LastDuration != 250*time.Millisecond {
		t.Errorf("LastDuration = %v", st.LastDuration)
	}

	pub.now = func() time.Time { return base.Add(time.Minute) }
	pub.RecordFailure(map[string]bool{SourceUptime: false}, time.Second)
	st = pub.Snapshot()
	if !st.LastSuccess.Equal(base) {
		t.Error("RecordFailure must not advance LastSuccess")
	}
	if st.Cycles != 2 || st.Failures != 1 {
		t.Errorf("cycles=%v failures=%v, want 2/1", st.Cycles, st.Failures)
	}
	if st.SourceUp[SourceUptime] != 0 {
		t.Error("source should be marked down after failure")
	}
}
