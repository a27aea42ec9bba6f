package mapper

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/prometheus/common/model"

	"github.com/timandes/fnos-exporter/internal/fnos"
)

// Kind distinguishes the two metric kinds the exporter produces.
type Kind uint8

const (
	// Gauge is a point-in-time numeric value.
	Gauge Kind = iota
	// Info is a label-only fact with constant value 1.
	Info
)

func (k Kind) String() string {
	if k == Info {
		return "info"
	}
	return "gauge"
}

// Measurement is one (name, kind, label-set, value) tuple ready for
// exposition. Info measurements always carry Value 1.
type Measurement struct {
	Name   string
	Help   string
	Kind   Kind
	Labels map[string]string
	Value  float64
}

// Input carries the raw payloads of one poll cycle. A nil field means that
// source failed or was disabled this cycle and contributes zero
// measurements — never placeholder values.
type Input struct {
	Uptime    fnos.UptimeInfo
	Inventory []fnos.DiskRecord
	Telemetry []fnos.DiskTelemetry
	Smart     map[string]fnos.SmartInfo // device name → SMART bag
}

// deviceLabel is attached to every disk-scoped measurement.
const deviceLabel = "device_name"

// Map converts raw payloads into the full measurement set for a cycle.
// Inventory and telemetry are mapped independently per device key: a device
// present in only one source still yields that source's measurements.
func Map(in Input) []Measurement {
	b := builder{seen: make(map[string]struct{})}

	b.mapUptime(in.Uptime)

	inv := append([]fnos.DiskRecord(nil), in.Inventory...)
	sort.Slice(inv, func(i, j int) bool { return inv[i].Name < inv[j].Name })
	for _, d := range inv {
		b.mapInventory(d)
	}

	tel := append([]fnos.DiskTelemetry(nil), in.Telemetry...)
	sort.Slice(tel, func(i, j int) bool { return tel[i].Name < tel[j].Name })
	for _, t := range tel {
		b.mapTelemetry(t)
	}

	for _, dev := range sortedKeys(in.Smart) {
		b.mapSmart(dev, in.Smart[dev])
	}

	return b.out
}

type builder struct {
	out  []Measurement
	seen map[string]struct{}
}

func (b *builder) mapUptime(bag fnos.UptimeInfo) {
	flat := flattenBag(bag)
	for _, key := range sortedKeys(flat) {
		cleanKey := sanitizeName(key)
		if cleanKey == "" {
			slog.Warn("mapper: skipping uptime field with unusable name", "field", key)
			continue
		}
		// Help is derived from the final name only: two fields that land on
		// the same family must carry identical help or the registry reports
		// the family as inconsistent on every scrape.
		name := "fnos_uptime_" + cleanKey
		help := "fnOS uptime field " + cleanKey
		switch v := flat[key].(type) {
		case string:
			b.add(Measurement{
				Name:   name,
				Help:   help,
				Kind:   Info,
				Labels: map[string]string{"value": v},
				Value:  1,
			})
		default:
			n, ok := numericValue(v)
			if !ok {
				slog.Warn("mapper: skipping uptime field with unsupported value type",
					"field", key)
				continue
			}
			b.add(Measurement{
				Name:  name,
				Help:  help,
				Value: n,
			})
		}
	}
}

func (b *builder) mapInventory(d fnos.DiskRecord) {
	dev := map[string]string{deviceLabel: d.Name}

	b.addInfo("fnos_disk_name", "name", d.Name, dev)
	b.addInfo("fnos_disk_model_name", "model_name", d.Model, dev)
	b.addInfo("fnos_disk_serial_number", "serial_number", d.Serial, dev)
	b.addInfo("fnos_disk_type", "type", d.Type, dev)
	b.addInfo("fnos_disk_protocol", "protocol", d.Protocol, dev)

	b.add(Measurement{
		Name:   "fnos_disk_size",
		Help:   "fnOS disk size in bytes",
		Labels: dev,
		Value:  float64(d.Size),
	})
}

func (b *builder) mapTelemetry(t fnos.DiskTelemetry) {
	dev := map[string]string{deviceLabel: t.Name}
	gauges := []struct {
		name  string
		help  string
		value float64
	}{
		{"fnos_disk_temp", "fnOS disk temperature in degrees Celsius", t.Temp},
		{"fnos_disk_standby", "fnOS disk standby flag (1 = standby)", boolValue(bool(t.Standby))},
		{"fnos_disk_busy", "fnOS disk busy flag (1 = busy)", boolValue(bool(t.Busy))},
		{"fnos_disk_read", "fnOS disk cumulative read operations since appliance boot", t.Read},
		{"fnos_disk_write", "fnOS disk cumulative write operations since appliance boot", t.Write},
	}
	for _, g := range gauges {
		b.add(Measurement{Name: g.name, Help: g.help, Labels: dev, Value: g.value})
	}
}

func (b *builder) mapSmart(device string, bag fnos.SmartInfo) {
	dev := map[string]string{deviceLabel: device}
	flat := flattenBag(bag)
	for _, key := range sortedKeys(flat) {
		cleanKey := sanitizeName(key)
		if cleanKey == "" {
			slog.Warn("mapper: skipping smart field with unusable name",
				"device", device, "field", key)
			continue
		}
		// Same-name-same-help across devices: the appliance may report the
		// same attribute as a number on one disk and a string on another.
		name := "fnos_disk_smart_" + cleanKey
		help := "fnOS SMART attribute " + cleanKey
		switch v := flat[key].(type) {
		case string:
			b.add(Measurement{
				Name:   name,
				Help:   help,
				Kind:   Info,
				Labels: map[string]string{deviceLabel: device, cleanKey: v},
				Value:  1,
			})
		default:
			n, ok := numericValue(v)
			if !ok {
				slog.Warn("mapper: skipping smart field with unsupported value type",
					"device", device, "field", key)
				continue
			}
			b.add(Measurement{
				Name:   name,
				Help:   help,
				Labels: dev,
				Value:  n,
			})
		}
	}
}

// addInfo emits one Info series: value fixed at 1, the fact carried in the
// attrKey label alongside any scope labels.
func (b *builder) addInfo(name, attrKey, attrValue string, scope map[string]string) {
	labels := make(map[string]string, len(scope)+1)
	for k, v := range scope {
		labels[k] = v
	}
	labels[attrKey] = attrValue
	b.add(Measurement{
		Name:   name,
		Help:   "fnOS info for " + attrKey,
		Kind:   Info,
		Labels: labels,
		Value:  1,
	})
}

// add validates and deduplicates before appending. Invalid names or label
// names are dropped per-field; a duplicate (name, label-set) keeps the first
// occurrence so the exposition never carries conflicting series.
func (b *builder) add(m Measurement) {
	if !model.IsValidMetricName(model.LabelValue(m.Name)) {
		slog.Warn("mapper: dropping measurement with invalid metric name", "name", m.Name)
		return
	}
	for k := range m.Labels {
		if !model.LabelName(k).IsValid() {
			slog.Warn("mapper: dropping measurement with invalid label name",
				"name", m.Name, "label", k)
			return
		}
	}

	key := fingerprint(m)
	if _, dup := b.seen[key]; dup {
		slog.Warn("mapper: dropping duplicate measurement", "name", m.Name)
		return
	}
	b.seen[key] = struct{}{}
	b.out = append(b.out, m)
}

func fingerprint(m Measurement) string {
	parts := make([]string, 0, len(m.Labels)+1)
	parts = append(parts, m.Name)
	for _, k := range sortedKeys(m.Labels) {
		parts = append(parts, k+"="+m.Labels[k])
	}
	return strings.Join(parts, "\xff")
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
