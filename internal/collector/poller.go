package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/timandes/fnos-exporter/internal/fnos"
	"github.com/timandes/fnos-exporter/internal/mapper"
)

// Source names used in logs and the fnos_exporter_source_up meta-metric.
const (
	SourceUptime    = "uptime"
	SourceInventory = "disk_inventory"
	SourceTelemetry = "disk_telemetry"
	SourceSmart     = "disk_smart"
)

// API is the slice of the fnos client the poller needs. *fnos.Client
// satisfies it; tests inject fakes.
type API interface {
	FetchUptime(ctx context.Context) (fnos.UptimeInfo, error)
	FetchDiskInventory(ctx context.Context) ([]fnos.DiskRecord, error)
	FetchDiskTelemetry(ctx context.Context) ([]fnos.DiskTelemetry, error)
	FetchDiskSmart(ctx context.Context, device string) (fnos.SmartInfo, error)
}

// Poller runs poll cycles on a fixed schedule. Concurrent triggers (a manual
// Poll racing the ticker) coalesce through singleflight, so at most one
// cycle is ever in flight.
type Poller struct {
	api          API
	pub          *Published
	collectSmart bool

	mu       sync.Mutex
	interval time.Duration

	sf singleflight.Group
}

// NewPoller wires a Poller to its client and published set.
func NewPoller(api API, pub *Published, interval time.Duration, collectSmart bool) *Poller {
	return &Poller{
		api:          api,
		pub:          pub,
		interval:     interval,
		collectSmart: collectSmart,
	}
}

// Interval returns the current poll interval.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// SetInterval changes the poll interval. The new value applies from the next
// tick; an in-flight cycle is never interrupted.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
	slog.Info("collector: poll interval updated", "interval", d)
}

// Run polls once immediately, then on every interval tick until ctx is
// cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.Poll(ctx)
	for {
		t := time.NewTimer(p.Interval())
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			p.Poll(ctx)
		}
	}
}

// Poll executes one cycle, or joins the cycle already in flight.
func (p *Poller) Poll(ctx context.Context) {
	_, _, _ = p.sf.Do("poll", func() (any, error) {
		p.cycle(ctx)
		return nil, nil
	})
}

// cycle fetches all sources, maps the results and publishes them. The three
// core fetches run in parallel; a failure in one never aborts the others.
func (p *Poller) cycle(ctx context.Context) {
	start := time.Now()

	var (
		in                        mapper.Input
		uptimeErr, invErr, telErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		in.Uptime, uptimeErr = p.api.FetchUptime(ctx)
		return nil
	})
	g.Go(func() error {
		in.Inventory, invErr = p.api.FetchDiskInventory(ctx)
		return nil
	})
	g.Go(func() error {
		in.Telemetry, telErr = p.api.FetchDiskTelemetry(ctx)
		return nil
	})
	_ = g.Wait()

	// A failed source contributes nothing this cycle, even if the fetch
	// handed back a partial payload alongside its error.
	if uptimeErr != nil {
		in.Uptime = nil
	}
	if invErr != nil {
		in.Inventory = nil
	}
	if telErr != nil {
		in.Telemetry = nil
	}

	logSourceErr(SourceUptime, uptimeErr)
	logSourceErr(SourceInventory, invErr)
	logSourceErr(SourceTelemetry, telErr)

	up := map[string]bool{
		SourceUptime:    uptimeErr == nil,
		SourceInventory: invErr == nil,
		SourceTelemetry: telErr == nil,
	}

	if uptimeErr != nil && invErr != nil && telErr != nil {
		// Total failure: keep last-known-good, count it, and move on. The
		// exposition endpoint keeps answering with whatever it has.
		p.pub.RecordFailure(up, time.Since(start))
		slog.Error("collector: poll cycle failed for all sources",
			"uptime_err", uptimeErr, "inventory_err", invErr, "telemetry_err", telErr)
		return
	}

	if p.collectSmart && invErr == nil {
		in.Smart, up[SourceSmart] = p.fetchSmart(ctx, in.Inventory)
	}

	ms := mapper.Map(in)
	p.pub.Replace(ms, up, time.Since(start))
	slog.Debug("collector: poll cycle published",
		"measurements", len(ms), "took", time.Since(start))
}

// fetchSmart collects the SMART bag for every inventoried device. Per-device
// failures are tolerated; the source counts as up if any device succeeded.
func (p *Poller) fetchSmart(ctx context.Context, disks []fnos.DiskRecord) (map[string]fnos.SmartInfo, bool) {
	out := make(map[string]fnos.SmartInfo, len(disks))
	for _, d := range disks {
		bag, err := p.api.FetchDiskSmart(ctx, d.Name)
		if err != nil {
			logSourceErr(SourceSmart, err)
			continue
		}
		out[d.Name] = bag
	}
	return out, len(out) > 0 || len(disks) == 0
}

// logSourceErr logs a source failure at the severity its class warrants.
// Malformed responses log higher — they can mean the appliance API changed.
func logSourceErr(source string, err error) {
	if err == nil {
		return
	}
	if fnos.IsMalformed(err) {
		slog.Error("collector: source returned malformed response", "source", source, "err", err)
		return
	}
	slog.Warn("collector: source fetch failed", "source", source, "err", err)
}
