package collector

import (
	"sync"
	"time"

	"github.com/timandes/fnos-exporter/internal/mapper"
)

// Published holds the measurement set served to scrapers, plus the cycle
// bookkeeping exposed as meta-metrics. Replace and RecordFailure are called
// by the single Poller writer; Snapshot is called by the exposition path.
// The publish step is one atomic swap of the full set, never an incremental
// update.
type Published struct {
	mu           sync.RWMutex
	measurements []mapper.Measurement
	lastSuccess  time.Time
	lastDuration time.Duration
	cycles       float64
	failures     float64
	sourceUp     map[string]float64
	now          func() time.Time // injectable for deterministic tests
}

// State is a consistent copy of everything Published tracks.
type State struct {
	Measurements []mapper.Measurement
	LastSuccess  time.Time
	LastDuration time.Duration
	Cycles       float64
	Failures     float64
	SourceUp     map[string]float64
}

// NewPublished returns an empty Published set.
func NewPublished() *Published {
	return &Published{
		sourceUp: make(map[string]float64),
		now:      time.Now,
	}
}

// Replace swaps in the measurement set of a (fully or partially) successful
// cycle. Callers must not modify ms afterwards.
func (p *Published) Replace(ms []mapper.Measurement, up map[string]bool, took time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.measurements = ms
	p.lastSuccess = p.now()
	p.lastDuration = took
	p.cycles++
	p.setSourceUp(up)
}

// RecordFailure notes a total-failure cycle. The previously published
// measurement set stays in place so the exposition endpoint keeps serving
// last-known-good data.
func (p *Published) RecordFailure(up map[string]bool, took time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastDuration = took
	p.cycles++
	p.failures++
	p.setSourceUp(up)
}

func (p *Published) setSourceUp(up map[string]bool) {
	for src, ok := range up {
		if ok {
			p.sourceUp[src] = 1
		} else {
			p.sourceUp[src] = 0
		}
	}
}

// Snapshot returns a copy safe to read while the next cycle publishes.
func (p *Published) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ms := make([]mapper.Measurement, len(p.measurements))
	copy(ms, p.measurements)
	up := make(map[string]float64, len(p.sourceUp))
	for k, v := range p.sourceUp {
		up[k] = v
	}
	return State{
		Measurements: ms,
		LastSuccess:  p.lastSuccess,
		LastDuration: p.lastDuration,
		Cycles:       p.cycles,
		Failures:     p.failures,
		SourceUp:     up,
	}
}
