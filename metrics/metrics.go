// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics implements spec.md §4.9: a fixed-key counter map, a
// 100-entry error ring, and a Gatherer-shaped wrapper over the
// prometheus registry, mirroring the teacher's
// metrics/gatherer.Gatherer — one seam between the service's own
// counters and an exported collection format, kept thin rather than
// walking an arbitrary metrics registry since this service's counter
// set is fixed and small.
package metrics

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fixed counter keys, per spec.md §4.9 "A counter map with fixed keys."
const (
	CounterPriceUpdates   = "priceUpdates"
	CounterCacheHits      = "cacheHits"
	CounterCacheMisses    = "cacheMisses"
	CounterAPIRequests    = "apiRequests"
	CounterWSConnections  = "wsConnections"
	CounterEventsReceived = "eventsReceived"
)

var counterKeys = []string{
	CounterPriceUpdates,
	CounterCacheHits,
	CounterCacheMisses,
	CounterAPIRequests,
	CounterWSConnections,
	CounterEventsReceived,
}

// errorRingSize is the "capped at 100 most-recent" bound from spec.md
// §4.9, grounded on the teacher's utils.LRUCache fixed-capacity
// eviction shape.
const errorRingSize = 100

// ErrorEntry is one recorded error, most-recent last in the ring.
type ErrorEntry struct {
	Kind      string
	Message   string
	Timestamp time.Time
}

// Registry is the spec.md §4.9 metrics component.
type Registry struct {
	start time.Time

	mu       sync.Mutex
	counters map[string]prometheus.Counter
	values   map[string]*uint64 // mirrors counters for cheap snapshot reads
	errRing  []ErrorEntry
	errPos   int

	reg *prometheus.Registry
}

// New constructs a Registry with the fixed counter set pre-registered
// against a fresh prometheus.Registry.
func New() *Registry {
	promReg := prometheus.NewRegistry()
	counters := make(map[string]prometheus.Counter, len(counterKeys))
	values := make(map[string]*uint64, len(counterKeys))
	for _, key := range counterKeys {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricefanout_" + toSnake(key),
			Help: "pricefanout counter: " + key,
		})
		promReg.MustRegister(c)
		counters[key] = c
		values[key] = new(uint64)
	}

	return &Registry{
		start:    time.Now(),
		counters: counters,
		values:   values,
		errRing:  make([]ErrorEntry, 0, errorRingSize),
		reg:      promReg,
	}
}

// IncCounter increments a fixed-key counter. Unknown keys are ignored.
func (r *Registry) IncCounter(key string) {
	r.mu.Lock()
	c, ok := r.counters[key]
	v := r.values[key]
	r.mu.Unlock()
	if ok {
		c.Inc()
		atomic.AddUint64(v, 1)
	}
}

// RecordError appends to the bounded error ring, overwriting the
// oldest entry once full, per spec.md §4.9 "an error ring capped at
// 100 most-recent."
func (r *Registry) RecordError(kind, message string) {
	entry := ErrorEntry{Kind: kind, Message: message, Timestamp: time.Now()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errRing) < errorRingSize {
		r.errRing = append(r.errRing, entry)
		return
	}
	r.errRing[r.errPos] = entry
	r.errPos = (r.errPos + 1) % errorRingSize
}

// Errors returns a snapshot of the error ring in oldest-to-newest
// order.
func (r *Registry) Errors() []ErrorEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errRing) < errorRingSize {
		out := make([]ErrorEntry, len(r.errRing))
		copy(out, r.errRing)
		return out
	}
	out := make([]ErrorEntry, 0, errorRingSize)
	out = append(out, r.errRing[r.errPos:]...)
	out = append(out, r.errRing[:r.errPos]...)
	return out
}

// Snapshot implements the counter read used by fanout's heartbeat and
// the getStats/getMetrics REST operation.
func (r *Registry) Snapshot() map[string]uint64 {
	r.mu.Lock()
	values := r.values
	r.mu.Unlock()

	out := make(map[string]uint64, len(counterKeys))
	for _, key := range counterKeys {
		out[key] = atomic.LoadUint64(values[key])
	}
	return out
}

// Stats implements spec.md §4.9 "getStats snapshots counters with an
// uptime derived from start timestamp."
type Stats struct {
	Counters    map[string]uint64
	UptimeS     float64
	Errors      []ErrorEntry
	ActivePools int `json:"activePools"`
}

func (r *Registry) GetStats() Stats {
	return Stats{
		Counters: r.Snapshot(),
		UptimeS:  time.Since(r.start).Seconds(),
		Errors:   r.Errors(),
	}
}

// Gatherer exposes the underlying prometheus.Registry for an HTTP
// /metrics endpoint, the same seam role the teacher's
// metrics/gatherer.Gatherer plays between an internal registry and an
// exported collection format.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func toSnake(camel string) string {
	var b strings.Builder
	for i, r := range camel {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
