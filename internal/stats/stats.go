// Package stats tracks lightweight in-process counters for the proxy:
// cache hits/misses, admissions, evictions, and slot wait time. It follows
// this stack's hand-rolled-atomic-counter idiom rather than pulling in a
// metrics client library, since nothing here needs label cardinality or a
// scrape format.
package stats

import (
	"sync/atomic"
	"time"
)

// Counters is a process-wide set of atomically-updated counters. The zero
// value is ready to use.
type Counters struct {
	startedAt       time.Time
	cacheHits       int64
	cacheMisses     int64
	admissions      int64
	evictions       int64
	slotWaitCount   int64
	slotWaitNanoSum int64
}

// New returns a Counters with its start time set to now.
func New() *Counters {
	return &Counters{startedAt: time.Now()}
}

func (c *Counters) IncCacheHit()   { atomic.AddInt64(&c.cacheHits, 1) }
func (c *Counters) IncCacheMiss()  { atomic.AddInt64(&c.cacheMisses, 1) }
func (c *Counters) IncAdmission()  { atomic.AddInt64(&c.admissions, 1) }
func (c *Counters) IncEviction()   { atomic.AddInt64(&c.evictions, 1) }

// ObserveSlotWait records the time a request spent waiting for a slot to
// become available.
func (c *Counters) ObserveSlotWait(d time.Duration) {
	atomic.AddInt64(&c.slotWaitCount, 1)
	atomic.AddInt64(&c.slotWaitNanoSum, int64(d))
}

// Snapshot is a point-in-time, JSON-serializable view of the counters.
type Snapshot struct {
	UptimeSeconds      float64 `json:"uptime_seconds"`
	CacheHits          int64   `json:"cache_hits"`
	CacheMisses        int64   `json:"cache_misses"`
	CacheHitRatio      float64 `json:"cache_hit_ratio"`
	Admissions         int64   `json:"admissions"`
	Evictions          int64   `json:"evictions"`
	AvgSlotWaitSeconds float64 `json:"avg_slot_wait_seconds"`
}

// Snapshot returns a consistent-enough (each field individually atomic)
// read of the current counters.
func (c *Counters) Snapshot() Snapshot {
	hits := atomic.LoadInt64(&c.cacheHits)
	misses := atomic.LoadInt64(&c.cacheMisses)
	waitCount := atomic.LoadInt64(&c.slotWaitCount)
	waitSum := atomic.LoadInt64(&c.slotWaitNanoSum)

	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	var avgWait float64
	if waitCount > 0 {
		avgWait = (time.Duration(waitSum / waitCount)).Seconds()
	}

	return Snapshot{
		UptimeSeconds:      time.Since(c.startedAt).Seconds(),
		CacheHits:          hits,
		CacheMisses:        misses,
		CacheHitRatio:      ratio,
		Admissions:         atomic.LoadInt64(&c.admissions),
		Evictions:          atomic.LoadInt64(&c.evictions),
		AvgSlotWaitSeconds: avgWait,
	}
}
