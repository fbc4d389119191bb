package stats

import (
	"testing"
	"time"
)

func TestCounters_HitMissRatio(t *testing.T) {
	c := New()
	c.IncCacheHit()
	c.IncCacheHit()
	c.IncCacheMiss()

	snap := c.Snapshot()
	if snap.CacheHits != 2 || snap.CacheMisses != 1 {
		t.Fatalf("unexpected counts: %+v", snap)
	}
	want := 2.0 / 3.0
	if snap.CacheHitRatio != want {
		t.Fatalf("expected ratio %f, got %f", want, snap.CacheHitRatio)
	}
}

func TestCounters_EmptyRatioIsZero(t *testing.T) {
	c := New()
	if snap := c.Snapshot(); snap.CacheHitRatio != 0 {
		t.Fatalf("expected zero ratio with no samples, got %f", snap.CacheHitRatio)
	}
}

func TestCounters_AdmissionsAndEvictions(t *testing.T) {
	c := New()
	c.IncAdmission()
	c.IncAdmission()
	c.IncEviction()

	snap := c.Snapshot()
	if snap.Admissions != 2 || snap.Evictions != 1 {
		t.Fatalf("unexpected counts: %+v", snap)
	}
}

func TestCounters_SlotWaitAverage(t *testing.T) {
	c := New()
	c.ObserveSlotWait(100 * time.Millisecond)
	c.ObserveSlotWait(300 * time.Millisecond)

	snap := c.Snapshot()
	want := 0.2
	if snap.AvgSlotWaitSeconds != want {
		t.Fatalf("expected avg %f, got %f", want, snap.AvgSlotWaitSeconds)
	}
}

func TestCounters_UptimeAdvances(t *testing.T) {
	c := New()
	time.Sleep(5 * time.Millisecond)
	if snap := c.Snapshot(); snap.UptimeSeconds <= 0 {
		t.Fatalf("expected positive uptime, got %f", snap.UptimeSeconds)
	}
}
