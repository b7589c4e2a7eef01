package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecorder_ObserveLatencyAndPercentiles(t *testing.T) {
	r := New()
	for i := 1; i <= 100; i++ {
		r.ObserveLatency(time.Duration(i) * time.Microsecond)
	}

	snap := r.Snapshot(CacheStats{}, 0, 0, 0)
	assert.Greater(t, snap.P50NS, uint64(0))
	assert.GreaterOrEqual(t, snap.P99NS, snap.P50NS)
	assert.GreaterOrEqual(t, snap.MaxProcessingNS, snap.MinProcessingNS)
}

func TestRecorder_EmptyHistogramYieldsZeroPercentiles(t *testing.T) {
	r := New()
	snap := r.Snapshot(CacheStats{}, 0, 0, 0)
	assert.Zero(t, snap.P50NS)
	assert.Zero(t, snap.MaxProcessingNS)
}

func TestRecorder_ErrorCounters(t *testing.T) {
	r := New()
	r.IncParseErrors()
	r.IncParseErrors()
	r.IncMatchErrors()

	snap := r.Snapshot(CacheStats{Hits: 3, Misses: 1, Size: 2}, 5, 0, 0)
	assert.Equal(t, uint64(2), snap.ParseErrors)
	assert.Equal(t, uint64(1), snap.MatchErrors)
	assert.Equal(t, 5, snap.FilterCount)
	assert.Equal(t, uint64(3), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.InDelta(t, 0.75, snap.CacheHitRate, 0.0001)
}

func TestRecorder_BlockRateComputedFromTotals(t *testing.T) {
	r := New()
	snap := r.Snapshot(CacheStats{}, 0, 3, 1)
	assert.Equal(t, uint64(4), snap.TotalRequests)
	assert.Equal(t, uint64(3), snap.BlockedRequests)
	assert.Equal(t, uint64(1), snap.AllowedRequests)
	assert.InDelta(t, 0.75, snap.BlockRate, 0.0001)
}

func TestRecorder_BlockRateZeroWhenNoTraffic(t *testing.T) {
	r := New()
	snap := r.Snapshot(CacheStats{}, 0, 0, 0)
	assert.Zero(t, snap.TotalRequests)
	assert.Zero(t, snap.BlockRate)
}

func TestRecorder_UptimeNonNegative(t *testing.T) {
	r := New()
	time.Sleep(time.Millisecond)
	snap := r.Snapshot(CacheStats{}, 0, 0, 0)
	assert.Greater(t, snap.UptimeSeconds, 0.0)
}

func TestBucketFor_Monotonic(t *testing.T) {
	assert.LessOrEqual(t, bucketFor(100), bucketFor(10_000))
	assert.LessOrEqual(t, bucketFor(10_000), bucketFor(1_000_000))
}
