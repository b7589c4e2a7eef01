// Package metrics implements the engine's metrics record: a fixed-bucket
// log-spaced latency histogram with percentile derivation, plus engine error
// counters, cache hit/miss/size, filter count, and a process memory-use
// estimate sampled via gopsutil, generalizing this codebase's gopsutil-backed
// memory sizing into a per-process RSS sample for the engine's own metrics
// export.
package metrics

import (
	"math"
	"os"
	"sync/atomic"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v4/process"
)

// bucketCount and the log-spaced bucket boundaries give a histogram spanning
// roughly 1 microsecond to ~2 seconds in nanoseconds, in 48 buckets — enough
// resolution for p99 derivation without per-sample allocation.
const (
	bucketCount = 48
	minBucketNS = 1_000         // 1 microsecond
	maxBucketNS = 2_000_000_000 // 2 seconds
)

var bucketUpperBounds = buildBucketBounds()

func buildBucketBounds() [bucketCount]uint64 {
	var bounds [bucketCount]uint64
	logMin := math.Log(float64(minBucketNS))
	logMax := math.Log(float64(maxBucketNS))
	step := (logMax - logMin) / float64(bucketCount-1)
	for i := 0; i < bucketCount; i++ {
		bounds[i] = uint64(math.Exp(logMin + step*float64(i)))
	}
	bounds[bucketCount-1] = math.MaxUint64
	return bounds
}

func bucketFor(ns uint64) int {
	lo, hi := 0, bucketCount-1
	for lo < hi {
		mid := (lo + hi) / 2
		if bucketUpperBounds[mid] >= ns {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Recorder accumulates per-query latency samples and engine-wide counters.
// All hot-path updates are plain atomic increments; Snapshot derives
// percentiles from the histogram, never from a retained sample reservoir.
type Recorder struct {
	buckets [bucketCount]atomic.Uint64
	count   atomic.Uint64
	sum     atomic.Uint64
	min     atomic.Uint64
	max     atomic.Uint64

	parseErrors atomic.Uint64
	matchErrors atomic.Uint64

	startedAt time.Time
}

// New constructs a Recorder with its start instant set to now.
func New() *Recorder {
	r := &Recorder{startedAt: nowFunc()}
	r.min.Store(math.MaxUint64)
	return r
}

// nowFunc is a seam for tests; production code always uses time.Now.
var nowFunc = time.Now

// ObserveLatency records one query's elapsed wall-clock duration.
func (r *Recorder) ObserveLatency(d time.Duration) {
	ns := uint64(d.Nanoseconds())
	r.buckets[bucketFor(ns)].Add(1)
	r.count.Add(1)
	r.sum.Add(ns)

	for {
		cur := r.min.Load()
		if ns >= cur || r.min.CompareAndSwap(cur, ns) {
			break
		}
	}
	for {
		cur := r.max.Load()
		if ns <= cur || r.max.CompareAndSwap(cur, ns) {
			break
		}
	}
}

// IncParseErrors increments the parse_errors counter.
func (r *Recorder) IncParseErrors() { r.parseErrors.Add(1) }

// IncMatchErrors increments the match_errors counter.
func (r *Recorder) IncMatchErrors() { r.matchErrors.Add(1) }

// LatencyPercentiles holds derived percentile/extrema values in nanoseconds.
type LatencyPercentiles struct {
	P50 uint64 `json:"p50_ns"`
	P95 uint64 `json:"p95_ns"`
	P99 uint64 `json:"p99_ns"`
	Min uint64 `json:"min_ns"`
	Max uint64 `json:"max_ns"`
	Avg uint64 `json:"avg_ns"`
}

func (r *Recorder) percentiles() LatencyPercentiles {
	total := r.count.Load()
	if total == 0 {
		return LatencyPercentiles{}
	}

	var counts [bucketCount]uint64
	for i := range counts {
		counts[i] = r.buckets[i].Load()
	}

	p50 := percentileFromBuckets(counts[:], total, 0.50)
	p95 := percentileFromBuckets(counts[:], total, 0.95)
	p99 := percentileFromBuckets(counts[:], total, 0.99)

	min := r.min.Load()
	if min == math.MaxUint64 {
		min = 0
	}

	return LatencyPercentiles{
		P50: p50,
		P95: p95,
		P99: p99,
		Min: min,
		Max: r.max.Load(),
		Avg: r.sum.Load() / total,
	}
}

// percentileFromBuckets walks the histogram in ascending order, returning
// the upper bound of the first bucket whose cumulative count reaches the
// requested quantile of total.
func percentileFromBuckets(counts []uint64, total uint64, quantile float64) uint64 {
	target := uint64(math.Ceil(quantile * float64(total)))
	if target == 0 {
		target = 1
	}
	var cumulative uint64
	for i, c := range counts {
		cumulative += c
		if cumulative >= target {
			return bucketUpperBounds[i]
		}
	}
	return bucketUpperBounds[bucketCount-1]
}

// CacheStats is the subset of pkg/cache.Stats folded into a Snapshot.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// Snapshot is the flat JSON-exported metrics record the embedding host reads
// through get_metrics.
type Snapshot struct {
	TotalRequests    uint64  `json:"total_requests"`
	BlockedRequests  uint64  `json:"blocked_requests"`
	AllowedRequests  uint64  `json:"allowed_requests"`
	AvgProcessingNS  uint64  `json:"avg_processing_time_ns"`
	MaxProcessingNS  uint64  `json:"max_processing_time_ns"`
	MinProcessingNS  uint64  `json:"min_processing_time_ns"`
	P50NS            uint64  `json:"p50_ns"`
	P95NS            uint64  `json:"p95_ns"`
	P99NS            uint64  `json:"p99_ns"`
	FilterCount      int     `json:"filter_count"`
	MemoryUsageBytes uint64  `json:"memory_usage_bytes"`
	ParseErrors      uint64  `json:"parse_errors"`
	MatchErrors      uint64  `json:"match_errors"`
	CacheHits        uint64  `json:"cache_hits"`
	CacheMisses      uint64  `json:"cache_misses"`
	CacheSize        int     `json:"cache_size"`
	BlockRate        float64 `json:"block_rate"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// Snapshot builds the full JSON-ready metrics record. cacheStats and
// filterCount are supplied by the caller (the Engine Facade), since the
// Metrics package itself holds neither the cache nor the compiled index;
// blocked/allowed are likewise pulled from the Statistics record's running
// totals so total_requests and block_rate reflect the same counters
// get_stats reports.
func (r *Recorder) Snapshot(cacheStats CacheStats, filterCount int, blocked, allowed uint64) Snapshot {
	lat := r.percentiles()
	total := blocked + allowed

	var blockRate float64
	if total > 0 {
		blockRate = float64(blocked) / float64(total)
	}
	var cacheHitRate float64
	if cacheTotal := cacheStats.Hits + cacheStats.Misses; cacheTotal > 0 {
		cacheHitRate = float64(cacheStats.Hits) / float64(cacheTotal)
	}

	return Snapshot{
		TotalRequests:    total,
		BlockedRequests:  blocked,
		AllowedRequests:  allowed,
		AvgProcessingNS:  lat.Avg,
		MaxProcessingNS:  lat.Max,
		MinProcessingNS:  lat.Min,
		P50NS:            lat.P50,
		P95NS:            lat.P95,
		P99NS:            lat.P99,
		FilterCount:      filterCount,
		MemoryUsageBytes: sampleRSS(),
		ParseErrors:      r.parseErrors.Load(),
		MatchErrors:      r.matchErrors.Load(),
		CacheHits:        cacheStats.Hits,
		CacheMisses:      cacheStats.Misses,
		CacheSize:        cacheStats.Size,
		BlockRate:        blockRate,
		CacheHitRate:     cacheHitRate,
		UptimeSeconds:    time.Since(r.startedAt).Seconds(),
	}
}

// sampleRSS returns the current process's resident set size, falling back
// to 0 if gopsutil cannot read process info (e.g. under a restricted
// sandbox), matching this codebase's "fall back to a conservative estimate
// rather than fail" treatment of gopsutil errors.
func sampleRSS() uint64 {
	proc, err := gopsprocess.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}
