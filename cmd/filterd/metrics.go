package main

import (
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/shieldcore/filterengine/pkg/engine"
)

// metricsSnapshot mirrors the flat JSON shape get_metrics returns. It is
// decoded fresh on every scrape rather than cached, so the exposed gauges
// never lag the engine's own counters.
type metricsSnapshot struct {
	TotalRequests    float64 `json:"total_requests"`
	BlockedRequests  float64 `json:"blocked_requests"`
	AllowedRequests  float64 `json:"allowed_requests"`
	AvgProcessingNS  float64 `json:"avg_processing_time_ns"`
	MaxProcessingNS  float64 `json:"max_processing_time_ns"`
	MinProcessingNS  float64 `json:"min_processing_time_ns"`
	P50NS            float64 `json:"p50_ns"`
	P95NS            float64 `json:"p95_ns"`
	P99NS            float64 `json:"p99_ns"`
	FilterCount      float64 `json:"filter_count"`
	MemoryUsageBytes float64 `json:"memory_usage_bytes"`
	ParseErrors      float64 `json:"parse_errors"`
	MatchErrors      float64 `json:"match_errors"`
	CacheHits        float64 `json:"cache_hits"`
	CacheMisses      float64 `json:"cache_misses"`
	CacheSize        float64 `json:"cache_size"`
	BlockRate        float64 `json:"block_rate"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// engineCollector adapts the engine's get_metrics JSON into Prometheus
// gauges, re-read on every Collect so a scrape always reflects the engine's
// live counters rather than a cached copy.
type engineCollector struct {
	e *engine.Engine

	totalRequests    *prometheus.Desc
	blockedRequests  *prometheus.Desc
	allowedRequests  *prometheus.Desc
	avgProcessingNS  *prometheus.Desc
	maxProcessingNS  *prometheus.Desc
	minProcessingNS  *prometheus.Desc
	p50NS            *prometheus.Desc
	p95NS            *prometheus.Desc
	p99NS            *prometheus.Desc
	filterCount      *prometheus.Desc
	memoryUsageBytes *prometheus.Desc
	parseErrors      *prometheus.Desc
	matchErrors      *prometheus.Desc
	cacheHits        *prometheus.Desc
	cacheMisses      *prometheus.Desc
	cacheSize        *prometheus.Desc
	blockRate        *prometheus.Desc
	cacheHitRate     *prometheus.Desc
	uptimeSeconds    *prometheus.Desc
}

func newEngineCollector(e *engine.Engine) *engineCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("filterengine_"+name, help, nil, nil)
	}
	return &engineCollector{
		e:                e,
		totalRequests:    desc("total_requests", "Total should_block queries served"),
		blockedRequests:  desc("blocked_requests", "Total queries resolved as blocked"),
		allowedRequests:  desc("allowed_requests", "Total queries resolved as allowed"),
		avgProcessingNS:  desc("avg_processing_time_ns", "Average should_block latency in nanoseconds"),
		maxProcessingNS:  desc("max_processing_time_ns", "Maximum observed should_block latency in nanoseconds"),
		minProcessingNS:  desc("min_processing_time_ns", "Minimum observed should_block latency in nanoseconds"),
		p50NS:            desc("p50_latency_ns", "50th percentile should_block latency in nanoseconds"),
		p95NS:            desc("p95_latency_ns", "95th percentile should_block latency in nanoseconds"),
		p99NS:            desc("p99_latency_ns", "99th percentile should_block latency in nanoseconds"),
		filterCount:      desc("filter_count", "Number of actively indexed network rules"),
		memoryUsageBytes: desc("memory_usage_bytes", "Resident set size of the process in bytes"),
		parseErrors:      desc("parse_errors_total", "Total filter-list lines that failed to parse"),
		matchErrors:      desc("match_errors_total", "Total should_block calls that hit an internal error path"),
		cacheHits:        desc("cache_hits_total", "Total decision cache hits"),
		cacheMisses:      desc("cache_misses_total", "Total decision cache misses"),
		cacheSize:        desc("cache_size", "Current number of entries held in the decision cache"),
		blockRate:        desc("block_rate", "Fraction of requests resolved as blocked"),
		cacheHitRate:     desc("cache_hit_rate", "Fraction of requests served from the decision cache"),
		uptimeSeconds:    desc("uptime_seconds", "Seconds since the engine instance was created"),
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.totalRequests, c.blockedRequests, c.allowedRequests,
		c.avgProcessingNS, c.maxProcessingNS, c.minProcessingNS,
		c.p50NS, c.p95NS, c.p99NS,
		c.filterCount, c.memoryUsageBytes,
		c.parseErrors, c.matchErrors,
		c.cacheHits, c.cacheMisses, c.cacheSize,
		c.blockRate, c.cacheHitRate, c.uptimeSeconds,
	} {
		ch <- d
	}
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	var snap metricsSnapshot
	if err := json.Unmarshal([]byte(c.e.GetMetrics()), &snap); err != nil {
		return
	}

	emit := func(d *prometheus.Desc, valueType prometheus.ValueType, v float64) {
		ch <- prometheus.MustNewConstMetric(d, valueType, v)
	}

	emit(c.totalRequests, prometheus.CounterValue, snap.TotalRequests)
	emit(c.blockedRequests, prometheus.CounterValue, snap.BlockedRequests)
	emit(c.allowedRequests, prometheus.CounterValue, snap.AllowedRequests)
	emit(c.avgProcessingNS, prometheus.GaugeValue, snap.AvgProcessingNS)
	emit(c.maxProcessingNS, prometheus.GaugeValue, snap.MaxProcessingNS)
	emit(c.minProcessingNS, prometheus.GaugeValue, snap.MinProcessingNS)
	emit(c.p50NS, prometheus.GaugeValue, snap.P50NS)
	emit(c.p95NS, prometheus.GaugeValue, snap.P95NS)
	emit(c.p99NS, prometheus.GaugeValue, snap.P99NS)
	emit(c.filterCount, prometheus.GaugeValue, snap.FilterCount)
	emit(c.memoryUsageBytes, prometheus.GaugeValue, snap.MemoryUsageBytes)
	emit(c.parseErrors, prometheus.CounterValue, snap.ParseErrors)
	emit(c.matchErrors, prometheus.CounterValue, snap.MatchErrors)
	emit(c.cacheHits, prometheus.CounterValue, snap.CacheHits)
	emit(c.cacheMisses, prometheus.CounterValue, snap.CacheMisses)
	emit(c.cacheSize, prometheus.GaugeValue, snap.CacheSize)
	emit(c.blockRate, prometheus.GaugeValue, snap.BlockRate)
	emit(c.cacheHitRate, prometheus.GaugeValue, snap.CacheHitRate)
	emit(c.uptimeSeconds, prometheus.GaugeValue, snap.UptimeSeconds)
}

func prometheusRegisterer() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func prometheusHandler(gatherer prometheus.Gatherer) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
