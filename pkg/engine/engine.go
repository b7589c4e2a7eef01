// Package engine implements the Engine Facade: the single
// public surface orchestrating Parser -> Matcher -> Decision Cache ->
// Statistics -> Metrics, owning the current rule index and its atomic swap.
// It generalizes a struct-owning-an-atomic-pointer-backed-cache-plus-logger
// pattern already used elsewhere in this codebase for hot-reloadable config
// into the filter engine's create/load_rules/should_block/destroy lifecycle.
package engine

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shieldcore/filterengine/internal/logging"
	"github.com/shieldcore/filterengine/internal/options"
	"github.com/shieldcore/filterengine/pkg/cache"
	"github.com/shieldcore/filterengine/pkg/matcher"
	"github.com/shieldcore/filterengine/pkg/metrics"
	"github.com/shieldcore/filterengine/pkg/parser"
	"github.com/shieldcore/filterengine/pkg/rule"
	"github.com/shieldcore/filterengine/pkg/stats"
)

// Engine is the orchestrating facade. The zero value is not usable;
// construct with New.
type Engine struct {
	opts options.Options
	log  *logging.Logger

	matcher *matcher.Matcher
	cache   *cache.Cache
	stats   *stats.Recorder
	metrics *metrics.Recorder

	ruleVersion atomic.Uint64
	destroyed   atomic.Bool
	destroyOnce sync.Once
}

// New allocates an empty engine with default (empty) rule set, per spec
// §4.7's "create() -> Handle. Cannot fail except on allocation." Allocation
// failures in Go surface as panics rather than errors, so New only returns
// an error for a malformed Options.Logging configuration.
func New(opts options.Options) (*Engine, error) {
	log, err := logging.New(opts.Logging)
	if err != nil {
		return nil, err
	}

	return &Engine{
		opts:    opts,
		log:     log,
		matcher: matcher.New(),
		cache:   cache.New(opts.CacheCapacity),
		stats:   stats.New(opts.TopKHosts),
		metrics: metrics.New(),
	}, nil
}

// LoadRules parses and compiles text, atomically replacing the current rule
// index and incrementing rule_version on success. Per this design the call
// fails only if no rule could be compiled from non-empty input; individual
// bad lines never fail the call.
func (e *Engine) LoadRules(text string) bool {
	if e.destroyed.Load() {
		return false
	}

	result := parser.Parse(text)
	for i := 0; i < result.ParseErrors; i++ {
		e.metrics.IncParseErrors()
	}

	if result.Summary.Total() > 0 && result.Summary.NetworkBlock+result.Summary.NetworkException+result.Summary.CosmeticHide == 0 {
		e.log.Warn("load_rules: no usable rule compiled from non-empty input")
		return false
	}

	next := e.ruleVersion.Add(1)
	idx := matcher.Build(result.Rules, e.opts.LiteralFloor, next)
	e.matcher.Swap(idx)
	// The cache is intentionally left in place: entries carry the
	// rule_version they were computed under, so Cache.Get treats anything
	// stamped with an older version as a miss and lazily replaces it,
	// bounding the latency spike of this swap instead of paying a full
	// cold-cache pass for every query that follows it.

	e.log.Info("rules loaded",
		zap.Uint64("rule_version", next),
		zap.Int("network_block", result.Summary.NetworkBlock),
		zap.Int("network_exception", result.Summary.NetworkException),
		zap.Int("cosmetic_hide", result.Summary.CosmeticHide),
		zap.Int("parse_errors", result.ParseErrors),
	)
	return true
}

// Query describes one should_block call, mirroring matcher.Query plus the
// optional byte-size hint used for bytes_saved_estimate.
type Query struct {
	URL        string
	SourceHost string
	Kind       rule.ResourceKind
	BytesHint  int64
}

// ShouldBlock resolves a query: Decision Cache lookup, on miss a Matcher
// pass, then records Stats/Metrics and caches the result. Never panics
// across this boundary; any internal error is treated as NotMatched/false
// plus a match_errors increment.
func (e *Engine) ShouldBlock(q Query) bool {
	if e.destroyed.Load() {
		return false
	}

	start := time.Now()
	defer func() { e.metrics.ObserveLatency(time.Since(start)) }()

	idx := e.matcher.Current()
	version := idx.Version()

	if d, ok := e.cache.Get(q.URL, version); ok {
		e.recordDecision(d.ShouldBlock(), q)
		return d.ShouldBlock()
	}

	mq := matcher.Query{URL: q.URL, SourceHost: q.SourceHost, Kind: q.Kind}
	d, matchErr := idx.Match(mq)
	if matchErr {
		e.metrics.IncMatchErrors()
		return false
	}

	e.cache.Put(q.URL, d, version)
	e.recordDecision(d.ShouldBlock(), q)
	return d.ShouldBlock()
}

func (e *Engine) recordDecision(blocked bool, q Query) {
	if blocked {
		host := hostOf(q.URL)
		bytes := q.BytesHint
		if bytes <= 0 {
			bytes = e.opts.DefaultBytesSaved
		}
		e.stats.RecordBlocked(host, bytes)
		return
	}
	e.stats.RecordAllowed()
}

// hostOf extracts a best-effort host for stats tallying without failing
// ShouldBlock's caller if the URL is malformed (the matcher already handled
// that failure path; this is purely cosmetic for the top-K tally).
func hostOf(rawURL string) string {
	for i := 0; i < len(rawURL); i++ {
		if rawURL[i] == '/' && i+1 < len(rawURL) && rawURL[i+1] == '/' {
			rest := rawURL[i+2:]
			for j := 0; j < len(rest); j++ {
				switch rest[j] {
				case '/', '?', '#':
					return rest[:j]
				}
			}
			return rest
		}
	}
	return ""
}

// GetStats snapshots the statistics record as JSON.
func (e *Engine) GetStats() string {
	snap := e.stats.Snapshot()
	b, err := json.Marshal(snap)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ResetStats atomically resets the statistics record.
func (e *Engine) ResetStats() bool {
	if e.destroyed.Load() {
		return false
	}
	e.stats.Reset()
	return true
}

// GetMetrics snapshots the metrics record as JSON.
func (e *Engine) GetMetrics() string {
	idx := e.matcher.Current()
	cacheStats := e.cache.Stats()
	blocked, allowed := e.stats.Totals()
	snap := e.metrics.Snapshot(metrics.CacheStats{
		Hits:   cacheStats.Hits,
		Misses: cacheStats.Misses,
		Size:   cacheStats.Size,
	}, idx.FilterCount(), blocked, allowed)

	b, err := json.Marshal(snap)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// CosmeticSelectorsFor returns the cosmetic-hide selectors registered for
// host, the Go-level convenience this design describes for host-scoped
// cosmetic lookups.
func (e *Engine) CosmeticSelectorsFor(host string) []string {
	idx := e.matcher.Current()
	rules := idx.CosmeticRulesFor(host)
	global := idx.CosmeticRulesFor("")
	out := make([]string, 0, len(rules)+len(global))
	for _, r := range rules {
		out = append(out, r.Selector)
	}
	for _, r := range global {
		out = append(out, r.Selector)
	}
	return out
}

// RuleVersion returns the current rule_version, exposed for diagnostics and
// the Fleet Stats Aggregator's heartbeat payload.
func (e *Engine) RuleVersion() uint64 { return e.ruleVersion.Load() }

// Destroy releases engine resources. Idempotent: a second call is a no-op.
// Subsequent use of a destroyed engine is a programmer error; LoadRules,
// ShouldBlock and ResetStats check destroyed first and return false rather
// than panicking, while the read-only getters keep serving the last state.
func (e *Engine) Destroy() {
	e.destroyOnce.Do(func() {
		e.destroyed.Store(true)
		e.log.Sync()
	})
}

// Destroyed reports whether Destroy has been called.
func (e *Engine) Destroyed() bool { return e.destroyed.Load() }
