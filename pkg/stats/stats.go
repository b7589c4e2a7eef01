// Package stats implements the Statistics component :
// lock-minimal atomic counters for blocked/allowed totals and bytes saved,
// plus a bounded top-K host tally, generalizing this codebase's
// atomic.Pointer-based hot-swappable record pattern (config's
// atomic.Pointer[hostsCache]) into an atomically-resettable statistics
// record.
package stats

import (
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultBytesPerBlock is the heuristic bytes_saved_estimate increment used
// when a caller does not supply an explicit size.
const DefaultBytesPerBlock = 50 * 1024

// DefaultTopKSize bounds the host tally kept in memory.
const DefaultTopKSize = 64

// counters is the atomically-swappable block of scalar totals. Reset
// installs a fresh zero-valued counters so a concurrent Snapshot reads
// either entirely the pre-reset or entirely the post-reset values, never a
// mix of the two.
type counters struct {
	blocked    uint64
	allowed    uint64
	bytesSaved uint64
}

// hostTally is one entry of the top-K structure.
type hostTally struct {
	host  string
	count uint64
	bytes uint64
}

// hostTallyCounter holds per-host atomic counters so concurrent
// RecordBlocked calls for the same host never take the Recorder-level lock.
type hostTallyCounter struct {
	count atomic.Uint64
	bytes atomic.Uint64
}

// Recorder is the live, hot-path-facing statistics record.
type Recorder struct {
	current atomic.Pointer[counters]

	topK atomic.Pointer[map[string]*hostTallyCounter]
	mu   sync.Mutex // guards compaction/growth of the topK map only

	topKSize int
}

// New constructs an empty Recorder. topKSize bounds how many distinct hosts
// are reported by Snapshot; 0 uses DefaultTopKSize.
func New(topKSize int) *Recorder {
	if topKSize <= 0 {
		topKSize = DefaultTopKSize
	}
	r := &Recorder{topKSize: topKSize}
	r.current.Store(&counters{})
	empty := make(map[string]*hostTallyCounter)
	r.topK.Store(&empty)
	return r
}

// RecordBlocked increments blocked_count and bytes_saved_estimate (using
// bytesSaved if positive, else DefaultBytesPerBlock) and tallies host. The
// increment is a CAS retry loop against the current counters snapshot so it
// never observes a torn update from a concurrent Reset.
func (r *Recorder) RecordBlocked(host string, bytesSaved int64) {
	saved := uint64(DefaultBytesPerBlock)
	if bytesSaved > 0 {
		saved = uint64(bytesSaved)
	}
	for {
		old := r.current.Load()
		next := &counters{
			blocked:    old.blocked + 1,
			allowed:    old.allowed,
			bytesSaved: old.bytesSaved + saved,
		}
		if r.current.CompareAndSwap(old, next) {
			break
		}
	}
	if host != "" {
		r.tally(host, saved)
	}
}

// RecordAllowed increments allowed_count.
func (r *Recorder) RecordAllowed() {
	for {
		old := r.current.Load()
		next := &counters{blocked: old.blocked, allowed: old.allowed + 1, bytesSaved: old.bytesSaved}
		if r.current.CompareAndSwap(old, next) {
			return
		}
	}
}

func (r *Recorder) tally(host string, bytes uint64) {
	m := *r.topK.Load()
	if c, ok := m[host]; ok {
		c.count.Add(1)
		c.bytes.Add(bytes)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	m = *r.topK.Load()
	if c, ok := m[host]; ok {
		c.count.Add(1)
		c.bytes.Add(bytes)
		return
	}
	if len(m) >= r.topKSize*4 {
		// Bound unbounded-cardinality growth: compact to the current top-K
		// before admitting new hosts, per spec's "periodically-compacted
		// structure that is O(1) amortised per update".
		r.compactLocked()
		m = *r.topK.Load()
	}
	next := make(map[string]*hostTallyCounter, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	c := &hostTallyCounter{}
	c.count.Add(1)
	c.bytes.Add(bytes)
	next[host] = c
	r.topK.Store(&next)
}

// compactLocked must be called with r.mu held. It replaces the live map with
// just its top-K entries by count.
func (r *Recorder) compactLocked() {
	m := *r.topK.Load()
	entries := snapshotTallies(m)
	if len(entries) <= r.topKSize {
		return
	}
	entries = entries[:r.topKSize]
	next := make(map[string]*hostTallyCounter, len(entries))
	for _, e := range entries {
		c := &hostTallyCounter{}
		c.count.Store(e.count)
		c.bytes.Store(e.bytes)
		next[e.host] = c
	}
	r.topK.Store(&next)
}

func snapshotTallies(m map[string]*hostTallyCounter) []hostTally {
	out := make([]hostTally, 0, len(m))
	for host, c := range m {
		out = append(out, hostTally{host: host, count: c.count.Load(), bytes: c.bytes.Load()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].host < out[j].host
	})
	return out
}

// Snapshot is an immutable point-in-time view of the statistics record,
// returned by Recorder.Snapshot and serialised by the Engine Facade's
// get_stats per statistics JSON schema.
type Snapshot struct {
	BlockedCount      uint64      `json:"blocked_count"`
	AllowedCount      uint64      `json:"allowed_count"`
	DataSaved         uint64      `json:"data_saved"`
	TopBlockedDomains []HostCount `json:"top_blocked_domains"`
}

// HostCount is one top-K entry.
type HostCount struct {
	Host  string `json:"host"`
	Count uint64 `json:"count"`
	Bytes uint64 `json:"bytes"`
}

// Snapshot returns the current counters and the top-K host tally, truncated
// to topKSize entries sorted by descending count.
func (r *Recorder) Snapshot() Snapshot {
	c := r.current.Load()

	m := *r.topK.Load()
	entries := snapshotTallies(m)
	if len(entries) > r.topKSize {
		entries = entries[:r.topKSize]
	}
	top := make([]HostCount, 0, len(entries))
	for _, e := range entries {
		top = append(top, HostCount{Host: e.host, Count: e.count, Bytes: e.bytes})
	}

	return Snapshot{
		BlockedCount:      c.blocked,
		AllowedCount:      c.allowed,
		DataSaved:         c.bytesSaved,
		TopBlockedDomains: top,
	}
}

// Totals returns the blocked/allowed counters without the top-K tally,
// cheap enough for the Engine Facade to fold into the Metrics export's
// total_requests/blocked_requests/allowed_requests/block_rate fields.
func (r *Recorder) Totals() (blocked, allowed uint64) {
	c := r.current.Load()
	return c.blocked, c.allowed
}

// Reset atomically replaces the statistics record with a zero value.
// Concurrent readers of Snapshot observe either the pre- or post-reset
// counters, never a mix.
func (r *Recorder) Reset() {
	r.current.Store(&counters{})
	empty := make(map[string]*hostTallyCounter)
	r.topK.Store(&empty)
}
