package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldcore/filterengine/internal/options"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(options.Default())
	require.NoError(t, err)
	return e
}

func TestEngine_LoadRulesThenShouldBlock(t *testing.T) {
	e := newTestEngine(t)

	ok := e.LoadRules("||doubleclick.net^\n@@||safe.doubleclick.net^")
	require.True(t, ok)

	assert.True(t, e.ShouldBlock(Query{URL: "https://ads.doubleclick.net/x"}))
	assert.False(t, e.ShouldBlock(Query{URL: "https://safe.doubleclick.net/x"}))
	assert.False(t, e.ShouldBlock(Query{URL: "https://example.com/x"}))
}

func TestEngine_LoadRulesFailsOnNoUsableRule(t *testing.T) {
	e := newTestEngine(t)
	ok := e.LoadRules("! just a comment\n[Adblock Plus 2.0]")
	assert.False(t, ok)
}

func TestEngine_LoadRulesEmptyTextSucceeds(t *testing.T) {
	e := newTestEngine(t)
	assert.True(t, e.LoadRules(""))
}

func TestEngine_CacheServesRepeatedQuery(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.LoadRules("||tracker.com^"))

	assert.True(t, e.ShouldBlock(Query{URL: "https://tracker.com/a"}))
	assert.True(t, e.ShouldBlock(Query{URL: "https://tracker.com/a"}))
	assert.Contains(t, e.GetMetrics(), `"cache_hits":1`)
}

func TestEngine_RuleSwapInvalidatesStaleCacheEntries(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.LoadRules("||tracker.com^"))
	assert.True(t, e.ShouldBlock(Query{URL: "https://tracker.com/a"}))

	require.True(t, e.LoadRules("@@||tracker.com^"))
	assert.False(t, e.ShouldBlock(Query{URL: "https://tracker.com/a"}))
}

func TestEngine_StatsRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.LoadRules("||tracker.com^"))
	e.ShouldBlock(Query{URL: "https://tracker.com/a"})
	e.ShouldBlock(Query{URL: "https://example.com/a"})

	statsJSON := e.GetStats()
	assert.Contains(t, statsJSON, `"blocked_count":1`)
	assert.Contains(t, statsJSON, `"allowed_count":1`)

	require.True(t, e.ResetStats())
	assert.Contains(t, e.GetStats(), `"blocked_count":0`)
}

func TestEngine_MetricsRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.LoadRules("||tracker.com^"))
	e.ShouldBlock(Query{URL: "https://tracker.com/a"})

	metricsJSON := e.GetMetrics()
	assert.Contains(t, metricsJSON, "total_requests")
	assert.Contains(t, metricsJSON, "filter_count")
	assert.Contains(t, metricsJSON, `"blocked_requests":1`)
}

func TestEngine_CosmeticSelectorsFor(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.LoadRules("example.com##.ad-banner"))

	sels := e.CosmeticSelectorsFor("example.com")
	assert.Contains(t, sels, ".ad-banner")
	assert.Empty(t, e.CosmeticSelectorsFor("other.com"))
}

func TestEngine_DestroyIsIdempotentAndDisablesFurtherUse(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.LoadRules("||tracker.com^"))

	e.Destroy()
	e.Destroy() // must not panic

	assert.True(t, e.Destroyed())
	assert.False(t, e.LoadRules("||x.com^"))
	assert.False(t, e.ShouldBlock(Query{URL: "https://tracker.com/a"}))
	assert.False(t, e.ResetStats())
}

func TestEngine_ShouldBlockMalformedURLNeverPanics(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.LoadRules("||tracker.com^"))
	assert.NotPanics(t, func() {
		assert.False(t, e.ShouldBlock(Query{URL: "::::"}))
	})
}

func TestEngine_ConcurrentShouldBlockAndLoadRules(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.LoadRules("||tracker.com^"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.ShouldBlock(Query{URL: "https://tracker.com/a"})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.LoadRules("||tracker.com^\n||other.com^")
	}()
	wg.Wait()
}
