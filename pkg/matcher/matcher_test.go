package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldcore/filterengine/pkg/parser"
	"github.com/shieldcore/filterengine/pkg/rule"
)

func buildFrom(t *testing.T, text string) *Index {
	t.Helper()
	res := parser.Parse(text)
	return Build(res.Rules, DefaultLiteralFloor, 1)
}

func TestMatch_PlainDomainBlock(t *testing.T) {
	idx := buildFrom(t, "||doubleclick.net^")

	d, matchErr := idx.Match(Query{URL: "https://ads.doubleclick.net/pixel"})
	require.False(t, matchErr)
	assert.True(t, d.ShouldBlock())
}

func TestMatch_NoMatch(t *testing.T) {
	idx := buildFrom(t, "||doubleclick.net^")

	d, matchErr := idx.Match(Query{URL: "https://example.com/page"})
	require.False(t, matchErr)
	assert.False(t, d.ShouldBlock())
}

func TestMatch_ExceptionOverridesBlock(t *testing.T) {
	idx := buildFrom(t, "||tracker.com^\n@@||cdn.tracker.com^")

	d, _ := idx.Match(Query{URL: "https://cdn.tracker.com/lib.js"})
	assert.False(t, d.ShouldBlock())

	d2, _ := idx.Match(Query{URL: "https://other.tracker.com/lib.js"})
	assert.True(t, d2.ShouldBlock())
}

func TestMatch_ImportantBeatsException(t *testing.T) {
	idx := buildFrom(t, "||tracker.com^$important\n@@||tracker.com^")

	d, _ := idx.Match(Query{URL: "https://tracker.com/x.js"})
	assert.True(t, d.ShouldBlock())
}

// TestMatch_ImportantExceptionBeatsPlainBlock pins the chosen reading of an
// important exception against a plain block on the same pattern: important
// raises priority regardless of rule kind, so an exception at the highest
// surviving priority still wins the kind tie-break over a lower-priority
// block.
func TestMatch_ImportantExceptionBeatsPlainBlock(t *testing.T) {
	idx := buildFrom(t, "||tracker.com^\n@@||tracker.com^$important")

	d, _ := idx.Match(Query{URL: "https://tracker.com/x.js"})
	assert.False(t, d.ShouldBlock())
}

func TestMatch_WildcardPathPattern(t *testing.T) {
	idx := buildFrom(t, "/banner/*/ad.js")

	d, _ := idx.Match(Query{URL: "https://example.com/banner/300x250/ad.js"})
	assert.True(t, d.ShouldBlock())

	d2, _ := idx.Match(Query{URL: "https://example.com/banner/ad.js"})
	assert.False(t, d2.ShouldBlock())
}

func TestMatch_DomainConstraintRestrictsToSource(t *testing.T) {
	idx := buildFrom(t, "||ads.example.com^$domain=publisher.com")

	blocked, _ := idx.Match(Query{URL: "https://ads.example.com/x", SourceHost: "publisher.com"})
	assert.True(t, blocked.ShouldBlock())

	notBlocked, _ := idx.Match(Query{URL: "https://ads.example.com/x", SourceHost: "other.com"})
	assert.False(t, notBlocked.ShouldBlock())
}

func TestMatch_ResourceKindRestriction(t *testing.T) {
	idx := buildFrom(t, "||ads.example.com^$script")

	blocked, _ := idx.Match(Query{URL: "https://ads.example.com/x", Kind: rule.ResourceScript})
	assert.True(t, blocked.ShouldBlock())

	notBlocked, _ := idx.Match(Query{URL: "https://ads.example.com/x", Kind: rule.ResourceImage})
	assert.False(t, notBlocked.ShouldBlock())
}

func TestMatch_LongestDomainMatchWins(t *testing.T) {
	idx := buildFrom(t, "||example.com^\n@@||ads.example.com^")

	d, _ := idx.Match(Query{URL: "https://ads.example.com/x"})
	assert.False(t, d.ShouldBlock())

	d2, _ := idx.Match(Query{URL: "https://other.example.com/x"})
	assert.True(t, d2.ShouldBlock())
}

func TestMatch_MalformedURLYieldsMatchError(t *testing.T) {
	idx := buildFrom(t, "||example.com^")

	d, matchErr := idx.Match(Query{URL: "::::not a url"})
	assert.True(t, matchErr)
	assert.False(t, d.ShouldBlock())
}

func TestBuild_DeduplicatesAndUnionsResourceKinds(t *testing.T) {
	idx := buildFrom(t, "||ads.example.com^$script\n||ads.example.com^$image")

	assert.Equal(t, 1, idx.Summary().NetworkBlock)

	blocked, _ := idx.Match(Query{URL: "https://ads.example.com/x", Kind: rule.ResourceImage})
	assert.True(t, blocked.ShouldBlock())
}

func TestIndex_CosmeticRulesFor(t *testing.T) {
	idx := buildFrom(t, "example.com##.ad-banner")

	sels := idx.CosmeticRulesFor("example.com")
	require.Len(t, sels, 1)
	assert.Equal(t, ".ad-banner", sels[0].Selector)

	assert.Empty(t, idx.CosmeticRulesFor("other.com"))
}
