package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		KindNetworkBlock:     "network_block",
		KindNetworkException: "network_exception",
		KindCosmeticHide:     "cosmetic_hide",
		KindComment:          "comment",
		KindUnsupported:      "unsupported",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestParseResourceKind(t *testing.T) {
	k, ok := ParseResourceKind("xhr")
	require.True(t, ok)
	assert.Equal(t, ResourceXHR, k)

	k, ok = ParseResourceKind("xmlhttprequest")
	require.True(t, ok)
	assert.Equal(t, ResourceXHR, k, "xhr aliases must resolve to the same bit")

	_, ok = ParseResourceKind("bogus")
	assert.False(t, ok)
}

func TestResourceKind_Includes(t *testing.T) {
	assert.True(t, ResourceKind(0).Includes(ResourceScript), "unrestricted matches everything")
	assert.True(t, (ResourceScript | ResourceImage).Includes(ResourceImage))
	assert.False(t, ResourceScript.Includes(ResourceImage))
	assert.True(t, ResourceScript.Includes(ResourceKind(0)), "unknown query kind always passes")
}

func TestRule_CanonicalKey_DistinguishesKindAndCase(t *testing.T) {
	p, err := CompilePattern("||ads.example^", false)
	require.NoError(t, err)

	block := Rule{Kind: KindNetworkBlock, Pattern: p}
	exception := Rule{Kind: KindNetworkException, Pattern: p}
	assert.NotEqual(t, block.CanonicalKey(), exception.CanonicalKey())

	caseSensitive, err := CompilePattern("||ads.example^", true)
	require.NoError(t, err)
	cs := Rule{Kind: KindNetworkBlock, Pattern: caseSensitive}
	assert.NotEqual(t, block.CanonicalKey(), cs.CanonicalKey())
}

func TestRule_IsIndexable(t *testing.T) {
	assert.True(t, Rule{Kind: KindNetworkBlock}.IsIndexable())
	assert.True(t, Rule{Kind: KindNetworkException}.IsIndexable())
	assert.False(t, Rule{Kind: KindCosmeticHide}.IsIndexable())
	assert.False(t, Rule{Kind: KindComment}.IsIndexable())
	assert.False(t, Rule{Kind: KindUnsupported}.IsIndexable())
}

func TestRule_MergeFrom_UnionsDomainsAndResourceKinds(t *testing.T) {
	r := Rule{
		ResourceKinds:     ResourceScript,
		DomainConstraints: []DomainConstraint{{Host: "a.com", Include: true}},
	}
	other := Rule{
		ResourceKinds:     ResourceImage,
		DomainConstraints: []DomainConstraint{{Host: "a.com", Include: true}, {Host: "b.com", Include: false}},
		Important:         true,
	}
	r.MergeFrom(other)

	assert.Equal(t, ResourceScript|ResourceImage, r.ResourceKinds)
	assert.Len(t, r.DomainConstraints, 2, "duplicate (host, include) pair must not be re-added")
	assert.True(t, r.Important)
}

func TestPattern_LongestLiteral(t *testing.T) {
	p, err := CompilePattern("ab*longliteral*cd", false)
	require.NoError(t, err)
	assert.Equal(t, "longliteral", p.LongestLiteral())
}

func TestSummary_AddAndTotal(t *testing.T) {
	var s Summary
	s.Add(KindNetworkBlock)
	s.Add(KindNetworkBlock)
	s.Add(KindNetworkException)
	s.Add(KindCosmeticHide)
	s.Add(KindComment)
	s.Add(KindUnsupported)

	assert.Equal(t, 2, s.NetworkBlock)
	assert.Equal(t, 1, s.NetworkException)
	assert.Equal(t, 1, s.CosmeticHide)
	assert.Equal(t, 1, s.Comment)
	assert.Equal(t, 1, s.Unsupported)
	assert.Equal(t, 6, s.Total())
}
