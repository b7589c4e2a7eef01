package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldcore/filterengine/pkg/rule"
)

func TestParse_BlankAndCommentLinesAreComments(t *testing.T) {
	res := Parse("\n! this is a comment\n[Adblock Plus 2.0]\n")
	require.Len(t, res.Rules, 3)
	for _, r := range res.Rules {
		assert.Equal(t, rule.KindComment, r.Kind)
	}
	assert.Equal(t, 3, res.Summary.Comment)
}

func TestParse_NetworkBlockRule(t *testing.T) {
	res := Parse("||ads.example.com^")
	require.Len(t, res.Rules, 1)
	r := res.Rules[0]
	assert.Equal(t, rule.KindNetworkBlock, r.Kind)
	assert.True(t, r.Pattern.DomainOnly)
	assert.Equal(t, "ads.example.com", r.Pattern.DomainOnlyHost)
}

func TestParse_ExceptionRule(t *testing.T) {
	res := Parse("@@||cdn.example.com^$domain=site.com")
	require.Len(t, res.Rules, 1)
	r := res.Rules[0]
	assert.Equal(t, rule.KindNetworkException, r.Kind)
	require.Len(t, r.DomainConstraints, 1)
	assert.Equal(t, "site.com", r.DomainConstraints[0].Host)
	assert.True(t, r.DomainConstraints[0].Include)
}

func TestParse_ImportantAndResourceOptions(t *testing.T) {
	res := Parse("||ads.example^$important,script,image")
	require.Len(t, res.Rules, 1)
	r := res.Rules[0]
	assert.True(t, r.Important)
	assert.True(t, r.ResourceKinds.Includes(rule.ResourceScript))
	assert.True(t, r.ResourceKinds.Includes(rule.ResourceImage))
	assert.False(t, r.ResourceKinds.Includes(rule.ResourceXHR))
}

func TestParse_ThirdPartyOption(t *testing.T) {
	res := Parse("||ads.example^$third-party")
	require.Len(t, res.Rules, 1)
	require.NotNil(t, res.Rules[0].ThirdParty)
	assert.True(t, *res.Rules[0].ThirdParty)
}

func TestParse_UnknownOptionIsUnsupportedAndCounted(t *testing.T) {
	res := Parse("||ads.example^$totally-made-up-option")
	require.Len(t, res.Rules, 1)
	r := res.Rules[0]
	assert.Equal(t, rule.KindUnsupported, r.Kind)
	assert.NotEmpty(t, r.ParseError)
	assert.Equal(t, 1, res.ParseErrors)
}

func TestParse_EmptyPatternIsUnsupported(t *testing.T) {
	res := Parse("$script")
	require.Len(t, res.Rules, 1)
	assert.Equal(t, rule.KindUnsupported, res.Rules[0].Kind)
}

func TestParse_CosmeticHideRule(t *testing.T) {
	res := Parse("example.com,~sub.example.com##.ad-banner")
	require.Len(t, res.Rules, 1)
	r := res.Rules[0]
	assert.Equal(t, rule.KindCosmeticHide, r.Kind)
	assert.Equal(t, ".ad-banner", r.Selector)
	require.Len(t, r.DomainConstraints, 2)
}

func TestParse_CosmeticExceptionRule(t *testing.T) {
	res := Parse("example.com#@#.ad-banner")
	require.Len(t, res.Rules, 1)
	assert.Equal(t, rule.KindCosmeticHide, res.Rules[0].Kind)
	assert.Equal(t, ".ad-banner", res.Rules[0].Selector)
}

func TestParse_BadLineNeverAbortsTheBatch(t *testing.T) {
	text := "||good.example^\n$bogus\n||also-good.example^"
	res := Parse(text)
	require.Len(t, res.Rules, 3)
	assert.Equal(t, rule.KindNetworkBlock, res.Rules[0].Kind)
	assert.Equal(t, rule.KindUnsupported, res.Rules[1].Kind)
	assert.Equal(t, rule.KindNetworkBlock, res.Rules[2].Kind)
}

func TestParse_WildcardOnlyPatternIsUnsupported(t *testing.T) {
	res := Parse("*")
	require.Len(t, res.Rules, 1)
	assert.Equal(t, rule.KindUnsupported, res.Rules[0].Kind)
	assert.Equal(t, 1, res.ParseErrors)
}
