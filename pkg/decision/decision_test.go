package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecision_ShouldBlock(t *testing.T) {
	cases := []struct {
		name string
		d    Decision
		want bool
	}{
		{"not matched allows", NotMatched(), false},
		{"block blocks", Block(7, "||ads.example^"), true},
		{"allow does not block", Allow(9, "@@||ads.example^$important"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.d.ShouldBlock())
		})
	}
}

func TestNotMatched_IsZeroValue(t *testing.T) {
	d := NotMatched()
	assert.Equal(t, KindNotMatched, d.Kind)
	assert.Zero(t, d.MatchedRuleID)
}

func TestBlock_CarriesRuleIDAndReason(t *testing.T) {
	d := Block(42, "||tracker.example^")
	assert.Equal(t, KindBlock, d.Kind)
	assert.Equal(t, uint64(42), d.MatchedRuleID)
	assert.Equal(t, "||tracker.example^", d.Reason)
}

func TestAllow_DistinctFromNotMatched(t *testing.T) {
	d := Allow(3, "@@||cdn.example^")
	assert.Equal(t, KindAllow, d.Kind)
	assert.NotEqual(t, NotMatched(), d)
}
