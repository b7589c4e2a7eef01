package matcher

import "strings"

// literalAutomaton is the multi-pattern literal index: rules
// are bucketed by their longest literal segment so a single linear pass
// over the URL (one substring probe per distinct bucket key) yields every
// rule whose literal could possibly match. This generalizes this codebase's
// flat wildcard/regexp pattern list (compiled once, scanned linearly per
// request) into a bucketed index keyed by the longest literal, with a
// secondary floor-gated fallback list for patterns too short to bucket
// usefully: rules whose literal is shorter than a configurable floor fall
// into a secondary linear scan list to avoid automaton explosion.
//
// It trades true Aho–Corasick-style shared-state scanning for a simpler
// bucket-and-probe pass: correctness is identical (every candidate whose
// literal occurs in the URL is still found), at the cost of one substring
// search per distinct literal rather than one single pass over all
// patterns simultaneously. At the rule-set sizes this engine targets
// (tens of thousands of rules, but far fewer distinct long literals after
// bucketing) this stays well within the sub-millisecond budget.
type literalAutomaton struct {
	buckets  map[string][]*compiledRule
	fallback []*compiledRule
	floor    int
}

func buildAutomaton(rules []*compiledRule, floor int) *literalAutomaton {
	a := &literalAutomaton{
		buckets: make(map[string][]*compiledRule),
		floor:   floor,
	}
	for _, cr := range rules {
		longest := cr.rule.Pattern.LongestLiteral()
		if len(longest) < floor {
			a.fallback = append(a.fallback, cr)
			continue
		}
		key := longest
		if !cr.rule.Pattern.CaseSensitive {
			key = strings.ToLower(key)
		}
		a.buckets[key] = append(a.buckets[key], cr)
	}
	return a
}

// candidates returns every rule whose literal bucket key is present in
// lowerFull (for case-insensitive rules) or full (for case-sensitive rules),
// plus the whole fallback list (which must always be checked linearly since
// its members have no literal long enough to bucket on).
func (a *literalAutomaton) candidates(full, lowerFull string) []*compiledRule {
	var out []*compiledRule
	for key, rules := range a.buckets {
		haystack := lowerFull
		// A bucket can only be reached by rules sharing the same
		// case-sensitivity, since the key itself was folded per the
		// owning rule's CaseSensitive flag at build time; check both
		// haystacks defensively in case a case-sensitive literal happens
		// to equal its lowercase form.
		if strings.Contains(haystack, key) || strings.Contains(full, key) {
			out = append(out, rules...)
		}
	}
	out = append(out, a.fallback...)
	return out
}
