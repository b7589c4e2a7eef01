// Package matcher implements the compiled multi-pattern index
// (block set + exception set), domain/wildcard/anchor semantics, and final
// block/allow/not-matched resolution for a single URL query.
package matcher

import (
	"strings"
	"sync/atomic"

	"github.com/shieldcore/filterengine/internal/urlutil"
	"github.com/shieldcore/filterengine/pkg/decision"
	"github.com/shieldcore/filterengine/pkg/rule"
)

// DefaultLiteralFloor is the minimum literal length indexed into a bucket
// before a pattern falls back to the automaton's linear-scan list.
const DefaultLiteralFloor = 4

// compiledRule pairs a parsed Rule with its precomputed effective priority.
type compiledRule struct {
	rule     rule.Rule
	priority int // 0 = plain, 1 = important
}

func priorityOf(r rule.Rule) int {
	if r.Important {
		return 1
	}
	return 0
}

// Index is an immutable, atomically-swappable compiled rule set: a block
// side and an exception side, each with a domain trie and a literal
// automaton, two parallel structures, one for block rules and one for
// exceptions.
type Index struct {
	blockTrie      *domainTrie
	blockAutomaton *literalAutomaton
	exceptionTrie  *domainTrie
	exceptionAutomaton *literalAutomaton

	cosmetic map[string][]rule.Rule // host -> cosmetic rules, for host queries

	summary rule.Summary
	version uint64
}

// Summary returns the rule-kind breakdown this index was compiled from.
func (idx *Index) Summary() rule.Summary { return idx.summary }

// Version returns this index's rule_version, used to invalidate stale
// cache entries after a rule swap.
func (idx *Index) Version() uint64 { return idx.version }

// FilterCount returns the number of rules actively indexed for matching
// (network block + exception), for the Metrics record's filter_count.
func (idx *Index) FilterCount() int {
	return idx.summary.NetworkBlock + idx.summary.NetworkException
}

// CosmeticRulesFor returns the cosmetic-hide rules registered for host,
// a lookup into the cosmetic rules carried alongside the network index.
func (idx *Index) CosmeticRulesFor(host string) []rule.Rule {
	return idx.cosmetic[strings.ToLower(host)]
}

// Build compiles rules into an Index with the given literal-bucket floor.
// Rules are deduplicated by CanonicalKey; Comment/Unsupported
// rules are retained in neither side (they are not indexed, only carried on
// the parser Result upstream).
func Build(rules []rule.Rule, floor int, version uint64) *Index {
	if floor <= 0 {
		floor = DefaultLiteralFloor
	}

	dedup := make(map[string]*compiledRule)
	order := make([]string, 0, len(rules))
	cosmetic := make(map[string][]rule.Rule)

	for _, r := range rules {
		switch r.Kind {
		case rule.KindCosmeticHide:
			hosts := r.DomainConstraints
			if len(hosts) == 0 {
				cosmetic[""] = append(cosmetic[""], r)
				continue
			}
			for _, dc := range hosts {
				if dc.Include {
					cosmetic[dc.Host] = append(cosmetic[dc.Host], r)
				}
			}
			continue
		case rule.KindNetworkBlock, rule.KindNetworkException:
			// handled below
		default:
			continue
		}

		key := r.CanonicalKey()
		if existing, ok := dedup[key]; ok {
			existing.rule.MergeFrom(r)
			continue
		}
		cr := &compiledRule{rule: r, priority: priorityOf(r)}
		dedup[key] = cr
		order = append(order, key)
	}

	var blockDomainOnly, blockGeneral, exceptionDomainOnly, exceptionGeneral []*compiledRule
	var summary rule.Summary

	for _, key := range order {
		cr := dedup[key]
		summary.Add(cr.rule.Kind)
		isException := cr.rule.Kind == rule.KindNetworkException
		switch {
		case cr.rule.Pattern.DomainOnly && isException:
			exceptionDomainOnly = append(exceptionDomainOnly, cr)
		case cr.rule.Pattern.DomainOnly:
			blockDomainOnly = append(blockDomainOnly, cr)
		case isException:
			exceptionGeneral = append(exceptionGeneral, cr)
		default:
			blockGeneral = append(blockGeneral, cr)
		}
	}

	blockTrie := newDomainTrie()
	for _, cr := range blockDomainOnly {
		blockTrie.insert(cr.rule.Pattern.DomainOnlyHost, cr)
	}
	exceptionTrie := newDomainTrie()
	for _, cr := range exceptionDomainOnly {
		exceptionTrie.insert(cr.rule.Pattern.DomainOnlyHost, cr)
	}

	return &Index{
		blockTrie:          blockTrie,
		blockAutomaton:     buildAutomaton(blockGeneral, floor),
		exceptionTrie:      exceptionTrie,
		exceptionAutomaton: buildAutomaton(exceptionGeneral, floor),
		cosmetic:           cosmetic,
		summary:            summary,
		version:            version,
	}
}

// Matcher wraps an atomically-swappable *Index so queries never observe a
// torn index while load_rules builds a replacement.
type Matcher struct {
	current atomic.Pointer[Index]
}

// New returns a Matcher seeded with an empty index at version 0.
func New() *Matcher {
	m := &Matcher{}
	m.current.Store(Build(nil, DefaultLiteralFloor, 0))
	return m
}

// Swap installs idx as the current index. Readers that already loaded the
// previous pointer continue against it to completion.
func (m *Matcher) Swap(idx *Index) { m.current.Store(idx) }

// Current returns the presently active index.
func (m *Matcher) Current() *Index { return m.current.Load() }

// Query describes one should_block request.
type Query struct {
	URL        string
	SourceHost string // optional referrer/source host, for domain_constraints + third-party
	Kind       rule.ResourceKind
}

// Match resolves a query against the matcher's current index, following
// the matching pipeline. A malformed URL yields (NotMatched, matchErr=true).
func (m *Matcher) Match(q Query) (decision.Decision, bool) {
	return m.current.Load().Match(q)
}

// Match resolves a query against this specific index snapshot.
func (idx *Index) Match(q Query) (decision.Decision, bool) {
	parsed, err := urlutil.Parse(q.URL)
	if err != nil {
		return decision.NotMatched(), true
	}

	full, hostStart, hostEnd := buildTarget(parsed)
	t := target{full: full, lowerFull: strings.ToLower(full), hostStart: hostStart, hostEnd: hostEnd}

	var candidates []*compiledRule

	if !parsed.IsIP {
		candidates = append(candidates, idx.exceptionTrie.longestMatch(parsed.Host)...)
		candidates = append(candidates, idx.blockTrie.longestMatch(parsed.Host)...)
	}

	candidates = append(candidates, idx.exceptionAutomaton.candidates(t.full, t.lowerFull)...)
	candidates = append(candidates, idx.blockAutomaton.candidates(t.full, t.lowerFull)...)

	var survivors []*compiledRule
	for _, cr := range candidates {
		if !idx.qualifies(cr, q, t, parsed) {
			continue
		}
		survivors = append(survivors, cr)
	}

	if len(survivors) == 0 {
		return decision.NotMatched(), false
	}

	best := resolve(survivors)
	if best.rule.Kind == rule.KindNetworkException {
		return decision.Allow(best.rule.ID, best.rule.Pattern.Original), false
	}
	return decision.Block(best.rule.ID, best.rule.Pattern.Original), false
}

// qualifies checks every non-priority constraint on cr against the query:
// pattern/anchor match (for non-domain-only rules; domain-only rules are
// already confirmed present by trie lookup so only the host-anchor pattern
// match is skipped), domain_constraints, and resource_kinds.
func (idx *Index) qualifies(cr *compiledRule, q Query, t target, parsed urlutil.Parsed) bool {
	if !cr.rule.Pattern.DomainOnly {
		if _, _, ok := findMatch(t, cr.rule.Pattern); !ok {
			return false
		}
	}
	if !matchesDomainConstraints(cr.rule.DomainConstraints, q.SourceHost) {
		return false
	}
	if !cr.rule.ResourceKinds.Includes(q.Kind) {
		return false
	}
	if cr.rule.ThirdParty != nil {
		thirdParty := q.SourceHost != "" && !urlutil.IsSubdomainOrEqual(q.SourceHost, parsed.Host) && !urlutil.IsSubdomainOrEqual(parsed.Host, q.SourceHost)
		if *cr.rule.ThirdParty != thirdParty {
			return false
		}
	}
	return true
}

// matchesDomainConstraints applies the ordered include/exclude host
// list against the query's source host. An empty constraint list always
// matches. Per common EasyList semantics: if any exclude matches, the rule
// does not apply; otherwise, if any include entries exist, at least one
// must match; if only excludes are present, absence of an exclude match is
// sufficient.
func matchesDomainConstraints(constraints []rule.DomainConstraint, sourceHost string) bool {
	if len(constraints) == 0 {
		return true
	}
	hasIncludes := false
	includeMatched := false
	for _, dc := range constraints {
		matches := sourceHost != "" && urlutil.IsSubdomainOrEqual(dc.Host, sourceHost)
		if dc.Include {
			hasIncludes = true
			if matches {
				includeMatched = true
			}
		} else if matches {
			return false
		}
	}
	if hasIncludes {
		return includeMatched
	}
	return true
}

// resolve picks the winning rule among survivors steps 5-6:
// important-flagged rules outrank plain ones; among rules at the highest
// surviving priority, an exception tie-breaks over a block.
func resolve(survivors []*compiledRule) *compiledRule {
	maxPriority := survivors[0].priority
	for _, cr := range survivors[1:] {
		if cr.priority > maxPriority {
			maxPriority = cr.priority
		}
	}

	var bestBlock, bestException *compiledRule
	for _, cr := range survivors {
		if cr.priority != maxPriority {
			continue
		}
		if cr.rule.Kind == rule.KindNetworkException {
			if bestException == nil {
				bestException = cr
			}
		} else if bestBlock == nil {
			bestBlock = cr
		}
	}
	if bestException != nil {
		return bestException
	}
	return bestBlock
}

// buildTarget reconstructs a canonical matchable string from a Parsed URL
// and returns the byte offsets of its host component, used by anchor
// checks ("|| must align with a host-label boundary").
func buildTarget(p urlutil.Parsed) (full string, hostStart, hostEnd int) {
	var b strings.Builder
	b.WriteString(p.Scheme)
	b.WriteString("://")
	hostStart = b.Len()
	b.WriteString(p.Host)
	hostEnd = b.Len()
	b.WriteString(p.Path)
	if p.Query != "" {
		b.WriteByte('?')
		b.WriteString(p.Query)
	}
	return b.String(), hostStart, hostEnd
}
