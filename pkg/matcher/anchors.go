package matcher

import (
	"strings"

	"github.com/shieldcore/filterengine/pkg/rule"
)

// target is the string a compiled pattern is matched against, plus the byte
// offsets of the host component within it — needed to verify a "||" domain
// anchor lands on a host-label boundary (the matching pipeline).
type target struct {
	full      string // scheme://host + path [+ "?" + query]
	lowerFull string
	hostStart int
	hostEnd   int
}

func isSeparator(b byte) bool {
	switch b {
	case '/', '?', ':', '&', '=', '#':
		return true
	}
	return false
}

// findMatch locates an occurrence of p's literal sequence (prefix, then
// each middle segment, then suffix, all in order) within t's full string,
// backtracking to later occurrences of the prefix when anchor constraints
// reject an earlier one. Returns ok=false if no occurrence satisfies every
// anchor.
func findMatch(t target, p rule.Pattern) (start, end int, ok bool) {
	full := t.full
	if !p.CaseSensitive {
		full = t.lowerFull
	}

	searchFrom := 0
	for {
		idx := strings.Index(full[searchFrom:], p.Prefix)
		if idx == -1 {
			return 0, 0, false
		}
		candidateStart := searchFrom + idx

		if p.Anchors.DomainAnchor && !onHostBoundary(t, candidateStart) {
			searchFrom = candidateStart + 1
			continue
		}
		if p.Anchors.LeadingBoundary && candidateStart != 0 {
			searchFrom = candidateStart + 1
			continue
		}

		cursor := candidateStart + len(p.Prefix)
		matched := true
		for _, seg := range p.Middle {
			if seg == "" {
				continue
			}
			segIdx := strings.Index(full[cursor:], seg)
			if segIdx == -1 {
				matched = false
				break
			}
			cursor += segIdx + len(seg)
		}
		if !matched {
			searchFrom = candidateStart + 1
			continue
		}

		candidateEnd := cursor
		if p.HasWildcard {
			segIdx := strings.Index(full[cursor:], p.Suffix)
			if segIdx == -1 {
				searchFrom = candidateStart + 1
				continue
			}
			candidateEnd = cursor + segIdx + len(p.Suffix)
		}

		if p.Anchors.TrailingBoundary && candidateEnd != len(full) {
			searchFrom = candidateStart + 1
			continue
		}
		if p.Anchors.SeparatorAnchor && candidateEnd != len(full) && !isSeparator(full[candidateEnd]) {
			searchFrom = candidateStart + 1
			continue
		}

		return candidateStart, candidateEnd, true
	}
}

// onHostBoundary reports whether pos is the start of a host label within
// t: either the very start of the host, or immediately after a ".".
func onHostBoundary(t target, pos int) bool {
	if pos == t.hostStart {
		return true
	}
	if pos > t.hostStart && pos <= t.hostEnd && t.full[pos-1] == '.' {
		return true
	}
	return false
}
