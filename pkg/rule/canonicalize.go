package rule

import (
	"fmt"
	"net/url"
	"strings"
)

// ErrWildcardOnly is returned by CompilePattern for a pattern that, after
// anchors are lifted out, contains nothing but wildcards — such patterns are
// rejected at compile time and recorded Unsupported.
type ErrWildcardOnly struct{ Original string }

func (e *ErrWildcardOnly) Error() string {
	return fmt.Sprintf("rule: pattern %q has no literal content (wildcard-only)", e.Original)
}

// CompilePattern canonicalises a raw EasyList network-rule pattern (already
// stripped of "@@" and "$options" by the parser) into a Pattern, lifting
// anchors out of the literal text.
func CompilePattern(raw string, caseSensitive bool) (Pattern, error) {
	original := raw
	text := raw

	var anchors AnchorFlags

	if strings.HasPrefix(text, "||") {
		anchors.DomainAnchor = true
		text = text[2:]
	} else if strings.HasPrefix(text, "|") {
		anchors.LeadingBoundary = true
		text = text[1:]
	}

	if strings.HasSuffix(text, "^") {
		anchors.SeparatorAnchor = true
		text = text[:len(text)-1]
	} else if strings.HasSuffix(text, "|") {
		anchors.TrailingBoundary = true
		text = text[:len(text)-1]
	}

	if !caseSensitive {
		text = strings.ToLower(text)
	}
	text = percentDecodeLiteral(text)

	segments := strings.Split(text, "*")
	nonEmpty := 0
	for _, s := range segments {
		if s != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return Pattern{}, &ErrWildcardOnly{Original: original}
	}

	p := Pattern{
		Original:      original,
		Anchors:       anchors,
		CaseSensitive: caseSensitive,
		HasWildcard:   len(segments) > 1,
		Prefix:        segments[0],
		Suffix:        segments[len(segments)-1],
	}
	if len(segments) > 2 {
		p.Middle = append([]string(nil), segments[1:len(segments)-1]...)
	}

	// A pure "||host^" pattern (domain anchor, separator anchor, no
	// embedded wildcard or path separator) is eligible for the domain trie
	// instead of the literal automaton.
	if anchors.DomainAnchor && anchors.SeparatorAnchor && !p.HasWildcard && !strings.Contains(text, "/") {
		p.DomainOnly = true
		p.DomainOnlyHost = text
	}

	return p, nil
}

// percentDecodeLiteral best-effort percent-decodes a pattern literal so it
// matches URLs in decoded form. Segments that fail to decode (not valid
// percent-escapes) are left as written.
func percentDecodeLiteral(text string) string {
	if !strings.Contains(text, "%") {
		return text
	}
	if decoded, err := url.PathUnescape(text); err == nil {
		return decoded
	}
	return text
}

