// Package parser turns EasyList-dialect filter-list text into the Rule
// Model (pkg/rule). It generalizes this codebase's single flat list of
// wildcard/regexp tracker patterns into a total, line-oriented parser for
// the full dialect: comments, cosmetic rules, exceptions, and the
// "$"-suffixed option grammar.
//
// The parser is total: a malformed line never aborts the batch. It is
// recorded as Kind=Unsupported with its original text and a parse-error
// tally; a bad line is counted, never fatal.
package parser

import (
	"bufio"
	"strings"

	"github.com/shieldcore/filterengine/pkg/rule"
)

// Result is the output of a parse pass: every rule encountered (including
// Comment and Unsupported) plus a summary and the count of lines that
// incremented the parse-error tally.
type Result struct {
	Rules       []rule.Rule
	Summary     rule.Summary
	ParseErrors int
}

// Parse parses EasyList-dialect text into a Result. It never returns an
// error: an unreadable or empty text simply yields an empty Result (the
// Engine Facade is responsible for deciding that "nothing could be
// compiled" should fail load_rules).
func Parse(text string) Result {
	var res Result
	var nextID uint64

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		nextID++
		r := parseLine(line, nextID)
		res.Summary.Add(r.Kind)
		if r.Kind == rule.KindUnsupported && r.ParseError != "" {
			res.ParseErrors++
		}
		res.Rules = append(res.Rules, r)
	}
	return res
}

func parseLine(rawLine string, id uint64) rule.Rule {
	line := strings.TrimSpace(rawLine)

	if line == "" || strings.HasPrefix(line, "!") || isSectionHeader(line) {
		return rule.Rule{ID: id, Kind: rule.KindComment, RawText: rawLine}
	}

	if idx := strings.Index(line, "##"); idx >= 0 && !looksLikeNetworkRule(line[:idx]) {
		return rule.Rule{ID: id, Kind: rule.KindCosmeticHide, Selector: line[idx+2:], RawText: rawLine,
			DomainConstraints: cosmeticDomains(line[:idx])}
	}
	if idx := strings.Index(line, "#@#"); idx >= 0 {
		return rule.Rule{ID: id, Kind: rule.KindCosmeticHide, Selector: line[idx+3:], RawText: rawLine,
			DomainConstraints: cosmeticDomains(line[:idx])}
	}

	isException := strings.HasPrefix(line, "@@")
	networkText := line
	if isException {
		networkText = line[2:]
	}

	pattern, options := splitOptions(networkText)
	if pattern == "" {
		return rule.Rule{ID: id, Kind: rule.KindUnsupported, RawText: rawLine, ParseError: "empty pattern"}
	}

	parsed, err := parseOptions(options)
	if err != nil {
		return rule.Rule{ID: id, Kind: rule.KindUnsupported, RawText: rawLine, ParseError: err.Error()}
	}

	compiled, cerr := rule.CompilePattern(pattern, parsed.caseSensitive)
	if cerr != nil {
		return rule.Rule{ID: id, Kind: rule.KindUnsupported, RawText: rawLine, ParseError: cerr.Error()}
	}

	kind := rule.KindNetworkBlock
	if isException {
		kind = rule.KindNetworkException
	}

	return rule.Rule{
		ID:                id,
		Kind:              kind,
		Pattern:           compiled,
		DomainConstraints: parsed.domains,
		ResourceKinds:     parsed.resourceKinds,
		ThirdParty:        parsed.thirdParty,
		Important:         parsed.important,
		RawText:           rawLine,
	}
}

// isSectionHeader recognises AdBlock-style "[Adblock Plus 2.0]"-style
// headers, which this design says are accepted but ignored.
func isSectionHeader(line string) bool {
	return strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")
}

// looksLikeNetworkRule guards against treating a literal "##" inside a
// percent-escaped network pattern as a cosmetic separator; in practice a
// cosmetic rule's domain-list prefix never contains "/" or "*".
func looksLikeNetworkRule(prefix string) bool {
	return strings.ContainsAny(prefix, "/*|")
}

func cosmeticDomains(prefix string) []rule.DomainConstraint {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil
	}
	return parseDomainList(prefix)
}

// splitOptions splits "pattern$opt1,opt2" into ("pattern", "opt1,opt2").
// The "$" must not be mistaken for one appearing inside the pattern's own
// wildcard literal, so only the LAST "$" is treated as the option separator
// (EasyList patterns practically never contain a literal "$").
func splitOptions(text string) (pattern string, options string) {
	idx := strings.LastIndex(text, "$")
	if idx < 0 {
		return text, ""
	}
	return text[:idx], text[idx+1:]
}
