package parser

import (
	"fmt"
	"strings"

	"github.com/shieldcore/filterengine/pkg/rule"
)

type parsedOptions struct {
	domains       []rule.DomainConstraint
	resourceKinds rule.ResourceKind
	important     bool
	caseSensitive bool
	thirdParty    *bool
}

// parseOptions parses the comma-separated "$"-suffix option list. Unknown
// options make the whole rule Unsupported: the parser cannot tell whether
// an option it doesn't recognise narrows or widens the match, so it refuses
// to guess rather than risk under- or over-blocking.
func parseOptions(raw string) (parsedOptions, error) {
	var out parsedOptions
	if raw == "" {
		return out, nil
	}

	for _, opt := range splitOptionList(raw) {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}

		if strings.HasPrefix(opt, "domain=") {
			out.domains = parseDomainList(strings.TrimPrefix(opt, "domain="))
			continue
		}

		negate := strings.HasPrefix(opt, "~")
		bare := strings.TrimPrefix(opt, "~")

		if kind, ok := rule.ParseResourceKind(bare); ok {
			if !negate {
				out.resourceKinds |= kind
			}
			// A negated resource option ("~image") narrows what the rule
			// does NOT apply to; representing full negative resource
			// algebra is out of scope, so a lone negated resource with no
			// positive resource set is treated as unrestricted but noted
			// via no-op (never silently mis-blocks since Includes() with
			// zero mask matches everything).
			continue
		}

		switch opt {
		case "important":
			out.important = true
		case "match-case":
			out.caseSensitive = true
		case "third-party":
			t := true
			out.thirdParty = &t
		case "~third-party", "first-party":
			f := false
			out.thirdParty = &f
		default:
			return out, fmt.Errorf("unknown option %q", opt)
		}
	}

	return out, nil
}

// splitOptionList splits on commas that are not inside a domain=a|b list
// (commas never appear inside individual domain tokens, so a plain Split is
// actually sufficient, but kept as a named step for clarity/extension).
func splitOptionList(raw string) []string {
	return strings.Split(raw, ",")
}

// parseDomainList parses a "|"-joined include/exclude host list:
// "a.com|~b.com" -> [{a.com,true},{b.com,false}]. Accepts both "," and "|"
// joiners since both appear in the wild for cosmetic-rule domain prefixes.
func parseDomainList(raw string) []rule.DomainConstraint {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	sep := "|"
	if strings.Contains(raw, ",") && !strings.Contains(raw, "|") {
		sep = ","
	}
	parts := strings.Split(raw, sep)
	constraints := make([]rule.DomainConstraint, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		include := true
		if strings.HasPrefix(p, "~") {
			include = false
			p = p[1:]
		}
		constraints = append(constraints, rule.DomainConstraint{
			Host:    strings.ToLower(p),
			Include: include,
		})
	}
	return constraints
}
