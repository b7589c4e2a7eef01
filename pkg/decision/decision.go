// Package decision defines the tri-state outcome of a matcher query,
// the "Decision" value.
package decision

// Kind discriminates a Decision's variant.
type Kind uint8

const (
	KindNotMatched Kind = iota
	KindBlock
	KindAllow
)

// Decision is returned internally by the Matcher and consumed by the Engine
// Facade to produce the boolean should_block contract.
type Decision struct {
	Kind          Kind
	MatchedRuleID uint64 // 0 if Kind == KindNotMatched
	Reason        string // short diagnostic, e.g. the rule's original pattern text
}

// ShouldBlock maps a Decision onto the boolean contract every FFI/public
// entry point returns: only an explicit Block blocks. NotMatched and Allow
// both let the request through — no surviving rule means allow by default.
func (d Decision) ShouldBlock() bool {
	return d.Kind == KindBlock
}

// NotMatched is the zero-value decision.
func NotMatched() Decision { return Decision{Kind: KindNotMatched} }

// Block constructs a blocking decision attributed to ruleID.
func Block(ruleID uint64, reason string) Decision {
	return Decision{Kind: KindBlock, MatchedRuleID: ruleID, Reason: reason}
}

// Allow constructs an explicit-allow decision (an exception rule won),
// distinct from NotMatched (no rule matched at all).
func Allow(ruleID uint64, reason string) Decision {
	return Decision{Kind: KindAllow, MatchedRuleID: ruleID, Reason: reason}
}
