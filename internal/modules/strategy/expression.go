package strategy

import (
	"regexp"
	"strings"
)

// Operator joins a rule reference to the next one in an expression
type Operator string

// Expression operators
const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
)

// RuleRef is one step of a rule expression. Operator is the connective to the
// right-hand neighbour and is empty on the last step.
type RuleRef struct {
	Rule     string   `json:"rule"`
	Operator Operator `json:"operator,omitempty"`
}

var operatorSplit = regexp.MustCompile(`\s+(AND|OR)\s+`)

// BuildExpression renders refs in canonical form: rule names and operators
// joined by single spaces. The connective between i and i+1 is read from i;
// a missing connective renders as OR.
func BuildExpression(refs []RuleRef) string {
	if len(refs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(refs[0].Rule)
	for i := 1; i < len(refs); i++ {
		op := refs[i-1].Operator
		if op == "" {
			op = OpOr
		}
		b.WriteByte(' ')
		b.WriteString(string(op))
		b.WriteByte(' ')
		b.WriteString(refs[i].Rule)
	}
	return b.String()
}

// ParseExpression splits canonical text back into rule references. Each
// reference carries the operator that followed it; the last carries none.
// Text that would produce an empty rule name is returned whole as a single
// opaque reference.
func ParseExpression(text string) []RuleRef {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	matches := operatorSplit.FindAllStringSubmatchIndex(text, -1)
	refs := make([]RuleRef, 0, len(matches)+1)
	start := 0
	for _, m := range matches {
		name := text[start:m[0]]
		if strings.TrimSpace(name) == "" {
			return []RuleRef{{Rule: text}}
		}
		refs = append(refs, RuleRef{Rule: name, Operator: Operator(text[m[2]:m[3]])})
		start = m[1]
	}

	last := text[start:]
	if strings.TrimSpace(last) == "" {
		return []RuleRef{{Rule: text}}
	}
	return append(refs, RuleRef{Rule: last})
}

// ReferencedRules returns the distinct rule names in refs, in first-seen order
func ReferencedRules(refs []RuleRef) []string {
	seen := make(map[string]bool, len(refs))
	var out []string
	for _, r := range refs {
		if !seen[r.Rule] {
			seen[r.Rule] = true
			out = append(out, r.Rule)
		}
	}
	return out
}

// renameRef replaces every reference to oldName
func renameRef(refs []RuleRef, oldName, newName string) ([]RuleRef, bool) {
	changed := false
	out := make([]RuleRef, len(refs))
	for i, r := range refs {
		if r.Rule == oldName {
			r.Rule = newName
			changed = true
		}
		out[i] = r
	}
	return out, changed
}

// removeRef drops every reference to name. Removing the last step moves the
// terminal position to its predecessor, which loses its connective.
func removeRef(refs []RuleRef, name string) ([]RuleRef, bool) {
	out := make([]RuleRef, 0, len(refs))
	for _, r := range refs {
		if r.Rule != name {
			out = append(out, r)
		}
	}
	if len(out) == len(refs) {
		return refs, false
	}
	if len(out) > 0 {
		out[len(out)-1].Operator = ""
	}
	return out, true
}
