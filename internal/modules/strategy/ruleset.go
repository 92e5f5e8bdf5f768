package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RuleSetKind tags which representation a RuleSet holds
type RuleSetKind string

// Rule set representations
const (
	// RuleSetNames is the legacy list of rule names with implicit OR
	RuleSetNames RuleSetKind = "names"
	// RuleSetExpr is a canonical AND/OR expression string
	RuleSetExpr RuleSetKind = "expr"
)

// RuleSet is the rules bound to one allocation. On the wire it is either a
// JSON array of names or a single expression string.
type RuleSet struct {
	Kind  RuleSetKind `json:"kind" msgpack:"kind"`
	Names []string    `json:"names,omitempty" msgpack:"names,omitempty"`
	Text  string      `json:"text,omitempty" msgpack:"text,omitempty"`
}

// NamesRuleSet builds a legacy name-list rule set
func NamesRuleSet(names ...string) RuleSet {
	out := make([]string, len(names))
	copy(out, names)
	return RuleSet{Kind: RuleSetNames, Names: out}
}

// ExprRuleSet builds a canonical expression rule set
func ExprRuleSet(refs []RuleRef) RuleSet {
	return RuleSet{Kind: RuleSetExpr, Text: BuildExpression(refs)}
}

// Refs normalizes either representation into ordered rule references.
// Every reader goes through here.
func (r RuleSet) Refs() []RuleRef {
	switch r.Kind {
	case RuleSetNames:
		refs := make([]RuleRef, 0, len(r.Names))
		for i, name := range r.Names {
			ref := RuleRef{Rule: name}
			if i < len(r.Names)-1 {
				ref.Operator = OpOr
			}
			refs = append(refs, ref)
		}
		return refs
	case RuleSetExpr:
		return ParseExpression(r.Text)
	}
	return nil
}

// Expression returns the canonical expression text for either representation
func (r RuleSet) Expression() string {
	return BuildExpression(r.Refs())
}

// Empty reports whether the set references no rules
func (r RuleSet) Empty() bool {
	return len(r.Refs()) == 0
}

// Contains reports whether rule is referenced
func (r RuleSet) Contains(rule string) bool {
	for _, ref := range r.Refs() {
		if ref.Rule == rule {
			return true
		}
	}
	return false
}

// Raw returns the wire value: []string for names, string for expressions
func (r RuleSet) Raw() interface{} {
	if r.Kind == RuleSetNames {
		out := make([]string, len(r.Names))
		copy(out, r.Names)
		return out
	}
	return r.Text
}

func (r RuleSet) clone() RuleSet {
	out := r
	if r.Names != nil {
		out.Names = make([]string, len(r.Names))
		copy(out.Names, r.Names)
	}
	return out
}

// withRefs rewrites the set from refs, keeping the legacy form when refs
// are still expressible as a plain OR list
func (r RuleSet) withRefs(refs []RuleRef) RuleSet {
	if r.Kind == RuleSetNames {
		names := make([]string, 0, len(refs))
		for _, ref := range refs {
			names = append(names, ref.Rule)
		}
		return RuleSet{Kind: RuleSetNames, Names: names}
	}
	return ExprRuleSet(refs)
}

// MarshalJSON writes a JSON array for names and a JSON string for expressions
func (r RuleSet) MarshalJSON() ([]byte, error) {
	if r.Kind == RuleSetNames {
		names := r.Names
		if names == nil {
			names = []string{}
		}
		return json.Marshal(names)
	}
	return json.Marshal(r.Text)
}

// UnmarshalJSON accepts either a JSON array of names or an expression string
func (r *RuleSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*r = RuleSet{Kind: RuleSetNames}
		return nil
	}

	switch data[0] {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*r = RuleSet{Kind: RuleSetExpr, Text: text}
		return nil
	case '[':
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			return fmt.Errorf("rules must be a list of rule names: %w", err)
		}
		*r = RuleSet{Kind: RuleSetNames, Names: names}
		return nil
	}
	return fmt.Errorf("rules must be a string or a list of strings")
}

// RuleBinding binds a rule set to an allocation
type RuleBinding struct {
	Allocation string  `json:"allocation"`
	Rules      RuleSet `json:"rules"`
}

func (b RuleBinding) clone() RuleBinding {
	return RuleBinding{Allocation: b.Allocation, Rules: b.Rules.clone()}
}
