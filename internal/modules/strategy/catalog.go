package strategy

import (
	"fmt"
	"strings"
)

func (s *state) ruleTaken(name string) bool {
	for _, r := range s.doc.SwitchingLogic {
		if strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

func (s *state) rule(index int) (*SwitchingRule, error) {
	if index < 0 || index >= len(s.doc.SwitchingLogic) {
		return nil, fmt.Errorf("%w: index %d", ErrRuleNotFound, index)
	}
	return &s.doc.SwitchingLogic[index], nil
}

// checkRuleName rejects names that could not survive an expression round trip
func checkRuleName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	for _, word := range strings.Fields(name) {
		if word == string(OpAnd) || word == string(OpOr) {
			return fmt.Errorf("%w: rule name %q contains the operator %s", ErrInvalidRule, name, word)
		}
	}
	return nil
}

// renameRuleReferences rewrites every binding that references oldName
func (s *state) renameRuleReferences(oldName, newName string) {
	for i, b := range s.doc.AllocationRules {
		refs, changed := renameRef(b.Rules.Refs(), oldName, newName)
		if changed {
			s.doc.AllocationRules[i].Rules = b.Rules.withRefs(refs)
		}
	}
}

// dropRuleReferences strips rule from every binding, removing bindings left empty
func (s *state) dropRuleReferences(rule string) {
	kept := s.doc.AllocationRules[:0:0]
	for _, b := range s.doc.AllocationRules {
		refs, changed := removeRef(b.Rules.Refs(), rule)
		if changed {
			if len(refs) == 0 {
				continue
			}
			b.Rules = b.Rules.withRefs(refs)
		}
		kept = append(kept, b)
	}
	if len(kept) == 0 {
		kept = nil
	}
	s.doc.AllocationRules = kept
}

// renameRule gives the rule at index a unique name derived from name and
// propagates it into every binding. Returns the name used.
func (s *state) renameRule(index int, name string) (string, error) {
	r, err := s.rule(index)
	if err != nil {
		return "", err
	}
	base := strings.TrimSpace(name)
	if err := checkRuleName(base); err != nil {
		return "", err
	}
	if base == r.Name {
		return base, errNoChange
	}

	oldName := r.Name
	r.Name = ""
	used := uniqueName(base, s.ruleTaken)
	r.Name = used
	s.renameRuleReferences(oldName, used)
	return used, nil
}

// AddSwitchingRule appends a stub rule named "Rule N" with the default
// SMA(50) > SMA(200) condition and returns its name
func (e *Editor) AddSwitchingRule() (string, error) {
	return e.AddSwitchingRuleWithData(SwitchingRule{})
}

// AddSwitchingRuleWithData appends a rule built from a partial definition.
// Missing name, type or condition fields are defaulted; the name is made
// unique the same way allocation names are.
func (e *Editor) AddSwitchingRuleWithData(partial SwitchingRule) (string, error) {
	rule := partial.clone()
	if rule.RuleType == "" {
		rule.RuleType = RuleTypeBuy
	}
	rule.Condition = backfillCondition(rule.Condition)

	var used string
	err := e.mutate("add_rule", func(s *state) error {
		base := strings.TrimSpace(rule.Name)
		if base == "" {
			base = fmt.Sprintf("Rule %d", len(s.doc.SwitchingLogic)+1)
		}
		if err := checkRuleName(base); err != nil {
			return err
		}
		rule.Name = uniqueName(base, s.ruleTaken)
		if err := rule.check(); err != nil {
			return err
		}
		s.doc.SwitchingLogic = append(s.doc.SwitchingLogic, rule)
		used = rule.Name
		return nil
	})
	if err != nil {
		return "", err
	}
	return used, nil
}

// DeleteSwitchingRule removes the rule at index and strips it from every binding
func (e *Editor) DeleteSwitchingRule(index int) error {
	return e.mutate("delete_rule", func(s *state) error {
		r, err := s.rule(index)
		if err != nil {
			return err
		}
		name := r.Name
		s.doc.SwitchingLogic = append(s.doc.SwitchingLogic[:index:index], s.doc.SwitchingLogic[index+1:]...)
		s.dropRuleReferences(name)
		return nil
	})
}

// UpdateSwitchingRule replaces the rule at index. A changed name is
// propagated like UpdateRuleName.
func (e *Editor) UpdateSwitchingRule(index int, rule SwitchingRule) error {
	if !rule.RuleType.Valid() {
		return fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, rule.RuleType)
	}
	if err := rule.Condition.check(); err != nil {
		return err
	}
	return e.mutate("update_rule", func(s *state) error {
		if _, err := s.renameRule(index, rule.Name); err != nil && err != errNoChange {
			return err
		}
		r, _ := s.rule(index)
		r.RuleType = rule.RuleType
		r.Condition = rule.Condition.clone()
		return nil
	})
}

// UpdateCondition replaces the condition of the rule at index
func (e *Editor) UpdateCondition(index int, c Condition) error {
	if err := c.check(); err != nil {
		return err
	}
	return e.mutate("update_condition", func(s *state) error {
		r, err := s.rule(index)
		if err != nil {
			return err
		}
		r.Condition = c.clone()
		return nil
	})
}

// UpdateRuleName renames the rule at index and rewrites every binding that
// references it, in both legacy lists and expression strings. Returns the
// name used after collision suffixing.
func (e *Editor) UpdateRuleName(index int, name string) (string, error) {
	var used string
	err := e.mutate("rename_rule", func(s *state) error {
		var err error
		used, err = s.renameRule(index, name)
		return err
	})
	if err != nil {
		return "", err
	}
	return used, nil
}

// UpdateRuleType sets the advisory type of the rule at index
func (e *Editor) UpdateRuleType(index int, t RuleType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, t)
	}
	return e.mutate("update_rule_type", func(s *state) error {
		r, err := s.rule(index)
		if err != nil {
			return err
		}
		if r.RuleType == t {
			return errNoChange
		}
		r.RuleType = t
		return nil
	})
}

// Rules returns a copy of the rule catalog
func (e *Editor) Rules() []SwitchingRule {
	out := make([]SwitchingRule, len(e.cur.doc.SwitchingLogic))
	for i, r := range e.cur.doc.SwitchingLogic {
		out[i] = r.clone()
	}
	return out
}
