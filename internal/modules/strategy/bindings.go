package strategy

import "fmt"

// checkAssignable verifies that rules may be bound to allocation
func (e *Editor) checkAssignable(s *state, allocation string) error {
	if !s.doc.Allocations.Has(allocation) {
		return fmt.Errorf("%w: %s", ErrAllocationNotFound, allocation)
	}
	if e.derived.IsFallback(allocation) {
		return fmt.Errorf("%w: %s is the fallback of its chain", ErrFallbackAssignment, allocation)
	}
	return nil
}

// AssignRuleToAllocation appends rule to the allocation's binding, creating
// the binding if needed. Already-bound rules are left alone.
func (e *Editor) AssignRuleToAllocation(rule, allocation string) error {
	return e.mutate("assign_rule", func(s *state) error {
		if err := e.checkAssignable(s, allocation); err != nil {
			return err
		}
		if s.doc.ruleIndex(rule) < 0 {
			return fmt.Errorf("%w: %s", ErrRuleNotFound, rule)
		}

		i := s.doc.bindingIndex(allocation)
		if i < 0 {
			s.doc.AllocationRules = append(s.doc.AllocationRules, RuleBinding{
				Allocation: allocation,
				Rules:      NamesRuleSet(rule),
			})
			return nil
		}

		b := &s.doc.AllocationRules[i]
		if b.Rules.Contains(rule) {
			return errNoChange
		}
		refs := b.Rules.Refs()
		if len(refs) > 0 {
			refs[len(refs)-1].Operator = OpOr
		}
		b.Rules = b.Rules.withRefs(append(refs, RuleRef{Rule: rule}))
		return nil
	})
}

// UnassignRuleFromAllocation removes rule from the allocation's binding and
// deletes the binding once it is empty
func (e *Editor) UnassignRuleFromAllocation(rule, allocation string) error {
	return e.mutate("unassign_rule", func(s *state) error {
		if !s.doc.Allocations.Has(allocation) {
			return fmt.Errorf("%w: %s", ErrAllocationNotFound, allocation)
		}
		i := s.doc.bindingIndex(allocation)
		if i < 0 {
			return errNoChange
		}
		refs, changed := removeRef(s.doc.AllocationRules[i].Rules.Refs(), rule)
		if !changed {
			return errNoChange
		}
		if len(refs) == 0 {
			s.doc.removeBindings(allocation)
			return nil
		}
		s.doc.AllocationRules[i].Rules = s.doc.AllocationRules[i].Rules.withRefs(refs)
		return nil
	})
}

// SetRuleExpression binds an AND/OR expression to an allocation, always in
// canonical expression form. An empty expression removes the binding.
// Binding to an allocation flagged fallback is rejected.
func (e *Editor) SetRuleExpression(allocation string, refs []RuleRef) error {
	return e.mutate("set_expression", func(s *state) error {
		if len(refs) == 0 {
			if !s.doc.Allocations.Has(allocation) {
				return fmt.Errorf("%w: %s", ErrAllocationNotFound, allocation)
			}
			if !s.doc.removeBindings(allocation) {
				return errNoChange
			}
			return nil
		}

		if err := e.checkAssignable(s, allocation); err != nil {
			return err
		}
		clean := make([]RuleRef, len(refs))
		for i, ref := range refs {
			if s.doc.ruleIndex(ref.Rule) < 0 {
				return fmt.Errorf("%w: %s", ErrRuleNotFound, ref.Rule)
			}
			switch ref.Operator {
			case OpAnd, OpOr:
			case "":
				if i < len(refs)-1 {
					ref.Operator = OpOr
				}
			default:
				return fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, ref.Operator)
			}
			clean[i] = ref
		}
		clean[len(clean)-1].Operator = ""

		rules := ExprRuleSet(clean)
		if i := s.doc.bindingIndex(allocation); i >= 0 {
			s.doc.AllocationRules[i].Rules = rules
		} else {
			s.doc.AllocationRules = append(s.doc.AllocationRules, RuleBinding{Allocation: allocation, Rules: rules})
		}
		return nil
	})
}

// SetRuleExpressionText parses text and binds it like SetRuleExpression
func (e *Editor) SetRuleExpressionText(allocation, text string) error {
	return e.SetRuleExpression(allocation, ParseExpression(text))
}

// Bindings returns a copy of the binding table
func (e *Editor) Bindings() []RuleBinding {
	out := make([]RuleBinding, len(e.cur.doc.AllocationRules))
	for i, b := range e.cur.doc.AllocationRules {
		out[i] = b.clone()
	}
	return out
}
