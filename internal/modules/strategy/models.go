// Package strategy implements the tactical strategy graph: named allocations,
// switching rules, rule expressions bound to allocations, the edge set that
// links allocations, and the decomposition of that graph into independently
// backtestable chains.
package strategy

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Cadence is a rebalancing frequency
type Cadence string

// Rebalancing cadences
const (
	CadenceDaily     Cadence = "daily"
	CadenceWeekly    Cadence = "weekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceYearly    Cadence = "yearly"
	CadenceNone      Cadence = "none"
)

// Valid reports whether c is a known cadence. The empty cadence is valid and means "unset".
func (c Cadence) Valid() bool {
	switch c {
	case "", CadenceDaily, CadenceWeekly, CadenceMonthly, CadenceQuarterly, CadenceYearly, CadenceNone:
		return true
	}
	return false
}

// Allocation maps an asset symbol to its portfolio weight
type Allocation map[string]float64

// Symbols returns the allocation's symbols in sorted order
func (a Allocation) Symbols() []string {
	symbols := make([]string, 0, len(a))
	for symbol := range a {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Clone returns an independent copy
func (a Allocation) Clone() Allocation {
	if a == nil {
		return nil
	}
	out := make(Allocation, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// checkShape rejects empty symbols and weights outside [0,1].
// It does not check the weight sum; that belongs to the validity gate.
func (a Allocation) checkShape() error {
	for symbol, weight := range a {
		if strings.TrimSpace(symbol) == "" {
			return fmt.Errorf("%w: empty symbol", ErrInvalidAllocation)
		}
		if math.IsNaN(weight) || weight < 0 || weight > 1 {
			return fmt.Errorf("%w: weight %v for %s outside [0,1]", ErrInvalidAllocation, weight, symbol)
		}
	}
	return nil
}

// NamedAllocation is an allocation together with its rebalancing cadence.
// The name is the key under which it is stored.
type NamedAllocation struct {
	Allocation  Allocation `json:"allocation"`
	Rebalancing Cadence    `json:"rebalancing_frequency,omitempty"`
}

// Clone returns an independent copy
func (n NamedAllocation) Clone() NamedAllocation {
	return NamedAllocation{Allocation: n.Allocation.Clone(), Rebalancing: n.Rebalancing}
}

// RuleType is advisory metadata on a switching rule
type RuleType string

// Rule types
const (
	RuleTypeBuy  RuleType = "buy"
	RuleTypeSell RuleType = "sell"
	RuleTypeHold RuleType = "hold"
)

// Valid reports whether t is a known rule type
func (t RuleType) Valid() bool {
	return t == RuleTypeBuy || t == RuleTypeSell || t == RuleTypeHold
}

// OperandConstant marks an operand holding a literal value
const OperandConstant = "constant"

// Operand is one side of a condition: an indicator reference or a constant.
// Indicator types are opaque to this package and evaluated by the engine.
type Operand struct {
	Type   string   `json:"type"`
	Symbol string   `json:"symbol,omitempty"`
	Window int      `json:"window,omitempty"`
	Value  *float64 `json:"value,omitempty"`
}

// IsConstant reports whether the operand is a literal
func (o Operand) IsConstant() bool {
	return o.Type == OperandConstant
}

// Constant builds a constant operand
func Constant(v float64) Operand {
	return Operand{Type: OperandConstant, Value: &v}
}

// Indicator builds an indicator operand
func Indicator(kind, symbol string, window int) Operand {
	return Operand{Type: kind, Symbol: symbol, Window: window}
}

func (o Operand) clone() Operand {
	if o.Value != nil {
		v := *o.Value
		o.Value = &v
	}
	return o
}

// Comparison operators accepted in conditions
var comparisons = map[string]bool{">": true, "<": true, ">=": true, "<=": true, "==": true}

// ValidComparison reports whether op is an accepted comparison operator
func ValidComparison(op string) bool {
	return comparisons[op]
}

// Condition compares two operands
type Condition struct {
	Left       Operand `json:"left"`
	Comparison string  `json:"comparison"`
	Right      Operand `json:"right"`
}

func (c Condition) clone() Condition {
	return Condition{Left: c.Left.clone(), Comparison: c.Comparison, Right: c.Right.clone()}
}

// DefaultCondition is the SMA(50) > SMA(200) golden-cross condition
func DefaultCondition() Condition {
	return Condition{
		Left:       Indicator("sma", DefaultSymbol, 50),
		Comparison: ">",
		Right:      Indicator("sma", DefaultSymbol, 200),
	}
}

// DefaultSymbol is used when a condition omits its symbol
const DefaultSymbol = "SPY"

// SwitchingRule is a named, reusable boolean condition
type SwitchingRule struct {
	Name      string    `json:"name"`
	RuleType  RuleType  `json:"rule_type"`
	Condition Condition `json:"condition"`
}

func (r SwitchingRule) clone() SwitchingRule {
	r.Condition = r.Condition.clone()
	return r
}

func (r SwitchingRule) check() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if !r.RuleType.Valid() {
		return fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, r.RuleType)
	}
	return r.Condition.check()
}

func (c Condition) check() error {
	if !ValidComparison(c.Comparison) {
		return fmt.Errorf("%w: unknown comparison %q", ErrInvalidRule, c.Comparison)
	}
	return nil
}
