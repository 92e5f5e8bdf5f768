package strategy

import (
	"encoding/json"
	"fmt"
)

// Document is the persisted and exported strategy
type Document struct {
	StartDate          string          `json:"start_date"`
	EndDate            string          `json:"end_date"`
	InitialCapital     float64         `json:"initial_capital"`
	Allocations        AllocationSet   `json:"allocations"`
	FallbackAllocation string          `json:"fallback_allocation"`
	SwitchingLogic     []SwitchingRule `json:"switching_logic"`
	AllocationRules    []RuleBinding   `json:"allocation_rules,omitempty"`
}

// Defaults seeds new documents
type Defaults struct {
	StartDate      string
	EndDate        string
	InitialCapital float64
}

// NewDocument returns an empty document seeded with defaults
func NewDocument(d Defaults) Document {
	return Document{
		StartDate:      d.StartDate,
		EndDate:        d.EndDate,
		InitialCapital: d.InitialCapital,
		Allocations:    NewAllocationSet(),
		SwitchingLogic: []SwitchingRule{},
	}
}

// Clone returns a deep copy
func (d Document) Clone() Document {
	out := d
	out.Allocations = d.Allocations.Clone()
	out.SwitchingLogic = make([]SwitchingRule, len(d.SwitchingLogic))
	for i, r := range d.SwitchingLogic {
		out.SwitchingLogic[i] = r.clone()
	}
	if d.AllocationRules != nil {
		out.AllocationRules = make([]RuleBinding, len(d.AllocationRules))
		for i, b := range d.AllocationRules {
			out.AllocationRules[i] = b.clone()
		}
	}
	return out
}

// ruleIndex returns the catalog index of the named rule, or -1
func (d Document) ruleIndex(name string) int {
	for i, r := range d.SwitchingLogic {
		if r.Name == name {
			return i
		}
	}
	return -1
}

// Binding returns the rules bound to an allocation
func (d Document) Binding(allocation string) (RuleSet, bool) {
	for _, b := range d.AllocationRules {
		if b.Allocation == allocation {
			return b.Rules.clone(), true
		}
	}
	return RuleSet{}, false
}

func (d *Document) bindingIndex(allocation string) int {
	for i, b := range d.AllocationRules {
		if b.Allocation == allocation {
			return i
		}
	}
	return -1
}

// dropEmptyBindings removes binding entries that reference no rule
func (d *Document) dropEmptyBindings() {
	kept := d.AllocationRules[:0:0]
	for _, b := range d.AllocationRules {
		if !b.Rules.Empty() {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	d.AllocationRules = kept
}

// removeBindings drops every binding entry for allocation and reports whether any existed
func (d *Document) removeBindings(allocation string) bool {
	kept := d.AllocationRules[:0:0]
	removed := false
	for _, b := range d.AllocationRules {
		if b.Allocation == allocation {
			removed = true
			continue
		}
		kept = append(kept, b)
	}
	if len(kept) == 0 {
		kept = nil
	}
	d.AllocationRules = kept
	return removed
}

// Export encodes the document as indented JSON
func (d Document) Export() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode strategy document: %w", err)
	}
	return data, nil
}

// ParseDocument decodes an untrusted strategy document. Conditions missing
// sub-fields are back-filled with the SMA 50/200 pair; nothing else is coerced.
func ParseDocument(data []byte) (Document, error) {
	doc := Document{Allocations: NewAllocationSet()}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc.SwitchingLogic == nil {
		doc.SwitchingLogic = []SwitchingRule{}
	}
	for i := range doc.SwitchingLogic {
		doc.SwitchingLogic[i].Condition = backfillCondition(doc.SwitchingLogic[i].Condition)
		if doc.SwitchingLogic[i].RuleType == "" {
			doc.SwitchingLogic[i].RuleType = RuleTypeBuy
		}
	}
	return doc, nil
}

func backfillCondition(c Condition) Condition {
	def := DefaultCondition()
	c.Left = backfillOperand(c.Left, def.Left, c.Right)
	c.Right = backfillOperand(c.Right, def.Right, c.Left)
	if c.Comparison == "" {
		c.Comparison = def.Comparison
	}
	return c
}

func backfillOperand(o, def, other Operand) Operand {
	if o.Type == "" && o.Value != nil {
		o.Type = OperandConstant
	}
	if o.IsConstant() {
		if o.Value == nil {
			zero := 0.0
			o.Value = &zero
		}
		return o
	}

	// Windows are only filled in when the whole operand was missing.
	if o.Type == "" {
		o.Type = def.Type
		if o.Window == 0 {
			o.Window = def.Window
		}
	}
	if o.Symbol == "" {
		if other.Symbol != "" && !other.IsConstant() {
			o.Symbol = other.Symbol
		} else {
			o.Symbol = def.Symbol
		}
	}
	return o
}
