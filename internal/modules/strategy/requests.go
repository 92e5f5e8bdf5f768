package strategy

import "fmt"

// BacktestRequest is the self-contained engine request for one chain
type BacktestRequest struct {
	Name               string          `json:"name"`
	StartDate          string          `json:"start_date"`
	EndDate            string          `json:"end_date"`
	InitialCapital     float64         `json:"initial_capital"`
	Allocations        AllocationSet   `json:"allocations"`
	FallbackAllocation string          `json:"fallback_allocation"`
	SwitchingLogic     []SwitchingRule `json:"switching_logic"`
	AllocationRules    []RuleBinding   `json:"allocation_rules,omitempty"`

	Chain []string `json:"-"`
}

// BuildRequests gates doc through Validate and then builds one request per chain
func BuildRequests(doc Document, d Decomposition) ([]BacktestRequest, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}

	requests := make([]BacktestRequest, 0, len(d.Chains))
	for _, chain := range d.Chains {
		req, err := BuildChainRequest(doc, chain)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// BuildChainRequest scopes doc to a single chain. Allocations, bindings and
// rules outside the chain are dropped; rules are kept only when a binding in
// the chain references them. The chain fallback is the first node without a
// binding, or the last node when every node is bound.
func BuildChainRequest(doc Document, chain Chain) (BacktestRequest, error) {
	if len(chain.Nodes) == 0 {
		return BacktestRequest{}, fmt.Errorf("cannot build request for empty chain")
	}
	for _, n := range chain.Nodes {
		if !doc.Allocations.Has(n) {
			return BacktestRequest{}, fmt.Errorf("%w: %s", ErrAllocationNotFound, n)
		}
	}

	req := BacktestRequest{
		Name:           chain.Label,
		StartDate:      doc.StartDate,
		EndDate:        doc.EndDate,
		InitialCapital: doc.InitialCapital,
		Allocations:    doc.Allocations.Restrict(chain.Nodes),
		SwitchingLogic: []SwitchingRule{},
		Chain:          append([]string(nil), chain.Nodes...),
	}
	if req.Name == "" {
		req.Name = chainLabel(0, chain.Nodes, chain.Orphan)
	}

	referenced := make(map[string]bool)
	for _, b := range doc.AllocationRules {
		if !chain.Contains(b.Allocation) || b.Rules.Empty() {
			continue
		}
		req.AllocationRules = append(req.AllocationRules, b.clone())
		for _, ref := range b.Rules.Refs() {
			referenced[ref.Rule] = true
		}
	}

	for _, n := range chain.Nodes {
		if rules, bound := doc.Binding(n); !bound || rules.Empty() {
			req.FallbackAllocation = n
			break
		}
	}
	if req.FallbackAllocation == "" {
		req.FallbackAllocation = chain.Tail()
	}

	for _, r := range doc.SwitchingLogic {
		if referenced[r.Name] {
			req.SwitchingLogic = append(req.SwitchingLogic, r.clone())
		}
	}
	return req, nil
}
