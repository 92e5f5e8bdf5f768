package strategy

import (
	"fmt"
	"sort"
)

// PortfolioTemplate is a predefined allocation offered when creating nodes
type PortfolioTemplate struct {
	Key         string          `json:"key"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Allocation  NamedAllocation `json:"allocation"`
}

// RuleTemplate is a predefined switching rule
type RuleTemplate struct {
	Key         string        `json:"key"`
	Description string        `json:"description"`
	Rule        SwitchingRule `json:"rule"`
}

var portfolioTemplates = map[string]PortfolioTemplate{
	"spy_100": {
		Key: "spy_100", Name: "SPY_100", Description: "100% S&P 500",
		Allocation: NamedAllocation{Allocation: Allocation{"SPY": 1}, Rebalancing: CadenceNone},
	},
	"qqq_100": {
		Key: "qqq_100", Name: "QQQ_100", Description: "100% Nasdaq 100",
		Allocation: NamedAllocation{Allocation: Allocation{"QQQ": 1}, Rebalancing: CadenceNone},
	},
	"sixty_forty": {
		Key: "sixty_forty", Name: "60_40", Description: "60% equities, 40% bonds",
		Allocation: NamedAllocation{Allocation: Allocation{"SPY": 0.6, "BND": 0.4}, Rebalancing: CadenceQuarterly},
	},
	"all_weather": {
		Key: "all_weather", Name: "ALL_WEATHER", Description: "Risk-balanced stocks, bonds, gold and commodities",
		Allocation: NamedAllocation{
			Allocation:  Allocation{"VTI": 0.3, "TLT": 0.4, "IEF": 0.15, "GLD": 0.075, "DBC": 0.075},
			Rebalancing: CadenceQuarterly,
		},
	},
	"defensive": {
		Key: "defensive", Name: "DEFENSIVE", Description: "Short bonds and gold",
		Allocation: NamedAllocation{Allocation: Allocation{"BND": 0.5, "SHY": 0.3, "GLD": 0.2}, Rebalancing: CadenceMonthly},
	},
	"cash": {
		Key: "cash", Name: "CASH", Description: "Treasury bills",
		Allocation: NamedAllocation{Allocation: Allocation{"SHV": 1}, Rebalancing: CadenceNone},
	},
}

var ruleTemplates = map[string]RuleTemplate{
	"golden_cross": {
		Key: "golden_cross", Description: "SPY 50-day SMA above 200-day SMA",
		Rule: SwitchingRule{Name: "Golden Cross", RuleType: RuleTypeBuy, Condition: DefaultCondition()},
	},
	"death_cross": {
		Key: "death_cross", Description: "SPY 50-day SMA below 200-day SMA",
		Rule: SwitchingRule{Name: "Death Cross", RuleType: RuleTypeSell, Condition: Condition{
			Left: Indicator("sma", DefaultSymbol, 50), Comparison: "<", Right: Indicator("sma", DefaultSymbol, 200),
		}},
	},
	"above_200": {
		Key: "above_200", Description: "SPY price above its 200-day SMA",
		Rule: SwitchingRule{Name: "SPY Above 200", RuleType: RuleTypeBuy, Condition: Condition{
			Left: Indicator("price", DefaultSymbol, 0), Comparison: ">", Right: Indicator("sma", DefaultSymbol, 200),
		}},
	},
	"rsi_oversold": {
		Key: "rsi_oversold", Description: "SPY 14-day RSI below 30",
		Rule: SwitchingRule{Name: "RSI Oversold", RuleType: RuleTypeBuy, Condition: Condition{
			Left: Indicator("rsi", DefaultSymbol, 14), Comparison: "<", Right: Constant(30),
		}},
	},
}

// PortfolioTemplates lists the portfolio templates ordered by key
func PortfolioTemplates() []PortfolioTemplate {
	out := make([]PortfolioTemplate, 0, len(portfolioTemplates))
	for _, t := range portfolioTemplates {
		t.Allocation = t.Allocation.Clone()
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// RuleTemplates lists the rule templates ordered by key
func RuleTemplates() []RuleTemplate {
	out := make([]RuleTemplate, 0, len(ruleTemplates))
	for _, t := range ruleTemplates {
		t.Rule = t.Rule.clone()
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// AddFromTemplate adds the portfolio template under a unique name and returns it
func (e *Editor) AddFromTemplate(key string) (string, error) {
	t, ok := portfolioTemplates[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
	}
	return e.AddAllocationWithAssets(t.Name, t.Allocation)
}

// AddRuleFromTemplate adds the rule template under a unique name and returns it
func (e *Editor) AddRuleFromTemplate(key string) (string, error) {
	t, ok := ruleTemplates[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
	}
	return e.AddSwitchingRuleWithData(t.Rule)
}
