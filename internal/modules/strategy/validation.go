package strategy

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// WeightTolerance is the allowed deviation of an allocation's weight sum from 1
const WeightTolerance = 1e-3

// ValidationError is one finding of the validity gate
type ValidationError struct {
	Allocation string `json:"allocation,omitempty"`
	Message    string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Allocation == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Allocation, e.Message)
}

// ValidationErrors collects every finding of one validation pass
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "strategy is invalid: " + strings.Join(msgs, "; ")
}

// Validate runs the validity gate: every allocation holds at least one
// non-empty symbol with weights in [0,1] summing to 1 ± WeightTolerance, and
// the fallback allocation exists. Returns ValidationErrors or nil.
func Validate(doc Document) error {
	findings := collectFindings(doc)
	if len(findings) == 0 {
		return nil
	}
	return findings
}

// ValidateWithLogging behaves exactly like Validate and additionally logs
// each finding at debug level
func ValidateWithLogging(doc Document, log zerolog.Logger) error {
	findings := collectFindings(doc)
	for _, f := range findings {
		log.Debug().
			Str("allocation", f.Allocation).
			Str("finding", f.Message).
			Msg("Strategy validation finding")
	}
	log.Debug().
		Int("allocations", doc.Allocations.Len()).
		Int("findings", len(findings)).
		Msg("Strategy validation completed")

	if len(findings) == 0 {
		return nil
	}
	return findings
}

// ValidateAllocation checks a single allocation against the weight rules
func ValidateAllocation(a Allocation) error {
	findings := allocationFindings("", a)
	if len(findings) == 0 {
		return nil
	}
	return findings
}

func collectFindings(doc Document) ValidationErrors {
	var findings ValidationErrors
	for _, name := range doc.Allocations.Names() {
		a, _ := doc.Allocations.Get(name)
		findings = append(findings, allocationFindings(name, a.Allocation)...)
	}

	switch {
	case doc.FallbackAllocation == "":
		findings = append(findings, ValidationError{Message: "fallback allocation is not set"})
	case !doc.Allocations.Has(doc.FallbackAllocation):
		findings = append(findings, ValidationError{
			Message: fmt.Sprintf("fallback allocation %q does not exist", doc.FallbackAllocation),
		})
	}
	return findings
}

func allocationFindings(name string, a Allocation) ValidationErrors {
	var findings ValidationErrors
	if len(a) == 0 {
		return append(findings, ValidationError{Allocation: name, Message: "allocation has no symbols"})
	}

	weights := make([]float64, 0, len(a))
	for _, symbol := range a.Symbols() {
		w := a[symbol]
		if strings.TrimSpace(symbol) == "" {
			findings = append(findings, ValidationError{Allocation: name, Message: "symbol must not be empty"})
		}
		if math.IsNaN(w) || w < 0 || w > 1 {
			findings = append(findings, ValidationError{
				Allocation: name,
				Message:    fmt.Sprintf("weight %v for %q is outside [0,1]", w, symbol),
			})
		}
		weights = append(weights, w)
	}

	sum := floats.Sum(weights)
	if math.IsNaN(sum) || math.Abs(sum-1) > WeightTolerance {
		findings = append(findings, ValidationError{
			Allocation: name,
			Message:    fmt.Sprintf("weights sum to %.4f, expected 1", sum),
		})
	}
	return findings
}
