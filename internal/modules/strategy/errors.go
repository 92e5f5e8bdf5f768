package strategy

import "errors"

var (
	// ErrAllocationNotFound is returned when an operation names an unknown allocation
	ErrAllocationNotFound = errors.New("allocation not found")
	// ErrAllocationExists is returned when a name collides with an existing allocation
	ErrAllocationExists = errors.New("allocation already exists")
	// ErrInvalidAllocation is returned for empty symbols or out-of-range weights
	ErrInvalidAllocation = errors.New("invalid allocation")
	// ErrInvalidName is returned for empty or whitespace-only names
	ErrInvalidName = errors.New("name must not be empty")

	// ErrRuleNotFound is returned for unknown rule names or out-of-range rule indexes
	ErrRuleNotFound = errors.New("switching rule not found")
	// ErrInvalidRule is returned for unknown rule types or comparison operators
	ErrInvalidRule = errors.New("invalid switching rule")

	// ErrFallbackAssignment is returned when binding rules to a fallback allocation
	ErrFallbackAssignment = errors.New("fallback allocations cannot have switching rules")

	// ErrSelfLoop is returned for an edge whose source equals its target
	ErrSelfLoop = errors.New("edge source and target must differ")
	// ErrDuplicateEdge is returned when the ordered pair is already connected
	ErrDuplicateEdge = errors.New("edge already exists")
	// ErrMultipleOutgoing is returned when the source already has an outgoing edge
	ErrMultipleOutgoing = errors.New("allocation already has an outgoing edge")
	// ErrCycle is returned when an edge would close a cycle
	ErrCycle = errors.New("edge would create a cycle")
	// ErrEdgeNotFound is returned when disconnecting an edge that does not exist
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrInvalidDocument is returned when an imported document cannot be decoded
	ErrInvalidDocument = errors.New("invalid strategy document")

	// ErrTemplateNotFound is returned for unknown template keys
	ErrTemplateNotFound = errors.New("template not found")
	// ErrStrategyNotFound is returned for unknown strategy sessions
	ErrStrategyNotFound = errors.New("strategy not found")
	// ErrRevisionNotFound is returned when restoring an unknown revision
	ErrRevisionNotFound = errors.New("revision not found")
)
