package strategy

import (
	"fmt"
	"strings"
)

// uniqueName appends _1, _2, … to base until taken reports false
func uniqueName(base string, taken func(string) bool) string {
	name := base
	for i := 1; taken(name); i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	return name
}

func (s *state) allocationTaken(name string) bool {
	_, ok := s.doc.Allocations.lookupFold(name)
	return ok
}

// insertAllocation stores a under name and installs it as the strategy
// fallback when none is set
func (s *state) insertAllocation(name string, a NamedAllocation) {
	s.doc.Allocations.Set(name, a)
	if s.doc.FallbackAllocation == "" {
		s.doc.FallbackAllocation = name
	}
}

func checkNamedAllocation(a NamedAllocation) error {
	if err := a.Allocation.checkShape(); err != nil {
		return err
	}
	if !a.Rebalancing.Valid() {
		return fmt.Errorf("%w: unknown rebalancing frequency %q", ErrInvalidAllocation, a.Rebalancing)
	}
	return nil
}

// AddAllocation adds an empty allocation and returns the name used
func (e *Editor) AddAllocation(name string) (string, error) {
	return e.AddAllocationWithAssets(name, NamedAllocation{Allocation: Allocation{}})
}

// AddAllocationWithAssets adds an allocation under a unique name derived from
// name and returns the name actually used. An empty or whitespace name is a
// no-op returning "".
func (e *Editor) AddAllocationWithAssets(name string, a NamedAllocation) (string, error) {
	base := strings.TrimSpace(name)
	if base == "" {
		return "", nil
	}
	if err := checkNamedAllocation(a); err != nil {
		return "", err
	}

	var used string
	err := e.mutate("add_allocation", func(s *state) error {
		used = uniqueName(base, s.allocationTaken)
		s.insertAllocation(used, a)
		return nil
	})
	if err != nil {
		return "", err
	}
	return used, nil
}

// AddCustomAllocation is the custom-builder path: a colliding name is refused
// instead of suffixed, and the allocation must already pass the weight checks.
func (e *Editor) AddCustomAllocation(name string, a NamedAllocation) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	if err := checkNamedAllocation(a); err != nil {
		return "", err
	}
	if err := ValidateAllocation(a.Allocation); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAllocation, err)
	}

	err := e.mutate("add_custom_allocation", func(s *state) error {
		if existing, ok := s.doc.Allocations.lookupFold(name); ok {
			return fmt.Errorf("%w: a portfolio named %q already exists", ErrAllocationExists, existing)
		}
		s.insertAllocation(name, a)
		return nil
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// RenameAllocation renames an allocation everywhere it is referenced: the
// allocation key, the strategy fallback pointer, binding entries and edges.
func (e *Editor) RenameAllocation(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrInvalidName
	}

	return e.mutate("rename_allocation", func(s *state) error {
		if !s.doc.Allocations.Has(oldName) {
			return fmt.Errorf("%w: %s", ErrAllocationNotFound, oldName)
		}
		if newName == oldName {
			return errNoChange
		}
		if existing, ok := s.doc.Allocations.lookupFold(newName); ok && existing != oldName {
			return fmt.Errorf("%w: %s", ErrAllocationExists, existing)
		}

		s.doc.Allocations.rename(oldName, newName)
		if s.doc.FallbackAllocation == oldName {
			s.doc.FallbackAllocation = newName
		}
		for i := range s.doc.AllocationRules {
			if s.doc.AllocationRules[i].Allocation == oldName {
				s.doc.AllocationRules[i].Allocation = newName
			}
		}
		s.graph.renameNode(oldName, newName)
		return nil
	})
}

// UpdateAllocation replaces an allocation's weights and cadence.
// Weight sums are left to the validity gate so partially edited portfolios can be stored.
func (e *Editor) UpdateAllocation(name string, a NamedAllocation) error {
	if err := checkNamedAllocation(a); err != nil {
		return err
	}
	return e.mutate("update_allocation", func(s *state) error {
		if !s.doc.Allocations.Has(name) {
			return fmt.Errorf("%w: %s", ErrAllocationNotFound, name)
		}
		s.doc.Allocations.Set(name, a)
		return nil
	})
}

// DeleteAllocation removes an allocation with its bindings and incident edges.
// If it was the strategy fallback, the first remaining allocation takes over.
func (e *Editor) DeleteAllocation(name string) error {
	return e.mutate("delete_allocation", func(s *state) error {
		if !s.doc.Allocations.Has(name) {
			return fmt.Errorf("%w: %s", ErrAllocationNotFound, name)
		}
		s.doc.Allocations.remove(name)
		s.doc.removeBindings(name)
		s.graph.removeNode(name)

		if s.doc.FallbackAllocation == name {
			s.doc.FallbackAllocation = ""
			if names := s.doc.Allocations.Names(); len(names) > 0 {
				s.doc.FallbackAllocation = names[0]
			}
		}
		return nil
	})
}

// SetFallbackAllocation points the strategy-level fallback at an existing allocation
func (e *Editor) SetFallbackAllocation(name string) error {
	return e.mutate("set_fallback", func(s *state) error {
		if !s.doc.Allocations.Has(name) {
			return fmt.Errorf("%w: %s", ErrAllocationNotFound, name)
		}
		if s.doc.FallbackAllocation == name {
			return errNoChange
		}
		s.doc.FallbackAllocation = name
		return nil
	})
}
