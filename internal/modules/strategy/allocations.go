package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// AllocationSet is an insertion-ordered map of named allocations.
// Order matters: the first name is the fallback candidate after a delete,
// and the decomposer walks chain heads in this order.
type AllocationSet struct {
	order []string
	items map[string]NamedAllocation
}

// NewAllocationSet returns an empty set
func NewAllocationSet() AllocationSet {
	return AllocationSet{items: make(map[string]NamedAllocation)}
}

// Len returns the number of allocations
func (s AllocationSet) Len() int {
	return len(s.order)
}

// Names returns allocation names in insertion order
func (s AllocationSet) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Get returns the named allocation
func (s AllocationSet) Get(name string) (NamedAllocation, bool) {
	a, ok := s.items[name]
	if !ok {
		return NamedAllocation{}, false
	}
	return a.Clone(), true
}

// Has reports whether name is present (exact match)
func (s AllocationSet) Has(name string) bool {
	_, ok := s.items[name]
	return ok
}

// lookupFold returns the stored name matching name case-insensitively
func (s AllocationSet) lookupFold(name string) (string, bool) {
	for _, existing := range s.order {
		if strings.EqualFold(existing, name) {
			return existing, true
		}
	}
	return "", false
}

// Set inserts or replaces an allocation, appending new names at the end
func (s *AllocationSet) Set(name string, a NamedAllocation) {
	if s.items == nil {
		s.items = make(map[string]NamedAllocation)
	}
	if _, ok := s.items[name]; !ok {
		s.order = append(s.order, name)
	}
	s.items[name] = a.Clone()
}

func (s *AllocationSet) rename(oldName, newName string) {
	a := s.items[oldName]
	delete(s.items, oldName)
	s.items[newName] = a
	for i, n := range s.order {
		if n == oldName {
			s.order[i] = newName
			break
		}
	}
}

func (s *AllocationSet) remove(name string) {
	delete(s.items, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

// Restrict returns a new set containing only the given names, in set order
func (s AllocationSet) Restrict(names []string) AllocationSet {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	out := NewAllocationSet()
	for _, n := range s.order {
		if keep[n] {
			out.Set(n, s.items[n])
		}
	}
	return out
}

// Clone returns a deep copy
func (s AllocationSet) Clone() AllocationSet {
	out := AllocationSet{
		order: make([]string, len(s.order)),
		items: make(map[string]NamedAllocation, len(s.items)),
	}
	copy(out.order, s.order)
	for k, v := range s.items {
		out.items[k] = v.Clone()
	}
	return out
}

// MarshalJSON writes the allocations as a JSON object in insertion order
func (s AllocationSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.items[name])
		if err != nil {
			return nil, fmt.Errorf("failed to encode allocation %s: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the document's key order
func (s *AllocationSet) UnmarshalJSON(data []byte) error {
	*s = NewAllocationSet()
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("allocations must be a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("allocation name must be a string")
		}
		var a NamedAllocation
		if err := dec.Decode(&a); err != nil {
			return fmt.Errorf("failed to decode allocation %s: %w", name, err)
		}
		s.Set(name, a)
	}

	_, err = dec.Token()
	return err
}

type allocationEntry struct {
	Name        string     `msgpack:"name"`
	Allocation  Allocation `msgpack:"allocation"`
	Rebalancing Cadence    `msgpack:"rebalancing,omitempty"`
}

var (
	_ msgpack.CustomEncoder = AllocationSet{}
	_ msgpack.CustomDecoder = (*AllocationSet)(nil)
)

// EncodeMsgpack encodes the set as an ordered list of entries
func (s AllocationSet) EncodeMsgpack(enc *msgpack.Encoder) error {
	entries := make([]allocationEntry, 0, len(s.order))
	for _, name := range s.order {
		a := s.items[name]
		entries = append(entries, allocationEntry{Name: name, Allocation: a.Allocation, Rebalancing: a.Rebalancing})
	}
	return enc.Encode(entries)
}

// DecodeMsgpack decodes an ordered list of entries
func (s *AllocationSet) DecodeMsgpack(dec *msgpack.Decoder) error {
	var entries []allocationEntry
	if err := dec.Decode(&entries); err != nil {
		return err
	}
	*s = NewAllocationSet()
	for _, e := range entries {
		s.Set(e.Name, NamedAllocation{Allocation: e.Allocation, Rebalancing: e.Rebalancing})
	}
	return nil
}
