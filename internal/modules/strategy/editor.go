package strategy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// errNoChange aborts a mutation without committing a new revision
var errNoChange = errors.New("no change")

// state is everything an edit can touch
type state struct {
	doc   Document
	graph Graph
}

func (s state) clone() state {
	return state{doc: s.doc.Clone(), graph: s.graph.Clone()}
}

// Editor owns one strategy and its graph. Every edit is applied to a copy of
// the current state, derived state (decomposition, fallback clearing and the
// serialized document) is recomputed, and only then is the copy installed.
// A failed edit leaves the editor untouched.
//
// Editor is not safe for concurrent use; Service serializes access.
type Editor struct {
	cur        state
	derived    Decomposition
	serialized []byte
	revision   int64
	lastOp     string
	listeners  []func(Snapshot)
	log        zerolog.Logger
}

// NewEditor creates an editor over doc and edges
func NewEditor(doc Document, edges []Edge, log zerolog.Logger) (*Editor, error) {
	return newEditorAt(doc, edges, 0, log)
}

func newEditorAt(doc Document, edges []Edge, revision int64, log zerolog.Logger) (*Editor, error) {
	e := &Editor{log: log.With().Str("component", "strategy_editor").Logger()}
	if err := e.install(normalizeState(doc, edges)); err != nil {
		return nil, err
	}
	e.revision = revision
	e.lastOp = "load"
	return e, nil
}

// normalizeState fills nil collections, drops empty bindings and drops
// edges to unknown allocations
func normalizeState(doc Document, edges []Edge) state {
	doc = doc.Clone()
	doc.dropEmptyBindings()
	if doc.Allocations.items == nil {
		doc.Allocations = NewAllocationSet()
	}
	if doc.SwitchingLogic == nil {
		doc.SwitchingLogic = []SwitchingRule{}
	}
	g := NewGraph(edges)
	g.retain(doc.Allocations.Names())
	return state{doc: doc, graph: g}
}

// mutate runs fn against a copy of the current state and commits the result
func (e *Editor) mutate(op string, fn func(s *state) error) error {
	next := e.cur.clone()
	if err := fn(&next); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	if err := e.install(next); err != nil {
		return err
	}
	e.revision++
	e.lastOp = op

	e.log.Debug().
		Str("op", op).
		Int64("revision", e.revision).
		Int("allocations", e.cur.doc.Allocations.Len()).
		Int("edges", e.cur.graph.Len()).
		Msg("Strategy updated")

	e.notify()
	return nil
}

// install recomputes derived state for next and makes it current.
// Fallback nodes lose their bindings: a fallback cannot have a switch-in condition.
func (e *Editor) install(next state) error {
	names := next.doc.Allocations.Names()
	d := Decompose(names, next.graph.Edges())
	for _, name := range names {
		if d.IsFallback(name) && next.doc.removeBindings(name) {
			e.log.Info().Str("allocation", name).Msg("Cleared switching rules from fallback allocation")
		}
	}

	data, err := json.Marshal(next.doc)
	if err != nil {
		return fmt.Errorf("failed to serialize strategy: %w", err)
	}

	e.cur = next
	e.derived = d
	e.serialized = data
	return nil
}

// rollback reinstalls a previously captured state without notifying listeners
func (e *Editor) rollback(s state, revision int64, op string) {
	if err := e.install(s); err != nil {
		e.log.Error().Err(err).Msg("Failed to roll back strategy state")
		return
	}
	e.revision = revision
	e.lastOp = op
}

// Update replaces the whole document and edge set. It is the entry point for
// surfaces that edit the strategy wholesale, such as a JSON editor.
func (e *Editor) Update(doc Document, edges []Edge) error {
	return e.mutate("update", func(s *state) error {
		*s = normalizeState(doc, edges)
		return nil
	})
}

// Restore replaces the state with a stored revision as a new commit
func (e *Editor) Restore(doc Document, edges []Edge) error {
	return e.mutate("restore", func(s *state) error {
		*s = normalizeState(doc, edges)
		return nil
	})
}

// UpdateDocument replaces the document and keeps edges whose endpoints still exist
func (e *Editor) UpdateDocument(doc Document) error {
	return e.Update(doc, e.cur.graph.Edges())
}

// OnChange registers a listener called with a snapshot after every commit
func (e *Editor) OnChange(fn func(Snapshot)) {
	e.listeners = append(e.listeners, fn)
}

func (e *Editor) notify() {
	if len(e.listeners) == 0 {
		return
	}
	snap := e.Snapshot()
	for _, fn := range e.listeners {
		fn(snap)
	}
}

// Revision counts committed edits
func (e *Editor) Revision() int64 {
	return e.revision
}

// LastOperation names the edit that produced the current revision
func (e *Editor) LastOperation() string {
	return e.lastOp
}

// Document returns a copy of the current document
func (e *Editor) Document() Document {
	return e.cur.doc.Clone()
}

// Edges returns a copy of the current edge set
func (e *Editor) Edges() []Edge {
	return e.cur.graph.Edges()
}

// JSON returns the serialized document as of the last commit
func (e *Editor) JSON() []byte {
	out := make([]byte, len(e.serialized))
	copy(out, e.serialized)
	return out
}

// Decomposition returns the current chain decomposition
func (e *Editor) Decomposition() Decomposition {
	d := Decomposition{
		Chains:   make([]Chain, len(e.derived.Chains)),
		Fallback: make(map[string]bool, len(e.derived.Fallback)),
		Incoming: make(map[string]int, len(e.derived.Incoming)),
		Outgoing: make(map[string]int, len(e.derived.Outgoing)),
	}
	for i, c := range e.derived.Chains {
		c.Nodes = append([]string(nil), c.Nodes...)
		d.Chains[i] = c
	}
	for k, v := range e.derived.Fallback {
		d.Fallback[k] = v
	}
	for k, v := range e.derived.Incoming {
		d.Incoming[k] = v
	}
	for k, v := range e.derived.Outgoing {
		d.Outgoing[k] = v
	}
	return d
}

// IsFallback reports the derived fallback flag of an allocation
func (e *Editor) IsFallback(name string) bool {
	return e.derived.IsFallback(name)
}

// Validate runs the validity gate on the current document
func (e *Editor) Validate() error {
	return Validate(e.cur.doc)
}

// ValidateVerbose runs the logging variant of the validity gate
func (e *Editor) ValidateVerbose() error {
	return ValidateWithLogging(e.cur.doc, e.log)
}

// Requests builds one backtest request per chain
func (e *Editor) Requests() ([]BacktestRequest, error) {
	return BuildRequests(e.cur.doc, e.derived)
}

// ConnectAllocations adds the edge source → target
func (e *Editor) ConnectAllocations(source, target string) error {
	return e.mutate("connect", func(s *state) error {
		for _, n := range []string{source, target} {
			if !s.doc.Allocations.Has(n) {
				return fmt.Errorf("%w: %s", ErrAllocationNotFound, n)
			}
		}
		return s.graph.connect(source, target)
	})
}

// DisconnectAllocations removes the edge source → target
func (e *Editor) DisconnectAllocations(source, target string) error {
	return e.mutate("disconnect", func(s *state) error {
		return s.graph.disconnect(source, target)
	})
}

// NodeView is what the canvas renders for one allocation
type NodeView struct {
	Name               string      `json:"name"`
	Allocation         Allocation  `json:"allocation"`
	Rebalancing        Cadence     `json:"rebalancing_frequency,omitempty"`
	IsFallback         bool        `json:"is_fallback"`
	IsStrategyFallback bool        `json:"is_strategy_fallback"`
	Rules              interface{} `json:"rules,omitempty"`
	Expression         string      `json:"expression,omitempty"`
}

// Nodes returns one view per allocation in allocation order
func (e *Editor) Nodes() []NodeView {
	names := e.cur.doc.Allocations.Names()
	views := make([]NodeView, 0, len(names))
	for _, name := range names {
		a, _ := e.cur.doc.Allocations.Get(name)
		v := NodeView{
			Name:               name,
			Allocation:         a.Allocation,
			Rebalancing:        a.Rebalancing,
			IsFallback:         e.derived.IsFallback(name),
			IsStrategyFallback: name == e.cur.doc.FallbackAllocation,
		}
		if rules, ok := e.cur.doc.Binding(name); ok {
			v.Rules = rules.Raw()
			v.Expression = rules.Expression()
		}
		views = append(views, v)
	}
	return views
}

// NodeActions are the per-node callbacks handed to the canvas
type NodeActions struct {
	OnUpdate      func(a NamedAllocation) error
	OnRename      func(newName string) error
	OnDelete      func() error
	OnManageRules func(refs []RuleRef) error
}

// Actions binds the node callbacks for one allocation
func (e *Editor) Actions(name string) NodeActions {
	return NodeActions{
		OnUpdate:      func(a NamedAllocation) error { return e.UpdateAllocation(name, a) },
		OnRename:      func(newName string) error { return e.RenameAllocation(name, newName) },
		OnDelete:      func() error { return e.DeleteAllocation(name) },
		OnManageRules: func(refs []RuleRef) error { return e.SetRuleExpression(name, refs) },
	}
}

// Snapshot is an immutable view of the editor after a commit
type Snapshot struct {
	Revision int64      `json:"revision"`
	Document Document   `json:"document"`
	Edges    []Edge     `json:"edges"`
	Nodes    []NodeView `json:"nodes"`
	Chains   []Chain    `json:"chains"`
}

// Snapshot copies the current state
func (e *Editor) Snapshot() Snapshot {
	return Snapshot{
		Revision: e.revision,
		Document: e.Document(),
		Edges:    e.Edges(),
		Nodes:    e.Nodes(),
		Chains:   e.Decomposition().Chains,
	}
}
