package strategy

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aristath/tactical/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// View is a strategy session as returned to API callers
type View struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Snapshot
	Valid       bool     `json:"valid"`
	Validation  []string `json:"validation,omitempty"`
	LastUpdated string   `json:"last_operation"`
}

// Exported is a strategy as written to backup archives
type Exported struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Revision int64           `json:"revision"`
	Document json.RawMessage `json:"document"`
	Edges    []Edge          `json:"edges"`
}

type session struct {
	mu        sync.Mutex
	id        string
	name      string
	createdAt time.Time
	editor    *Editor
}

// Service manages strategy sessions. Each session owns one Editor; calls on
// the same session are serialized and every committed edit is persisted
// before the call returns.
type Service struct {
	repo         *Repository
	events       *events.Manager
	defaults     Defaults
	maxRevisions int

	mu       sync.Mutex
	sessions map[string]*session

	log zerolog.Logger
}

// NewService creates a new strategy service. maxRevisions <= 0 keeps every revision.
func NewService(repo *Repository, eventManager *events.Manager, defaults Defaults, maxRevisions int, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		events:       eventManager,
		defaults:     defaults,
		maxRevisions: maxRevisions,
		sessions:     make(map[string]*session),
		log:          log.With().Str("service", "strategy").Logger(),
	}
}

// Defaults returns the values new documents are seeded with
func (s *Service) Defaults() Defaults {
	return s.defaults
}

// Create starts a new session. A nil doc starts from an empty document.
func (s *Service) Create(name string, doc *Document) (View, error) {
	base := NewDocument(s.defaults)
	if doc != nil {
		base = *doc
	}
	return s.create(name, base, nil, "create")
}

// ImportExported recreates a backed-up strategy, edges included, as a new session
func (s *Service) ImportExported(exp Exported) (View, error) {
	doc, err := ParseDocument(exp.Document)
	if err != nil {
		return View{}, err
	}
	return s.create(exp.Name, doc, exp.Edges, "import")
}

func (s *Service) create(name string, doc Document, edges []Edge, operation string) (View, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Untitled strategy"
	}

	editor, err := NewEditor(doc, edges, s.log)
	if err != nil {
		return View{}, err
	}

	sess := &session{
		id:        uuid.New().String(),
		name:      name,
		createdAt: time.Now().UTC(),
		editor:    editor,
	}
	if err := s.persist(sess, operation); err != nil {
		return View{}, err
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.emitLifecycle(events.StrategyCreated, sess)
	s.log.Info().Str("strategy_id", sess.id).Str("name", name).Msg("Strategy created")

	return s.view(sess), nil
}

// Import creates a session from an untrusted JSON document
func (s *Service) Import(name string, data []byte) (View, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return View{}, err
	}
	return s.Create(name, &doc)
}

// session returns the cached session for id, loading it from storage on first use
func (s *Service) session(id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}

	rec, err := s.repo.Load(id)
	if err != nil {
		return nil, err
	}
	editor, err := newEditorAt(rec.Document, rec.Edges, rec.Revision, s.log)
	if err != nil {
		return nil, fmt.Errorf("failed to open strategy %s: %w", id, err)
	}

	sess := &session{id: rec.ID, name: rec.Name, createdAt: rec.CreatedAt, editor: editor}
	s.sessions[id] = sess
	return sess, nil
}

// Get returns the current view of a session
func (s *Service) Get(id string) (View, error) {
	sess, err := s.session(id)
	if err != nil {
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.view(sess), nil
}

// List returns every stored session
func (s *Service) List() ([]Summary, error) {
	return s.repo.List()
}

// Delete removes a session and its history
func (s *Service) Delete(id string) error {
	if err := s.repo.Delete(id); err != nil {
		return err
	}

	s.mu.Lock()
	sess := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	name := ""
	if sess != nil {
		name = sess.name
	}
	s.events.EmitTyped("strategy", &events.StrategyLifecycleData{
		StrategyID: id,
		Name:       name,
		Type:       events.StrategyDeleted,
	})
	s.log.Info().Str("strategy_id", id).Msg("Strategy deleted")
	return nil
}

// Mutate applies fn to the session's editor. If fn commits at least one
// edit the new state is persisted; when persistence fails the editor is
// rolled back and the error returned.
func (s *Service) Mutate(id string, fn func(e *Editor) error) (View, error) {
	sess, err := s.session(id)
	if err != nil {
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	e := sess.editor
	prev, prevRevision, prevOp := e.cur.clone(), e.revision, e.lastOp

	if err := fn(e); err != nil {
		if e.revision != prevRevision {
			e.rollback(prev, prevRevision, prevOp)
		}
		return View{}, err
	}
	if e.revision == prevRevision {
		return s.view(sess), nil
	}

	if err := s.persist(sess, e.lastOp); err != nil {
		e.rollback(prev, prevRevision, prevOp)
		return View{}, err
	}

	s.events.EmitTyped("strategy", &events.StrategyChangedData{
		StrategyID: sess.id,
		Revision:   e.revision,
		Operation:  e.lastOp,
	})
	return s.view(sess), nil
}

// Read runs fn against the session's editor without committing anything
func (s *Service) Read(id string, fn func(e *Editor) error) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess.editor)
}

// Export returns the session document as canonical indented JSON
func (s *Service) Export(id string) ([]byte, error) {
	var data []byte
	err := s.Read(id, func(e *Editor) error {
		var err error
		data, err = e.cur.doc.Export()
		return err
	})
	return data, err
}

// Revisions lists the stored revisions of a session
func (s *Service) Revisions(id string) ([]RevisionInfo, error) {
	if _, err := s.session(id); err != nil {
		return nil, err
	}
	return s.repo.Revisions(id)
}

// Restore commits a stored revision as the newest revision
func (s *Service) Restore(id string, revision int64) (View, error) {
	doc, edges, err := s.repo.LoadRevision(id, revision)
	if err != nil {
		return View{}, err
	}
	v, err := s.Mutate(id, func(e *Editor) error {
		return e.Restore(doc, edges)
	})
	if err != nil {
		return View{}, err
	}
	s.events.Emit(events.StrategyRestored, "strategy", map[string]interface{}{
		"strategy_id":   id,
		"from_revision": revision,
		"revision":      v.Revision,
	})
	return v, nil
}

// ExportAll returns every stored strategy for backups
func (s *Service) ExportAll() ([]Exported, error) {
	summaries, err := s.repo.List()
	if err != nil {
		return nil, err
	}

	out := make([]Exported, 0, len(summaries))
	for _, summary := range summaries {
		v, err := s.Get(summary.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to export strategy %s: %w", summary.ID, err)
		}
		data, err := json.Marshal(v.Document)
		if err != nil {
			return nil, fmt.Errorf("failed to export strategy %s: %w", summary.ID, err)
		}
		out = append(out, Exported{
			ID:       v.ID,
			Name:     v.Name,
			Revision: v.Revision,
			Document: data,
			Edges:    v.Edges,
		})
	}
	return out, nil
}

// persist saves the session and trims old revisions; caller holds sess.mu
// or owns sess exclusively
func (s *Service) persist(sess *session, operation string) error {
	e := sess.editor
	rec := Record{
		ID:        sess.id,
		Name:      sess.name,
		Document:  e.cur.doc,
		Edges:     e.cur.graph.Edges(),
		Revision:  e.revision,
		CreatedAt: sess.createdAt,
	}
	if err := s.repo.Save(rec, operation); err != nil {
		return err
	}

	if s.maxRevisions > 0 {
		if _, err := s.repo.PruneRevisions(sess.id, s.maxRevisions); err != nil {
			s.log.Warn().Err(err).Str("strategy_id", sess.id).Msg("Failed to prune revisions")
		}
	}
	return nil
}

func (s *Service) view(sess *session) View {
	v := View{
		ID:          sess.id,
		Name:        sess.name,
		Snapshot:    sess.editor.Snapshot(),
		Valid:       true,
		LastUpdated: sess.editor.LastOperation(),
	}
	if err := sess.editor.Validate(); err != nil {
		v.Valid = false
		if verrs, ok := err.(ValidationErrors); ok {
			for _, ve := range verrs {
				v.Validation = append(v.Validation, ve.Error())
			}
		} else {
			v.Validation = []string{err.Error()}
		}
	}
	return v
}

func (s *Service) emitLifecycle(eventType events.EventType, sess *session) {
	s.events.EmitTyped("strategy", &events.StrategyLifecycleData{
		StrategyID: sess.id,
		Name:       sess.name,
		Type:       eventType,
	})
}
