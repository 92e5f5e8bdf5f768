package strategy

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/tactical/internal/database"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Record is one persisted strategy session
type Record struct {
	ID        string
	Name      string
	Document  Document
	Edges     []Edge
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is the list view of a strategy session
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Revision    int64     `json:"revision"`
	Allocations int       `json:"allocations"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RevisionInfo describes one stored revision
type RevisionInfo struct {
	Revision  int64     `json:"revision"`
	Operation string    `json:"operation"`
	CreatedAt time.Time `json:"created_at"`
}

// revisionSnapshot is the msgpack payload of a revision row
type revisionSnapshot struct {
	Document Document
	Edges    []Edge
}

// Repository handles strategy database operations
// Database: strategies.db (strategies, strategy_revisions tables)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new strategy repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "strategy").Logger(),
	}
}

// Save upserts the session row and records its revision snapshot in one transaction
func (r *Repository) Save(rec Record, operation string) error {
	docJSON, err := json.Marshal(rec.Document)
	if err != nil {
		return fmt.Errorf("failed to encode strategy document: %w", err)
	}
	edges := rec.Edges
	if edges == nil {
		edges = []Edge{}
	}
	edgesJSON, err := json.Marshal(edges)
	if err != nil {
		return fmt.Errorf("failed to encode strategy edges: %w", err)
	}
	snapshot, err := msgpack.Marshal(revisionSnapshot{Document: rec.Document, Edges: edges})
	if err != nil {
		return fmt.Errorf("failed to encode revision snapshot: %w", err)
	}

	now := time.Now().Unix()
	created := now
	if !rec.CreatedAt.IsZero() {
		created = rec.CreatedAt.Unix()
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO strategies (id, name, document, edges, revision, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				document = excluded.document,
				edges = excluded.edges,
				revision = excluded.revision,
				updated_at = excluded.updated_at`,
			rec.ID, rec.Name, string(docJSON), string(edgesJSON), rec.Revision, created, now)
		if err != nil {
			return fmt.Errorf("failed to save strategy %s: %w", rec.ID, err)
		}

		_, err = tx.Exec(`
			INSERT OR REPLACE INTO strategy_revisions (strategy_id, revision, operation, snapshot, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			rec.ID, rec.Revision, operation, snapshot, now)
		if err != nil {
			return fmt.Errorf("failed to record revision %d of strategy %s: %w", rec.Revision, rec.ID, err)
		}
		return nil
	})
}

// Load returns one session
func (r *Repository) Load(id string) (*Record, error) {
	var (
		rec                 Record
		docJSON, edgesJSON  string
		createdAt, updateAt int64
	)
	err := r.db.QueryRow(`
		SELECT id, name, document, edges, revision, created_at, updated_at
		FROM strategies WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Name, &docJSON, &edgesJSON, &rec.Revision, &createdAt, &updateAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrStrategyNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy %s: %w", id, err)
	}

	rec.Document, err = ParseDocument([]byte(docJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored strategy %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(edgesJSON), &rec.Edges); err != nil {
		return nil, fmt.Errorf("failed to decode stored edges for %s: %w", id, err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updateAt, 0).UTC()
	return &rec, nil
}

// List returns every session, most recently updated first
func (r *Repository) List() ([]Summary, error) {
	rows, err := r.db.Query(`
		SELECT id, name, document, revision, created_at, updated_at
		FROM strategies ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var (
			s                  Summary
			docJSON            string
			createdAt, updated int64
		)
		if err := rows.Scan(&s.ID, &s.Name, &docJSON, &s.Revision, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		var doc Document
		if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
			r.log.Warn().Err(err).Str("strategy_id", s.ID).Msg("Stored strategy document is unreadable")
		}
		s.Allocations = doc.Allocations.Len()
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		s.UpdatedAt = time.Unix(updated, 0).UTC()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategies: %w", err)
	}
	return summaries, nil
}

// Delete removes a session and its revisions
func (r *Repository) Delete(id string) error {
	res, err := r.db.Exec("DELETE FROM strategies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete strategy %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete strategy %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrStrategyNotFound, id)
	}
	return nil
}

// Revisions lists stored revisions, newest first
func (r *Repository) Revisions(id string) ([]RevisionInfo, error) {
	rows, err := r.db.Query(`
		SELECT revision, operation, created_at
		FROM strategy_revisions WHERE strategy_id = ?
		ORDER BY revision DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions for %s: %w", id, err)
	}
	defer rows.Close()

	revisions := []RevisionInfo{}
	for rows.Next() {
		var info RevisionInfo
		var createdAt int64
		if err := rows.Scan(&info.Revision, &info.Operation, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		info.CreatedAt = time.Unix(createdAt, 0).UTC()
		revisions = append(revisions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}
	return revisions, nil
}

// LoadRevision decodes one stored revision snapshot
func (r *Repository) LoadRevision(id string, revision int64) (Document, []Edge, error) {
	var blob []byte
	err := r.db.QueryRow(`
		SELECT snapshot FROM strategy_revisions
		WHERE strategy_id = ? AND revision = ?`, id, revision,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, nil, fmt.Errorf("%w: %s@%d", ErrRevisionNotFound, id, revision)
	}
	if err != nil {
		return Document{}, nil, fmt.Errorf("failed to load revision %d of %s: %w", revision, id, err)
	}

	var snap revisionSnapshot
	if err := msgpack.Unmarshal(blob, &snap); err != nil {
		return Document{}, nil, fmt.Errorf("failed to decode revision %d of %s: %w", revision, id, err)
	}
	return snap.Document, snap.Edges, nil
}

// PruneRevisions keeps the newest keep revisions of a strategy
func (r *Repository) PruneRevisions(id string, keep int) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM strategy_revisions
		WHERE strategy_id = ? AND revision NOT IN (
			SELECT revision FROM strategy_revisions
			WHERE strategy_id = ? ORDER BY revision DESC LIMIT ?
		)`, id, id, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune revisions for %s: %w", id, err)
	}
	return res.RowsAffected()
}
