// Package cache provides a SQLite-backed store of recognizer responses so
// repeated runs over the same text do not call the service again.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/daniel-butler/entity-meta/pkg/metrics"
	"github.com/daniel-butler/entity-meta/pkg/ner"
)

// Store persists recognizer responses keyed by request.
type Store struct {
	db *sql.DB
}

// Entry is a cached response.
type Entry struct {
	Key       string
	Backend   string
	Entities  []ner.Entity
	CreatedAt time.Time
}

// NewStore creates or opens a cache database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS responses (
			key TEXT PRIMARY KEY,
			backend TEXT NOT NULL,
			language TEXT NOT NULL,
			entities TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_responses_backend ON responses(backend);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Key identifies a request by backend, language and text.
func Key(backend, languageCode, text string) string {
	h := sha256.New()
	h.Write([]byte(backend))
	h.Write([]byte{0})
	h.Write([]byte(languageCode))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached entry for key, or nil if there is none.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT key, backend, entities, created_at FROM responses WHERE key = ?",
		key,
	)

	entry := &Entry{}
	var raw string
	err := row.Scan(&entry.Key, &entry.Backend, &raw, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(raw), &entry.Entities); err != nil {
		return nil, fmt.Errorf("decoding cached entities for %s: %w", key, err)
	}
	return entry, nil
}

// Put stores entities under key, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key, backend, languageCode string, entities []ner.Entity) error {
	if entities == nil {
		entities = []ner.Entity{}
	}
	raw, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("encoding entities: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO responses (key, backend, language, entities)
		 VALUES (?, ?, ?, ?)`,
		key, backend, languageCode, string(raw),
	)
	return err
}

// Count returns the number of cached responses.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM responses").Scan(&n)
	return n, err
}

// Recognizer serves responses from a Store and falls back to an inner
// recognizer on a miss. Errors from the inner recognizer are not cached.
type Recognizer struct {
	inner   ner.Recognizer
	store   *Store
	backend string
	metrics *metrics.Metrics
}

// NewRecognizer wraps inner. backend namespaces the cache keys; m may be nil.
func NewRecognizer(inner ner.Recognizer, store *Store, backend string, m *metrics.Metrics) *Recognizer {
	return &Recognizer{
		inner:   inner,
		store:   store,
		backend: backend,
		metrics: m,
	}
}

// DetectEntities implements ner.Recognizer.
func (r *Recognizer) DetectEntities(ctx context.Context, text, languageCode string) ([]ner.Entity, error) {
	key := Key(r.backend, languageCode, text)

	entry, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	if entry != nil {
		if r.metrics != nil {
			r.metrics.CacheHits.Inc()
		}
		return entry.Entities, nil
	}
	if r.metrics != nil {
		r.metrics.CacheMisses.Inc()
	}

	entities, err := r.inner.DetectEntities(ctx, text, languageCode)
	if err != nil {
		return nil, err
	}

	if err := r.store.Put(ctx, key, r.backend, languageCode, entities); err != nil {
		return nil, fmt.Errorf("writing cache: %w", err)
	}
	return entities, nil
}
