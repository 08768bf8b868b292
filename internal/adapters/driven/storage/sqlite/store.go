package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/packrat-labs/packrat/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/packrat-labs/packrat/internal/core/domain"
	"github.com/packrat-labs/packrat/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to the
// document and embedding store interfaces through wrapper types.
type Store struct {
	db       *sql.DB
	path     string
	registry *domain.ModelRegistry
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.packrat/data/packrat.db.
// The registry is consulted to validate vectors on write and to select
// the distance metric on search.
func NewStore(dataDir string, registry *domain.ModelRegistry) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".packrat", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "packrat.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:       db,
		path:     dbPath,
		registry: registry,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// EmbeddingStore returns an EmbeddingStore interface backed by this store.
func (s *Store) EmbeddingStore() driven.EmbeddingStore {
	return &embeddingStore{store: s}
}

// VectorSearcher returns the model-scoped similarity searcher.
func (s *Store) VectorSearcher() driven.VectorSearcher {
	return &embeddingStore{store: s}
}

// KeywordSearcher returns the FTS5-backed keyword searcher.
func (s *Store) KeywordSearcher() driven.KeywordSearcher {
	return &embeddingStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// Add stores a document, honouring the conflict policy for duplicate
// source IDs. Returns the ID under which the document is stored.
func (s *documentStore) Add(
	ctx context.Context, doc *domain.Document, policy domain.ConflictPolicy,
) (string, error) {
	if doc.ID == "" || !doc.SourceType.Valid() {
		return "", fmt.Errorf("%w: document needs an ID and a valid source type", domain.ErrInvalidInput)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshalling metadata: %w", err)
	}

	if doc.AddedAt.IsZero() {
		doc.AddedAt = time.Now().UTC()
	}

	// A non-empty source ID is a natural key: look it up first so the
	// caller's policy decides what a duplicate means.
	if doc.SourceID != "" {
		existing, err := s.GetBySourceID(ctx, doc.SourceID)
		switch {
		case err == nil:
			if policy == domain.ConflictReject {
				return "", fmt.Errorf("%w: source_id %q", domain.ErrConflict, doc.SourceID)
			}
			_, err = s.store.db.ExecContext(ctx, `
				UPDATE documents
				SET source_type = ?, source_uri = ?, title = ?, metadata = ?, created_at = ?
				WHERE id = ?
			`, string(doc.SourceType), doc.SourceURI, doc.Title, string(metadataJSON),
				nullTime(doc.CreatedAt), existing.ID)
			if err != nil {
				return "", fmt.Errorf("updating document: %w", err)
			}
			return existing.ID, nil

		case !errors.Is(err, domain.ErrNotFound):
			return "", err
		}
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, source_type, source_id, source_uri, title, metadata, created_at, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, string(doc.SourceType), nullString(doc.SourceID), doc.SourceURI,
		doc.Title, string(metadataJSON), nullTime(doc.CreatedAt), doc.AddedAt)

	if err != nil {
		// Lost a race on the unique source_id index.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", fmt.Errorf("%w: source_id %q", domain.ErrConflict, doc.SourceID)
		}
		return "", fmt.Errorf("inserting document: %w", err)
	}

	return doc.ID, nil
}

// GetByID retrieves a document by surrogate key.
func (s *documentStore) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, source_type, source_id, source_uri, title, metadata, created_at, added_at
		FROM documents WHERE id = ?
	`, id)

	return scanDocument(row)
}

// GetBySourceID retrieves a document by its natural key.
func (s *documentStore) GetBySourceID(ctx context.Context, sourceID string) (*domain.Document, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("%w: empty source_id", domain.ErrInvalidInput)
	}

	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, source_type, source_id, source_uri, title, metadata, created_at, added_at
		FROM documents WHERE source_id = ?
	`, sourceID)

	return scanDocument(row)
}

// Delete removes a document and its embeddings. The explicit embedding
// delete fires the FTS triggers; the FK cascade is the backstop.
func (s *documentStore) Delete(ctx context.Context, id string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE document_id = ?", id); err != nil {
		return fmt.Errorf("deleting embeddings: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// nullString maps "" to NULL so the unique source_id index ignores
// documents without a natural key.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// scanDocument scans a single document row.
func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	var sourceType string
	var sourceID sql.NullString
	var metadataJSON string
	var createdAt, addedAt sql.NullTime

	if err := row.Scan(&doc.ID, &sourceType, &sourceID, &doc.SourceURI, &doc.Title,
		&metadataJSON, &createdAt, &addedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.SourceType = domain.SourceType(sourceType)
	doc.SourceID = sourceID.String
	if createdAt.Valid {
		doc.CreatedAt = createdAt.Time
	}
	if addedAt.Valid {
		doc.AddedAt = addedAt.Time
	}

	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	return &doc, nil
}
