package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// DBFileName is the database file created inside the data directory.
const DBFileName = "tender.db"

// Store is a SQLite-backed vector store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.tender/data/tender.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".tender", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %w", domain.ErrStoreUnavailable, err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", domain.ErrStoreUnavailable, err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: running migrations: %w", domain.ErrStoreUnavailable, err)
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

// Ping checks the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// EnsureCollection creates c if missing and checks compatibility otherwise.
func (s *Store) EnsureCollection(ctx context.Context, c domain.Collection) error {
	existing, err := s.GetCollection(ctx, c.Name)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	if existing == nil {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO collections (name, provider, model, dimensions, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO NOTHING
		`, c.Name, c.Provider, c.Model, c.Dimensions, createdAt)
		if err != nil {
			return fmt.Errorf("%w: creating collection %s: %w", domain.ErrPersistence, c.Name, err)
		}
		return nil
	}

	if !existing.Compatible(c) {
		return fmt.Errorf("%w: collection %q holds %s/%s (%d dims), got %s/%s (%d dims)",
			domain.ErrCollectionMismatch, c.Name,
			existing.Provider, existing.Model, existing.Dimensions,
			c.Provider, c.Model, c.Dimensions)
	}

	if existing.Dimensions == 0 && c.Dimensions > 0 {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE collections SET dimensions = ? WHERE name = ?`, c.Dimensions, c.Name); err != nil {
			return fmt.Errorf("%w: updating collection %s: %w", domain.ErrPersistence, c.Name, err)
		}
	}
	return nil
}

// UpsertBatch writes records in one transaction, replacing existing IDs.
func (s *Store) UpsertBatch(ctx context.Context, collection string, records []domain.Record) error {
	if err := s.requireCollection(ctx, collection); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", domain.ErrPersistence, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, content, source, section, page, vector, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			content = excluded.content,
			source = excluded.source,
			section = excluded.section,
			page = excluded.page,
			vector = excluded.vector,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("%w: preparing upsert: %w", domain.ErrPersistence, err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, collection, r.ID, r.Chunk.Content, r.Chunk.Source,
			r.Chunk.Section, nullPage(r.Chunk.Page), float32SliceToBytes(r.Vector), now); err != nil {
			return fmt.Errorf("%w: upserting chunk %s: %w", domain.ErrPersistence, r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing batch: %w", domain.ErrPersistence, err)
	}
	return nil
}

// Insert writes one record, failing with ErrDuplicate when the ID exists.
func (s *Store) Insert(ctx context.Context, collection string, r domain.Record) error {
	if err := s.requireCollection(ctx, collection); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (collection, id, content, source, section, page, vector, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO NOTHING
	`, collection, r.ID, r.Chunk.Content, r.Chunk.Source, r.Chunk.Section,
		nullPage(r.Chunk.Page), float32SliceToBytes(r.Vector), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: inserting chunk %s: %w", domain.ErrPersistence, r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: inserting chunk %s: %w", domain.ErrPersistence, r.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicate, r.ID)
	}
	return nil
}

// Flush checkpoints the write-ahead log.
func (s *Store) Flush(ctx context.Context, collection string) error {
	if err := s.requireCollection(ctx, collection); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(PASSIVE)`); err != nil {
		return fmt.Errorf("%w: checkpoint: %w", domain.ErrPersistence, err)
	}
	return nil
}

// Search scores every chunk of the collection by cosine similarity.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if err := s.requireCollection(ctx, collection); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, source, section, page, vector
		FROM chunks WHERE collection = ?
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: querying chunks: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var (
			id   string
			c    domain.Chunk
			page sql.NullInt64
			blob []byte
		)
		if err := rows.Scan(&id, &c.Content, &c.Source, &c.Section, &page, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if page.Valid {
			p := int(page.Int64)
			c.Page = &p
		}
		if !opts.Matches(c) {
			continue
		}
		results = append(results, domain.SearchResult{
			ID:    id,
			Chunk: c,
			Score: domain.Cosine(vector, bytesToFloat32Slice(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return domain.RankResults(results, opts.EffectiveLimit()), nil
}

// GetCollection returns collection metadata with its chunk count.
func (s *Store) GetCollection(ctx context.Context, name string) (*domain.Collection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.name, c.provider, c.model, c.dimensions, c.created_at,
			(SELECT COUNT(*) FROM chunks WHERE collection = c.name)
		FROM collections c WHERE c.name = ?
	`, name)

	var c domain.Collection
	if err := row.Scan(&c.Name, &c.Provider, &c.Model, &c.Dimensions, &c.CreatedAt, &c.Count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: scanning collection: %w", domain.ErrPersistence, err)
	}
	return &c, nil
}

// ListCollections returns every collection sorted by name.
func (s *Store) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name, c.provider, c.model, c.dimensions, c.created_at,
			(SELECT COUNT(*) FROM chunks WHERE collection = c.name)
		FROM collections c ORDER BY c.name
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing collections: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.Collection
	for rows.Next() {
		var c domain.Collection
		if err := rows.Scan(&c.Name, &c.Provider, &c.Model, &c.Dimensions, &c.CreatedAt, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCollection removes a collection and its chunks.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("%w: deleting collection %s: %w", domain.ErrPersistence, name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	return nil
}

// Reset removes every collection and chunk.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning reset: %w", domain.ErrPersistence, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, q := range []string{`DELETE FROM chunks`, `DELETE FROM collections`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("%w: reset: %w", domain.ErrPersistence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing reset: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (s *Store) requireCollection(ctx context.Context, name string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE name = ?`, name).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	case err != nil:
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
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

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_init.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Helper Functions ====================

func nullPage(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
