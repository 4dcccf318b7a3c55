package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kura/internal/models"
)

const (
	keyEmbeddingModel = "embedding_model"
	keyDimensions     = "dimensions"
	keyChunkCount     = "chunk_count"
	keyCreatedAt      = "created_at"
)

// SQLiteChunkStore implements ChunkStore in a single SQLite file. The rollback journal
// is used (not WAL) so that a closed database is exactly one file.
type SQLiteChunkStore struct {
	db *sql.DB
}

// CreateSQLiteChunkStore creates a new sidecar at path. The file must not exist yet.
func CreateSQLiteChunkStore(path string) (*SQLiteChunkStore, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("sidecar already exists: %s", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sidecar: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteChunkStore{db: db}, nil
}

// OpenSQLiteChunkStore opens an existing sidecar read-only.
func OpenSQLiteChunkStore(path string) (*SQLiteChunkStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("failed to open sidecar: %w", err)
	}
	dsn := (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro&immutable=1"}).String()
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sidecar: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open sidecar: %w", err)
	}
	return &SQLiteChunkStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE manifest (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE chunks (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		content TEXT NOT NULL,
		source TEXT NOT NULL,
		page INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// WriteManifest stores m, replacing any previous manifest.
func (s *SQLiteChunkStore) WriteManifest(ctx context.Context, m Manifest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	values := map[string]string{
		keyEmbeddingModel: m.EmbeddingModel,
		keyDimensions:     strconv.Itoa(m.Dimensions),
		keyChunkCount:     strconv.Itoa(m.ChunkCount),
		keyCreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO manifest (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("write manifest %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// ReadManifest returns the stored manifest. Every key must be present.
func (s *SQLiteChunkStore) ReadManifest(ctx context.Context) (*Manifest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM manifest`)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, k := range []string{keyEmbeddingModel, keyDimensions, keyChunkCount, keyCreatedAt} {
		if _, ok := values[k]; !ok {
			return nil, fmt.Errorf("manifest missing %q", k)
		}
	}

	m := &Manifest{EmbeddingModel: values[keyEmbeddingModel]}
	if m.Dimensions, err = strconv.Atoi(values[keyDimensions]); err != nil {
		return nil, fmt.Errorf("manifest dimensions: %w", err)
	}
	if m.ChunkCount, err = strconv.Atoi(values[keyChunkCount]); err != nil {
		return nil, fmt.Errorf("manifest chunk_count: %w", err)
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, values[keyCreatedAt]); err != nil {
		return nil, fmt.Errorf("manifest created_at: %w", err)
	}
	return m, nil
}

// WriteChunks inserts chunks in a transaction, recording their order.
func (s *SQLiteChunkStore) WriteChunks(ctx context.Context, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (position, id, content, source, page, chunk_index)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, i, c.ID, c.Content, c.Metadata.Source, c.Metadata.Page, c.Metadata.ChunkIndex); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ReadChunks returns all chunks ordered by insertion position.
func (s *SQLiteChunkStore) ReadChunks(ctx context.Context) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, source, page, chunk_index FROM chunks ORDER BY position`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.Content, &c.Metadata.Source, &c.Metadata.Page, &c.Metadata.ChunkIndex); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountChunks returns the number of stored chunks.
func (s *SQLiteChunkStore) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteChunkStore) Close() error {
	return s.db.Close()
}

// IsNotExist reports whether err came from a missing sidecar file.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
