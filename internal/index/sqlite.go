package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/recvault/recvault/internal/models"
)

const sqlSchemaVersion = 1

// SQLIndex implements Index using SQLite.
type SQLIndex struct {
	db *sql.DB
}

// NewSQLIndex opens or creates a SQLite database at the given path.
func NewSQLIndex(dbPath string) (*SQLIndex, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)")
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}

	s := &SQLIndex{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the schema if needed.
func (s *SQLIndex) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		path TEXT NOT NULL,
		status TEXT NOT NULL,
		created_unix INTEGER NOT NULL,
		updated_unix INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recordings_created ON recordings(created_unix, id);
	CREATE INDEX IF NOT EXISTS idx_recordings_source ON recordings(source);

	CREATE TABLE IF NOT EXISTS index_schema_version (
		version INTEGER PRIMARY KEY
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO index_schema_version (version) VALUES (?)`, sqlSchemaVersion,
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLIndex) Close() error {
	return s.db.Close()
}

// Put upserts a record in a single statement.
func (s *SQLIndex) Put(ctx context.Context, rec *models.Recording) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recordings (id, source, name, content_type, size, path, status, created_unix, updated_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			name = excluded.name,
			content_type = excluded.content_type,
			size = excluded.size,
			path = excluded.path,
			status = excluded.status,
			created_unix = excluded.created_unix,
			updated_unix = excluded.updated_unix`,
		rec.ID, rec.Source, rec.Name, rec.ContentType, rec.Size, rec.Path,
		string(rec.Status), rec.CreatedAt.UTC().UnixNano(), rec.UpdatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert recording: %w", err)
	}
	return nil
}

// Get retrieves a record by id. Returns ErrNotFound if missing.
func (s *SQLIndex) Get(ctx context.Context, id string) (*models.Recording, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, name, content_type, size, path, status, created_unix, updated_unix
		FROM recordings WHERE id = ?`, id)

	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// List returns records in creation-time order with cursor pagination.
func (s *SQLIndex) List(ctx context.Context, opts ListOptions) ([]*models.Recording, string, error) {
	query := `
		SELECT id, source, name, content_type, size, path, status, created_unix, updated_unix
		FROM recordings WHERE 1=1`
	var args []any

	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	if opts.Source != "" {
		query += ` AND source = ?`
		args = append(args, opts.Source)
	}
	if opts.After != "" {
		nanos, id, err := parseTimeKey(opts.After)
		if err != nil {
			return nil, "", err
		}
		query += ` AND (created_unix > ? OR (created_unix = ? AND id > ?))`
		args = append(args, nanos, nanos, id)
	}

	query += ` ORDER BY created_unix ASC, id ASC`
	if opts.Limit > 0 {
		// Fetch one extra row to detect whether a next page exists.
		query += ` LIMIT ?`
		args = append(args, opts.Limit+1)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var recs []*models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan recording: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("list recordings: %w", err)
	}

	var next string
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
		next = timeKey(recs[len(recs)-1])
	}
	return recs, next, nil
}

// Delete removes a record. Returns ErrNotFound if missing.
func (s *SQLIndex) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus performs a compare-and-swap on a record's lifecycle status.
// The conditional UPDATE is the atomic step; the follow-up read only
// classifies a failed swap as missing or conflicting.
func (s *SQLIndex) SetStatus(ctx context.Context, id string, from, to models.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recordings SET status = ?, updated_unix = ?
		WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC().UnixNano(), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM recordings WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	return fmt.Errorf("%w: recording %s is %s, expected %s", ErrConflict, id, current, from)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (*models.Recording, error) {
	var (
		rec     models.Recording
		status  string
		created int64
		updated int64
	)
	err := row.Scan(&rec.ID, &rec.Source, &rec.Name, &rec.ContentType,
		&rec.Size, &rec.Path, &status, &created, &updated)
	if err != nil {
		return nil, err
	}
	rec.Status = models.Status(status)
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	return &rec, nil
}
