// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// Store provides SQLite persistence for the video catalog.
type Store struct {
	db *sql.DB
}

// NewStore opens the catalog database and runs migrations. WAL mode and a
// busy timeout suit the read-heavy polling workload.
func NewStore(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database still answers. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL,
		uploader TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'processing' CHECK(status IN ('processing', 'ready', 'error')),
		qualities TEXT NOT NULL DEFAULT '[]',
		hls_url TEXT NOT NULL DEFAULT '',
		views INTEGER NOT NULL DEFAULT 0,
		likes INTEGER NOT NULL DEFAULT 0,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		processed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_videos_created ON videos(created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_videos_status ON videos(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create inserts a new catalog entry.
func (s *Store) Create(ctx context.Context, v Video) error {
	qualities, err := json.Marshal(v.Qualities)
	if err != nil {
		return err
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if v.Status == "" {
		v.Status = StatusProcessing
	}
	query := `
	INSERT INTO videos (id, title, description, filename, uploader, status, qualities, hls_url,
		views, likes, duration_seconds, width, height, size_bytes, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		v.ID, v.Title, v.Description, v.Filename, v.Uploader, string(v.Status), string(qualities),
		v.HLSURL, v.Views, v.Likes, v.DurationSeconds, v.Width, v.Height, v.SizeBytes,
		v.CreatedAt.Format(time.RFC3339),
	)
	return err
}

const videoColumns = `id, title, description, filename, uploader, status, qualities, hls_url,
	views, likes, duration_seconds, width, height, size_bytes, created_at, processed_at`

func scanVideo(row interface{ Scan(...any) error }) (Video, error) {
	var (
		v           Video
		status      string
		qualities   string
		createdAt   string
		processedAt sql.NullString
	)
	if err := row.Scan(&v.ID, &v.Title, &v.Description, &v.Filename, &v.Uploader, &status,
		&qualities, &v.HLSURL, &v.Views, &v.Likes, &v.DurationSeconds, &v.Width, &v.Height,
		&v.SizeBytes, &createdAt, &processedAt); err != nil {
		return v, err
	}
	v.Status = Status(status)
	if err := json.Unmarshal([]byte(qualities), &v.Qualities); err != nil {
		v.Qualities = nil
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		v.CreatedAt = t
	}
	if processedAt.Valid {
		if t, err := time.Parse(time.RFC3339, processedAt.String); err == nil {
			v.ProcessedAt = &t
		}
	}
	return v, nil
}

// Get retrieves a single video by ID.
func (s *Store) Get(ctx context.Context, id string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns one page of videos, newest first. Ordering is stable
// (created_at DESC, id DESC) so pagination is deterministic for a static
// set; concurrent inserts may shift page boundaries, which callers accept.
func (s *Store) List(ctx context.Context, page, limit int) ([]Video, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 12
	}
	offset := (page - 1) * limit

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var videos []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// Search matches query against title and description, newest first.
func (s *Store) Search(ctx context.Context, query string) ([]Video, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos
		 WHERE title LIKE ? OR description LIKE ?
		 ORDER BY created_at DESC, id DESC LIMIT 100`,
		pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var videos []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// UpdateMetadata changes title and description, restricted to the uploader.
func (s *Store) UpdateMetadata(ctx context.Context, id, caller, title, description string) (*Video, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Uploader != "" && v.Uploader != caller {
		return nil, ErrForbidden
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE videos SET title = ?, description = ? WHERE id = ?`,
		title, description, id)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// SetReady publishes a finished transcode: status, quality ladder, manifest
// URL and probed media attributes in one statement so pollers never observe
// a half-applied transition.
func (s *Store) SetReady(ctx context.Context, id string, qualities []string, hlsURL string, durationSeconds, width, height int) error {
	buf, err := json.Marshal(qualities)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET status = ?, qualities = ?, hls_url = ?, duration_seconds = ?,
			width = ?, height = ?, processed_at = ?
		 WHERE id = ?`,
		string(StatusReady), string(buf), hlsURL, durationSeconds, width, height,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// SetError marks a video's processing as terminally failed.
func (s *Store) SetError(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET status = ?, processed_at = ? WHERE id = ?`,
		string(StatusError), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// IncrementViews bumps the view counter. Lost updates under extreme
// concurrency are acceptable (eventual-count semantics).
func (s *Store) IncrementViews(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE videos SET views = views + 1 WHERE id = ?`, id)
	return err
}

// IncrementLikes bumps the like counter.
func (s *Store) IncrementLikes(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE videos SET likes = likes + 1 WHERE id = ?`, id)
	return err
}

// AddCounts applies buffered counter deltas (Redis flush path).
func (s *Store) AddCounts(ctx context.Context, id string, views, likes int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE videos SET views = views + ?, likes = likes + ? WHERE id = ?`,
		views, likes, id)
	return err
}

// Delete removes a catalog entry. Removing HLS artifacts is the caller's
// concern (the API layer knows the storage layout).
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
