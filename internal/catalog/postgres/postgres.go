// Package postgres provides a PostgreSQL-backed catalog with metrics.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fruitsalade/renditions/internal/logging"
	"github.com/fruitsalade/renditions/internal/media"
	"github.com/fruitsalade/renditions/internal/mediaerr"
	"github.com/fruitsalade/renditions/internal/metrics"
)

//go:embed migrations
var migrationsFS embed.FS

// Store is a PostgreSQL catalog.
type Store struct {
	db *sql.DB
}

// New opens a connection pool to databaseURL and verifies it.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpdateConnectionMetrics updates the database connection metrics.
func (s *Store) UpdateConnectionMetrics() {
	stats := s.db.Stats()
	metrics.SetDBConnectionsOpen(stats.OpenConnections)
}

// Migrate applies all pending up migrations embedded in the binary.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	m.Log = migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	ver, dirty, _ := m.Version()
	logging.Info("database migrations applied", zap.Uint("version", ver), zap.Bool("dirty", dirty))
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logging.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), zap.String("component", "migrate"))
}

func (migrateLogger) Verbose() bool { return false }

func observe(query string, start time.Time) {
	metrics.RecordDBQuery(query, time.Since(start))
}

// CreateMediaFile inserts a media file. A non-empty m.ID is kept as given.
func (s *Store) CreateMediaFile(ctx context.Context, m *media.MediaFile) (string, error) {
	defer observe("create_media_file", time.Now())

	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media_files (id, user_id, storage_key, file_name, content_type, size, width, height, is_public, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, m.UserID, m.StorageKey, m.FileName, m.ContentType, m.Size, m.Width, m.Height, m.IsPublic, createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert media file: %w", err)
	}
	return id, nil
}

// GetMediaFile returns the media file with id.
func (s *Store) GetMediaFile(ctx context.Context, id string) (*media.MediaFile, error) {
	defer observe("get_media_file", time.Now())

	m := &media.MediaFile{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, storage_key, file_name, content_type, size, width, height, is_public, created_at
		FROM media_files WHERE id = $1`, id,
	).Scan(&m.ID, &m.UserID, &m.StorageKey, &m.FileName, &m.ContentType, &m.Size, &m.Width, &m.Height, &m.IsPublic, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mediaerr.NotFound("media file", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query media file: %w", err)
	}
	return m, nil
}

// ListMediaIDs returns all media IDs, oldest first.
func (s *Store) ListMediaIDs(ctx context.Context) ([]string, error) {
	defer observe("list_media_ids", time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM media_files ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query media ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan media id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetVariants returns the variants of mediaID in creation order.
func (s *Store) GetVariants(ctx context.Context, mediaID string) ([]*media.Variant, error) {
	defer observe("get_variants", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_id, storage_key, kind, format, width, height, size, quality,
			processing_settings, visibility, available, created_at
		FROM variants WHERE media_id = $1 ORDER BY seq`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	var out []*media.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variants: %w", err)
	}
	return out, nil
}

func scanVariant(rows *sql.Rows) (*media.Variant, error) {
	var (
		v          media.Variant
		quality    sql.NullInt64
		settings   []byte
		visibility string
	)
	if err := rows.Scan(&v.ID, &v.MediaID, &v.StorageKey, &v.Kind, &v.Format, &v.Width, &v.Height, &v.Size,
		&quality, &settings, &visibility, &v.Available, &v.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan variant: %w", err)
	}
	if quality.Valid {
		q := int(quality.Int64)
		v.Quality = &q
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &v.Settings); err != nil {
			return nil, fmt.Errorf("decode processing settings of %s: %w", v.ID, err)
		}
	}
	v.Visibility = media.Visibility(visibility)
	return &v, nil
}

// CreateVariant inserts v under a new ID.
func (s *Store) CreateVariant(ctx context.Context, v *media.Variant) (string, error) {
	defer observe("create_variant", time.Now())

	settings, err := json.Marshal(v.Settings)
	if err != nil {
		return "", fmt.Errorf("encode processing settings: %w", err)
	}
	var quality sql.NullInt64
	if v.Quality != nil {
		quality = sql.NullInt64{Int64: int64(*v.Quality), Valid: true}
	}
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO variants (id, media_id, storage_key, kind, format, width, height, size, quality,
			processing_settings, visibility, available, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, v.MediaID, v.StorageKey, v.Kind, string(v.Format), v.Width, v.Height, v.Size, quality,
		settings, string(v.Visibility), v.Available, createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert variant: %w", err)
	}
	return id, nil
}

// MarkUnavailable clears the availability flag of a variant.
func (s *Store) MarkUnavailable(ctx context.Context, variantID string) error {
	defer observe("mark_unavailable", time.Now())

	res, err := s.db.ExecContext(ctx, `UPDATE variants SET available = FALSE WHERE id = $1`, variantID)
	if err != nil {
		return fmt.Errorf("update variant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update variant: %w", err)
	}
	if n == 0 {
		return mediaerr.NotFound("variant", variantID)
	}
	return nil
}
