package salt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/capture-core/internal/media"
)

// Salts is the stored secret pair of one origin.
type Salts struct {
	Origin       media.Origin
	DeviceIDSalt string
	GroupIDSalt  string
	CreatedAt    time.Time
	RotatedAt    time.Time // zero if never rotated
}

// Repository persists Salts.
type Repository interface {
	Get(ctx context.Context, origin media.Origin) (Salts, error)
	Put(ctx context.Context, s Salts) error
	Delete(ctx context.Context, origin media.Origin) error
	List(ctx context.Context) ([]Salts, error)
}

// SQLiteRepository implements Repository on the origin_salts table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the salts of origin, or ErrNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, origin media.Origin) (Salts, error) {
	var (
		s                  Salts
		origStr, createdAt string
		rotatedAt          sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT origin, device_id_salt, group_id_salt, created_at, rotated_at
		 FROM origin_salts WHERE origin = ?`, origin.Serialize(),
	).Scan(&origStr, &s.DeviceIDSalt, &s.GroupIDSalt, &createdAt, &rotatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Salts{}, ErrNotFound
		}
		return Salts{}, fmt.Errorf("getting salts: %w", err)
	}
	s.Origin = media.Origin(origStr)
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	if rotatedAt.Valid {
		s.RotatedAt, _ = time.Parse(time.RFC3339, rotatedAt.String) //nolint:errcheck // format is controlled
	}
	return s, nil
}

// Put inserts or replaces the salts of s.Origin.
func (r *SQLiteRepository) Put(ctx context.Context, s Salts) error {
	if s.Origin.Opaque() {
		return ErrOpaqueOrigin
	}
	var rotated any
	if !s.RotatedAt.IsZero() {
		rotated = s.RotatedAt.UTC().Format(time.RFC3339)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO origin_salts (origin, device_id_salt, group_id_salt, created_at, rotated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(origin) DO UPDATE SET
		   device_id_salt = excluded.device_id_salt,
		   group_id_salt = excluded.group_id_salt,
		   rotated_at = excluded.rotated_at`,
		s.Origin.Serialize(), s.DeviceIDSalt, s.GroupIDSalt,
		s.CreatedAt.UTC().Format(time.RFC3339), rotated,
	)
	if err != nil {
		return fmt.Errorf("storing salts: %w", err)
	}
	return nil
}

// Delete forgets the salts of origin. Deleting an unknown origin is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, origin media.Origin) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM origin_salts WHERE origin = ?", origin.Serialize()); err != nil {
		return fmt.Errorf("deleting salts: %w", err)
	}
	return nil
}

// List returns every stored origin, ordered by origin.
func (r *SQLiteRepository) List(ctx context.Context) ([]Salts, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT origin, device_id_salt, group_id_salt, created_at, rotated_at
		 FROM origin_salts ORDER BY origin`)
	if err != nil {
		return nil, fmt.Errorf("listing salts: %w", err)
	}
	defer rows.Close()

	var out []Salts
	for rows.Next() {
		var (
			s                  Salts
			origStr, createdAt string
			rotatedAt          sql.NullString
		)
		if err := rows.Scan(&origStr, &s.DeviceIDSalt, &s.GroupIDSalt, &createdAt, &rotatedAt); err != nil {
			return nil, fmt.Errorf("scanning salts: %w", err)
		}
		s.Origin = media.Origin(origStr)
		s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		if rotatedAt.Valid {
			s.RotatedAt, _ = time.Parse(time.RFC3339, rotatedAt.String) //nolint:errcheck // format is controlled
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating salts: %w", err)
	}
	return out, nil
}
