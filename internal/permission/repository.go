package permission

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/media"
)

// Grant is one stored decision.
type Grant struct {
	Origin    media.Origin             `json:"origin"`
	Kind      capture.PermissionKind   `json:"kind"`
	Status    capture.PermissionStatus `json:"status"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// Repository persists decisions. Storing PermissionAsk removes the row.
type Repository interface {
	Put(ctx context.Context, g Grant) error
	List(ctx context.Context) ([]Grant, error)
}

// SQLiteRepository implements Repository on the permission_grants table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Put stores g, or deletes the decision when g.Status is PermissionAsk.
func (r *SQLiteRepository) Put(ctx context.Context, g Grant) error {
	if g.Status == capture.PermissionAsk {
		if _, err := r.db.ExecContext(ctx,
			"DELETE FROM permission_grants WHERE origin = ? AND kind = ?",
			g.Origin.Serialize(), string(g.Kind)); err != nil {
			return fmt.Errorf("clearing permission: %w", err)
		}
		return nil
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO permission_grants (origin, kind, status, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(origin, kind) DO UPDATE SET
		   status = excluded.status,
		   updated_at = excluded.updated_at`,
		g.Origin.Serialize(), string(g.Kind), g.Status.String(),
		g.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing permission: %w", err)
	}
	return nil
}

// List returns every stored decision.
func (r *SQLiteRepository) List(ctx context.Context) ([]Grant, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT origin, kind, status, updated_at FROM permission_grants ORDER BY origin, kind")
	if err != nil {
		return nil, fmt.Errorf("listing permissions: %w", err)
	}
	defer rows.Close()

	var out []Grant
	for rows.Next() {
		var origin, kind, status, updatedAt string
		if err := rows.Scan(&origin, &kind, &status, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		st, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}
		g := Grant{Origin: media.Origin(origin), Kind: capture.PermissionKind(kind), Status: st}
		g.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}
	return out, nil
}
