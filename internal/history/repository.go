package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/capture-core/internal/media"
)

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Entry is one finished request.
type Entry struct {
	ID          int64             `json:"id"`
	Label       string            `json:"label"`
	RequestType media.RequestType `json:"request_type"`
	Origin      media.Origin      `json:"origin"`
	ProcessID   int               `json:"process_id"`
	FrameID     int               `json:"frame_id"`
	Result      media.Result      `json:"result"`
	Devices     []media.Device    `json:"devices,omitempty"`
	Duration    time.Duration     `json:"duration"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Filter selects entries for List. Zero fields match everything.
type Filter struct {
	Origin media.Origin
	Result string // result name, e.g. PERMISSION_DENIED
	Since  time.Time
	Limit  int
	Offset int
}

// ListResult is one page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores history entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository implements Repository on the request_history table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e and sets its ID.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	devices := e.Devices
	if devices == nil {
		devices = []media.Device{}
	}
	devicesJSON, err := json.Marshal(devices)
	if err != nil {
		return fmt.Errorf("marshalling devices: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO request_history
		   (label, request_type, origin, process_id, frame_id, result, devices, duration_ms, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Label, e.RequestType.String(), e.Origin.Serialize(), e.ProcessID, e.FrameID,
		e.Result.String(), string(devicesJSON), e.Duration.Milliseconds(),
		e.FinishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading history id: %w", err)
	}
	return nil
}

// List returns entries matching f, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) (*ListResult, error) { //nolint:gocognit // WHERE assembly plus row decoding
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var (
		conditions []string
		args       []any
	)
	if !f.Origin.Opaque() {
		conditions = append(conditions, "origin = ?")
		args = append(args, f.Origin.Serialize())
	}
	if f.Result != "" {
		conditions = append(conditions, "result = ?")
		args = append(args, f.Result)
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "finished_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM request_history " + where //nolint:gosec // WHERE built from placeholders only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting history: %w", err)
	}

	query := `SELECT id, label, request_type, origin, process_id, frame_id, result, devices, duration_ms, finished_at
		FROM request_history ` + where + ` ORDER BY finished_at DESC, id DESC LIMIT ? OFFSET ?` //nolint:gosec // WHERE built from placeholders only
	rows, err := r.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                                    Entry
			requestType, origin, result, devices string
			durationMS                           int64
			finishedAt                           string
		)
		if err := rows.Scan(&e.ID, &e.Label, &requestType, &origin, &e.ProcessID, &e.FrameID,
			&result, &devices, &durationMS, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		e.RequestType = parseRequestType(requestType)
		e.Origin = media.Origin(origin)
		if e.Result, err = media.ParseResult(result); err != nil {
			return nil, fmt.Errorf("history entry %d: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(devices), &e.Devices); err != nil {
			return nil, fmt.Errorf("history entry %d devices: %w", e.ID, err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if e.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
			return nil, fmt.Errorf("parsing history timestamp %q: %w", finishedAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}

	return &ListResult{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Prune deletes entries finished before the cutoff and reports how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM request_history WHERE finished_at < ?", before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return res.RowsAffected()
}

func parseRequestType(s string) media.RequestType {
	for t := media.RequestDeviceAccess; t <= media.RequestDeviceUpdate; t++ {
		if t.String() == s {
			return t
		}
	}
	return media.RequestDeviceAccess
}
