package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/capture-core/internal/infrastructure/database"
	"github.com/nerrad567/capture-core/migrations"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if _, err := db.Migrate(context.Background(), migrations.FS, "."); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_CreateFillsDefaults(t *testing.T) {
	repo := testRepo(t)

	e := &Entry{Action: ActionLogin, Operator: "alice"}
	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(e.ID, "aud-") {
		t.Errorf("ID = %q, want aud- prefix", e.ID)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestSQLiteRepository_List(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	entries := []*Entry{
		{Action: ActionLogin, Operator: "alice", CreatedAt: base},
		{Action: ActionPromptDecide, Operator: "alice", Target: "label-1", Details: map[string]any{"allow": true}, CreatedAt: base.Add(time.Second)},
		{Action: ActionPermissionSet, Operator: "bob", Target: "https://meet.example", CreatedAt: base.Add(2 * time.Second)},
		{Action: ActionPromptDecide, Operator: "bob", Target: "label-2", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string // ID of the first entry returned
	}{
		{"everything", Filter{}, 4, entries[3].ID},
		{"by action", Filter{Action: ActionPromptDecide}, 2, entries[3].ID},
		{"by operator", Filter{Operator: "alice"}, 2, entries[1].ID},
		{"by target", Filter{Target: "https://meet.example"}, 1, entries[2].ID},
		{"paged", Filter{Limit: 1, Offset: 1}, 4, entries[2].ID},
		{"no match", Filter{Operator: "carol"}, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if page.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", page.Total, tt.wantTotal)
			}
			if tt.wantFirst == "" {
				if len(page.Entries) != 0 {
					t.Errorf("got %d entries, want none", len(page.Entries))
				}
				return
			}
			if len(page.Entries) == 0 || page.Entries[0].ID != tt.wantFirst {
				t.Errorf("first entry = %+v, want %s", page.Entries, tt.wantFirst)
			}
		})
	}

	page, err := repo.List(ctx, Filter{Target: "label-1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got := page.Entries[0]; got.Details["allow"] != true || !got.CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("round trip = %+v", got)
	}
}

func TestSQLiteRepository_ListClampsLimit(t *testing.T) {
	repo := testRepo(t)
	page, err := repo.List(context.Background(), Filter{Limit: 10000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Limit != MaxLimit || page.Offset != 0 {
		t.Errorf("Limit, Offset = %d, %d; want %d, 0", page.Limit, page.Offset, MaxLimit)
	}
	if page.Entries == nil {
		t.Error("Entries is nil, want empty slice")
	}
}
