package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/infrastructure/database"
	"github.com/nerrad567/capture-core/internal/media"
	"github.com/nerrad567/capture-core/migrations"
)

const (
	meet  = media.Origin("https://meet.example")
	other = media.Origin("https://other.example")
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

func entry(label string, origin media.Origin, result media.Result, at time.Time) *Entry {
	return &Entry{
		Label:       label,
		RequestType: media.RequestGenerateStream,
		Origin:      origin,
		ProcessID:   10,
		FrameID:     1,
		Result:      result,
		Duration:    1500 * time.Millisecond,
		FinishedAt:  at,
	}
}

// ─── Repository ──────────────────────────────────────────────────────

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	mic := media.Device{Type: media.DeviceAudioCapture, ID: "hashed-mic", SessionID: "s1"}
	first := entry("label-1", meet, media.ResultOK, base)
	first.Devices = []media.Device{mic}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first.ID == 0 {
		t.Error("Create() did not set ID")
	}
	if err := repo.Create(ctx, entry("label-2", other, media.ResultPermissionDenied, base.Add(time.Minute))); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 2 || len(res.Entries) != 2 {
		t.Fatalf("List() total=%d entries=%d, want 2/2", res.Total, len(res.Entries))
	}
	if res.Entries[0].Label != "label-2" {
		t.Errorf("first entry = %q, want most recent", res.Entries[0].Label)
	}

	got := res.Entries[1]
	if got.Result != media.ResultOK || got.RequestType != media.RequestGenerateStream {
		t.Errorf("entry = %+v", got)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", got.Duration)
	}
	if !got.FinishedAt.Equal(base) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, base)
	}
	if len(got.Devices) != 1 || got.Devices[0].ID != "hashed-mic" || got.Devices[0].Type != media.DeviceAudioCapture {
		t.Errorf("Devices = %+v", got.Devices)
	}
	if res.Entries[0].Devices == nil || len(res.Entries[0].Devices) != 0 {
		t.Errorf("entry without devices decoded as %v, want empty", res.Entries[0].Devices)
	}
}

func TestSQLiteRepository_ListFilters(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	for i, e := range []*Entry{
		entry("a", meet, media.ResultOK, base),
		entry("b", meet, media.ResultPermissionDenied, base.Add(time.Hour)),
		entry("c", other, media.ResultOK, base.Add(2*time.Hour)),
	} {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"origin", Filter{Origin: meet}, []string{"b", "a"}},
		{"result", Filter{Result: "OK"}, []string{"c", "a"}},
		{"origin and result", Filter{Origin: meet, Result: "OK"}, []string{"a"}},
		{"since", Filter{Since: base.Add(30 * time.Minute)}, []string{"c", "b"}},
		{"limit", Filter{Limit: 1}, []string{"c"}},
		{"offset", Filter{Limit: 1, Offset: 2}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			var labels []string
			for _, e := range res.Entries {
				labels = append(labels, e.Label)
			}
			if len(labels) != len(tt.want) {
				t.Fatalf("labels = %v, want %v", labels, tt.want)
			}
			for i := range labels {
				if labels[i] != tt.want[i] {
					t.Errorf("labels = %v, want %v", labels, tt.want)
					break
				}
			}
		})
	}
}

func TestSQLiteRepository_ListClampsLimit(t *testing.T) {
	repo := testRepo(t)
	tests := []struct {
		in, want int
	}{
		{0, DefaultLimit},
		{-3, DefaultLimit},
		{10, 10},
		{MaxLimit + 1, MaxLimit},
	}
	for _, tt := range tests {
		res, err := repo.List(context.Background(), Filter{Limit: tt.in, Offset: -1})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Limit != tt.want || res.Offset != 0 {
			t.Errorf("Limit %d -> %d/%d, want %d/0", tt.in, res.Limit, res.Offset, tt.want)
		}
	}
}

func TestSQLiteRepository_Prune(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	for _, e := range []*Entry{
		entry("old", meet, media.ResultOK, now.Add(-48*time.Hour)),
		entry("new", meet, media.ResultOK, now),
	} {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() removed %d, want 1", n)
	}
	res, _ := repo.List(ctx, Filter{})
	if res.Total != 1 || res.Entries[0].Label != "new" {
		t.Errorf("remaining = %+v", res.Entries)
	}
}

// ─── Recorder ────────────────────────────────────────────────────────

// memRepo records creates in memory and can be told to fail.
type memRepo struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (m *memRepo) Create(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memRepo) List(context.Context, Filter) (*ListResult, error) { return &ListResult{}, nil }

func (m *memRepo) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func outcome(label string) capture.OutcomeEvent {
	return capture.OutcomeEvent{
		Label:       label,
		Requester:   capture.RequesterID{ProcessID: 7, FrameID: 3},
		RequestType: media.RequestOpenDevice,
		Origin:      meet,
		Result:      media.ResultNoHardware,
		Duration:    time.Second,
		Time:        time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC),
	}
}

func waitCount(t *testing.T, repo *memRepo, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for repo.count() < want {
		if time.Now().After(deadline) {
			t.Fatalf("recorded %d entries, want %d", repo.count(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRecorder_WritesOutcomes(t *testing.T) {
	repo := &memRepo{}
	rec := NewRecorder(repo, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	rec.OnStateChanged(capture.StateChangeEvent{Label: "ignored"})
	rec.OnRequestFinished(outcome("label-1"))
	waitCount(t, repo, 1)

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}

	got := repo.entries[0]
	if got.Label != "label-1" || got.ProcessID != 7 || got.FrameID != 3 {
		t.Errorf("entry = %+v", got)
	}
	if got.Result != media.ResultNoHardware || got.RequestType != media.RequestOpenDevice {
		t.Errorf("entry result/type = %s/%s", got.Result, got.RequestType)
	}
}

func TestRecorder_DrainsOnShutdown(t *testing.T) {
	repo := &memRepo{}
	rec := NewRecorder(repo, nil, 0)
	for _, l := range []string{"a", "b", "c"} {
		rec.OnRequestFinished(outcome(l))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := repo.count(); n != 3 {
		t.Errorf("recorded %d entries after shutdown, want 3", n)
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	repo := &memRepo{}
	rec := NewRecorder(repo, nil, 0)

	for i := 0; i < defaultQueueSize+5; i++ {
		rec.OnRequestFinished(outcome("x"))
	}
	if got := rec.Dropped(); got != 5 {
		t.Errorf("Dropped() = %d, want 5", got)
	}
}

func TestRecorder_WriteErrorIsLogged(t *testing.T) {
	repo := &memRepo{err: errors.New("disk full")}
	rec := NewRecorder(repo, nil, 0)
	rec.OnRequestFinished(outcome("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Errorf("Run() error = %v, want write failures absorbed", err)
	}
}

var _ capture.Observer = (*Recorder)(nil)
