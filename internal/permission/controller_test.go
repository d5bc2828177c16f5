package permission

import (
	"context"
	"errors"
	"sync"
	"testing"

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

// statusLog collects callback invocations.
type statusLog struct {
	mu  sync.Mutex
	got []capture.PermissionStatus
}

func (l *statusLog) record(s capture.PermissionStatus) {
	l.mu.Lock()
	l.got = append(l.got, s)
	l.mu.Unlock()
}

func (l *statusLog) list() []capture.PermissionStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]capture.PermissionStatus(nil), l.got...)
}

// ─── Controller ──────────────────────────────────────────────────────

func TestController_SetNotifiesMatchingSubscribers(t *testing.T) {
	c := NewController(nil)
	ctx := context.Background()

	var mic, cam, elsewhere statusLog
	c.Subscribe(capture.PermissionAudioCapture, meet, mic.record)
	c.Subscribe(capture.PermissionVideoCapture, meet, cam.record)
	c.Subscribe(capture.PermissionAudioCapture, other, elsewhere.record)

	if err := c.Set(ctx, meet, capture.PermissionAudioCapture, capture.PermissionDenied); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if got := mic.list(); len(got) != 1 || got[0] != capture.PermissionDenied {
		t.Errorf("microphone watcher got %v, want [denied]", got)
	}
	if n := len(cam.list()); n != 0 {
		t.Errorf("camera watcher notified %d times", n)
	}
	if n := len(elsewhere.list()); n != 0 {
		t.Errorf("other origin notified %d times", n)
	}
}

func TestController_UnchangedStatusIsSilent(t *testing.T) {
	c := NewController(nil)
	ctx := context.Background()
	var log statusLog
	c.Subscribe(capture.PermissionVideoCapture, meet, log.record)

	for range 3 {
		if err := c.Set(ctx, meet, capture.PermissionVideoCapture, capture.PermissionGranted); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	if n := len(log.list()); n != 1 {
		t.Errorf("notified %d times, want 1", n)
	}
}

func TestController_Unsubscribe(t *testing.T) {
	c := NewController(nil)
	var log statusLog
	id := c.Subscribe(capture.PermissionAudioCapture, meet, log.record)
	if id == 0 {
		t.Fatal("Subscribe() returned 0")
	}
	c.Unsubscribe(id)
	c.Unsubscribe(id)
	c.Unsubscribe(999)

	if err := c.Set(context.Background(), meet, capture.PermissionAudioCapture, capture.PermissionDenied); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if n := len(log.list()); n != 0 {
		t.Errorf("notified %d times after unsubscribe", n)
	}
	if n := c.Subscriptions(); n != 0 {
		t.Errorf("Subscriptions() = %d, want 0", n)
	}
}

func TestController_SubscribeRejects(t *testing.T) {
	c := NewController(nil)
	noop := func(capture.PermissionStatus) {}

	tests := []struct {
		name   string
		kind   capture.PermissionKind
		origin media.Origin
		cb     func(capture.PermissionStatus)
	}{
		{"nil callback", capture.PermissionAudioCapture, meet, nil},
		{"unknown kind", "geolocation", meet, noop},
		{"opaque origin", capture.PermissionAudioCapture, "", noop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if id := c.Subscribe(tt.kind, tt.origin, tt.cb); id != 0 {
				t.Errorf("Subscribe() = %d, want 0", id)
			}
		})
	}
}

func TestController_SetValidation(t *testing.T) {
	c := NewController(nil)
	ctx := context.Background()

	if err := c.Set(ctx, meet, "geolocation", capture.PermissionGranted); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Set(unknown kind) error = %v, want ErrUnknownKind", err)
	}
	if err := c.Set(ctx, "", capture.PermissionAudioCapture, capture.PermissionGranted); !errors.Is(err, ErrOpaqueOrigin) {
		t.Errorf("Set(opaque) error = %v, want ErrOpaqueOrigin", err)
	}
}

func TestController_PanTiltZoom(t *testing.T) {
	c := NewController(nil)
	ctx := context.Background()

	if c.HasPanTiltZoom(meet) {
		t.Error("HasPanTiltZoom() = true before any decision")
	}
	if err := c.Set(ctx, meet, capture.PermissionPanTiltZoom, capture.PermissionGranted); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !c.HasPanTiltZoom(meet) {
		t.Error("HasPanTiltZoom() = false after grant")
	}
	if c.HasPanTiltZoom(other) {
		t.Error("grant leaked to another origin")
	}
	if err := c.Set(ctx, meet, capture.PermissionPanTiltZoom, capture.PermissionAsk); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if c.HasPanTiltZoom(meet) || len(c.Grants()) != 0 {
		t.Error("reset to ask kept the grant")
	}
}

func TestParseStatus(t *testing.T) {
	for _, want := range []capture.PermissionStatus{capture.PermissionAsk, capture.PermissionGranted, capture.PermissionDenied} {
		got, err := ParseStatus(want.String())
		if err != nil || got != want {
			t.Errorf("ParseStatus(%q) = %v, %v", want.String(), got, err)
		}
	}
	if _, err := ParseStatus("maybe"); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("ParseStatus(maybe) error = %v, want ErrUnknownStatus", err)
	}
}

// ─── Persistence ─────────────────────────────────────────────────────

func TestController_PersistsAcrossRestart(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	first := NewController(repo)
	if err := first.Set(ctx, meet, capture.PermissionVideoCapture, capture.PermissionDenied); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := first.Set(ctx, meet, capture.PermissionPanTiltZoom, capture.PermissionGranted); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := first.Set(ctx, other, capture.PermissionAudioCapture, capture.PermissionGranted); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := first.Set(ctx, other, capture.PermissionAudioCapture, capture.PermissionAsk); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	second := NewController(repo)
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := second.Status(meet, capture.PermissionVideoCapture); got != capture.PermissionDenied {
		t.Errorf("video status = %s, want denied", got)
	}
	if !second.HasPanTiltZoom(meet) {
		t.Error("PTZ grant lost across restart")
	}
	if got := second.Status(other, capture.PermissionAudioCapture); got != capture.PermissionAsk {
		t.Errorf("cleared decision came back as %s", got)
	}
	if n := len(second.Grants()); n != 2 {
		t.Errorf("Grants() = %d, want 2", n)
	}
}

// failingRepo rejects every write.
type failingRepo struct{}

func (failingRepo) Put(context.Context, Grant) error      { return errors.New("read-only") }
func (failingRepo) List(context.Context) ([]Grant, error) { return nil, nil }

func TestController_StoreFailureLeavesStateAlone(t *testing.T) {
	c := NewController(failingRepo{})
	var log statusLog
	c.Subscribe(capture.PermissionAudioCapture, meet, log.record)

	if err := c.Set(context.Background(), meet, capture.PermissionAudioCapture, capture.PermissionDenied); err == nil {
		t.Fatal("Set() error = nil, want store failure")
	}
	if got := c.Status(meet, capture.PermissionAudioCapture); got != capture.PermissionAsk {
		t.Errorf("status = %s after failed store", got)
	}
	if n := len(log.list()); n != 0 {
		t.Errorf("watcher notified %d times after failed store", n)
	}
}

func TestController_ConcurrentUse(t *testing.T) {
	c := NewController(nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := c.Subscribe(capture.PermissionAudioCapture, meet, func(capture.PermissionStatus) {})
			status := capture.PermissionGranted
			if i%2 == 0 {
				status = capture.PermissionDenied
			}
			_ = c.Set(ctx, meet, capture.PermissionAudioCapture, status) //nolint:errcheck // in-memory set cannot fail
			c.Unsubscribe(id)
		}()
	}
	wg.Wait()
	if n := c.Subscriptions(); n != 0 {
		t.Errorf("Subscriptions() = %d, want 0", n)
	}
}
