package permission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/media"
)

// Logger defines the logging interface used by the Controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Kinds lists every permission kind the controller accepts.
var Kinds = []capture.PermissionKind{
	capture.PermissionAudioCapture,
	capture.PermissionVideoCapture,
	capture.PermissionPanTiltZoom,
}

// ValidKind reports whether k is one of Kinds.
func ValidKind(k capture.PermissionKind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseStatus parses "ask", "granted" or "denied".
func ParseStatus(s string) (capture.PermissionStatus, error) {
	switch s {
	case "ask":
		return capture.PermissionAsk, nil
	case "granted":
		return capture.PermissionGranted, nil
	case "denied":
		return capture.PermissionDenied, nil
	}
	return capture.PermissionAsk, fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

type key struct {
	origin media.Origin
	kind   capture.PermissionKind
}

type subscription struct {
	key key
	cb  func(capture.PermissionStatus)
}

// Controller implements capture.PermissionController.
type Controller struct {
	mu     sync.RWMutex
	status map[key]capture.PermissionStatus
	subs   map[uint64]subscription
	nextID uint64

	repo   Repository // nil keeps decisions in memory only
	logger Logger
	now    func() time.Time
}

// NewController creates a controller. repo may be nil.
func NewController(repo Repository) *Controller {
	return &Controller{
		status: make(map[key]capture.PermissionStatus),
		subs:   make(map[uint64]subscription),
		repo:   repo,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// Load fills the in-memory table from the repository.
func (c *Controller) Load(ctx context.Context) error {
	if c.repo == nil {
		return nil
	}
	grants, err := c.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading permissions: %w", err)
	}
	c.mu.Lock()
	for _, g := range grants {
		c.status[key{g.Origin, g.Kind}] = g.Status
	}
	c.mu.Unlock()
	c.logger.Info("permissions loaded", "count", len(grants))
	return nil
}

// Status returns the decision for kind on origin. Unknown pairs are PermissionAsk.
func (c *Controller) Status(origin media.Origin, kind capture.PermissionKind) capture.PermissionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status[key{origin, kind}]
}

// Set records a decision and notifies every subscriber watching it. The
// decision is persisted before anyone is notified.
func (c *Controller) Set(ctx context.Context, origin media.Origin, kind capture.PermissionKind, status capture.PermissionStatus) error {
	if !ValidKind(kind) {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if origin.Opaque() {
		return ErrOpaqueOrigin
	}
	if c.repo != nil {
		if err := c.repo.Put(ctx, Grant{Origin: origin, Kind: kind, Status: status, UpdatedAt: c.now()}); err != nil {
			return err
		}
	}

	k := key{origin, kind}
	c.mu.Lock()
	prev := c.status[k]
	if status == capture.PermissionAsk {
		delete(c.status, k)
	} else {
		c.status[k] = status
	}
	var notify []func(capture.PermissionStatus)
	if prev != status {
		for _, s := range c.subs {
			if s.key == k {
				notify = append(notify, s.cb)
			}
		}
	}
	c.mu.Unlock()

	c.logger.Info("permission changed",
		"origin", origin.String(),
		"kind", kind,
		"status", status,
		"watchers", len(notify),
	)
	for _, cb := range notify {
		cb(status)
	}
	return nil
}

// Grants returns every decision that is not PermissionAsk.
func (c *Controller) Grants() []Grant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Grant, 0, len(c.status))
	for k, s := range c.status {
		out = append(out, Grant{Origin: k.origin, Kind: k.kind, Status: s})
	}
	return out
}

// Subscribe implements capture.PermissionController.
func (c *Controller) Subscribe(kind capture.PermissionKind, origin media.Origin, cb func(capture.PermissionStatus)) uint64 {
	if cb == nil || !ValidKind(kind) || origin.Opaque() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.subs[c.nextID] = subscription{key: key{origin, kind}, cb: cb}
	return c.nextID
}

// Unsubscribe implements capture.PermissionController.
func (c *Controller) Unsubscribe(id uint64) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

// Subscriptions returns the number of live subscriptions.
func (c *Controller) Subscriptions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// HasPanTiltZoom implements capture.PermissionController.
func (c *Controller) HasPanTiltZoom(origin media.Origin) bool {
	return c.Status(origin, capture.PermissionPanTiltZoom) == capture.PermissionGranted
}

var _ capture.PermissionController = (*Controller)(nil)
