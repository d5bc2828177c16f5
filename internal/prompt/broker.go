package prompt

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/infrastructure/config"
	"github.com/nerrad567/capture-core/internal/media"
)

// Broadcast channels.
const (
	ChannelPrompt = "prompt"
	ChannelStream = "stream"
)

// Logger defines the logging interface used by the Broker.
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

// Broadcaster publishes events to connected clients. The API hub implements it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(string, any) {}

// Policy reads and stores capture permission decisions. The permission
// controller implements it.
type Policy interface {
	Status(origin media.Origin, kind capture.PermissionKind) capture.PermissionStatus
	Set(ctx context.Context, origin media.Origin, kind capture.PermissionKind, status capture.PermissionStatus) error
}

// Event is the payload broadcast for prompt and stream changes.
type Event struct {
	Type    string         `json:"type"`
	Label   string         `json:"label,omitempty"`
	Prompt  *Pending       `json:"prompt,omitempty"`
	Result  string         `json:"result,omitempty"`
	Devices []media.Device `json:"devices,omitempty"`
	Surface string         `json:"surface,omitempty"`
	Focus   *bool          `json:"focus,omitempty"`
	Time    time.Time      `json:"time"`
}

// Pending is a prompt waiting for a decision.
type Pending struct {
	ID        string            `json:"id"`
	Request   capture.UIRequest `json:"request"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`

	reply func(capture.UIResponse)
	timer *time.Timer
}

// Decision answers a pending prompt. Device ids are raw ids or surface ids
// from the prompt; empty picks the default.
type Decision struct {
	Allow         bool   `json:"allow"`
	Dismiss       bool   `json:"dismiss,omitempty"`
	AudioDeviceID string `json:"audio_device_id,omitempty"`
	VideoDeviceID string `json:"video_device_id,omitempty"`
	Remember      bool   `json:"remember,omitempty"`
}

// Options configures a Broker.
type Options struct {
	Mode    string        // config.PromptAutoGrant, PromptAutoDeny or PromptInteractive
	Timeout time.Duration // interactive prompts are dismissed after this

	Policy      Policy                   // optional
	Screens     capture.ScreenEnumerator // optional; default display surface
	Broadcaster Broadcaster              // optional
}

// Broker implements capture.UIProxy.
//
// Thread Safety: all methods are safe for concurrent use.
type Broker struct {
	mode    string
	timeout time.Duration
	policy  Policy
	screens capture.ScreenEnumerator
	hub     Broadcaster
	logger  Logger
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]*Pending
	tabs    map[string]media.SurfaceID
	streams map[string]capture.StartedInfo
	focus   map[media.SurfaceID]bool
}

// New creates a Broker.
func New(opts Options) (*Broker, error) {
	switch opts.Mode {
	case config.PromptAutoGrant, config.PromptAutoDeny, config.PromptInteractive:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, opts.Mode)
	}
	b := &Broker{
		mode:    opts.Mode,
		timeout: opts.Timeout,
		policy:  opts.Policy,
		screens: opts.Screens,
		hub:     opts.Broadcaster,
		logger:  noopLogger{},
		now:     time.Now,
		pending: make(map[string]*Pending),
		tabs:    make(map[string]media.SurfaceID),
		streams: make(map[string]capture.StartedInfo),
		focus:   make(map[media.SurfaceID]bool),
	}
	if b.hub == nil {
		b.hub = noopBroadcaster{}
	}
	return b, nil
}

// SetLogger sets the logger for the broker.
func (b *Broker) SetLogger(logger Logger) {
	b.logger = logger
}

// RequestAccess implements capture.UIProxy.
func (b *Broker) RequestAccess(req capture.UIRequest, reply func(capture.UIResponse)) {
	if status, decided := b.stored(req); decided {
		b.logger.Debug("prompt answered from stored decision", "label", req.Label, "status", status)
		if status == capture.PermissionDenied {
			reply(capture.UIResponse{Result: media.ResultPermissionDenied})
			return
		}
		reply(b.grant(req, Decision{Allow: true}))
		return
	}

	switch b.mode {
	case config.PromptAutoGrant:
		reply(b.grant(req, Decision{Allow: true}))
	case config.PromptAutoDeny:
		reply(capture.UIResponse{Result: media.ResultPermissionDenied})
	default:
		b.park(req, reply)
	}
}

// stored checks saved decisions for the device kinds req asks for. Any
// denial wins. A grant counts only when every requested kind is granted
// and nothing needs a surface picker.
func (b *Broker) stored(req capture.UIRequest) (capture.PermissionStatus, bool) {
	if b.policy == nil || req.RequestType == media.RequestDeviceUpdate {
		return capture.PermissionAsk, false
	}
	kinds := requestedKinds(req)
	if len(kinds) == 0 {
		return capture.PermissionAsk, false
	}
	granted := 0
	for _, k := range kinds {
		switch b.policy.Status(req.Origin, k) {
		case capture.PermissionDenied:
			return capture.PermissionDenied, true
		case capture.PermissionGranted:
			granted++
		}
	}
	if granted == len(kinds) && !req.VideoType.IsScreenCapture() && !req.AudioType.IsScreenCapture() {
		return capture.PermissionGranted, true
	}
	return capture.PermissionAsk, false
}

func requestedKinds(req capture.UIRequest) []capture.PermissionKind {
	var kinds []capture.PermissionKind
	if req.AudioType == media.DeviceAudioCapture {
		kinds = append(kinds, capture.PermissionAudioCapture)
	}
	if req.VideoType == media.DeviceVideoCapture {
		kinds = append(kinds, capture.PermissionVideoCapture)
	}
	return kinds
}

func (b *Broker) park(req capture.UIRequest, reply func(capture.UIResponse)) {
	now := b.now()
	p := &Pending{
		ID:        xid.New().String(),
		Request:   req,
		CreatedAt: now,
		ExpiresAt: now.Add(b.timeout),
		reply:     reply,
	}

	b.mu.Lock()
	if old, ok := b.pending[req.Label]; ok {
		// A second prompt for the same label replaces the first.
		old.timer.Stop()
		defer old.reply(capture.UIResponse{Result: media.ResultPermissionDismissed})
	}
	b.pending[req.Label] = p
	p.timer = time.AfterFunc(b.timeout, func() { b.expire(req.Label, p.ID) })
	b.mu.Unlock()

	b.logger.Info("prompt waiting for decision",
		"label", req.Label,
		"prompt_id", p.ID,
		"origin", req.Origin.String(),
		"request_type", req.RequestType,
	)
	view := *p
	b.hub.Broadcast(ChannelPrompt, Event{Type: "prompt.opened", Label: req.Label, Prompt: &view, Time: now})
}

func (b *Broker) expire(label, id string) {
	p := b.take(label, id)
	if p == nil {
		return
	}
	b.logger.Info("prompt dismissed after timeout", "label", label, "prompt_id", id)
	p.reply(capture.UIResponse{Result: media.ResultPermissionDismissed})
	b.hub.Broadcast(ChannelPrompt, Event{Type: "prompt.closed", Label: label, Result: media.ResultPermissionDismissed.String(), Time: b.now()})
}

// take removes a pending prompt. An empty id matches any prompt for label.
func (b *Broker) take(label, id string) *Pending {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[label]
	if !ok || (id != "" && p.ID != id) {
		return nil
	}
	delete(b.pending, label)
	p.timer.Stop()
	return p
}

// Pending returns every waiting prompt, oldest first.
func (b *Broker) Pending() []Pending {
	b.mu.Lock()
	out := make([]Pending, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, *p)
	}
	b.mu.Unlock()
	slices.SortFunc(out, func(a, c Pending) int { return a.CreatedAt.Compare(c.CreatedAt) })
	return out
}

// Decide answers the pending prompt for label.
func (b *Broker) Decide(ctx context.Context, label string, d Decision) (media.Result, error) {
	b.mu.Lock()
	p, ok := b.pending[label]
	b.mu.Unlock()
	if !ok {
		return 0, ErrNotFound
	}

	var resp capture.UIResponse
	switch {
	case d.Dismiss:
		resp = capture.UIResponse{Result: media.ResultPermissionDismissed}
	case !d.Allow:
		resp = capture.UIResponse{Result: media.ResultPermissionDenied}
	default:
		if err := b.validate(p.Request, d); err != nil {
			return 0, err
		}
		resp = b.grant(p.Request, d)
	}

	if b.take(label, p.ID) == nil {
		return 0, ErrNotFound
	}
	if d.Remember && !d.Dismiss {
		b.remember(ctx, p.Request, d.Allow)
	}

	b.logger.Info("prompt decided", "label", label, "prompt_id", p.ID, "result", resp.Result)
	p.reply(resp)
	b.hub.Broadcast(ChannelPrompt, Event{Type: "prompt.closed", Label: label, Result: resp.Result.String(), Devices: resp.Devices.Devices(), Time: b.now()})
	return resp.Result, nil
}

func (b *Broker) remember(ctx context.Context, req capture.UIRequest, allow bool) {
	if b.policy == nil {
		return
	}
	status := capture.PermissionDenied
	if allow {
		status = capture.PermissionGranted
	}
	kinds := requestedKinds(req)
	if allow && req.RequestPanTiltZoomPermission {
		kinds = append(kinds, capture.PermissionPanTiltZoom)
	}
	for _, k := range kinds {
		if err := b.policy.Set(ctx, req.Origin, k, status); err != nil {
			b.logger.Warn("storing prompt decision", "origin", req.Origin.String(), "kind", k, "error", err)
		}
	}
}

// validate checks that explicit picks were offered by the prompt.
func (b *Broker) validate(req capture.UIRequest, d Decision) error {
	if d.AudioDeviceID != "" && req.AudioType == media.DeviceAudioCapture {
		if !offered(req.Available[media.KindAudioInput], d.AudioDeviceID) {
			return fmt.Errorf("%w: %q", ErrDeviceNotOffered, d.AudioDeviceID)
		}
	}
	if d.VideoDeviceID == "" {
		return nil
	}
	switch {
	case req.VideoType == media.DeviceVideoCapture:
		if !offered(req.Available[media.KindVideoInput], d.VideoDeviceID) {
			return fmt.Errorf("%w: %q", ErrDeviceNotOffered, d.VideoDeviceID)
		}
	case req.VideoType.IsScreenCapture():
		if _, err := media.ParseSurfaceID(d.VideoDeviceID); err != nil {
			return fmt.Errorf("%w: %w", ErrDeviceNotOffered, err)
		}
	}
	return nil
}

func offered(list []media.DeviceInfo, id string) bool {
	return slices.ContainsFunc(list, func(d media.DeviceInfo) bool { return d.DeviceID == id })
}

// Close dismisses every pending prompt.
func (b *Broker) Close() {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string]*Pending)
	b.mu.Unlock()
	for _, p := range pending {
		p.timer.Stop()
		p.reply(capture.UIResponse{Result: media.ResultPermissionDismissed})
	}
}
