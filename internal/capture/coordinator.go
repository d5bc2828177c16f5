package capture

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/capture-core/internal/media"
)

// DefaultConditionalFocusWindow is how long a capturing context has to
// decide whether focus moves to the captured surface.
const DefaultConditionalFocusWindow = time.Second

// Deps holds the collaborators of a Coordinator.
type Deps struct {
	AudioManager DeviceManager        // required
	VideoManager DeviceManager        // required
	Enumerator   Enumerator           // required
	UI           UIProxy              // required
	Permissions  PermissionController // required
	Terminator   ProcessTerminator    // required

	Screens  ScreenEnumerator // optional; request_all_screens fails without it
	Observer Observer         // optional
	Logger   Logger           // optional

	ConditionalFocusWindow time.Duration
}

// Coordinator owns the request registry and drives every request to
// completion.
//
// Thread Safety: all exported methods are safe for concurrent use. Work is
// executed on the IO actor started by Run.
type Coordinator struct {
	audio      DeviceManager
	video      DeviceManager
	enumerator Enumerator
	screens    ScreenEnumerator
	ui         UIProxy
	perms      PermissionController
	terminator ProcessTerminator
	observer   Observer
	logger     Logger

	focusWindow time.Duration

	io      *mailbox
	uiQueue *mailbox
	started atomic.Bool

	// Owned by the IO actor.
	runCtx   context.Context //nolint:containedctx // enumeration goroutines inherit the actor lifetime
	requests []*DeviceRequest
	byLabel  map[string]*DeviceRequest
}

// New creates a Coordinator. It does nothing until Run is called.
//
// Returns:
//   - *Coordinator: ready to Run
//   - error: ErrMissingDependency if a required collaborator is nil
func New(deps Deps) (*Coordinator, error) {
	var missing []string
	if deps.AudioManager == nil {
		missing = append(missing, "AudioManager")
	}
	if deps.VideoManager == nil {
		missing = append(missing, "VideoManager")
	}
	if deps.Enumerator == nil {
		missing = append(missing, "Enumerator")
	}
	if deps.UI == nil {
		missing = append(missing, "UI")
	}
	if deps.Permissions == nil {
		missing = append(missing, "Permissions")
	}
	if deps.Terminator == nil {
		missing = append(missing, "Terminator")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingDependency, missing)
	}

	c := &Coordinator{
		audio:       deps.AudioManager,
		video:       deps.VideoManager,
		enumerator:  deps.Enumerator,
		screens:     deps.Screens,
		ui:          deps.UI,
		perms:       deps.Permissions,
		terminator:  deps.Terminator,
		observer:    deps.Observer,
		logger:      deps.Logger,
		focusWindow: deps.ConditionalFocusWindow,
		io:          newMailbox("io"),
		uiQueue:     newMailbox("ui"),
		byLabel:     make(map[string]*DeviceRequest),
	}
	if c.observer == nil {
		c.observer = noopObserver{}
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.focusWindow <= 0 {
		c.focusWindow = DefaultConditionalFocusWindow
	}
	return c, nil
}

// Run starts the IO and UI actors and blocks until ctx is cancelled. On
// return every registered request has been destroyed and its pending
// continuation fired with FAILED_DUE_TO_SHUTDOWN.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("capture: coordinator already running")
	}
	c.runCtx = ctx

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.io.run(gctx, c.logger)
		c.shutdownIO()
		return nil
	})
	g.Go(func() error {
		c.uiQueue.run(gctx, c.logger)
		c.uiQueue.close()
		return nil
	})
	return g.Wait()
}

func (c *Coordinator) shutdownIO() {
	for _, fn := range c.io.close() {
		c.io.exec(fn, c.logger)
	}
	labels := make([]string, 0, len(c.requests))
	for _, r := range c.requests {
		labels = append(labels, r.label)
	}
	for _, label := range labels {
		c.deleteRequest(label)
	}
	c.logger.Info("capture coordinator stopped", "destroyed_requests", len(labels))
}

// postIO runs fn on the IO actor. It is a no-op after shutdown.
func (c *Coordinator) postIO(fn func()) bool { return c.io.post(fn) }

// postUI runs fn on the UI actor. It is a no-op after shutdown.
func (c *Coordinator) postUI(fn func()) bool { return c.uiQueue.post(fn) }

// query runs fn on the IO actor and waits for it to finish.
func (c *Coordinator) query(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !c.postIO(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submit registers r on the IO actor and then posts next. If the
// coordinator has stopped, the continuation fires at once with
// FAILED_DUE_TO_SHUTDOWN on the calling goroutine.
func (c *Coordinator) submit(r *DeviceRequest, next func(*DeviceRequest)) {
	posted := c.postIO(func() {
		c.addRequest(r)
		label := r.label
		c.postIO(func() {
			if req := c.lookup(label); req != nil {
				next(req)
			}
		})
	})
	if !posted {
		if cont := r.takeContinuation(); cont != nil {
			cont.fail("", media.ResultFailedDueToShutdown)
		}
	}
}

func (c *Coordinator) addRequest(r *DeviceRequest) {
	label := media.NewLabel()
	for c.byLabel[label] != nil {
		label = media.NewLabel()
	}
	r.label = label
	c.byLabel[label] = r
	c.requests = append(c.requests, r)

	c.logger.Debug("request added",
		"label", label,
		"request_type", r.requestType,
		"process_id", r.requester.ProcessID,
		"frame_id", r.requester.FrameID,
		"requester_id", r.requester.RequesterID,
		"origin", r.salt.Origin,
	)
}

func (c *Coordinator) lookup(label string) *DeviceRequest {
	return c.byLabel[label]
}

// liveRequests returns a copy of the registry in insertion order, safe to
// iterate while requests are deleted.
func (c *Coordinator) liveRequests() []*DeviceRequest {
	return slices.Clone(c.requests)
}

// deleteRequest removes a request. A continuation that has not fired yet
// fires with FAILED_DUE_TO_SHUTDOWN, and permission subscriptions are
// dropped with exactly one unsubscribe post.
func (c *Coordinator) deleteRequest(label string) {
	r := c.byLabel[label]
	if r == nil {
		return
	}
	delete(c.byLabel, label)
	if i := slices.Index(c.requests, r); i >= 0 {
		c.requests = slices.Delete(c.requests, i, i+1)
	}

	if r.focusTimer != nil {
		r.focusTimer.Stop()
	}
	if audioSub, videoSub := r.audioSubscription, r.videoSubscription; audioSub != 0 || videoSub != 0 {
		r.audioSubscription, r.videoSubscription = 0, 0
		c.postUI(func() {
			c.unsubscribe(audioSub, videoSub)
		})
	}
	if cont := r.takeContinuation(); cont != nil {
		cont.fail(label, media.ResultFailedDueToShutdown)
		c.finished(r, media.ResultFailedDueToShutdown)
	}

	c.logger.Debug("request deleted", "label", label, "request_type", r.requestType)
}

func (c *Coordinator) setState(r *DeviceRequest, t media.StreamType, s media.RequestState) {
	if !t.Valid() || t == media.NoService {
		return
	}
	if r.states[t] == s {
		return
	}
	r.states[t] = s
	c.observer.OnStateChanged(StateChangeEvent{
		Label:       r.label,
		Requester:   r.requester,
		RequestType: r.requestType,
		StreamType:  t,
		State:       s,
		Time:        time.Now(),
	})
}

// setStateAll moves every type the request has touched to s.
func (c *Coordinator) setStateAll(r *DeviceRequest, s media.RequestState) {
	for t := media.NoService + 1; t < media.NumStreamTypes; t++ {
		if r.states[t] != media.StateNotRequested {
			c.setState(r, t, s)
		}
	}
}

// finished reports a fired continuation to the observer.
func (c *Coordinator) finished(r *DeviceRequest, result media.Result) {
	c.observer.OnRequestFinished(OutcomeEvent{
		Label:       r.label,
		Requester:   r.requester,
		RequestType: r.requestType,
		Origin:      r.salt.Origin,
		Result:      result,
		Devices:     r.sets.Devices(),
		Duration:    time.Since(r.createdAt),
		Time:        time.Now(),
	})
}

// managerFor returns the device manager that owns devices of type t.
// Audio inputs go to the audio manager; everything else is video.
func (c *Coordinator) managerFor(t media.StreamType) DeviceManager {
	if t.IsAudioInput() {
		return c.audio
	}
	return c.video
}

// Snapshot returns a view of every registered request in insertion order.
func (c *Coordinator) Snapshot(ctx context.Context) ([]RequestSnapshot, error) {
	var out []RequestSnapshot
	err := c.query(ctx, func() {
		out = make([]RequestSnapshot, 0, len(c.requests))
		for _, r := range c.requests {
			out = append(out, r.snapshot())
		}
	})
	return out, err
}
