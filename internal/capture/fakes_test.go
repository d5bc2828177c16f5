package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/capture-core/internal/media"
)

const testTimeout = 2 * time.Second

var testSalt = media.SaltAndOrigin{
	DeviceIDSalt: "device-salt",
	GroupIDSalt:  "group-salt",
	Origin:       media.Origin("https://meet.example"),
}

var (
	frameA = RequesterID{ProcessID: 10, FrameID: 1, RequesterID: 1, PageRequestID: 1}
	frameB = RequesterID{ProcessID: 20, FrameID: 2, RequesterID: 1, PageRequestID: 1}
)

func testEnumeration() media.Enumeration {
	return media.Enumeration{
		media.KindAudioInput: {
			{DeviceID: "mic-1", GroupID: "grp-1", Label: "Built-in Microphone", Kind: media.KindAudioInput,
				Input: media.AudioParameters{SampleRate: 48000, Channels: 1, Effects: media.EffectEchoCanceller | media.EffectHotword}},
			{DeviceID: "mic-2", GroupID: "grp-2", Label: "USB Microphone", Kind: media.KindAudioInput,
				Input: media.AudioParameters{SampleRate: 44100, Channels: 2}},
		},
		media.KindVideoInput: {
			{DeviceID: "cam-1", GroupID: "grp-1", Label: "Front Camera", Kind: media.KindVideoInput},
			{DeviceID: "cam-2", Label: "USB Camera", Kind: media.KindVideoInput},
		},
	}
}

// ─── Device Manager ──────────────────────────────────────────────────

type fakeManager struct {
	mu      sync.Mutex
	name    string
	next    int
	opens   []media.Device
	closes  []string
	devices map[string]media.Device
	onOpen  func(media.Device)
}

func newFakeManager(name string) *fakeManager {
	return &fakeManager{name: name, devices: make(map[string]media.Device)}
}

func (m *fakeManager) Open(d media.Device) string {
	m.mu.Lock()
	m.next++
	d.SessionID = fmt.Sprintf("%s-session-%d", m.name, m.next)
	m.devices[d.SessionID] = d
	m.opens = append(m.opens, d)
	hook := m.onOpen
	m.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return d.SessionID
}

func (m *fakeManager) Close(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes = append(m.closes, sessionID)
}

func (m *fakeManager) OpenedDevice(sessionID string) (media.Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[sessionID]
	return d, ok
}

func (m *fakeManager) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opens)
}

func (m *fakeManager) closed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.closes...)
}

// ─── Enumerators ─────────────────────────────────────────────────────

type fakeEnumerator struct {
	enumeration media.Enumeration
	err         error
}

func (e *fakeEnumerator) EnumerateDevices(_ context.Context, kinds []media.DeviceKind) (media.Enumeration, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make(media.Enumeration)
	for _, k := range kinds {
		out[k] = e.enumeration[k]
	}
	return out, nil
}

type fakeScreens struct{ screens []media.SurfaceID }

func (s *fakeScreens) EnumerateScreens(context.Context) ([]media.SurfaceID, error) {
	return s.screens, nil
}

// ─── UI Proxy ────────────────────────────────────────────────────────

type fakeUI struct {
	mu        sync.Mutex
	respond   func(UIRequest) (UIResponse, bool)
	requests  []UIRequest
	pending   map[string]func(UIResponse)
	requested chan UIRequest
	started   []StartedInfo
	stopped   []media.Device
	focused   []media.SurfaceID
	activated []media.SurfaceID
	tabs      map[string]media.SurfaceID
}

func newFakeUI() *fakeUI {
	return &fakeUI{
		respond:   grantAll,
		pending:   make(map[string]func(UIResponse)),
		requested: make(chan UIRequest, 16),
		tabs:      make(map[string]media.SurfaceID),
	}
}

func (u *fakeUI) RequestAccess(req UIRequest, reply func(UIResponse)) {
	u.mu.Lock()
	u.requests = append(u.requests, req)
	respond := u.respond
	u.mu.Unlock()

	if respond != nil {
		if resp, ok := respond(req); ok {
			reply(resp)
			return
		}
	}
	u.mu.Lock()
	u.pending[req.Label] = reply
	u.mu.Unlock()
	select {
	case u.requested <- req:
	default:
	}
}

func (u *fakeUI) ResolveTabCapture(_ RequesterID, captureDeviceID string) (media.SurfaceID, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if s, ok := u.tabs[captureDeviceID]; ok {
		return s, nil
	}
	return media.SurfaceID{}, errors.New("unknown tab")
}

func (u *fakeUI) OnStarted(info StartedInfo) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.started = append(u.started, info)
}

func (u *fakeUI) OnDeviceStopped(_ string, d media.Device) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stopped = append(u.stopped, d)
}

func (u *fakeUI) OnDeviceStoppedForSourceChange(string, media.Device, media.SurfaceID) {}

func (u *fakeUI) SetFocus(s media.SurfaceID, _ bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.focused = append(u.focused, s)
}

func (u *fakeUI) ActivateSurface(s media.SurfaceID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.activated = append(u.activated, s)
}

func (u *fakeUI) setRespond(fn func(UIRequest) (UIResponse, bool)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.respond = fn
}

func (u *fakeUI) requestCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.requests)
}

func (u *fakeUI) lastRequest() UIRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests[len(u.requests)-1]
}

func (u *fakeUI) reply(label string, resp UIResponse) bool {
	u.mu.Lock()
	fn := u.pending[label]
	delete(u.pending, label)
	u.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(resp)
	return true
}

func (u *fakeUI) startedInfos() []StartedInfo {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]StartedInfo(nil), u.started...)
}

func (u *fakeUI) focusedSurfaces() []media.SurfaceID {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]media.SurfaceID(nil), u.focused...)
}

// grantAll approves every requested type, picking the requested device or
// the first enumerated one.
func grantAll(req UIRequest) (UIResponse, bool) {
	var sd media.StreamDevices
	if req.AudioType != media.NoService {
		sd.Set(media.SlotAudio, pickForPrompt(req, req.AudioType, req.RequestedAudioDeviceID))
	}
	if req.VideoType != media.NoService {
		sd.Set(media.SlotVideo, pickForPrompt(req, req.VideoType, req.RequestedVideoDeviceID))
	}
	return UIResponse{Result: media.ResultOK, Devices: media.StreamDevicesSet{sd}}, true
}

func pickForPrompt(req UIRequest, t media.StreamType, requested string) media.Device {
	if !t.IsDevice() {
		id := requested
		if id == "" {
			id = "screen:0:0"
		}
		return media.Device{Type: t, ID: id, Name: "surface"}
	}
	for _, info := range req.Available.For(t) {
		if requested == "" || info.DeviceID == requested {
			return info.ToDevice(t)
		}
	}
	return media.Device{Type: t, ID: requested}
}

func denyWith(result media.Result) func(UIRequest) (UIResponse, bool) {
	return func(UIRequest) (UIResponse, bool) {
		return UIResponse{Result: result}, true
	}
}

func holdReplies(UIRequest) (UIResponse, bool) { return UIResponse{}, false }

// ─── Permissions, Terminator, Observer ───────────────────────────────

type fakePermissions struct {
	mu           sync.Mutex
	next         uint64
	subs         map[uint64]func(PermissionStatus)
	unsubscribed []uint64
	ptz          bool
}

func newFakePermissions() *fakePermissions {
	return &fakePermissions{subs: make(map[uint64]func(PermissionStatus))}
}

func (p *fakePermissions) Subscribe(_ PermissionKind, _ media.Origin, cb func(PermissionStatus)) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.subs[p.next] = cb
	return p.next
}

func (p *fakePermissions) Unsubscribe(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subs, id)
	p.unsubscribed = append(p.unsubscribed, id)
}

func (p *fakePermissions) HasPanTiltZoom(media.Origin) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ptz
}

func (p *fakePermissions) broadcast(status PermissionStatus) {
	p.mu.Lock()
	cbs := make([]func(PermissionStatus), 0, len(p.subs))
	for _, cb := range p.subs {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(status)
	}
}

func (p *fakePermissions) counts() (subscribed, unsubscribed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.next), len(p.unsubscribed)
}

type fakeTerminator struct {
	mu         sync.Mutex
	terminated []int
}

func (f *fakeTerminator) Terminate(processID int, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, processID)
}

func (f *fakeTerminator) list() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.terminated...)
}

type recordingObserver struct {
	mu       sync.Mutex
	states   []StateChangeEvent
	outcomes []OutcomeEvent
	secured  []LinkSecuredEvent
}

func (o *recordingObserver) OnStateChanged(ev StateChangeEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, ev)
}

func (o *recordingObserver) OnRequestFinished(ev OutcomeEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, ev)
}

func (o *recordingObserver) OnCapturingLinkSecured(ev LinkSecuredEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.secured = append(o.secured, ev)
}

func (o *recordingObserver) statesFor(label string, t media.StreamType) []media.RequestState {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []media.RequestState
	for _, ev := range o.states {
		if ev.Label == label && ev.StreamType == t {
			out = append(out, ev.State)
		}
	}
	return out
}

func (o *recordingObserver) outcomeResults() []media.Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]media.Result, 0, len(o.outcomes))
	for _, ev := range o.outcomes {
		out = append(out, ev.Result)
	}
	return out
}

// ─── Fixture ─────────────────────────────────────────────────────────

type fixture struct {
	t       *testing.T
	c       *Coordinator
	audio   *fakeManager
	video   *fakeManager
	enum    *fakeEnumerator
	ui      *fakeUI
	perms   *fakePermissions
	term    *fakeTerminator
	obs     *recordingObserver
	cancel  context.CancelFunc
	done    chan struct{}
	stopped sync.Once

	manualOpen bool
}

type fixtureOption func(*fixture, *Deps)

// withManualOpen stops the fake managers from reporting Opened on their own.
func withManualOpen() fixtureOption {
	return func(f *fixture, _ *Deps) {
		f.manualOpen = true
	}
}

func withScreens(screens ...media.SurfaceID) fixtureOption {
	return func(_ *fixture, d *Deps) {
		d.Screens = &fakeScreens{screens: screens}
	}
}

func withFocusWindow(w time.Duration) fixtureOption {
	return func(_ *fixture, d *Deps) {
		d.ConditionalFocusWindow = w
	}
}

func withLogger(l Logger) fixtureOption {
	return func(_ *fixture, d *Deps) {
		d.Logger = l
	}
}

// recordingLogger keeps the messages logged at Error.
type recordingLogger struct {
	noopLogger
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) errorMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		t:     t,
		audio: newFakeManager("audio"),
		video: newFakeManager("video"),
		enum:  &fakeEnumerator{enumeration: testEnumeration()},
		ui:    newFakeUI(),
		perms: newFakePermissions(),
		term:  &fakeTerminator{},
		obs:   &recordingObserver{},
		done:  make(chan struct{}),
	}
	deps := Deps{
		AudioManager:           f.audio,
		VideoManager:           f.video,
		Enumerator:             f.enum,
		UI:                     f.ui,
		Permissions:            f.perms,
		Terminator:             f.term,
		Observer:               f.obs,
		ConditionalFocusWindow: time.Hour,
	}

	for _, opt := range opts {
		opt(f, &deps)
	}

	c, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.c = c
	if !f.manualOpen {
		f.audio.onOpen = func(d media.Device) { c.Opened(d.Type, d.SessionID) }
		f.video.onOpen = func(d media.Device) { c.Opened(d.Type, d.SessionID) }
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() {
		defer close(f.done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(f.stop)
	return f
}

func (f *fixture) stop() {
	f.stopped.Do(func() {
		f.cancel()
		select {
		case <-f.done:
		case <-time.After(testTimeout):
			f.t.Error("coordinator did not stop")
		}
	})
}

// settle lets queued IO and UI work drain by bouncing through both
// actors several times.
func (f *fixture) settle() {
	f.t.Helper()
	for i := 0; i < 8; i++ {
		for _, post := range []func(func()) bool{f.c.postIO, f.c.postUI} {
			done := make(chan struct{})
			if !post(func() { close(done) }) {
				return
			}
			select {
			case <-done:
			case <-time.After(testTimeout):
				f.t.Fatal("actor did not drain")
			}
		}
	}
}

func (f *fixture) snapshot() []RequestSnapshot {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	snap, err := f.c.Snapshot(ctx)
	if err != nil {
		f.t.Fatalf("Snapshot() error = %v", err)
	}
	return snap
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ─── Callback capture ────────────────────────────────────────────────

type generateResult struct {
	result  media.Result
	label   string
	devices media.StreamDevicesSet
	ptz     bool
}

func generateInto(ch chan generateResult) GenerateStreamsCallback {
	return func(result media.Result, label string, devices media.StreamDevicesSet, ptz bool) {
		ch <- generateResult{result: result, label: label, devices: devices, ptz: ptz}
	}
}

type getOpenResult struct {
	result media.Result
	label  string
	device media.Device
}

func getOpenInto(ch chan getOpenResult) GetOpenDeviceCallback {
	return func(result media.Result, label string, device media.Device, _ bool) {
		ch <- getOpenResult{result: result, label: label, device: device}
	}
}

func recv[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		var zero T
		t.Fatal("timed out waiting for callback")
		return zero
	}
}

func audioVideoControls() media.StreamControls {
	return media.StreamControls{
		Audio: media.TrackControls{StreamType: media.DeviceAudioCapture},
		Video: media.TrackControls{StreamType: media.DeviceVideoCapture},
	}
}

func (f *fixture) generate(requester RequesterID, controls media.StreamControls, opts ...func(*GenerateRequest)) chan generateResult {
	f.t.Helper()
	ch := make(chan generateResult, 4)
	req := GenerateRequest{Requester: requester, SaltAndOrigin: testSalt, Controls: controls}
	for _, o := range opts {
		o(&req)
	}
	if err := f.c.GenerateStreams(req, generateInto(ch)); err != nil {
		f.t.Fatalf("GenerateStreams() error = %v", err)
	}
	return ch
}
