package prompt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/infrastructure/config"
	"github.com/nerrad567/capture-core/internal/media"
)

const meet = media.Origin("https://meet.example")

// MockBroadcaster records broadcasts.
type MockBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (m *MockBroadcaster) Broadcast(channel string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := payload.(Event); ok {
		m.events = append(m.events, ev)
	}
}

func (m *MockBroadcaster) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Type)
	}
	return out
}

// MockPolicy is an in-memory Policy.
type MockPolicy struct {
	mu     sync.Mutex
	status map[capture.PermissionKind]capture.PermissionStatus
	sets   int
}

func newMockPolicy() *MockPolicy {
	return &MockPolicy{status: make(map[capture.PermissionKind]capture.PermissionStatus)}
}

func (m *MockPolicy) Status(_ media.Origin, k capture.PermissionKind) capture.PermissionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status[k]
}

func (m *MockPolicy) Set(_ context.Context, _ media.Origin, k capture.PermissionKind, s capture.PermissionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[k] = s
	m.sets++
	return nil
}

type staticScreens []media.SurfaceID

func (s staticScreens) EnumerateScreens(context.Context) ([]media.SurfaceID, error) { return s, nil }

func available() media.Enumeration {
	return media.Enumeration{
		media.KindAudioInput: {
			{DeviceID: "mic-1", Label: "Desk Microphone", Kind: media.KindAudioInput},
			{DeviceID: "mic-2", Label: "Headset", Kind: media.KindAudioInput},
		},
		media.KindVideoInput: {
			{DeviceID: "cam-1", Label: "Desk Camera", Kind: media.KindVideoInput},
		},
	}
}

func micAndCamera(label string) capture.UIRequest {
	return capture.UIRequest{
		Label:       label,
		Origin:      meet,
		RequestType: media.RequestGenerateStream,
		AudioType:   media.DeviceAudioCapture,
		VideoType:   media.DeviceVideoCapture,
		Available:   available(),
	}
}

func newBroker(t *testing.T, opts Options) *Broker {
	t.Helper()
	if opts.Timeout == 0 {
		opts.Timeout = time.Minute
	}
	b, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

// replies returns a reply func and the channel it feeds.
func replies() (func(capture.UIResponse), chan capture.UIResponse) {
	ch := make(chan capture.UIResponse, 2)
	return func(r capture.UIResponse) { ch <- r }, ch
}

func recv(t *testing.T, ch chan capture.UIResponse) capture.UIResponse {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a prompt reply")
	}
	return capture.UIResponse{}
}

func deviceIn(t *testing.T, resp capture.UIResponse, slot media.Slot) media.Device {
	t.Helper()
	if len(resp.Devices) == 0 {
		t.Fatalf("response %s has no devices", resp.Result)
	}
	d, ok := resp.Devices[0].Get(slot)
	if !ok {
		t.Fatalf("response has no %s device", slot)
	}
	return d
}

// ─── Modes ───────────────────────────────────────────────────────────

func TestNew_UnknownMode(t *testing.T) {
	if _, err := New(Options{Mode: "ask"}); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("New() error = %v, want ErrUnknownMode", err)
	}
}

func TestAutoGrant_PicksDevices(t *testing.T) {
	tests := []struct {
		name      string
		req       func() capture.UIRequest
		wantAudio string
		wantVideo string
	}{
		{
			name:      "first offered",
			req:       func() capture.UIRequest { return micAndCamera("l1") },
			wantAudio: "mic-1",
			wantVideo: "cam-1",
		},
		{
			name: "requested id",
			req: func() capture.UIRequest {
				r := micAndCamera("l2")
				r.RequestedAudioDeviceID = "mic-2"
				return r
			},
			wantAudio: "mic-2",
			wantVideo: "cam-1",
		},
		{
			name: "requested id no longer offered",
			req: func() capture.UIRequest {
				r := micAndCamera("l3")
				r.RequestedAudioDeviceID = "mic-9"
				return r
			},
			wantAudio: "mic-1",
			wantVideo: "cam-1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBroker(t, Options{Mode: config.PromptAutoGrant})
			reply, ch := replies()
			b.RequestAccess(tt.req(), reply)
			resp := recv(t, ch)
			if resp.Result != media.ResultOK {
				t.Fatalf("result = %s, want OK", resp.Result)
			}
			if got := deviceIn(t, resp, media.SlotAudio); got.ID != tt.wantAudio || got.Type != media.DeviceAudioCapture {
				t.Errorf("audio = %+v, want %s", got, tt.wantAudio)
			}
			if got := deviceIn(t, resp, media.SlotVideo); got.ID != tt.wantVideo {
				t.Errorf("video = %+v, want %s", got, tt.wantVideo)
			}
		})
	}
}

func TestAutoGrant_NoHardware(t *testing.T) {
	b := newBroker(t, Options{Mode: config.PromptAutoGrant})
	req := micAndCamera("l1")
	req.Available = media.Enumeration{media.KindVideoInput: available()[media.KindVideoInput]}

	reply, ch := replies()
	b.RequestAccess(req, reply)
	if resp := recv(t, ch); resp.Result != media.ResultNoHardware {
		t.Errorf("result = %s, want NO_HARDWARE", resp.Result)
	}
}

func TestAutoDeny(t *testing.T) {
	b := newBroker(t, Options{Mode: config.PromptAutoDeny})
	reply, ch := replies()
	b.RequestAccess(micAndCamera("l1"), reply)
	if resp := recv(t, ch); resp.Result != media.ResultPermissionDenied {
		t.Errorf("result = %s, want PERMISSION_DENIED", resp.Result)
	}
}

// ─── Display surfaces ────────────────────────────────────────────────

func TestAutoGrant_DisplaySurfaces(t *testing.T) {
	screens := staticScreens{{Kind: media.SurfaceScreen, ID: 3}}
	tab := media.SurfaceID{Kind: media.SurfaceWebContents, ProcessID: 4, FrameID: 2}

	tests := []struct {
		name      string
		req       capture.UIRequest
		wantVideo string
		wantAudio string // empty means no audio device
	}{
		{
			name: "default screen with system audio",
			req: capture.UIRequest{
				Label: "d1", Origin: meet, RequestType: media.RequestGenerateStream,
				AudioType: media.DisplayAudioCapture, VideoType: media.DisplayVideoCapture,
			},
			wantVideo: "screen:3:0",
			wantAudio: loopbackDeviceID,
		},
		{
			name: "screen without system audio",
			req: capture.UIRequest{
				Label: "d2", Origin: meet, RequestType: media.RequestGenerateStream,
				AudioType: media.DisplayAudioCapture, VideoType: media.DisplayVideoCapture,
				ExcludeSystemAudio: true,
			},
			wantVideo: "screen:3:0",
		},
		{
			name: "tab shares its own audio",
			req: capture.UIRequest{
				Label: "d3", Origin: meet, RequestType: media.RequestGenerateStream,
				AudioType: media.GumTabAudioCapture, VideoType: media.GumTabVideoCapture,
				RequestedVideoDeviceID: tab.String(),
			},
			wantVideo: tab.String(),
			wantAudio: tab.String(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBroker(t, Options{Mode: config.PromptAutoGrant, Screens: screens})
			reply, ch := replies()
			b.RequestAccess(tt.req, reply)
			resp := recv(t, ch)
			if resp.Result != media.ResultOK {
				t.Fatalf("result = %s", resp.Result)
			}
			if got := deviceIn(t, resp, media.SlotVideo); got.ID != tt.wantVideo {
				t.Errorf("video = %q, want %q", got.ID, tt.wantVideo)
			}
			audio, ok := resp.Devices[0].Get(media.SlotAudio)
			if tt.wantAudio == "" {
				if ok {
					t.Errorf("unexpected audio device %+v", audio)
				}
				return
			}
			if !ok || audio.ID != tt.wantAudio {
				t.Errorf("audio = %+v, want %q", audio, tt.wantAudio)
			}
		})
	}
}

func TestAutoGrant_AllScreens(t *testing.T) {
	b := newBroker(t, Options{Mode: config.PromptAutoGrant})
	req := capture.UIRequest{
		Label: "all", Origin: meet, RequestType: media.RequestGenerateStream,
		VideoType: media.DisplayVideoCaptureSet,
		Screens:   []media.SurfaceID{{Kind: media.SurfaceScreen, ID: 1}, {Kind: media.SurfaceScreen, ID: 2}},
	}
	reply, ch := replies()
	b.RequestAccess(req, reply)
	resp := recv(t, ch)
	if len(resp.Devices) != 2 {
		t.Fatalf("pairs = %d, want one per screen", len(resp.Devices))
	}
	if d, _ := resp.Devices[1].Get(media.SlotVideo); d.ID != "screen:2:0" {
		t.Errorf("second pair = %q", d.ID)
	}
}

// ─── Stored decisions ────────────────────────────────────────────────

func TestStoredDecisions(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		status map[capture.PermissionKind]capture.PermissionStatus
		want   media.Result
	}{
		{
			name:   "denied microphone beats auto grant",
			mode:   config.PromptAutoGrant,
			status: map[capture.PermissionKind]capture.PermissionStatus{capture.PermissionAudioCapture: capture.PermissionDenied},
			want:   media.ResultPermissionDenied,
		},
		{
			name: "both granted beats auto deny",
			mode: config.PromptAutoDeny,
			status: map[capture.PermissionKind]capture.PermissionStatus{
				capture.PermissionAudioCapture: capture.PermissionGranted,
				capture.PermissionVideoCapture: capture.PermissionGranted,
			},
			want: media.ResultOK,
		},
		{
			name:   "half granted falls through to the mode",
			mode:   config.PromptAutoDeny,
			status: map[capture.PermissionKind]capture.PermissionStatus{capture.PermissionAudioCapture: capture.PermissionGranted},
			want:   media.ResultPermissionDenied,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newMockPolicy()
			policy.status = tt.status
			b := newBroker(t, Options{Mode: tt.mode, Policy: policy})
			reply, ch := replies()
			b.RequestAccess(micAndCamera("l1"), reply)
			if resp := recv(t, ch); resp.Result != tt.want {
				t.Errorf("result = %s, want %s", resp.Result, tt.want)
			}
		})
	}
}

// ─── Interactive ─────────────────────────────────────────────────────

func TestInteractive_Decide(t *testing.T) {
	hub := &MockBroadcaster{}
	policy := newMockPolicy()
	b := newBroker(t, Options{Mode: config.PromptInteractive, Policy: policy, Broadcaster: hub})

	reply, ch := replies()
	b.RequestAccess(micAndCamera("l1"), reply)

	pending := b.Pending()
	if len(pending) != 1 || pending[0].Request.Label != "l1" || pending[0].ID == "" {
		t.Fatalf("Pending() = %+v", pending)
	}

	if _, err := b.Decide(context.Background(), "l1", Decision{Allow: true, AudioDeviceID: "mic-404"}); !errors.Is(err, ErrDeviceNotOffered) {
		t.Fatalf("Decide(unoffered) error = %v, want ErrDeviceNotOffered", err)
	}
	if len(b.Pending()) != 1 {
		t.Fatal("a rejected decision consumed the prompt")
	}

	result, err := b.Decide(context.Background(), "l1", Decision{Allow: true, AudioDeviceID: "mic-2", Remember: true})
	if err != nil || result != media.ResultOK {
		t.Fatalf("Decide() = %s, %v", result, err)
	}
	resp := recv(t, ch)
	if got := deviceIn(t, resp, media.SlotAudio); got.ID != "mic-2" {
		t.Errorf("audio = %q, want mic-2", got.ID)
	}
	if len(b.Pending()) != 0 {
		t.Error("decided prompt still pending")
	}
	if policy.Status(meet, capture.PermissionVideoCapture) != capture.PermissionGranted {
		t.Error("remembered decision not stored")
	}
	if _, err := b.Decide(context.Background(), "l1", Decision{Allow: true}); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Decide() error = %v, want ErrNotFound", err)
	}

	types := hub.types()
	if len(types) != 2 || types[0] != "prompt.opened" || types[1] != "prompt.closed" {
		t.Errorf("broadcasts = %v", types)
	}
}

func TestInteractive_DenyAndDismiss(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
		want     media.Result
	}{
		{"deny", Decision{}, media.ResultPermissionDenied},
		{"dismiss", Decision{Dismiss: true, Remember: true}, media.ResultPermissionDismissed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newMockPolicy()
			b := newBroker(t, Options{Mode: config.PromptInteractive, Policy: policy})
			reply, ch := replies()
			b.RequestAccess(micAndCamera("l1"), reply)

			if _, err := b.Decide(context.Background(), "l1", tt.decision); err != nil {
				t.Fatalf("Decide() error = %v", err)
			}
			if resp := recv(t, ch); resp.Result != tt.want {
				t.Errorf("result = %s, want %s", resp.Result, tt.want)
			}
			if policy.sets != 0 {
				t.Errorf("policy written %d times", policy.sets)
			}
		})
	}
}

func TestInteractive_Timeout(t *testing.T) {
	b := newBroker(t, Options{Mode: config.PromptInteractive, Timeout: 20 * time.Millisecond})
	reply, ch := replies()
	b.RequestAccess(micAndCamera("l1"), reply)

	if resp := recv(t, ch); resp.Result != media.ResultPermissionDismissed {
		t.Errorf("result = %s, want PERMISSION_DISMISSED", resp.Result)
	}
	if _, err := b.Decide(context.Background(), "l1", Decision{Allow: true}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Decide() after timeout error = %v, want ErrNotFound", err)
	}
}

func TestInteractive_CloseDismissesAll(t *testing.T) {
	b, err := New(Options{Mode: config.PromptInteractive, Timeout: time.Minute})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r1, ch1 := replies()
	r2, ch2 := replies()
	b.RequestAccess(micAndCamera("l1"), r1)
	b.RequestAccess(micAndCamera("l2"), r2)

	b.Close()
	for _, ch := range []chan capture.UIResponse{ch1, ch2} {
		if resp := recv(t, ch); resp.Result != media.ResultPermissionDismissed {
			t.Errorf("result = %s, want PERMISSION_DISMISSED", resp.Result)
		}
	}
}

// ─── Browser side ────────────────────────────────────────────────────

func TestResolveTabCapture(t *testing.T) {
	b := newBroker(t, Options{Mode: config.PromptAutoGrant})
	tab := media.SurfaceID{Kind: media.SurfaceWebContents, ProcessID: 5, FrameID: 9}
	b.RegisterTab("capture-1", tab)

	got, err := b.ResolveTabCapture(capture.RequesterID{}, "capture-1")
	if err != nil || got != tab {
		t.Fatalf("ResolveTabCapture() = %v, %v", got, err)
	}
	if _, err := b.ResolveTabCapture(capture.RequesterID{}, "capture-1"); !errors.Is(err, ErrUnknownTab) {
		t.Errorf("reused id error = %v, want ErrUnknownTab", err)
	}
	if got, err := b.ResolveTabCapture(capture.RequesterID{}, tab.String()); err != nil || got != tab {
		t.Errorf("surface string = %v, %v", got, err)
	}
	if _, err := b.ResolveTabCapture(capture.RequesterID{}, "screen:1:0"); !errors.Is(err, ErrUnknownTab) {
		t.Errorf("screen id error = %v, want ErrUnknownTab", err)
	}
}

func TestStreams_Lifecycle(t *testing.T) {
	hub := &MockBroadcaster{}
	b := newBroker(t, Options{Mode: config.PromptAutoGrant, Broadcaster: hub})

	mic := media.Device{Type: media.DeviceAudioCapture, ID: "h-mic", SessionID: "s1"}
	cam := media.Device{Type: media.DeviceVideoCapture, ID: "h-cam", SessionID: "s2"}
	var stopped, switched int
	b.OnStarted(capture.StartedInfo{
		Label:        "l1",
		Devices:      []media.Device{mic, cam},
		Stop:         func() { stopped++ },
		ChangeSource: func(media.SurfaceID) { switched++ },
	})

	streams := b.Streams()
	if len(streams) != 1 || !streams[0].CanChangeSource || len(streams[0].Devices) != 2 {
		t.Fatalf("Streams() = %+v", streams)
	}
	if !b.Stop("l1") || stopped != 1 {
		t.Error("Stop() did not reach the stream control")
	}
	if !b.ChangeSource("l1", media.SurfaceID{Kind: media.SurfaceWebContents, ProcessID: 1, FrameID: 1}) || switched != 1 {
		t.Error("ChangeSource() did not reach the stream control")
	}
	if b.RequestStateChange("l1", "h-cam", media.StreamPause) {
		t.Error("RequestStateChange() succeeded without a control")
	}

	b.OnDeviceStopped("l1", mic)
	if got := b.Streams(); len(got) != 1 || len(got[0].Devices) != 1 {
		t.Errorf("after one stop: %+v", got)
	}
	b.OnDeviceStopped("l1", cam)
	if got := b.Streams(); len(got) != 0 {
		t.Errorf("after last stop: %+v", got)
	}
	if b.Stop("l1") {
		t.Error("Stop() succeeded for a finished stream")
	}
}

func TestSetFocus(t *testing.T) {
	b := newBroker(t, Options{Mode: config.PromptAutoGrant})
	w := media.SurfaceID{Kind: media.SurfaceWindow, ID: 4}
	if _, known := b.Focused(w); known {
		t.Error("focus known before any decision")
	}
	b.SetFocus(w, true)
	if focus, known := b.Focused(w); !known || !focus {
		t.Errorf("Focused() = %v, %v", focus, known)
	}
}
