package capture

import (
	"context"

	"github.com/nerrad567/capture-core/internal/media"
)

// Logger defines the logging interface used by the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceManager opens and closes one class of capture device.
//
// Open is synchronous and returns a fresh session id; the device manager
// later reports the outcome through the coordinator's Opened, Closed and
// Aborted methods.
type DeviceManager interface {
	// Open starts opening a device described by raw ids and returns its session id.
	Open(device media.Device) string

	// Close stops the session.
	Close(sessionID string)

	// OpenedDevice returns the device behind an opened session, including
	// the audio parameters and effect capability the hardware reports.
	OpenedDevice(sessionID string) (media.Device, bool)
}

// Enumerator lists the devices currently attached, with raw ids.
type Enumerator interface {
	EnumerateDevices(ctx context.Context, kinds []media.DeviceKind) (media.Enumeration, error)
}

// ScreenEnumerator lists capturable screens for request_all_screens.
type ScreenEnumerator interface {
	EnumerateScreens(ctx context.Context) ([]media.SurfaceID, error)
}

// UIProxy shows permission and device-selection prompts and receives
// stream lifecycle notifications. All methods are called on the UI actor.
type UIProxy interface {
	// RequestAccess shows a prompt. reply may be called later from any
	// goroutine, at most once.
	RequestAccess(req UIRequest, reply func(UIResponse))

	// ResolveTabCapture maps a tab capture device id to the captured tab.
	ResolveTabCapture(requester RequesterID, captureDeviceID string) (media.SurfaceID, error)

	// OnStarted is called once a stream is running.
	OnStarted(info StartedInfo)

	// OnDeviceStopped is called when a device of a running stream closes.
	OnDeviceStopped(label string, device media.Device)

	// OnDeviceStoppedForSourceChange is called before the source of a
	// shared surface is switched.
	OnDeviceStoppedForSourceChange(label string, device media.Device, next media.SurfaceID)

	// SetFocus moves focus to or away from a captured surface.
	SetFocus(surface media.SurfaceID, focus bool)

	// ActivateSurface brings a previously shared surface back to front.
	ActivateSurface(surface media.SurfaceID)
}

// PermissionStatus is the grant status reported by a PermissionController.
type PermissionStatus int

const (
	PermissionAsk PermissionStatus = iota
	PermissionGranted
	PermissionDenied
)

func (s PermissionStatus) String() string {
	switch s {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	}
	return "ask"
}

// MarshalText implements encoding.TextMarshaler.
func (s PermissionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PermissionKind names a permission that can be watched.
type PermissionKind string

const (
	PermissionAudioCapture PermissionKind = "audio_capture"
	PermissionVideoCapture PermissionKind = "video_capture"
	PermissionPanTiltZoom  PermissionKind = "camera_pan_tilt_zoom"
)

// PermissionController supplies and watches grant status. Called on the UI actor.
type PermissionController interface {
	// Subscribe registers cb for status changes of kind on origin and
	// returns a non-zero subscription id, or 0 if nothing was registered.
	Subscribe(kind PermissionKind, origin media.Origin, cb func(PermissionStatus)) uint64

	// Unsubscribe drops a subscription. Unknown ids are ignored.
	Unsubscribe(id uint64)

	// HasPanTiltZoom reports whether origin may control camera pan, tilt and zoom.
	HasPanTiltZoom(origin media.Origin) bool
}

// ProcessTerminator kills a requester that violated the protocol.
type ProcessTerminator interface {
	Terminate(processID int, reason string)
}

// Observer receives request state changes and outcomes. Methods are called
// on the IO actor and must not block.
type Observer interface {
	OnStateChanged(ev StateChangeEvent)
	OnRequestFinished(ev OutcomeEvent)
	OnCapturingLinkSecured(ev LinkSecuredEvent)
}

type noopObserver struct{}

func (noopObserver) OnStateChanged(StateChangeEvent)        {}
func (noopObserver) OnRequestFinished(OutcomeEvent)         {}
func (noopObserver) OnCapturingLinkSecured(LinkSecuredEvent) {}
