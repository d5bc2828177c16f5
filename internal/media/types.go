package media

import "fmt"

// StreamType identifies a capture category. Values index the per-type
// arrays held by a request, so NumStreamTypes must stay last.
type StreamType int

const (
	NoService StreamType = iota
	DeviceAudioCapture
	DeviceVideoCapture
	GumTabAudioCapture
	GumTabVideoCapture
	GumDesktopAudioCapture
	GumDesktopVideoCapture
	DisplayAudioCapture
	DisplayVideoCapture
	DisplayVideoCaptureThisTab
	DisplayVideoCaptureSet

	NumStreamTypes
)

var streamTypeNames = [NumStreamTypes]string{
	"NO_SERVICE",
	"DEVICE_AUDIO_CAPTURE",
	"DEVICE_VIDEO_CAPTURE",
	"GUM_TAB_AUDIO_CAPTURE",
	"GUM_TAB_VIDEO_CAPTURE",
	"GUM_DESKTOP_AUDIO_CAPTURE",
	"GUM_DESKTOP_VIDEO_CAPTURE",
	"DISPLAY_AUDIO_CAPTURE",
	"DISPLAY_VIDEO_CAPTURE",
	"DISPLAY_VIDEO_CAPTURE_THIS_TAB",
	"DISPLAY_VIDEO_CAPTURE_SET",
}

func (t StreamType) String() string {
	if t < 0 || t >= NumStreamTypes {
		return fmt.Sprintf("STREAM_TYPE(%d)", int(t))
	}
	return streamTypeNames[t]
}

// Valid reports whether t is a real stream type (NoService included).
func (t StreamType) Valid() bool {
	return t >= 0 && t < NumStreamTypes
}

// MarshalText implements encoding.TextMarshaler.
func (t StreamType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStreamType, int(t))
	}
	return []byte(streamTypeNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The empty string
// decodes to NoService.
func (t *StreamType) UnmarshalText(b []byte) error {
	parsed, err := ParseStreamType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseStreamType converts an upper-case name back to a StreamType.
func ParseStreamType(s string) (StreamType, error) {
	if s == "" {
		return NoService, nil
	}
	for i, name := range streamTypeNames {
		if name == s {
			return StreamType(i), nil
		}
	}
	return NoService, fmt.Errorf("%w: %q", ErrUnknownStreamType, s)
}

// IsAudioInput reports whether t captures audio.
func (t StreamType) IsAudioInput() bool {
	switch t {
	case DeviceAudioCapture, GumTabAudioCapture, GumDesktopAudioCapture, DisplayAudioCapture:
		return true
	}
	return false
}

// IsVideoInput reports whether t captures video.
func (t StreamType) IsVideoInput() bool {
	switch t {
	case DeviceVideoCapture, GumTabVideoCapture, GumDesktopVideoCapture,
		DisplayVideoCapture, DisplayVideoCaptureThisTab, DisplayVideoCaptureSet:
		return true
	}
	return false
}

// IsDevice reports whether t is backed by physical hardware that must be
// enumerated before it can be opened.
func (t StreamType) IsDevice() bool {
	return t == DeviceAudioCapture || t == DeviceVideoCapture
}

// IsScreenCapture reports whether t captures a tab, window or screen.
func (t StreamType) IsScreenCapture() bool {
	return t != NoService && t.Valid() && !t.IsDevice()
}

// IsDisplayCapture reports whether t belongs to the getDisplayMedia family.
func (t StreamType) IsDisplayCapture() bool {
	switch t {
	case DisplayAudioCapture, DisplayVideoCapture, DisplayVideoCaptureThisTab, DisplayVideoCaptureSet:
		return true
	}
	return false
}

// IsTabCapture reports whether t is one of the legacy tab capture types.
func (t StreamType) IsTabCapture() bool {
	return t == GumTabAudioCapture || t == GumTabVideoCapture
}

// IsDesktopCapture reports whether t is one of the legacy desktop types.
func (t StreamType) IsDesktopCapture() bool {
	return t == GumDesktopAudioCapture || t == GumDesktopVideoCapture
}

// IsTransferable reports whether an open device of type t may be handed to
// another context through GetOpenDevice.
func (t StreamType) IsTransferable() bool {
	switch t {
	case DeviceAudioCapture, DeviceVideoCapture, DisplayAudioCapture,
		DisplayVideoCapture, DisplayVideoCaptureThisTab:
		return true
	}
	return false
}

// AllStreamTypes returns every stream type except NoService, in enum order.
func AllStreamTypes() []StreamType {
	types := make([]StreamType, 0, NumStreamTypes-1)
	for t := NoService + 1; t < NumStreamTypes; t++ {
		types = append(types, t)
	}
	return types
}

// RequestType is the category of a request. It selects the completion
// continuation and the finalization path.
type RequestType int

const (
	RequestDeviceAccess RequestType = iota
	RequestGenerateStream
	RequestGetOpenDevice
	RequestOpenDevice
	RequestDeviceUpdate
)

var requestTypeNames = [...]string{
	"MEDIA_DEVICE_ACCESS",
	"MEDIA_GENERATE_STREAM",
	"MEDIA_GET_OPEN_DEVICE",
	"MEDIA_OPEN_DEVICE_PEPPER_ONLY",
	"MEDIA_DEVICE_UPDATE",
}

func (r RequestType) String() string {
	if r < 0 || int(r) >= len(requestTypeNames) {
		return fmt.Sprintf("REQUEST_TYPE(%d)", int(r))
	}
	return requestTypeNames[r]
}

// MarshalText implements encoding.TextMarshaler.
func (r RequestType) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= len(requestTypeNames) {
		return nil, fmt.Errorf("media: unknown request type %d", int(r))
	}
	return []byte(requestTypeNames[r]), nil
}

// RequestState is the per-stream-type state of a request.
//
// Within one open cycle a type only moves forward:
//
//	NOT_REQUESTED → REQUESTED → PENDING_APPROVAL → OPENING → DONE → CLOSING
//
// with ERROR reachable from any non-terminal state. Only a device update
// restarts a type at OPENING.
type RequestState int

const (
	StateNotRequested RequestState = iota
	StateRequested
	StatePendingApproval
	StateOpening
	StateDone
	StateClosing
	StateError
)

var requestStateNames = [...]string{
	"STATE_NOT_REQUESTED",
	"STATE_REQUESTED",
	"STATE_PENDING_APPROVAL",
	"STATE_OPENING",
	"STATE_DONE",
	"STATE_CLOSING",
	"STATE_ERROR",
}

func (s RequestState) String() string {
	if s < 0 || int(s) >= len(requestStateNames) {
		return fmt.Sprintf("STATE(%d)", int(s))
	}
	return requestStateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s RequestState) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(requestStateNames) {
		return nil, fmt.Errorf("media: unknown request state %d", int(s))
	}
	return []byte(requestStateNames[s]), nil
}

// Settled reports whether no further device work is outstanding for a type
// in this state.
func (s RequestState) Settled() bool {
	return s == StateDone || s == StateError
}

// TransferState is one half of the handshake that moves an open device
// between contexts.
type TransferState int

const (
	// TransferKeptAlive means the source context promised to keep the
	// device open until the transfer lands.
	TransferKeptAlive TransferState = iota
	// TransferGotOpenDevice means the destination received its copy.
	TransferGotOpenDevice
)

func (s TransferState) String() string {
	switch s {
	case TransferKeptAlive:
		return "KEPT_ALIVE"
	case TransferGotOpenDevice:
		return "GOT_OPEN_DEVICE"
	}
	return fmt.Sprintf("TRANSFER_STATE(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s TransferState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StreamStateChange is a pause/play request relayed from the browser
// surface to the capturing context.
type StreamStateChange string

const (
	StreamPause StreamStateChange = "pause"
	StreamPlay  StreamStateChange = "play"
)

// Valid reports whether c is a known state change.
func (c StreamStateChange) Valid() bool {
	return c == StreamPause || c == StreamPlay
}
