package capture

import (
	"time"

	"github.com/nerrad567/capture-core/internal/media"
)

// RequesterID identifies the context a request came from.
type RequesterID struct {
	ProcessID     int `json:"process_id"`
	FrameID       int `json:"frame_id"`
	RequesterID   int `json:"requester_id"`
	PageRequestID int `json:"page_request_id"`
}

// SameFrame reports whether both ids belong to the same process and frame.
func (r RequesterID) SameFrame(other RequesterID) bool {
	return r.ProcessID == other.ProcessID && r.FrameID == other.FrameID
}

// SameRequester reports whether both ids belong to the same requester in a frame.
func (r RequesterID) SameRequester(other RequesterID) bool {
	return r.SameFrame(other) && r.RequesterID == other.RequesterID
}

// Completion callbacks, one per request category.
type (
	// GenerateStreamsCallback receives the outcome of GenerateStreams.
	GenerateStreamsCallback func(result media.Result, label string, devices media.StreamDevicesSet, panTiltZoomAllowed bool)

	// GetOpenDeviceCallback receives the outcome of GetOpenDevice.
	GetOpenDeviceCallback func(result media.Result, label string, device media.Device, panTiltZoomAllowed bool)

	// OpenDeviceCallback receives the outcome of the legacy OpenDevice.
	OpenDeviceCallback func(ok bool, label string, device media.Device)

	// AccessCallback receives the outcome of MakeMediaAccessRequest.
	AccessCallback func(devices media.StreamDevicesSet, result media.Result)
)

// StreamCallbacks are the long-lived notifications attached to a running
// stream. Every field is optional. They run on the IO actor.
type StreamCallbacks struct {
	DeviceStopped func(label string, device media.Device)
	DeviceChanged func(label string, oldDevice, newDevice media.Device)
	StateChange   func(label string, device media.Device, change media.StreamStateChange)
}

// GenerateRequest asks for one or more capture streams.
type GenerateRequest struct {
	Requester     RequesterID
	SaltAndOrigin media.SaltAndOrigin
	Controls      media.StreamControls
	UserGesture   bool
	Selection     media.StreamSelectionInfo
	Callbacks     StreamCallbacks
}

// GetOpenDeviceRequest asks for a copy of a device another context has open.
type GetOpenDeviceRequest struct {
	Requester     RequesterID
	SaltAndOrigin media.SaltAndOrigin
	SessionID     string
	TransferID    string
	Callbacks     StreamCallbacks
}

// OpenDeviceRequest opens a single device by hashed id.
type OpenDeviceRequest struct {
	Requester     RequesterID
	SaltAndOrigin media.SaltAndOrigin
	DeviceID      string
	Type          media.StreamType
}

// AccessRequest asks only for permission, without opening devices.
type AccessRequest struct {
	Requester     RequesterID
	SaltAndOrigin media.SaltAndOrigin
	Controls      media.StreamControls
	UserGesture   bool
}

// UIRequest is the prompt shown for one request. Device ids are raw.
type UIRequest struct {
	Label       string            `json:"label"`
	Requester   RequesterID       `json:"requester"`
	Origin      media.Origin      `json:"origin"`
	RequestType media.RequestType `json:"request_type"`
	AudioType   media.StreamType  `json:"audio_type"`
	VideoType   media.StreamType  `json:"video_type"`
	UserGesture bool              `json:"user_gesture"`

	RequestedAudioDeviceID string `json:"requested_audio_device_id,omitempty"`
	RequestedVideoDeviceID string `json:"requested_video_device_id,omitempty"`

	RequestPanTiltZoomPermission bool `json:"request_pan_tilt_zoom_permission,omitempty"`
	ExcludeSystemAudio           bool `json:"exclude_system_audio,omitempty"`

	// Available is the raw enumeration for device capture prompts.
	Available media.Enumeration `json:"available,omitempty"`
	// Screens lists every screen for request_all_screens.
	Screens []media.SurfaceID `json:"-"`
}

// UIResponse is the user's answer to a UIRequest.
type UIResponse struct {
	Result  media.Result
	Devices media.StreamDevicesSet
}

// StartedInfo is handed to the UI when a stream starts.
type StartedInfo struct {
	Label   string
	Devices []media.Device

	// Stop ends the stream from the browser surface.
	Stop func()
	// ChangeSource switches the shared surface; nil if unsupported.
	ChangeSource func(next media.SurfaceID)
	// StateChange relays pause/play to the capturing context.
	StateChange func(deviceID string, change media.StreamStateChange)
}

// StateChangeEvent is emitted whenever a stream type of a request changes state.
type StateChangeEvent struct {
	Label       string             `json:"label"`
	Requester   RequesterID        `json:"requester"`
	RequestType media.RequestType  `json:"request_type"`
	StreamType  media.StreamType   `json:"stream_type"`
	State       media.RequestState `json:"state"`
	Time        time.Time          `json:"time"`
}

// OutcomeEvent is emitted once per request when its continuation fires.
type OutcomeEvent struct {
	Label       string            `json:"label"`
	Requester   RequesterID       `json:"requester"`
	RequestType media.RequestType `json:"request_type"`
	Origin      media.Origin      `json:"origin"`
	Result      media.Result      `json:"result"`
	Devices     []media.Device    `json:"devices,omitempty"`
	Duration    time.Duration     `json:"duration"`
	Time        time.Time         `json:"time"`
}

// LinkSecuredEvent reports whether a capture is sent over a secure link.
type LinkSecuredEvent struct {
	Requester  RequesterID      `json:"requester"`
	SessionID  string           `json:"session_id"`
	StreamType media.StreamType `json:"stream_type"`
	Secure     bool             `json:"secure"`
}

// RequestSnapshot is a read-only view of one registered request.
type RequestSnapshot struct {
	Label       string                                  `json:"label"`
	Requester   RequesterID                             `json:"requester"`
	RequestType media.RequestType                       `json:"request_type"`
	Origin      media.Origin                            `json:"origin"`
	AudioType   media.StreamType                        `json:"audio_type"`
	VideoType   media.StreamType                        `json:"video_type"`
	States      map[media.StreamType]media.RequestState `json:"states"`
	Devices     media.StreamDevicesSet                  `json:"devices"`
	Transfers   map[string]media.TransferState          `json:"transfers,omitempty"`
	CreatedAt   time.Time                               `json:"created_at"`
}
