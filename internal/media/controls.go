package media

// TrackControls describes what the caller asked for on one track.
type TrackControls struct {
	StreamType StreamType `json:"stream_type"`
	// DeviceID is a hashed device id for device capture, or a capture
	// target id for tab and desktop capture.
	DeviceID string `json:"device_id,omitempty"`
}

// Requested reports whether the track asks for any capture.
func (c TrackControls) Requested() bool {
	return c.StreamType != NoService
}

// StreamControls are the constraints attached to a generate-stream, open or
// access request.
type StreamControls struct {
	Audio TrackControls `json:"audio"`
	Video TrackControls `json:"video"`

	HotwordEnabled                   bool `json:"hotword_enabled,omitempty"`
	DisableLocalEcho                 bool `json:"disable_local_echo,omitempty"`
	RequestPanTiltZoomPermission     bool `json:"request_pan_tilt_zoom_permission,omitempty"`
	RequestAllScreens                bool `json:"request_all_screens,omitempty"`
	DynamicSurfaceSwitchingRequested bool `json:"dynamic_surface_switching_requested,omitempty"`
	ExcludeSystemAudio               bool `json:"exclude_system_audio,omitempty"`
}

// IsDisplayCapture reports whether the video track uses getDisplayMedia.
func (c StreamControls) IsDisplayCapture() bool {
	switch c.Video.StreamType {
	case DisplayVideoCapture, DisplayVideoCaptureThisTab, DisplayVideoCaptureSet:
		return true
	}
	return false
}

// IsDisplayMediaSet reports whether the request captures every screen.
func (c StreamControls) IsDisplayMediaSet() bool {
	return c.Video.StreamType == DisplayVideoCaptureSet
}

// RequestedEffects derives the effects applied to an audio device from the
// hardware capability and these controls. It is recomputed every time a
// device is granted and never cached on the request.
func (c StreamControls) RequestedEffects(capability AudioEffects) AudioEffects {
	effects := capability &^ EffectHotword
	if c.HotwordEnabled && capability.Has(EffectHotword) {
		effects |= EffectHotword
	}
	return effects
}

// StreamSelectionStrategy controls whether a new audio request may adopt a
// device already opened by an earlier request.
type StreamSelectionStrategy int

const (
	// SearchByDeviceID reuses any open device with a matching hashed id.
	SearchByDeviceID StreamSelectionStrategy = iota
	// SearchBySessionID reuses only the device with the given session id.
	SearchBySessionID
	// ForceNewStream never reuses.
	ForceNewStream
)

func (s StreamSelectionStrategy) String() string {
	switch s {
	case SearchByDeviceID:
		return "search_by_device_id"
	case SearchBySessionID:
		return "search_by_session_id"
	case ForceNewStream:
		return "force_new_stream"
	}
	return "unknown"
}

// ParseStreamSelectionStrategy maps a name to a strategy. The empty string
// selects SearchByDeviceID.
func ParseStreamSelectionStrategy(s string) (StreamSelectionStrategy, bool) {
	switch s {
	case "", "search_by_device_id":
		return SearchByDeviceID, true
	case "search_by_session_id":
		return SearchBySessionID, true
	case "force_new_stream":
		return ForceNewStream, true
	}
	return SearchByDeviceID, false
}

// StreamSelectionInfo carries the reuse strategy and, for
// SearchBySessionID, the session to match.
type StreamSelectionInfo struct {
	Strategy  StreamSelectionStrategy
	SessionID string
}
