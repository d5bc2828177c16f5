package capture

import (
	"sync"

	"github.com/nerrad567/capture-core/internal/media"
)

// setUpRequest runs on the IO actor right after a request is registered.
// It records the requested types and routes the request to the setup
// path for its capture family.
func (c *Coordinator) setUpRequest(r *DeviceRequest) {
	r.audioType = r.controls.Audio.StreamType
	r.videoType = r.controls.Video.StreamType

	c.logger.Debug("setting up request",
		"label", r.label,
		"request_type", r.requestType,
		"audio_type", r.audioType,
		"video_type", r.videoType,
	)

	if r.salt.Origin.Opaque() {
		c.finalizeRequestFailed(r, media.ResultInvalidSecurityOrigin)
		return
	}

	switch {
	case r.controls.IsDisplayCapture() || r.audioType == media.DisplayAudioCapture:
		c.setUpDisplayCaptureRequest(r)
	case r.audioType.IsTabCapture() || r.videoType.IsTabCapture():
		c.setUpTabCaptureRequest(r)
	case r.audioType.IsDesktopCapture() || r.videoType.IsDesktopCapture():
		if !c.setUpScreenCaptureRequest(r) {
			c.finalizeRequestFailed(r, media.ResultScreenCaptureFailure)
			return
		}
		c.postRequestToUI(r)
	default:
		c.startEnumeration(r)
	}
}

// setUpDisplayCaptureRequest handles getDisplayMedia. Video is required,
// audio may only be display audio, and callers may not name devices.
func (c *Coordinator) setUpDisplayCaptureRequest(r *DeviceRequest) {
	if !r.controls.IsDisplayCapture() ||
		(r.audioType != media.NoService && r.audioType != media.DisplayAudioCapture) ||
		r.controls.Audio.DeviceID != "" || r.controls.Video.DeviceID != "" {
		c.finalizeRequestFailed(r, media.ResultScreenCaptureFailure)
		return
	}
	r.ui = c.newUIRequest(r, "", "")

	if r.videoType != media.DisplayVideoCaptureSet && !r.controls.RequestAllScreens {
		c.postRequestToUI(r)
		return
	}
	if c.screens == nil {
		c.finalizeRequestFailed(r, media.ResultNotSupported)
		return
	}

	label, ctx := r.label, c.runCtx
	go func() {
		screens, err := c.screens.EnumerateScreens(ctx)
		c.postIO(func() {
			req := c.lookup(label)
			if req == nil {
				return
			}
			if err != nil || len(screens) == 0 {
				c.logger.Warn("screen enumeration failed", "label", label, "error", err)
				c.finalizeRequestFailed(req, media.ResultScreenCaptureFailure)
				return
			}
			req.ui.Screens = screens
			c.postRequestToUI(req)
		})
	}()
}

// setUpTabCaptureRequest resolves the tab behind the capture device id on
// the UI actor before prompting.
func (c *Coordinator) setUpTabCaptureRequest(r *DeviceRequest) {
	captureID := r.controls.Video.DeviceID
	if captureID == "" {
		captureID = r.controls.Audio.DeviceID
	}
	if captureID == "" ||
		(r.audioType != media.NoService && r.audioType != media.GumTabAudioCapture) ||
		(r.videoType != media.NoService && r.videoType != media.GumTabVideoCapture) {
		c.finalizeRequestFailed(r, media.ResultTabCaptureFailure)
		return
	}

	label, requester := r.label, r.requester
	c.postUI(func() {
		surface, err := c.ui.ResolveTabCapture(requester, captureID)
		c.postIO(func() {
			c.finishTabCaptureSetup(label, surface, err)
		})
	})
}

func (c *Coordinator) finishTabCaptureSetup(label string, surface media.SurfaceID, err error) {
	r := c.lookup(label)
	if r == nil {
		return
	}
	if err != nil || surface.Kind != media.SurfaceWebContents {
		c.logger.Warn("tab capture target not resolved", "label", label, "error", err)
		c.finalizeRequestFailed(r, media.ResultTabCaptureFailure)
		return
	}
	r.tabCaptureDeviceID = surface.String()

	var audioID, videoID string
	if r.audioType == media.GumTabAudioCapture {
		audioID = r.tabCaptureDeviceID
	}
	if r.videoType == media.GumTabVideoCapture {
		videoID = r.tabCaptureDeviceID
	}
	r.ui = c.newUIRequest(r, audioID, videoID)
	c.postRequestToUI(r)
}

// setUpScreenCaptureRequest handles legacy desktop capture: desktop video
// with optional desktop audio from the same source.
func (c *Coordinator) setUpScreenCaptureRequest(r *DeviceRequest) bool {
	if r.videoType != media.GumDesktopVideoCapture {
		return false
	}
	if r.audioType != media.NoService && r.audioType != media.GumDesktopAudioCapture {
		return false
	}
	videoID := r.controls.Video.DeviceID
	var audioID string
	if r.audioType == media.GumDesktopAudioCapture {
		audioID = r.controls.Audio.DeviceID
		if audioID != "" && audioID != videoID {
			return false
		}
		audioID = videoID
	}
	r.ui = c.newUIRequest(r, audioID, videoID)
	return true
}

// startEnumeration lists devices for the requested device types on a
// separate goroutine and posts the snapshot back to the IO actor.
func (c *Coordinator) startEnumeration(r *DeviceRequest) {
	var kinds []media.DeviceKind
	for _, t := range r.requestedTypes() {
		if kind, ok := media.KindFor(t); ok {
			kinds = append(kinds, kind)
			c.setState(r, t, media.StateRequested)
		}
	}

	label, ctx := r.label, c.runCtx
	go func() {
		enumeration, err := c.enumerator.EnumerateDevices(ctx, kinds)
		c.postIO(func() {
			c.devicesEnumerated(label, enumeration, err)
		})
	}()
}

func (c *Coordinator) devicesEnumerated(label string, enumeration media.Enumeration, err error) {
	r := c.lookup(label)
	if r == nil {
		return
	}
	for _, t := range r.requestedTypes() {
		if r.state(t) == media.StateRequested {
			c.setState(r, t, media.StatePendingApproval)
		}
	}
	if err != nil {
		c.logger.Warn("device enumeration failed", "label", label, "error", err)
		c.finalizeRequestFailed(r, media.ResultNoHardware)
		return
	}
	if !c.setUpDeviceCaptureRequest(r, enumeration) {
		c.finalizeRequestFailed(r, media.ResultNoHardware)
		return
	}
	c.postRequestToUI(r)
}

// setUpDeviceCaptureRequest resolves the hashed device ids in the
// controls against the enumeration. A requested type with no devices, or
// a hashed id that matches nothing, fails the request before any prompt.
func (c *Coordinator) setUpDeviceCaptureRequest(r *DeviceRequest, enumeration media.Enumeration) bool {
	var audioID, videoID string
	if r.audioType == media.DeviceAudioCapture {
		id, ok := pickDeviceID(r.salt, r.controls.Audio.DeviceID, enumeration.For(r.audioType))
		if !ok {
			return false
		}
		audioID = id
	}
	if r.videoType == media.DeviceVideoCapture {
		id, ok := pickDeviceID(r.salt, r.controls.Video.DeviceID, enumeration.For(r.videoType))
		if !ok {
			return false
		}
		videoID = id
	}
	r.ui = c.newUIRequest(r, audioID, videoID)
	r.ui.Available = enumeration
	return true
}

// pickDeviceID maps a hashed id from the caller to the raw id of an
// enumerated device. An empty id lets the UI choose.
func pickDeviceID(salt media.SaltAndOrigin, hashedID string, devices []media.DeviceInfo) (string, bool) {
	if len(devices) == 0 {
		return "", false
	}
	if hashedID == "" {
		return "", true
	}
	info, ok := media.ResolveHMAC(salt.DeviceIDSalt, salt.Origin, hashedID, devices)
	if !ok {
		return "", false
	}
	return info.DeviceID, true
}

func (c *Coordinator) newUIRequest(r *DeviceRequest, audioID, videoID string) *UIRequest {
	return &UIRequest{
		Label:                        r.label,
		Requester:                    r.requester,
		Origin:                       r.salt.Origin,
		RequestType:                  r.requestType,
		AudioType:                    r.audioType,
		VideoType:                    r.videoType,
		UserGesture:                  r.userGesture,
		RequestedAudioDeviceID:       audioID,
		RequestedVideoDeviceID:       videoID,
		RequestPanTiltZoomPermission: r.controls.RequestPanTiltZoomPermission,
		ExcludeSystemAudio:           r.controls.ExcludeSystemAudio,
	}
}

// postRequestToUI hands the prompt to the UI actor. The reply is posted
// back to the IO actor keyed by label.
func (c *Coordinator) postRequestToUI(r *DeviceRequest) {
	if r.ui == nil {
		r.ui = c.newUIRequest(r, "", "")
	}
	if r.requestType != media.RequestDeviceUpdate {
		for _, t := range r.requestedTypes() {
			if r.state(t) < media.StatePendingApproval {
				c.setState(r, t, media.StatePendingApproval)
			}
		}
	}
	r.ui.RequestType = r.requestType

	req := *r.ui
	label := r.label
	c.postUI(func() {
		var once sync.Once
		c.ui.RequestAccess(req, func(resp UIResponse) {
			once.Do(func() {
				c.postIO(func() {
					c.handleAccessRequestResponse(label, resp)
				})
			})
		})
	})
}
