package capture

import (
	"github.com/nerrad567/capture-core/internal/media"
)

// OnStreamStarted is called by the capturing context once the tracks of a
// generated stream are live. It tells the UI so it can show indicators and
// stop or switch controls.
func (c *Coordinator) OnStreamStarted(label string) {
	c.postIO(func() {
		r := c.lookup(label)
		if r == nil {
			return
		}
		c.onStreamStarted(r)
	})
}

func (c *Coordinator) onStreamStarted(r *DeviceRequest) {
	label := r.label
	info := StartedInfo{
		Label:   label,
		Devices: r.sets.Devices(),
		Stop: func() {
			c.StopMediaStreamFromBrowser(label)
		},
		StateChange: func(deviceID string, change media.StreamStateChange) {
			c.RequestStateChangeFromBrowser(label, deviceID, change)
		},
	}
	if r.controls.DynamicSurfaceSwitchingRequested && changeSourceSupported(r) {
		info.ChangeSource = func(next media.SurfaceID) {
			c.ChangeMediaStreamSourceFromBrowser(label, next)
		}
	}
	c.postUI(func() { c.ui.OnStarted(info) })
}

// changeSourceSupported reports whether the shared surface of r can be
// swapped: it must be a tab shared through desktop or display capture.
func changeSourceSupported(r *DeviceRequest) bool {
	var sharesSurface bool
	supported := true
	r.sets.Each(func(_ int, _ media.Slot, d *media.Device) {
		surface, err := media.ParseSurfaceID(d.ID)
		if err != nil || surface.Kind != media.SurfaceWebContents {
			supported = false
		}
		if d.Type == media.GumDesktopVideoCapture || d.Type == media.DisplayVideoCapture {
			sharesSurface = true
		}
	})
	return supported && sharesSurface
}

// StopMediaStreamFromBrowser ends a stream from the browser's own stop
// control. Every device is reported stopped before the request is cancelled.
func (c *Coordinator) StopMediaStreamFromBrowser(label string) {
	c.postIO(func() {
		r := c.lookup(label)
		if r == nil {
			return
		}
		if r.callbacks.DeviceStopped != nil {
			for _, d := range r.sets.Devices() {
				r.callbacks.DeviceStopped(label, d)
			}
		}
		c.cancelRequest(label)
	})
}

// ChangeMediaStreamSourceFromBrowser switches the shared surface of a
// running stream. The request becomes a device update and is prompted again.
func (c *Coordinator) ChangeMediaStreamSourceFromBrowser(label string, next media.SurfaceID) {
	c.postIO(func() {
		r := c.lookup(label)
		if r == nil {
			return
		}
		for _, d := range r.sets.Devices() {
			if d.Type.IsVideoInput() {
				stopped := d
				c.postUI(func() { c.ui.OnDeviceStoppedForSourceChange(label, stopped, next) })
			}
		}
		c.setUpDesktopCaptureChangeSourceRequest(r, next)
	})
}

func (c *Coordinator) setUpDesktopCaptureChangeSourceRequest(r *DeviceRequest, next media.SurfaceID) {
	r.requestType = media.RequestDeviceUpdate

	var audioID, videoID string
	if !next.IsNull() {
		videoID = next.String()
		if r.audioType.IsAudioInput() {
			audioID = videoID
		}
	}
	r.ui = c.newUIRequest(r, audioID, videoID)
	c.postRequestToUI(r)
}

// RequestStateChangeFromBrowser relays a pause or play request from the
// browser surface to the context capturing deviceID.
func (c *Coordinator) RequestStateChangeFromBrowser(label, deviceID string, change media.StreamStateChange) {
	c.postIO(func() {
		r := c.lookup(label)
		if r == nil || r.callbacks.StateChange == nil {
			return
		}
		for _, d := range r.sets.Devices() {
			if d.ID == deviceID {
				r.callbacks.StateChange(label, d, change)
			}
		}
	})
}

// SetCapturedDisplaySurfaceFocus records the capturing context's decision
// on whether focus moves to the captured surface. Only the first decision
// counts; without one, focus moves when the conditional focus window ends.
func (c *Coordinator) SetCapturedDisplaySurfaceFocus(label string, focus bool) {
	c.postIO(func() { c.setCapturedDisplaySurfaceFocus(label, focus, false) })
}

func (c *Coordinator) setCapturedDisplaySurfaceFocus(label string, focus, fromTimer bool) {
	r := c.lookup(label)
	if r == nil || r.focusDecided {
		return
	}
	r.focusDecided = true
	if !fromTimer && r.focusTimer != nil {
		r.focusTimer.Stop()
	}

	dev, ok := r.firstDevice(media.SlotVideo)
	if !ok {
		return
	}
	surface, err := media.ParseSurfaceID(dev.ID)
	if err != nil || !surface.Focusable() {
		return
	}
	c.postUI(func() { c.ui.SetFocus(surface, focus) })
}
