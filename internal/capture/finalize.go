package capture

import (
	"time"

	"github.com/nerrad567/capture-core/internal/media"
)

// handleRequestDone runs the category-specific finalization once every
// requested type is DONE or ERROR. The request stays registered.
func (c *Coordinator) handleRequestDone(r *DeviceRequest) {
	c.logger.Debug("request done", "label", r.label, "request_type", r.requestType)

	switch r.requestType {
	case media.RequestOpenDevice:
		c.finalizeOpenDevice(r)
		c.onStreamStarted(r)
	case media.RequestGenerateStream:
		c.finalizeGenerateStreams(r)
	case media.RequestGetOpenDevice:
		c.finalizeGetOpenDevice(r)
	case media.RequestDeviceUpdate:
		c.finalizeChangeDevice(r)
		c.onStreamStarted(r)
	default:
		c.logger.Error("request done for category without a done path",
			"label", r.label,
			"request_type", r.requestType,
		)
	}
}

func (c *Coordinator) finalizeOpenDevice(r *DeviceRequest) {
	cont, ok := r.takeContinuation().(openContinuation)
	if !ok {
		return
	}
	var dev media.Device
	if devices := r.sets.Devices(); len(devices) > 0 {
		dev = devices[0]
	}
	cont.cb(true, r.label, dev)
	c.finished(r, media.ResultOK)
}

// finalizeGenerateStreams subscribes to permission changes and runs the
// pan-tilt-zoom check on the UI actor. The continuation fires when the
// check comes back.
func (c *Coordinator) finalizeGenerateStreams(r *DeviceRequest) {
	c.subscribeToPermissionChanges(r)
	c.checkPanTiltZoom(r)
}

func (c *Coordinator) finalizeGetOpenDevice(r *DeviceRequest) {
	c.subscribeToPermissionChanges(r)
	c.checkPanTiltZoom(r)
}

func (c *Coordinator) checkPanTiltZoom(r *DeviceRequest) {
	label := r.label
	origin := r.salt.Origin
	wantPTZ := r.controls.RequestPanTiltZoomPermission || r.requestType == media.RequestGetOpenDevice
	hasVideo := r.videoType == media.DeviceVideoCapture

	c.postUI(func() {
		allowed := wantPTZ && hasVideo && c.perms.HasPanTiltZoom(origin)
		c.postIO(func() {
			c.panTiltZoomPermissionChecked(label, allowed)
		})
	})
}

// panTiltZoomPermissionChecked delivers the success continuation. If the
// request was deleted while the check ran, the continuation has already
// fired with a failure and the reply is dropped.
func (c *Coordinator) panTiltZoomPermissionChecked(label string, allowed bool) {
	r := c.lookup(label)
	if r == nil {
		return
	}

	switch cont := r.takeContinuation().(type) {
	case generateContinuation:
		cont.cb(media.ResultOK, label, r.sets.Clone(), allowed)
	case getOpenContinuation:
		var dev media.Device
		if devices := r.sets.Devices(); len(devices) > 0 {
			dev = devices[0]
		}
		cont.cb(media.ResultOK, label, dev, allowed)
	case nil:
		return
	default:
		c.logger.Error("unexpected continuation after pan-tilt-zoom check", "label", label)
		return
	}
	c.finished(r, media.ResultOK)

	if r.controls.IsDisplayMediaSet() {
		return
	}
	r.focusTimer = time.AfterFunc(c.focusWindow, func() {
		c.postIO(func() {
			c.setCapturedDisplaySurfaceFocus(label, true, true)
		})
	})
}

// finalizeChangeDevice pairs old and new devices of each type and reports
// the swap. Old devices with no replacement are reported against an empty
// device.
func (c *Coordinator) finalizeChangeDevice(r *DeviceRequest) {
	defer func() { r.oldSets = nil }()
	if r.callbacks.DeviceChanged == nil {
		return
	}

	oldByType := make(map[media.StreamType][]media.Device)
	for _, d := range r.oldSets.Devices() {
		oldByType[d.Type] = append(oldByType[d.Type], d)
	}
	newByType := make(map[media.StreamType][]media.Device)
	for _, d := range r.sets.Devices() {
		newByType[d.Type] = append(newByType[d.Type], d)
	}

	for t := media.NoService + 1; t < media.NumStreamTypes; t++ {
		olds, news := oldByType[t], newByType[t]
		for i, old := range olds {
			var next media.Device
			if i < len(news) {
				next = news[i]
			}
			r.callbacks.DeviceChanged(r.label, old, next)
		}
		for i := len(olds); i < len(news); i++ {
			r.callbacks.DeviceChanged(r.label, media.Device{}, news[i])
		}
	}
}

// finalizeRequestFailed fires the failure continuation and deletes the
// request. A failed device update instead re-activates the surface that was
// shared before and keeps the request.
func (c *Coordinator) finalizeRequestFailed(r *DeviceRequest, result media.Result) {
	c.logger.Warn("request failed",
		"label", r.label,
		"request_type", r.requestType,
		"result", result,
	)

	if r.requestType == media.RequestDeviceUpdate {
		if r.videoType == media.GumDesktopVideoCapture || r.videoType == media.DisplayVideoCapture {
			sets := r.oldSets
			if len(sets) == 0 {
				sets = r.sets
			}
			for _, d := range sets.Devices() {
				if !d.Type.IsVideoInput() {
					continue
				}
				if surface, err := media.ParseSurfaceID(d.ID); err == nil {
					c.postUI(func() { c.ui.ActivateSurface(surface) })
				}
				break
			}
		}
		return
	}

	if cont := r.takeContinuation(); cont != nil {
		cont.fail(r.label, result)
		c.finished(r, result)
	}
	c.deleteRequest(r.label)
}
