package capture

import (
	"github.com/nerrad567/capture-core/internal/media"
)

// handleAccessRequestResponse processes the UI's answer for a request.
// Replies for labels that are no longer registered are dropped.
func (c *Coordinator) handleAccessRequestResponse(label string, resp UIResponse) { //nolint:gocognit // one pass over granted devices with per-type branches
	r := c.lookup(label)
	if r == nil {
		c.logger.Debug("dropping UI reply for unknown label", "label", label)
		return
	}

	if r.requestType == media.RequestDeviceAccess {
		c.finalizeMediaAccessRequest(r, resp)
		return
	}
	if !resp.Result.OK() {
		c.finalizeRequestFailed(r, resp.Result)
		return
	}
	if r.requestType == media.RequestDeviceUpdate {
		c.handleChangeSourceRequestResponse(r, resp)
		return
	}
	if len(resp.Devices.Devices()) == 0 {
		c.finalizeRequestFailed(r, media.ResultNoHardware)
		return
	}

	var foundAudio, foundVideo bool
	for i := range resp.Devices {
		idx := len(r.sets)
		r.sets = append(r.sets, media.StreamDevices{})

		resp.Devices[i].ForEach(func(slot media.Slot, granted *media.Device) {
			dev := *granted
			if dev.Type.IsTabCapture() {
				dev.ID = r.tabCaptureDeviceID
			}
			if dev.Type.IsAudioInput() && dev.Type.IsScreenCapture() {
				dev.Input = dev.Input.NormalizeForLoopback()
			}
			if dev.Type.IsAudioInput() {
				foundAudio = true
			} else {
				foundVideo = true
			}

			if r.requestType == media.RequestGenerateStream {
				if existing, state, ok := c.findExistingRequestedDevice(r, dev); ok {
					r.sets[idx].Set(slot, existing)
					r.rawIDs[existing.SessionID] = dev.ID
					c.setState(r, dev.Type, state)
					c.logger.Debug("reusing open device",
						"label", r.label,
						"stream_type", dev.Type,
						"session_id", existing.SessionID,
					)
					return
				}
			}

			dev.SessionID = c.managerFor(dev.Type).Open(dev)
			r.rawIDs[dev.SessionID] = dev.ID
			r.sets[idx].Set(slot, translateDeviceIDToSourceID(r, dev))

			if st := r.state(dev.Type); st != media.StateOpening && st != media.StateError {
				c.setState(r, dev.Type, media.StateOpening)
			}
		})
	}

	if r.audioType.IsAudioInput() && !foundAudio {
		c.setState(r, r.audioType, media.StateError)
	}
	if r.videoType.IsVideoInput() && !foundVideo {
		c.setState(r, r.videoType, media.StateError)
	}

	if r.done() {
		c.handleRequestDone(r)
	}
}

// translateDeviceIDToSourceID replaces the raw ids of a device capture
// device with their per-origin hashes. Screen capture ids are left alone.
func translateDeviceIDToSourceID(r *DeviceRequest, dev media.Device) media.Device {
	if !dev.Type.IsDevice() {
		return dev
	}
	return r.salt.HashDevice(dev)
}

// findExistingRequestedDevice looks for an open device capture microphone
// that r may reuse. The first match in registry order wins. It returns the
// device with freshly computed effects and the holder's current state.
func (c *Coordinator) findExistingRequestedDevice(r *DeviceRequest, dev media.Device) (media.Device, media.RequestState, bool) {
	isAudioCapture := dev.Type == media.DeviceAudioCapture && r.audioType == media.DeviceAudioCapture
	if !isAudioCapture || r.selection.Strategy == media.ForceNewStream {
		return media.Device{}, 0, false
	}
	hashedID := media.HMACDeviceID(r.salt.DeviceIDSalt, r.salt.Origin, dev.ID)

	for _, other := range c.requests {
		if other == r || !other.requester.SameFrame(r.requester) || other.requestType != r.requestType {
			continue
		}
		var match *media.Device
		other.sets.Each(func(_ int, _ media.Slot, d *media.Device) {
			if match != nil || d.ID != hashedID || d.Type != dev.Type {
				return
			}
			sameSession := r.selection.Strategy == media.SearchByDeviceID ||
				(r.selection.Strategy == media.SearchBySessionID && d.SessionID == r.selection.SessionID)
			if sameSession {
				match = d
			}
		})
		if match == nil {
			continue
		}

		existing := *match
		capability := existing.Input.Effects
		if opened, ok := c.audio.OpenedDevice(existing.SessionID); ok {
			capability = opened.Input.Effects
		}
		existing.Input.Effects = r.controls.RequestedEffects(capability)
		return existing, other.state(dev.Type), true
	}
	return media.Device{}, 0, false
}

// finalizeMediaAccessRequest answers a permission-only request and removes it.
func (c *Coordinator) finalizeMediaAccessRequest(r *DeviceRequest, resp UIResponse) {
	cont, ok := r.takeContinuation().(accessContinuation)
	if !ok {
		c.deleteRequest(r.label)
		return
	}
	devices := resp.Devices.Clone()
	for i := range devices {
		devices[i].ForEach(func(_ media.Slot, d *media.Device) {
			*d = translateDeviceIDToSourceID(r, *d)
		})
	}
	if !resp.Result.OK() {
		devices = nil
	}
	cont.cb(devices, resp.Result)
	r.sets = devices
	c.finished(r, resp.Result)
	c.deleteRequest(r.label)
}

// handleChangeSourceRequestResponse swaps in the newly selected surface for
// a device update. Each new device restarts its type's cycle at OPENING.
func (c *Coordinator) handleChangeSourceRequestResponse(r *DeviceRequest, resp UIResponse) {
	r.oldSets = r.sets
	r.sets = nil
	r.opened = [media.NumStreamTypes]int{}

	var hasAudio bool
	for i := range resp.Devices {
		idx := len(r.sets)
		r.sets = append(r.sets, media.StreamDevices{})
		resp.Devices[i].ForEach(func(slot media.Slot, granted *media.Device) {
			dev := *granted
			if dev.Type.IsAudioInput() {
				hasAudio = true
				dev.Input = dev.Input.NormalizeForLoopback()
			}
			dev.SessionID = c.managerFor(dev.Type).Open(dev)
			r.rawIDs[dev.SessionID] = dev.ID
			r.sets[idx].Set(slot, dev)
			c.setState(r, dev.Type, media.StateOpening)
		})
	}

	if hasAudio {
		r.audioType = r.controls.Audio.StreamType
	} else {
		r.audioType = media.NoService
	}
}
