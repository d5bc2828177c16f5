package capture

import (
	"context"

	"github.com/nerrad567/capture-core/internal/media"
)

// Opened is called by a device manager when a session finished opening.
func (c *Coordinator) Opened(t media.StreamType, sessionID string) {
	c.postIO(func() { c.opened(t, sessionID) })
}

// Closed is called by a device manager when a session closed.
func (c *Coordinator) Closed(t media.StreamType, sessionID string) {
	c.postIO(func() {
		c.logger.Debug("device closed", "stream_type", t, "session_id", sessionID)
	})
}

// Aborted is called by a device manager when a session failed or the
// hardware went away. The session is stopped in every request holding it.
func (c *Coordinator) Aborted(t media.StreamType, sessionID string) {
	c.postIO(func() { c.aborted(t, sessionID) })
}

// aborted moves holders that were still opening the session to ERROR for
// type t. A holder whose requested types all ended in ERROR fails with a
// track start result. The others settle once their remaining types do.
func (c *Coordinator) aborted(t media.StreamType, sessionID string) {
	c.logger.Warn("device aborted", "stream_type", t, "session_id", sessionID)

	var pending []*DeviceRequest
	for _, r := range c.liveRequests() {
		if c.lookup(r.label) == nil || r.sets.Find(t, sessionID) == nil {
			continue
		}
		switch r.state(t) {
		case media.StateRequested, media.StatePendingApproval, media.StateOpening:
		default:
			continue
		}
		c.setState(r, t, media.StateError)
		r.opened[t] = 0
		if r.failed() {
			c.finalizeRequestFailed(r, trackStartFailure(t))
			continue
		}
		pending = append(pending, r)
	}

	c.stopDevice(t, sessionID)

	for _, r := range pending {
		if c.lookup(r.label) != nil && r.done() {
			c.handleRequestDone(r)
		}
	}
}

func trackStartFailure(t media.StreamType) media.Result {
	if t.IsAudioInput() {
		return media.ResultTrackStartFailureAudio
	}
	return media.ResultTrackStartFailureVideo
}

// opened delivers one Opened notification to every request holding the
// session within a single scan, so all holders see the same snapshot.
func (c *Coordinator) opened(t media.StreamType, sessionID string) {
	c.logger.Debug("device opened", "stream_type", t, "session_id", sessionID)

	for _, r := range c.liveRequests() {
		if c.lookup(r.label) == nil || len(r.sets) == 0 || r.state(t) == media.StateError {
			continue
		}
		dev := r.sets.Find(t, sessionID)
		if dev == nil || r.state(t) == media.StateDone {
			continue
		}

		r.opened[t]++
		if r.opened[t] == len(r.sets) {
			c.setState(r, t, media.StateDone)
			r.opened[t] = 0
		}

		if t.IsAudioInput() && t != media.GumTabAudioCapture {
			if info, ok := c.audio.OpenedDevice(sessionID); ok {
				dev.Input = info.Input
				dev.Input.Effects = r.controls.RequestedEffects(info.Input.Effects)
			}
		}

		if r.done() {
			c.handleRequestDone(r)
		}
	}
}

// stopDevice removes the session from every request. Holders whose type is
// DONE close the device first. Requests left without devices are deleted.
func (c *Coordinator) stopDevice(t media.StreamType, sessionID string) {
	for _, r := range c.liveRequests() {
		if c.lookup(r.label) == nil || len(r.sets) == 0 {
			continue
		}
		for i := range r.sets {
			r.sets[i].ForEach(func(slot media.Slot, d *media.Device) {
				if d.Type != t || d.SessionID != sessionID {
					return
				}
				if r.state(t) == media.StateDone {
					c.closeDevice(t, sessionID)
				}
				r.sets[i].Clear(slot)
			})
		}
		r.sets = r.sets.Compact()
		if len(r.sets) == 0 {
			c.deleteRequest(r.label)
		}
	}
}

// closeDevice closes the session in its device manager and moves every
// holder to CLOSING unless the type already failed.
func (c *Coordinator) closeDevice(t media.StreamType, sessionID string) {
	c.logger.Debug("closing device", "stream_type", t, "session_id", sessionID)
	c.managerFor(t).Close(sessionID)

	for _, r := range c.liveRequests() {
		dev := r.sets.Find(t, sessionID)
		if dev == nil {
			continue
		}
		if r.state(t) != media.StateError {
			c.setState(r, t, media.StateClosing)
		}

		stopped := *dev
		if t.IsAudioInput() && r.callbacks.DeviceStopped != nil {
			r.callbacks.DeviceStopped(r.label, stopped)
		}
		label := r.label
		c.postUI(func() { c.ui.OnDeviceStopped(label, stopped) })
	}
}

// cancelRequest closes every opening or opened device of the request,
// moves all its types to CLOSING and deletes it.
func (c *Coordinator) cancelRequest(label string) {
	r := c.lookup(label)
	if r == nil {
		c.logger.Debug("cancel for unknown label", "label", label)
		return
	}

	states := r.states
	for _, d := range r.sets.Devices() {
		if st := states[d.Type]; st == media.StateOpening || st == media.StateDone {
			c.closeDevice(d.Type, d.SessionID)
		}
	}
	c.setStateAll(r, media.StateClosing)
	c.deleteRequest(label)
}

// CancelRequest cancels the request with the given label.
func (c *Coordinator) CancelRequest(label string) {
	c.postIO(func() { c.cancelRequest(label) })
}

// CancelRequestByIDs cancels the first request from the given requester
// and page request.
func (c *Coordinator) CancelRequestByIDs(ids RequesterID) {
	c.postIO(func() { c.cancelRequestByIDs(ids) })
}

func (c *Coordinator) cancelRequestByIDs(ids RequesterID) {
	for _, r := range c.requests {
		if r.requester == ids {
			c.cancelRequest(r.label)
			return
		}
	}
}

// CancelAllRequests cancels every request of one requester in a frame.
func (c *Coordinator) CancelAllRequests(processID, frameID, requesterID int) {
	ids := RequesterID{ProcessID: processID, FrameID: frameID, RequesterID: requesterID}
	c.postIO(func() {
		for _, r := range c.liveRequests() {
			if r.requester.SameRequester(ids) {
				c.cancelRequest(r.label)
			}
		}
	})
}

// StopStreamDevice stops one device of a running stream. A session with a
// pending transfer is only marked and stops once the transfer settles.
func (c *Coordinator) StopStreamDevice(requester RequesterID, deviceID, sessionID string) {
	c.postIO(func() { c.stopStreamDevice(requester, deviceID, sessionID) })
}

func (c *Coordinator) stopStreamDevice(requester RequesterID, deviceID, sessionID string) {
	for _, r := range c.requests {
		if !r.requester.SameRequester(requester) || !r.isStreamCategory() {
			continue
		}
		var target *media.Device
		r.sets.Each(func(_ int, _ media.Slot, d *media.Device) {
			if target == nil && d.ID == deviceID && d.SessionID == sessionID {
				target = d
			}
		})
		if target == nil {
			continue
		}

		t := target.Type
		if len(r.transfers[t]) == 0 {
			c.stopDevice(t, sessionID)
		} else {
			r.shouldStop[t] = true
			c.logger.Debug("deferring stop until transfer settles",
				"label", r.label,
				"stream_type", t,
				"session_id", sessionID,
			)
		}
		return
	}
}

// StopRemovedDevice stops every session backed by a hardware device that
// was unplugged. rawDeviceID is the unhashed id.
func (c *Coordinator) StopRemovedDevice(t media.StreamType, rawDeviceID string) {
	c.postIO(func() { c.stopRemovedDevice(t, rawDeviceID) })
}

func (c *Coordinator) stopRemovedDevice(t media.StreamType, rawDeviceID string) {
	var sessions []string
	for _, r := range c.requests {
		hashed := media.HMACDeviceID(r.salt.DeviceIDSalt, r.salt.Origin, rawDeviceID)
		r.sets.Each(func(_ int, _ media.Slot, d *media.Device) {
			if d.Type != t || d.ID != hashed {
				return
			}
			if r.callbacks.DeviceStopped != nil {
				r.callbacks.DeviceStopped(r.label, *d)
			}
			sessions = append(sessions, d.SessionID)
		})
	}
	for _, s := range sessions {
		c.stopDevice(t, s)
	}
}

// VideoDeviceIDToSessionID returns the session of an open camera with the
// given hashed id.
func (c *Coordinator) VideoDeviceIDToSessionID(ctx context.Context, deviceID string) (string, error) {
	var session string
	err := c.query(ctx, func() {
		for _, r := range c.requests {
			r.sets.Each(func(_ int, _ media.Slot, d *media.Device) {
				if session == "" && d.Type == media.DeviceVideoCapture && d.ID == deviceID {
					session = d.SessionID
				}
			})
			if session != "" {
				return
			}
		}
	})
	if err != nil {
		return "", err
	}
	if session == "" {
		return "", ErrNotFound
	}
	return session, nil
}
