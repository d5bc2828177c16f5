package capture

import "github.com/nerrad567/capture-core/internal/media"

// subscribeToPermissionChanges watches the capture permissions of a
// finished request so a later revocation cancels it. Subscriptions are made
// on the UI actor and the ids stored back on the IO actor.
func (c *Coordinator) subscribeToPermissionChanges(r *DeviceRequest) {
	label := r.label
	requester := r.requester
	origin := r.salt.Origin
	watchAudio := r.audioType.IsAudioInput()
	watchVideo := r.videoType.IsVideoInput()
	if !watchAudio && !watchVideo {
		return
	}

	c.postUI(func() {
		onChange := func(status PermissionStatus) {
			c.permissionChanged(requester, status)
		}
		var audioSub, videoSub uint64
		if watchAudio {
			audioSub = c.perms.Subscribe(PermissionAudioCapture, origin, onChange)
		}
		if watchVideo {
			videoSub = c.perms.Subscribe(PermissionVideoCapture, origin, onChange)
		}
		if !c.postIO(func() { c.setPermissionSubscriptionIDs(label, audioSub, videoSub) }) {
			c.unsubscribe(audioSub, videoSub)
		}
	})
}

// setPermissionSubscriptionIDs stores subscription ids on the request, or
// drops them at once if the request is already gone.
func (c *Coordinator) setPermissionSubscriptionIDs(label string, audioSub, videoSub uint64) {
	r := c.lookup(label)
	if r == nil {
		c.postUI(func() { c.unsubscribe(audioSub, videoSub) })
		return
	}
	r.audioSubscription = audioSub
	r.videoSubscription = videoSub
}

// permissionChanged may be called from any goroutine. Anything but a
// grant cancels the request.
func (c *Coordinator) permissionChanged(requester RequesterID, status PermissionStatus) {
	if status == PermissionGranted {
		return
	}
	c.postIO(func() {
		c.logger.Info("capture permission revoked",
			"process_id", requester.ProcessID,
			"frame_id", requester.FrameID,
			"status", status,
		)
		c.cancelRequestByIDs(requester)
	})
}

// unsubscribe runs on the UI actor.
func (c *Coordinator) unsubscribe(ids ...uint64) {
	for _, id := range ids {
		if id != 0 {
			c.perms.Unsubscribe(id)
		}
	}
}

// SetCapturingLinkSecured reports whether the capture of a session is
// carried over a secure link.
func (c *Coordinator) SetCapturingLinkSecured(processID int, sessionID string, t media.StreamType, secure bool) {
	c.postIO(func() {
		for _, r := range c.requests {
			if r.requester.ProcessID != processID {
				continue
			}
			if r.sets.Find(t, sessionID) == nil {
				continue
			}
			c.observer.OnCapturingLinkSecured(LinkSecuredEvent{
				Requester:  r.requester,
				SessionID:  sessionID,
				StreamType: t,
				Secure:     secure,
			})
			return
		}
	})
}
