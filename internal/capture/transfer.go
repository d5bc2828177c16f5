package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/capture-core/internal/media"
)

// cloneExistingOpenDevice serves a GetOpenDevice request: it finds the
// open device by session, opens a copy for the requester and records the
// GOT_OPEN_DEVICE half of the transfer handshake on the source request.
func (c *Coordinator) cloneExistingOpenDevice(r *DeviceRequest) {
	var (
		source   *DeviceRequest
		existing media.Device
	)
	for _, other := range c.requests {
		if other == r || len(other.sets) > 1 {
			continue
		}
		other.sets.Each(func(_ int, _ media.Slot, d *media.Device) {
			if source == nil && d.SessionID == r.sourceSessionID && other.state(d.Type) == media.StateDone {
				source, existing = other, *d
			}
		})
		if source != nil {
			break
		}
	}
	if source == nil {
		c.finalizeRequestFailed(r, media.ResultInvalidState)
		return
	}

	if !existing.Type.IsTransferable() {
		reason := fmt.Sprintf("transfer of non-transferable stream type %s", existing.Type)
		c.logger.Error("terminating requester", "process_id", r.requester.ProcessID, "reason", reason)
		c.terminator.Terminate(r.requester.ProcessID, reason)
		c.finalizeRequestFailed(r, media.ResultInvalidState)
		return
	}

	copyDev := existing
	if raw, ok := source.rawIDs[existing.SessionID]; ok {
		copyDev.ID = raw
	}
	if existing.GroupID != "" && existing.Type.IsDevice() {
		// Group ids are per-origin hashes with no raw form kept; drop it.
		copyDev.GroupID = ""
	}
	copyDev.SessionID = c.managerFor(existing.Type).Open(copyDev)
	if copyDev.SessionID == "" {
		c.finalizeRequestFailed(r, media.ResultInvalidState)
		return
	}
	r.rawIDs[copyDev.SessionID] = copyDev.ID

	c.updateDeviceTransferStatus(source, existing.Type, r.transferID, media.TransferGotOpenDevice)

	if existing.Type.IsAudioInput() {
		r.audioType = existing.Type
	} else {
		r.videoType = existing.Type
	}
	r.sets = media.StreamDevicesSet{media.NewStreamDevices(translateDeviceIDToSourceID(r, copyDev))}
	c.setState(r, existing.Type, media.StateDone)
	c.handleRequestDone(r)
}

// updateDeviceTransferStatus records one half of the transfer handshake.
// The entry is removed once both halves have been seen; if that empties the
// map and a stop was deferred, the device stops now.
func (c *Coordinator) updateDeviceTransferStatus(r *DeviceRequest, t media.StreamType, transferID string, state media.TransferState) {
	if r.transfers[t] == nil {
		r.transfers[t] = make(map[string]transferEntry)
	}
	m := r.transfers[t]

	entry, ok := m[transferID]
	if !ok {
		m[transferID] = transferEntry{state: state, started: time.Now()}
		return
	}
	if entry.state != state {
		delete(m, transferID)
		c.logger.Debug("transfer settled",
			"label", r.label,
			"stream_type", t,
			"transfer_id", transferID,
			"elapsed", time.Since(entry.started),
		)
	}

	if len(m) == 0 && r.shouldStop[t] {
		r.shouldStop[t] = false
		slot, _ := media.SlotFor(t)
		if dev, ok := r.firstDevice(slot); ok {
			c.stopDevice(t, dev.SessionID)
		}
	}
}

// KeepDeviceAliveForTransfer records the KEPT_ALIVE half of a transfer on
// the request in the requester's frame that holds the session.
//
// Returns:
//   - bool: true if a holder was found
//   - error: ErrStopped or the context error
func (c *Coordinator) KeepDeviceAliveForTransfer(ctx context.Context, requester RequesterID, sessionID, transferID string) (bool, error) {
	var found bool
	err := c.query(ctx, func() {
		for _, r := range c.requests {
			if !r.isStreamCategory() || !r.requester.SameFrame(requester) {
				continue
			}
			var dev *media.Device
			r.sets.Each(func(_ int, _ media.Slot, d *media.Device) {
				if dev == nil && d.SessionID == sessionID {
					dev = d
				}
			})
			if dev == nil {
				continue
			}
			c.updateDeviceTransferStatus(r, dev.Type, transferID, media.TransferKeptAlive)
			found = true
			return
		}
	})
	return found, err
}
