package capture

import (
	"fmt"

	"github.com/nerrad567/capture-core/internal/media"
)

// validateControls checks that each track asks for a stream type of the
// right kind and that at least one track is requested.
func validateControls(controls media.StreamControls) error {
	audio, video := controls.Audio.StreamType, controls.Video.StreamType
	if audio != media.NoService && !audio.IsAudioInput() {
		return fmt.Errorf("%w: audio track cannot carry %s", ErrInvalidRequest, audio)
	}
	if video != media.NoService && !video.IsVideoInput() {
		return fmt.Errorf("%w: video track cannot carry %s", ErrInvalidRequest, video)
	}
	if audio == media.NoService && video == media.NoService {
		return fmt.Errorf("%w: no stream requested", ErrInvalidRequest)
	}
	return nil
}

// GenerateStreams starts a getUserMedia or getDisplayMedia style request.
//
// Parameters:
//   - req: requester identity, hashing context and constraints
//   - cb: fired exactly once on the IO actor with the outcome; on success
//     it carries the label and the granted device set
//
// Returns:
//   - error: ErrInvalidRequest if the request is malformed; nothing is
//     registered in that case and cb never fires
func (c *Coordinator) GenerateStreams(req GenerateRequest, cb GenerateStreamsCallback) error {
	if cb == nil {
		return fmt.Errorf("%w: nil callback", ErrInvalidRequest)
	}
	if err := validateControls(req.Controls); err != nil {
		return err
	}
	r := newDeviceRequest(req.Requester, req.SaltAndOrigin, req.Controls, generateContinuation{cb: cb})
	r.userGesture = req.UserGesture
	r.selection = req.Selection
	r.callbacks = req.Callbacks
	c.submit(r, c.setUpRequest)
	return nil
}

// GetOpenDevice hands the caller a copy of a device that another context
// has open, identified by its session id. The copy gets its own session.
func (c *Coordinator) GetOpenDevice(req GetOpenDeviceRequest, cb GetOpenDeviceCallback) error {
	if cb == nil {
		return fmt.Errorf("%w: nil callback", ErrInvalidRequest)
	}
	if req.SessionID == "" || req.TransferID == "" {
		return fmt.Errorf("%w: session and transfer ids are required", ErrInvalidRequest)
	}
	r := newDeviceRequest(req.Requester, req.SaltAndOrigin, media.StreamControls{}, getOpenContinuation{cb: cb})
	r.sourceSessionID = req.SessionID
	r.transferID = req.TransferID
	r.callbacks = req.Callbacks
	c.submit(r, c.cloneExistingOpenDevice)
	return nil
}

// OpenDevice opens a single device capture device by hashed id.
func (c *Coordinator) OpenDevice(req OpenDeviceRequest, cb OpenDeviceCallback) error {
	if cb == nil {
		return fmt.Errorf("%w: nil callback", ErrInvalidRequest)
	}
	var controls media.StreamControls
	switch req.Type {
	case media.DeviceAudioCapture:
		controls.Audio = media.TrackControls{StreamType: req.Type, DeviceID: req.DeviceID}
	case media.DeviceVideoCapture:
		controls.Video = media.TrackControls{StreamType: req.Type, DeviceID: req.DeviceID}
	default:
		return fmt.Errorf("%w: OpenDevice supports device capture only, got %s", ErrInvalidRequest, req.Type)
	}
	r := newDeviceRequest(req.Requester, req.SaltAndOrigin, controls, openContinuation{cb: cb})
	c.submit(r, c.setUpRequest)
	return nil
}

// MakeMediaAccessRequest asks for permission only. The callback receives
// the approved devices; nothing is opened and the request is removed once
// answered.
func (c *Coordinator) MakeMediaAccessRequest(req AccessRequest, cb AccessCallback) error {
	if cb == nil {
		return fmt.Errorf("%w: nil callback", ErrInvalidRequest)
	}
	if err := validateControls(req.Controls); err != nil {
		return err
	}
	r := newDeviceRequest(req.Requester, req.SaltAndOrigin, req.Controls, accessContinuation{cb: cb})
	r.userGesture = req.UserGesture
	c.submit(r, c.setUpRequest)
	return nil
}
