package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/capture-core/internal/auth"
	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/media"
)

// Frame event types broadcast on frameChannel.
const (
	FrameEventDeviceStopped = "device.stopped"
	FrameEventDeviceChanged = "device.changed"
	FrameEventStateChange   = "device.state_change"
)

// generateStreamsRequest is the body of POST /streams.
type generateStreamsRequest struct {
	PageRequestID int                  `json:"page_request_id"`
	Controls      media.StreamControls `json:"controls"`
	UserGesture   bool                 `json:"user_gesture"`
	HasFocus      bool                 `json:"has_focus"`
	Strategy      string               `json:"strategy,omitempty"`
	SessionID     string               `json:"session_id,omitempty"`
}

// streamsResponse is the outcome of a generate or access request. A
// request the coordinator answered is a 200 even when Result is a failure.
type streamsResponse struct {
	Result             media.Result           `json:"result"`
	Label              string                 `json:"label,omitempty"`
	Devices            media.StreamDevicesSet `json:"devices"`
	PanTiltZoomAllowed bool                   `json:"pan_tilt_zoom_allowed,omitempty"`
}

// accessRequest is the body of POST /streams/access.
type accessRequest struct {
	PageRequestID int                  `json:"page_request_id"`
	Controls      media.StreamControls `json:"controls"`
	UserGesture   bool                 `json:"user_gesture"`
	HasFocus      bool                 `json:"has_focus"`
}

// frameEvent is the payload of the stream callbacks of one frame.
type frameEvent struct {
	Type      string                  `json:"type"`
	Label     string                  `json:"label"`
	Device    *media.Device           `json:"device,omitempty"`
	OldDevice *media.Device           `json:"old_device,omitempty"`
	Change    media.StreamStateChange `json:"change,omitempty"`
	Time      time.Time               `json:"time"`
}

// requesterFrom returns the frame identity of the caller. Routes guarded by
// auth.PermCapture only admit requester tokens, which always carry one.
func requesterFrom(r *http.Request) *auth.Requester {
	if claims := claimsFromContext(r.Context()); claims != nil {
		return claims.Requester
	}
	return nil
}

// saltFor returns the hashing context of the requester's origin.
func (s *Server) saltFor(ctx context.Context, req *auth.Requester, hasFocus bool) (media.SaltAndOrigin, error) {
	return s.salts.ForOrigin(ctx, media.Origin(req.Origin), hasFocus)
}

// broadcast is a no-op until the hub exists.
func (s *Server) broadcast(channel string, payload any) {
	if s.hub != nil {
		s.hub.Broadcast(channel, payload)
	}
}

// frameCallbacks relays the long-lived stream notifications to the
// requester's frame channel.
func (s *Server) frameCallbacks(req *auth.Requester) capture.StreamCallbacks {
	channel := frameChannel(req.ProcessID, req.FrameID)
	return capture.StreamCallbacks{
		DeviceStopped: func(label string, d media.Device) {
			s.broadcast(channel, frameEvent{Type: FrameEventDeviceStopped, Label: label, Device: &d, Time: time.Now()})
		},
		DeviceChanged: func(label string, oldDevice, newDevice media.Device) {
			s.broadcast(channel, frameEvent{Type: FrameEventDeviceChanged, Label: label, OldDevice: &oldDevice, Device: &newDevice, Time: time.Now()})
		},
		StateChange: func(label string, d media.Device, change media.StreamStateChange) {
			s.broadcast(channel, frameEvent{Type: FrameEventStateChange, Label: label, Device: &d, Change: change, Time: time.Now()})
		},
	}
}

// await waits for a completion callback to deliver on ch. When the client
// goes away or the wait times out, the request is cancelled and false is
// returned; the timeout has already been answered.
func await[T any](s *Server, w http.ResponseWriter, r *http.Request, ids capture.RequesterID, ch <-chan T) (T, bool) {
	timer := time.NewTimer(s.waitTimeout)
	defer timer.Stop()

	var zero T
	select {
	case v := <-ch:
		return v, true
	case <-r.Context().Done():
		s.logger.Debug("requester went away, cancelling",
			"process_id", ids.ProcessID,
			"page_request_id", ids.PageRequestID,
		)
		s.coord.CancelRequestByIDs(ids)
		return zero, false
	case <-timer.C:
		s.coord.CancelRequestByIDs(ids)
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "request was not answered in time")
		return zero, false
	}
}

// handleGenerateStreams serves getUserMedia and getDisplayMedia.
func (s *Server) handleGenerateStreams(w http.ResponseWriter, r *http.Request) {
	var body generateStreamsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	strategy, ok := media.ParseStreamSelectionStrategy(body.Strategy)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown strategy "+body.Strategy)
		return
	}
	if strategy == media.SearchBySessionID && body.SessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "session_id is required for search_by_session_id")
		return
	}

	requester := requesterFrom(r)
	so, err := s.saltFor(r.Context(), requester, body.HasFocus)
	if err != nil {
		s.fail(w, r, "resolving salts", err)
		return
	}

	ids := requester.ID(body.PageRequestID)
	done := make(chan streamsResponse, 1)
	err = s.coord.GenerateStreams(capture.GenerateRequest{
		Requester:     ids,
		SaltAndOrigin: so,
		Controls:      body.Controls,
		UserGesture:   body.UserGesture,
		Selection:     media.StreamSelectionInfo{Strategy: strategy, SessionID: body.SessionID},
		Callbacks:     s.frameCallbacks(requester),
	}, func(result media.Result, label string, devices media.StreamDevicesSet, ptz bool) {
		done <- streamsResponse{Result: result, Label: label, Devices: devices, PanTiltZoomAllowed: ptz}
	})
	if err != nil {
		s.fail(w, r, "generating streams", err)
		return
	}

	if resp, ok := await(s, w, r, ids, done); ok {
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleAccessRequest asks for permission without opening anything.
func (s *Server) handleAccessRequest(w http.ResponseWriter, r *http.Request) {
	var body accessRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	requester := requesterFrom(r)
	so, err := s.saltFor(r.Context(), requester, body.HasFocus)
	if err != nil {
		s.fail(w, r, "resolving salts", err)
		return
	}

	ids := requester.ID(body.PageRequestID)
	done := make(chan streamsResponse, 1)
	err = s.coord.MakeMediaAccessRequest(capture.AccessRequest{
		Requester:     ids,
		SaltAndOrigin: so,
		Controls:      body.Controls,
		UserGesture:   body.UserGesture,
	}, func(devices media.StreamDevicesSet, result media.Result) {
		done <- streamsResponse{Result: result, Devices: devices}
	})
	if err != nil {
		s.fail(w, r, "requesting access", err)
		return
	}

	if resp, ok := await(s, w, r, ids, done); ok {
		writeJSON(w, http.StatusOK, resp)
	}
}

// ownedLabel reports whether label is a live request of the caller's frame.
// It answers the request itself when the label is unknown or foreign.
func (s *Server) ownedLabel(w http.ResponseWriter, r *http.Request) (string, bool) {
	label := chi.URLParam(r, "label")
	if !media.ValidLabel(label) {
		writeBadRequest(w, "malformed label")
		return "", false
	}
	requester := requesterFrom(r)
	snaps, err := s.coord.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, "listing requests", err)
		return "", false
	}
	frame := requester.ID(0)
	for _, snap := range snaps {
		if snap.Label == label && snap.Requester.SameFrame(frame) {
			return label, true
		}
	}
	writeNotFound(w, "no such request")
	return "", false
}

// handleStreamStarted tells the coordinator the requester has started the
// tracks of a generated stream.
func (s *Server) handleStreamStarted(w http.ResponseWriter, r *http.Request) {
	label, ok := s.ownedLabel(w, r)
	if !ok {
		return
	}
	s.coord.OnStreamStarted(label)
	w.WriteHeader(http.StatusAccepted)
}

// handleCancelRequest cancels a request of the caller's frame.
func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	label, ok := s.ownedLabel(w, r)
	if !ok {
		return
	}
	s.coord.CancelRequest(label)
	w.WriteHeader(http.StatusAccepted)
}

// handleSetFocus is the capturer's conditional focus decision.
func (s *Server) handleSetFocus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Focus bool `json:"focus"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	label, ok := s.ownedLabel(w, r)
	if !ok {
		return
	}
	s.coord.SetCapturedDisplaySurfaceFocus(label, body.Focus)
	w.WriteHeader(http.StatusAccepted)
}

// fail answers err with the mapped domain status, or a 500 that is logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if writeDomainError(w, err) {
		return
	}
	s.logger.Error(op+" failed",
		"error", err,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)
	writeInternalError(w, op+" failed")
}
