package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/capture-core/internal/auth"
	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/media"
)

// defaultKinds are enumerated when GET /devices names no kind.
var defaultKinds = []media.DeviceKind{media.KindAudioInput, media.KindVideoInput}

type openDeviceRequest struct {
	PageRequestID int              `json:"page_request_id"`
	DeviceID      string           `json:"device_id"`
	Type          media.StreamType `json:"type"`
}

type openDeviceResponse struct {
	OK     bool          `json:"ok"`
	Label  string        `json:"label,omitempty"`
	Device *media.Device `json:"device,omitempty"`
}

type stopDeviceRequest struct {
	DeviceID  string `json:"device_id"`
	SessionID string `json:"session_id"`
}

type transferRequest struct {
	PageRequestID int    `json:"page_request_id"`
	SessionID     string `json:"session_id"`
	TransferID    string `json:"transfer_id"`
}

type transferResponse struct {
	Result             media.Result  `json:"result"`
	Label              string        `json:"label,omitempty"`
	Device             *media.Device `json:"device,omitempty"`
	PanTiltZoomAllowed bool          `json:"pan_tilt_zoom_allowed,omitempty"`
}

type linkRequest struct {
	SessionID  string           `json:"session_id"`
	StreamType media.StreamType `json:"stream_type"`
	Secure     bool             `json:"secure"`
}

// handleEnumerateDevices lists capture devices. Requesters see ids hashed
// for their origin; operators see raw ids.
func (s *Server) handleEnumerateDevices(w http.ResponseWriter, r *http.Request) {
	kinds := defaultKinds
	if names := r.URL.Query()["kind"]; len(names) > 0 {
		kinds = make([]media.DeviceKind, 0, len(names))
		for _, n := range names {
			k := media.DeviceKind(n)
			switch k {
			case media.KindAudioInput, media.KindVideoInput, media.KindAudioOutput:
				kinds = append(kinds, k)
			default:
				writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown device kind "+n)
				return
			}
		}
	}

	enum, err := s.devices.EnumerateDevices(r.Context(), kinds)
	if err != nil {
		s.fail(w, r, "enumerating devices", err)
		return
	}

	claims := claimsFromContext(r.Context())
	if claims.Role == auth.RoleRequester {
		so, err := s.saltFor(r.Context(), claims.Requester, false)
		if err != nil {
			s.fail(w, r, "resolving salts", err)
			return
		}
		enum = enum.Hashed(so)
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": enum})
}

// handleOpenDevice opens one device by hashed id.
func (s *Server) handleOpenDevice(w http.ResponseWriter, r *http.Request) {
	var body openDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	requester := requesterFrom(r)
	so, err := s.saltFor(r.Context(), requester, false)
	if err != nil {
		s.fail(w, r, "resolving salts", err)
		return
	}

	ids := requester.ID(body.PageRequestID)
	done := make(chan openDeviceResponse, 1)
	err = s.coord.OpenDevice(capture.OpenDeviceRequest{
		Requester:     ids,
		SaltAndOrigin: so,
		DeviceID:      body.DeviceID,
		Type:          body.Type,
	}, func(ok bool, label string, d media.Device) {
		resp := openDeviceResponse{OK: ok, Label: label}
		if ok {
			resp.Device = &d
		}
		done <- resp
	})
	if err != nil {
		s.fail(w, r, "opening device", err)
		return
	}

	if resp, ok := await(s, w, r, ids, done); ok {
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleStopDevice stops one device of one of the caller's streams.
func (s *Server) handleStopDevice(w http.ResponseWriter, r *http.Request) {
	var body stopDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.DeviceID == "" || body.SessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "device_id and session_id are required")
		return
	}
	s.coord.StopStreamDevice(requesterFrom(r).ID(0), body.DeviceID, body.SessionID)
	w.WriteHeader(http.StatusAccepted)
}

// handleGetOpenDevice is the receiving half of a device transfer.
func (s *Server) handleGetOpenDevice(w http.ResponseWriter, r *http.Request) {
	var body transferRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.SessionID == "" || body.TransferID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "session_id and transfer_id are required")
		return
	}

	requester := requesterFrom(r)
	so, err := s.saltFor(r.Context(), requester, false)
	if err != nil {
		s.fail(w, r, "resolving salts", err)
		return
	}

	ids := requester.ID(body.PageRequestID)
	done := make(chan transferResponse, 1)
	err = s.coord.GetOpenDevice(capture.GetOpenDeviceRequest{
		Requester:     ids,
		SaltAndOrigin: so,
		SessionID:     body.SessionID,
		TransferID:    body.TransferID,
		Callbacks:     s.frameCallbacks(requester),
	}, func(result media.Result, label string, d media.Device, ptz bool) {
		resp := transferResponse{Result: result, Label: label, PanTiltZoomAllowed: ptz}
		if result.OK() {
			resp.Device = &d
		}
		done <- resp
	})
	if err != nil {
		s.fail(w, r, "getting open device", err)
		return
	}

	if resp, ok := await(s, w, r, ids, done); ok {
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleKeepAlive is the sending half of a device transfer.
func (s *Server) handleKeepAlive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID  string `json:"session_id"`
		TransferID string `json:"transfer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.SessionID == "" || body.TransferID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "session_id and transfer_id are required")
		return
	}

	found, err := s.coord.KeepDeviceAliveForTransfer(r.Context(), requesterFrom(r).ID(0), body.SessionID, body.TransferID)
	if err != nil {
		s.fail(w, r, "keeping device alive", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"kept_alive": found})
}

// handleLinkSecured records whether a capture leaves over a secure link.
func (s *Server) handleLinkSecured(w http.ResponseWriter, r *http.Request) {
	var body linkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.SessionID == "" || body.StreamType == media.NoService {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "session_id and stream_type are required")
		return
	}
	s.coord.SetCapturingLinkSecured(requesterFrom(r).ProcessID, body.SessionID, body.StreamType, body.Secure)
	w.WriteHeader(http.StatusAccepted)
}

// handleVideoSession maps a hashed camera id to its open session.
func (s *Server) handleVideoSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.coord.VideoDeviceIDToSessionID(r.Context(), chi.URLParam(r, "deviceID"))
	if errors.Is(err, capture.ErrNotFound) {
		writeNotFound(w, "no open camera with that id")
		return
	}
	if err != nil {
		s.fail(w, r, "looking up session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": session})
}
