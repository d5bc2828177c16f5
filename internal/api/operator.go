package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/capture-core/internal/audit"
	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/history"
	"github.com/nerrad567/capture-core/internal/media"
	"github.com/nerrad567/capture-core/internal/permission"
	"github.com/nerrad567/capture-core/internal/prompt"
)

type permissionRequest struct {
	Origin string                 `json:"origin"`
	Kind   capture.PermissionKind `json:"kind"`
	Status string                 `json:"status"`
}

type sourceRequest struct {
	Surface string `json:"surface"`
}

type stateChangeRequest struct {
	DeviceID string                  `json:"device_id"`
	Change   media.StreamStateChange `json:"change"`
}

type tabRequest struct {
	CaptureID string `json:"capture_id"`
	Surface   string `json:"surface"`
}

type originRequest struct {
	Origin string `json:"origin"`
}

// ─── Browser surface ────────────────────────────────────────────────

func (s *Server) handleListBrowserStreams(w http.ResponseWriter, _ *http.Request) {
	streams := s.broker.Streams()
	writeJSON(w, http.StatusOK, map[string]any{"streams": streams, "count": len(streams)})
}

// handleStopFromBrowser is the "stop sharing" button.
func (s *Server) handleStopFromBrowser(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	if !s.broker.Stop(label) {
		writeNotFound(w, "no running stream with that label")
		return
	}
	s.record(r, audit.ActionStreamStop, label, nil)
	w.WriteHeader(http.StatusAccepted)
}

// handleChangeSource is the "share this tab instead" button.
func (s *Server) handleChangeSource(w http.ResponseWriter, r *http.Request) {
	var body sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	next, err := media.ParseSurfaceID(body.Surface)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	label := chi.URLParam(r, "label")
	if !s.broker.ChangeSource(label, next) {
		writeNotFound(w, "no running stream with that label supports source changes")
		return
	}
	s.record(r, audit.ActionStreamSource, label, map[string]any{"surface": body.Surface})
	w.WriteHeader(http.StatusAccepted)
}

// handleBrowserStateChange relays pause or play of one device.
func (s *Server) handleBrowserStateChange(w http.ResponseWriter, r *http.Request) {
	var body stateChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.DeviceID == "" || !body.Change.Valid() {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "device_id and a change of pause or play are required")
		return
	}
	label := chi.URLParam(r, "label")
	if !s.broker.RequestStateChange(label, body.DeviceID, body.Change) {
		writeNotFound(w, "no running stream with that label")
		return
	}
	s.record(r, audit.ActionStreamStateChange, label, map[string]any{
		"device_id": body.DeviceID,
		"change":    body.Change,
	})
	w.WriteHeader(http.StatusAccepted)
}

// handleRegisterTab makes a tab capture id resolvable by later requests.
func (s *Server) handleRegisterTab(w http.ResponseWriter, r *http.Request) {
	var body tabRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	tab, err := media.ParseSurfaceID(body.Surface)
	if err != nil || tab.Kind != media.SurfaceWebContents {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "surface must be a web-contents surface id")
		return
	}
	if body.CaptureID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "capture_id is required")
		return
	}
	s.broker.RegisterTab(body.CaptureID, tab)
	w.WriteHeader(http.StatusNoContent)
}

// ─── Prompts ────────────────────────────────────────────────────────

func (s *Server) handleListPrompts(w http.ResponseWriter, _ *http.Request) {
	pending := s.broker.Pending()
	writeJSON(w, http.StatusOK, map[string]any{"prompts": pending, "count": len(pending)})
}

func (s *Server) handleDecidePrompt(w http.ResponseWriter, r *http.Request) {
	var d prompt.Decision
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	label := chi.URLParam(r, "label")
	result, err := s.broker.Decide(r.Context(), label, d)
	if err != nil {
		s.fail(w, r, "deciding prompt", err)
		return
	}
	s.record(r, audit.ActionPromptDecide, label, map[string]any{
		"allow":    d.Allow,
		"dismiss":  d.Dismiss,
		"remember": d.Remember,
		"result":   result,
	})
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// ─── Permissions and salts ──────────────────────────────────────────

func (s *Server) handleListPermissions(w http.ResponseWriter, _ *http.Request) {
	grants := s.perms.Grants()
	writeJSON(w, http.StatusOK, map[string]any{"grants": grants, "count": len(grants)})
}

// handleSetPermission stores a decision. Status "ask" forgets it.
func (s *Server) handleSetPermission(w http.ResponseWriter, r *http.Request) {
	var body permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	origin, err := media.ParseOrigin(body.Origin)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	status, err := permission.ParseStatus(body.Status)
	if err != nil {
		s.fail(w, r, "setting permission", err)
		return
	}
	if err := s.perms.Set(r.Context(), origin, body.Kind, status); err != nil {
		s.fail(w, r, "setting permission", err)
		return
	}

	s.logger.Info("permission updated",
		"origin", origin.String(),
		"kind", body.Kind,
		"status", status,
	)
	s.record(r, audit.ActionPermissionSet, origin.String(), map[string]any{
		"kind":   body.Kind,
		"status": body.Status,
	})
	writeJSON(w, http.StatusOK, permission.Grant{
		Origin:    origin,
		Kind:      body.Kind,
		Status:    status,
		UpdatedAt: time.Now().UTC(),
	})
}

// handleRotateSalts replaces the salts of an origin. Every hashed device
// id handed to the origin before stops resolving.
func (s *Server) handleRotateSalts(w http.ResponseWriter, r *http.Request) {
	origin, ok := decodeOrigin(w, r)
	if !ok {
		return
	}
	if err := s.salts.Rotate(r.Context(), origin); err != nil {
		s.fail(w, r, "rotating salts", err)
		return
	}
	s.record(r, audit.ActionSaltsRotate, origin.String(), nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleForgetSalts deletes the salts of ?origin=.
func (s *Server) handleForgetSalts(w http.ResponseWriter, r *http.Request) {
	origin, err := media.ParseOrigin(r.URL.Query().Get("origin"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	if err := s.salts.Forget(r.Context(), origin); err != nil {
		s.fail(w, r, "forgetting salts", err)
		return
	}
	s.record(r, audit.ActionSaltsForget, origin.String(), nil)
	w.WriteHeader(http.StatusNoContent)
}

func decodeOrigin(w http.ResponseWriter, r *http.Request) (media.Origin, bool) {
	var body originRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return "", false
	}
	origin, err := media.ParseOrigin(body.Origin)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return "", false
	}
	return origin, true
}

// ─── Requests and history ───────────────────────────────────────────

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.coord.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, "listing requests", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": snaps, "count": len(snaps)})
}

// handleListHistory pages finished requests, most recent first.
//
// Query parameters: origin, result, since (RFC 3339), limit, offset.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "request history is not configured")
		return
	}

	q := r.URL.Query()
	var f history.Filter
	if raw := q.Get("origin"); raw != "" {
		origin, err := media.ParseOrigin(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		f.Origin = origin
	}
	if raw := q.Get("result"); raw != "" {
		if _, err := media.ParseResult(raw); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		f.Result = raw
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "since must be an RFC 3339 time")
			return
		}
		f.Since = since
	}
	var ok bool
	if f.Limit, ok = queryInt(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if f.Offset, ok = queryInt(w, q.Get("offset"), "offset"); !ok {
		return
	}

	page, err := s.history.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, "listing history", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// queryInt parses an optional non-negative integer parameter.
func queryInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
