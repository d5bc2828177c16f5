package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/capture-core/internal/audit"
)

// auditWriteTimeout bounds one audit insert. It runs detached from the
// request so a client hanging up does not drop the entry.
const auditWriteTimeout = 2 * time.Second

// record appends an operator action to the audit trail. Failures are
// logged and never reach the client.
func (s *Server) record(r *http.Request, action, target string, details map[string]any) {
	s.recordAs(r, operatorName(r), action, target, details)
}

func (s *Server) recordAs(r *http.Request, operator, action, target string, details map[string]any) {
	if s.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditWriteTimeout)
	defer cancel()

	err := s.audit.Create(ctx, &audit.Entry{
		Action:   action,
		Operator: operator,
		Target:   target,
		Details:  details,
	})
	if err != nil {
		s.logger.Error("audit write failed",
			"action", action,
			"operator", operator,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
	}
}

// operatorName is the username of the operator token on r.
func operatorName(r *http.Request) string {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	return strings.TrimPrefix(claims.Subject, "operator:")
}

// handleListAudit pages operator actions, most recent first.
//
// Query parameters: action, operator, target, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit trail is not configured")
		return
	}

	q := r.URL.Query()
	f := audit.Filter{
		Action:   q.Get("action"),
		Operator: q.Get("operator"),
		Target:   q.Get("target"),
	}
	var ok bool
	if f.Limit, ok = queryInt(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if f.Offset, ok = queryInt(w, q.Get("offset"), "offset"); !ok {
		return
	}

	page, err := s.audit.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, "listing audit trail", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
