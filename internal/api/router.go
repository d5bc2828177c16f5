package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/capture-core/internal/auth"
	"github.com/nerrad567/capture-core/internal/panel"
)

// healthCheckTimeout bounds each component check on /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Operator console (static, auth happens in the page against /api/v1)
	r.Handle("/panel/*", http.StripPrefix("/panel", panel.Handler(s.cfg.PanelDir)))
	r.Get("/panel", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/panel/", http.StatusMovedPermanently)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.With(s.requirePermission(auth.PermTokenIssue)).Post("/auth/requesters", s.handleIssueRequesterToken)

			// Requester endpoints
			r.Route("/streams", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermCapture))
				r.Post("/", s.handleGenerateStreams)
				r.Post("/access", s.handleAccessRequest)
				r.Route("/{label}", func(r chi.Router) {
					r.Post("/started", s.handleStreamStarted)
					r.Post("/cancel", s.handleCancelRequest)
					r.Post("/focus", s.handleSetFocus)
				})
			})
			r.Route("/devices", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDevicesRead)).Get("/", s.handleEnumerateDevices)
				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermCapture))
					r.Post("/open", s.handleOpenDevice)
					r.Post("/stop", s.handleStopDevice)
					r.Post("/transfer", s.handleGetOpenDevice)
					r.Post("/keepalive", s.handleKeepAlive)
					r.Post("/link", s.handleLinkSecured)
					r.Get("/{deviceID}/session", s.handleVideoSession)
				})
			})

			// Browser surface: stop, switch and pause running streams.
			r.Route("/browser/streams", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermPromptDecide))
				r.Get("/", s.handleListBrowserStreams)
				r.Delete("/{label}", s.handleStopFromBrowser)
				r.Post("/{label}/source", s.handleChangeSource)
				r.Post("/{label}/state", s.handleBrowserStateChange)
				r.Post("/tabs", s.handleRegisterTab)
			})

			// Operator endpoints
			r.Route("/prompts", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermPromptDecide))
				r.Get("/", s.handleListPrompts)
				r.Post("/{label}", s.handleDecidePrompt)
			})
			r.Route("/permissions", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermPermissionManage))
				r.Get("/", s.handleListPermissions)
				r.Put("/", s.handleSetPermission)
			})
			r.Route("/origins/salts", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermPermissionManage))
				r.Post("/rotate", s.handleRotateSalts)
				r.Delete("/", s.handleForgetSalts)
			})
			r.With(s.requirePermission(auth.PermRequestsInspect)).Get("/requests", s.handleListRequests)
			r.With(s.requirePermission(auth.PermRequestsInspect)).Get("/history", s.handleListHistory)
			r.With(s.requirePermission(auth.PermRequestsInspect)).Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handleHealth reports the version and the status of every registered
// component. Any failing component turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	body := map[string]any{
		"status":  status,
		"version": s.version,
	}
	if len(components) > 0 {
		body["components"] = components
	}
	writeJSON(w, code, body)
}
