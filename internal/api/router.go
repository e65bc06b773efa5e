package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bcsanches/DCCLite-sub001/internal/auth"
	"github.com/bcsanches/DCCLite-sub001/internal/device"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	read := s.requirePermission(auth.PermDeviceRead)
	operate := s.requirePermission(auth.PermDecoderOperate)
	runTasks := s.requirePermission(auth.PermTaskRun)
	manage := s.requirePermission(auth.PermDeviceManage)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.With(read).Get("/", s.handleListDevices)

			r.Route("/{name}", func(r chi.Router) {
				r.With(read).Get("/", s.handleGetDevice)
				r.With(manage).Post("/disconnect", s.handleDisconnect)

				r.Route("/tasks", func(r chi.Router) {
					r.Use(runTasks)
					r.Post("/", s.handleStartTask)
					r.Delete("/{id}", s.handleAbortTask)
					r.Post("/{id}/servo", s.handleServoCommand)
				})
			})
		})

		r.With(operate).Put("/decoders/{address}/state", s.handleSetDecoderState)

		r.With(read).Get("/events", s.handleEvents)

		if s.audit != nil {
			r.With(read).Get("/audit", s.handleListAudit)
		}
	})

	return r
}

// handleHealth reports liveness plus a device count. A broker that no
// longer answers commands makes the API unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	devices, err := s.broker.Snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "unavailable",
			"version": s.version,
			"error":   err.Error(),
		})
		return
	}

	online := 0
	for _, d := range devices {
		if d.Status == device.StatusOnline {
			online++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"devices":        len(devices),
		"online":         online,
		"event_clients":  s.hub.ClientCount(),
	})
}
