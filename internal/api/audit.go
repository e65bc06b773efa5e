package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/audit"
)

// auditWriteTimeout bounds a command log insert so a slow database never
// holds up the response.
const auditWriteTimeout = 2 * time.Second

// recordCommand logs an operator command with its outcome. Failures to
// write are logged and otherwise ignored.
func (s *Server) recordCommand(r *http.Request, e audit.Entry, cmdErr error) {
	if s.audit == nil {
		return
	}
	e.Source = audit.SourceAPI
	e.Result = audit.Result(cmdErr)
	if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok && id != "" {
		if e.Details == nil {
			e.Details = map[string]any{}
		}
		e.Details["request_id"] = id
	}
	if op := operatorFromContext(r.Context()); op != "" {
		if e.Details == nil {
			e.Details = map[string]any{}
		}
		e.Details["operator"] = op
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditWriteTimeout)
	defer cancel()
	if err := s.audit.Create(ctx, &e); err != nil {
		s.logger.Warn("failed to record command", "action", e.Action, "device", e.Device, "error", err)
	}
}

// handleListAudit returns recorded commands, newest first.
//
// Query parameters:
//   - action: set_state, start_task, servo, abort_task, disconnect
//   - device: device name
//   - source: api or mqtt
//   - limit: page size (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action: q.Get("action"),
		Device: q.Get("device"),
		Source: q.Get("source"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list commands", "error", err)
		writeInternalError(w, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
