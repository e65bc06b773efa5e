package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bcsanches/DCCLite-sub001/internal/audit"
	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

// StateRequest is the body of PUT /decoders/{address}/state.
type StateRequest struct {
	State string `json:"state"`
}

// TaskRequest is the body of POST /devices/{name}/tasks.
type TaskRequest struct {
	Kind       string `json:"kind"`
	NewName    string `json:"new_name,omitempty"`
	Decoder    string `json:"decoder,omitempty"`
	IntervalMS int    `json:"interval_ms,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
}

// ServoRequest is the body of POST /devices/{name}/tasks/{id}/servo.
type ServoRequest struct {
	Op              string `json:"op"`
	Position        uint8  `json:"position,omitempty"`
	Flags           uint8  `json:"flags,omitempty"`
	StartPos        uint8  `json:"start_pos,omitempty"`
	EndPos          uint8  `json:"end_pos,omitempty"`
	OperationTimeMS int    `json:"operation_time_ms,omitempty"`
}

// handleListDevices returns a snapshot of every device.
//
// Query parameters:
//   - status: only devices in this session status (offline, configuring, syncing, online)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.broker.Snapshot(r.Context())
	if err != nil {
		writeBrokerError(w, err)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]device.Info, 0, len(devices))
		for _, d := range devices {
			if d.Status.String() == status {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	info, err := s.broker.Device(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeBrokerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := s.broker.DisconnectDevice(r.Context(), name)
	s.recordCommand(r, audit.Entry{Action: audit.ActionDisconnect, Device: name}, err)
	if err != nil {
		writeBrokerError(w, err)
		return
	}
	s.logger.Info("device disconnected via API", "device", name)
	writeJSON(w, http.StatusAccepted, map[string]any{"device": name, "status": "disconnecting"})
}

// handleSetDecoderState requests a new state for an output decoder. The
// request is accepted once the broker has recorded it; the device confirms
// asynchronously.
func (s *Server) handleSetDecoderState(w http.ResponseWriter, r *http.Request) {
	addr, err := decoder.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req StateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	st, err := decoder.ParseState(req.State)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	err = s.broker.SetDecoderState(r.Context(), addr, st)
	s.recordCommand(r, audit.Entry{
		Action:  audit.ActionSetState,
		Target:  strconv.Itoa(int(addr)),
		Details: map[string]any{"state": st.String()},
	}, err)
	if err != nil {
		writeBrokerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"address": addr, "requested": st})
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	kind, err := task.ParseKind(req.Kind)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.IntervalMS < 0 || req.DurationMS < 0 {
		writeBadRequest(w, "interval_ms and duration_ms must not be negative")
		return
	}

	name := chi.URLParam(r, "name")
	info, err := s.broker.StartTask(r.Context(), name, device.TaskRequest{
		Kind:     kind,
		NewName:  req.NewName,
		Decoder:  req.Decoder,
		Interval: time.Duration(req.IntervalMS) * time.Millisecond,
		Duration: time.Duration(req.DurationMS) * time.Millisecond,
	})
	details := map[string]any{}
	if req.NewName != "" {
		details["new_name"] = req.NewName
	}
	if req.Decoder != "" {
		details["decoder"] = req.Decoder
	}
	if err == nil {
		details["task_id"] = info.ID
	}
	s.recordCommand(r, audit.Entry{Action: audit.ActionStartTask, Device: name, Target: kind.String(), Details: details}, err)
	if err != nil {
		writeBrokerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleServoCommand(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req ServoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	op := device.ServoOp(req.Op)
	switch op {
	case device.ServoMove, device.ServoDeploy, device.ServoStop:
	default:
		writeBadRequest(w, fmt.Sprintf("unknown servo op %q", req.Op))
		return
	}

	name := chi.URLParam(r, "name")
	info, err := s.broker.ServoCommand(r.Context(), name, id, device.ServoCommand{
		Op:       op,
		Position: req.Position,
		Calibration: decoder.Calibration{
			Flags:         req.Flags,
			StartPos:      req.StartPos,
			EndPos:        req.EndPos,
			OperationTime: time.Duration(req.OperationTimeMS) * time.Millisecond,
		},
	})
	s.recordCommand(r, audit.Entry{
		Action:  audit.ActionServo,
		Device:  name,
		Target:  strconv.FormatUint(uint64(id), 10),
		Details: map[string]any{"op": req.Op, "position": req.Position},
	}, err)
	if err != nil {
		writeBrokerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAbortTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	name := chi.URLParam(r, "name")
	err = s.broker.AbortTask(r.Context(), name, id)
	s.recordCommand(r, audit.Entry{Action: audit.ActionAbortTask, Device: name, Target: strconv.FormatUint(uint64(id), 10)}, err)
	if err != nil {
		writeBrokerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func taskID(r *http.Request) (task.ID, error) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", raw)
	}
	return task.ID(n), nil
}
