package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/ledger"
)

// StateRootResponse identifies the ledger state at a height.
type StateRootResponse struct {
	Height    ledger.Height `json:"height"`
	StateRoot string        `json:"state_root"`
}

// DueResponse lists the schedules due at a height.
type DueResponse struct {
	Height    ledger.Height `json:"height"`
	Schedules []uint64      `json:"schedules"`
}

// parseID reads a uint64 path parameter. Zero parses and is left for the
// ledger to reject with INVALID_ID.
func parseID(r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	return id, err == nil
}

// writeQuery answers a read operation.
func (s *Server) writeQuery(w http.ResponseWriter, op dispatcher.Operation) {
	res := s.ledger.Query(op)
	if !res.OK() {
		writeLedgerError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, res.Value)
}

// handleGetDevice answers get-device-status.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		writeBadRequest(w, "device id must be an unsigned integer")
		return
	}
	s.writeQuery(w, dispatcher.GetDeviceStatus(id))
}

// handleGetGroup answers get-group.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		writeBadRequest(w, "group id must be an unsigned integer")
		return
	}
	s.writeQuery(w, dispatcher.GetGroup(id))
}

// handleListMembers answers list-members.
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		writeBadRequest(w, "group id must be an unsigned integer")
		return
	}
	res := s.ledger.Query(dispatcher.ListMembers(id))
	if !res.OK() {
		writeLedgerError(w, res.Err)
		return
	}
	members, _ := res.Value.([]uint64) //nolint:errcheck // nil slice encodes as []
	if members == nil {
		members = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": id,
		"members":  members,
	})
}

// handleGetSchedule answers get-schedule.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		writeBadRequest(w, "schedule id must be an unsigned integer")
		return
	}
	s.writeQuery(w, dispatcher.GetSchedule(id))
}

// handleDueSchedules lists schedules due at ?height=, defaulting to the
// current ledger height.
func (s *Server) handleDueSchedules(w http.ResponseWriter, r *http.Request) {
	height := s.ledger.Height()
	if v := r.URL.Query().Get("height"); v != "" {
		h, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeBadRequest(w, "height must be an unsigned integer")
			return
		}
		height = ledger.Height(h)
	}
	due := s.ledger.Due(height)
	if due == nil {
		due = []uint64{}
	}
	writeJSON(w, http.StatusOK, DueResponse{Height: height, Schedules: due})
}

// handleStateRoot returns the current state root.
func (s *Server) handleStateRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StateRootResponse{
		Height:    s.ledger.Height(),
		StateRoot: s.ledger.StateRoot(),
	})
}
