package scanner

import (
	"net/http"
	"strconv"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"
	"github.com/norasector/p25scanner/pkg/calllog"
	"github.com/norasector/p25scanner/pkg/events"
	"github.com/norasector/p25scanner/pkg/trunking"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultCallLimit = 50
	maxCallLimit     = 1000
)

// stateTracker keeps the latest state snapshot published on the bus.
type stateTracker struct {
	latest atomic.Pointer[events.Snapshot]
}

func (t *stateTracker) Handle(ev events.Event) error {
	if ev.Kind == events.StateChanged && ev.Snapshot != nil {
		snap := *ev.Snapshot
		t.latest.Store(&snap)
	}
	return nil
}

func (t *stateTracker) Snapshot() events.Snapshot {
	if snap := t.latest.Load(); snap != nil {
		return *snap
	}
	return events.Snapshot{Mode: Idle.String()}
}

type statusResponse struct {
	State     events.Snapshot     `json:"state"`
	Grants    []trunking.Grant    `json:"grants"`
	Site      trunking.Site       `json:"site"`
	Neighbors []trunking.Neighbor `json:"neighbors"`
	Stats     Stats               `json:"stats"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Scanner) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp := statusResponse{
		State:     s.status.Snapshot(),
		Grants:    s.ctrl.ActiveGrants(),
		Site:      s.ctrl.Site(),
		Neighbors: s.ctrl.Neighbors(),
		Stats:     s.Stats(),
	}
	if resp.Grants == nil {
		resp.Grants = []trunking.Grant{}
	}
	if resp.Neighbors == nil {
		resp.Neighbors = []trunking.Neighbor{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Scanner) handleCalls(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.calls == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "call log disabled"})
		return
	}
	limit := defaultCallLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	if limit > maxCallLimit {
		limit = maxCallLimit
	}
	calls, err := s.calls.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("reading call log")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if calls == nil {
		calls = []calllog.Call{}
	}
	writeJSON(w, http.StatusOK, calls)
}
