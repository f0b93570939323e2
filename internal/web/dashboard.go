package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"chronosync/internal/agenda"
	"chronosync/internal/model"
)

type dashboardResponse struct {
	Slots       []agenda.SlotView `json:"slots"`
	RefreshedAt time.Time         `json:"refreshed_at"`
	DarkMode    bool              `json:"dark_mode"`
}

// handleDashboard answers from the cached slot views, computing them once
// if nothing has refreshed the dashboard yet.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	views, at := s.Dashboard.View()
	if at.IsZero() {
		views = s.Dashboard.Refresh(r.Context())
		_, at = s.Dashboard.View()
	}
	writeJSON(w, http.StatusOK, dashboardResponse{Slots: views, RefreshedAt: at, DarkMode: s.Slots.DarkMode()})
}

func (s *Server) handleDashboardRefresh(w http.ResponseWriter, r *http.Request) {
	views := s.Dashboard.Refresh(r.Context())
	_, at := s.Dashboard.View()
	writeJSON(w, http.StatusOK, dashboardResponse{Slots: views, RefreshedAt: at, DarkMode: s.Slots.DarkMode()})
}

func (s *Server) handleSlots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Slots.All())
}

// handleSlotAdd places a source in the first free slot.
func (s *Server) handleSlotAdd(w http.ResponseWriter, r *http.Request) {
	var src model.EventSource
	if err := decodeJSON(r, &src); err != nil {
		fail(w, r, err)
		return
	}
	src, err := s.resolveSource(r, src)
	if err != nil {
		fail(w, r, err)
		return
	}
	idx, err := s.Slots.AssignFirstFree(src)
	if err != nil {
		fail(w, r, err)
		return
	}
	s.writeSlotView(w, r, http.StatusCreated, idx)
}

func (s *Server) handleSlotAssign(w http.ResponseWriter, r *http.Request) {
	idx, err := slotIndex(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var src model.EventSource
	if err := decodeJSON(r, &src); err != nil {
		fail(w, r, err)
		return
	}
	src, err = s.resolveSource(r, src)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.Slots.Assign(idx, src); err != nil {
		fail(w, r, err)
		return
	}
	s.writeSlotView(w, r, http.StatusOK, idx)
}

func (s *Server) handleSlotClear(w http.ResponseWriter, r *http.Request) {
	idx, err := slotIndex(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.Slots.Clear(idx); err != nil {
		fail(w, r, err)
		return
	}
	s.Dashboard.Refresh(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// writeSlotView refreshes the dashboard after a slot change and answers with
// the changed slot.
func (s *Server) writeSlotView(w http.ResponseWriter, r *http.Request, status, idx int) {
	views := s.Dashboard.Refresh(r.Context())
	for _, v := range views {
		if v.Index == idx {
			writeJSON(w, status, v)
			return
		}
	}
	writeJSON(w, status, agenda.SlotView{Index: idx})
}

type preferences struct {
	DarkMode bool `json:"dark_mode"`
}

func (s *Server) handlePreferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, preferences{DarkMode: s.Slots.DarkMode()})
}

func (s *Server) handlePreferencesUpdate(w http.ResponseWriter, r *http.Request) {
	var p preferences
	if err := decodeJSON(r, &p); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.Slots.SetDarkMode(p.DarkMode); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func slotIndex(r *http.Request) (int, error) {
	idx, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return 0, invalid(err)
	}
	return idx, nil
}
