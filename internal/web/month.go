package web

import (
	"fmt"
	"net/http"
	"time"

	"chronosync/internal/agenda"
	"chronosync/internal/ics"
	"chronosync/internal/model"
)

type monthResponse struct {
	Month     string                         `json:"month"`
	Window    agenda.MonthWindow             `json:"window"`
	Sources   []model.EventSource            `json:"sources"`
	Cells     []agenda.Cell                  `json:"cells"`
	Days      map[string][]model.EventRecord `json:"days"`
	Token     uint64                         `json:"token"`
	Committed bool                           `json:"committed"`
	LoadedAt  time.Time                      `json:"loaded_at"`
}

// handleMonth aggregates ?month=YYYY-MM (default: this month) for the
// active sources. A response overtaken by a newer request is still returned
// but carries committed=false and should not be rendered.
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	win, err := s.monthParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	view, committed := s.Aggregator.Load(r.Context(), win, s.Active.Sources())

	days := make(map[string][]model.EventRecord)
	for _, d := range view.Bucket.Dates() {
		days[d.String()] = view.Bucket.Day(d)
	}
	writeJSON(w, http.StatusOK, monthResponse{
		Month:     win.String(),
		Window:    win,
		Sources:   view.Sources,
		Cells:     view.Bucket.Cells(win),
		Days:      days,
		Token:     view.Token,
		Committed: committed,
		LoadedAt:  view.LoadedAt,
	})
}

type dayResponse struct {
	Date    model.CalendarDate  `json:"date"`
	Records []model.EventRecord `json:"records"`
}

// handleMonthDay lists the records of one day of the current month view.
func (s *Server) handleMonthDay(w http.ResponseWriter, r *http.Request) {
	d, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		fail(w, r, invalid(err))
		return
	}
	cur := s.Aggregator.Current()
	if cur == nil || !cur.Window.Range().Contains(d) {
		fail(w, r, errNotLoaded)
		return
	}
	writeJSON(w, http.StatusOK, dayResponse{Date: d, Records: cur.Bucket.Day(d)})
}

type sourcesResponse struct {
	Token   uint64              `json:"token"`
	Sources []model.EventSource `json:"sources"`
}

func (s *Server) handleMonthSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sourcesResponse{Token: s.Active.Token(), Sources: s.Active.Sources()})
}

func (s *Server) handleMonthSourcesSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sources []model.EventSource `json:"sources"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	for i := range req.Sources {
		src, err := s.resolveSource(r, req.Sources[i])
		if err != nil {
			fail(w, r, err)
			return
		}
		req.Sources[i] = src
	}
	token, err := s.Active.SetActiveSources(req.Sources)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sourcesResponse{Token: token, Sources: s.Active.Sources()})
}

// handleMonthSourcesFromDashboard activates the sources of the given
// dashboard slots.
func (s *Server) handleMonthSourcesFromDashboard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slots []int `json:"slots"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	token, err := s.Active.PickFromDashboard(s.Slots.All(), req.Slots)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sourcesResponse{Token: token, Sources: s.Active.Sources()})
}

// handleMonthICS exports a month of the active sources as iCalendar. It
// does not replace the current month view.
func (s *Server) handleMonthICS(w http.ResponseWriter, r *http.Request) {
	win, err := s.monthParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	b := agenda.Aggregate(r.Context(), s.Fetcher, win, s.Active.Sources())
	body := ics.Encode("ChronoSync "+win.String(), b.Records(), s.now())
	writeCalendar(w, "chronosync-"+win.String()+".ics", body)
}

func (s *Server) monthParam(r *http.Request) (agenda.MonthWindow, error) {
	raw := r.URL.Query().Get("month")
	if raw == "" {
		return agenda.MonthOf(s.today(), s.weekStart), nil
	}
	win, err := agenda.ParseMonth(raw, s.weekStart)
	if err != nil {
		return agenda.MonthWindow{}, invalid(err)
	}
	return win, nil
}

func writeCalendar(w http.ResponseWriter, filename, body string) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
