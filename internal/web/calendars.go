package web

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gorilla/mux"

	"chronosync/internal/fetch"
	"chronosync/internal/ics"
	appLog "chronosync/internal/log"
	"chronosync/internal/model"
	"chronosync/internal/store"
)

var (
	errOtherUser     = errors.New("you can only list your own calendars")
	errUnusableEvent = errors.New("event needs a title and a date")
)

const maxImportBytes = 8 << 20

func (s *Server) handleUserCalendars(w http.ResponseWriter, r *http.Request) {
	uid, ok := actor(r)
	if !ok {
		fail(w, r, errNoActor)
		return
	}
	if mux.Vars(r)["id"] != uid {
		writeError(w, http.StatusForbidden, errOtherUser.Error())
		return
	}
	cals, err := s.Store.UserCalendars(r.Context(), uid)
	if err != nil {
		fail(w, r, err)
		return
	}
	if cals == nil {
		cals = []store.Calendar{}
	}
	writeJSON(w, http.StatusOK, cals)
}

func (s *Server) handleCalendarCreate(w http.ResponseWriter, r *http.Request) {
	uid, ok := actor(r)
	if !ok {
		fail(w, r, errNoActor)
		return
	}
	var req struct {
		Title  string           `json:"title"`
		Events []store.EventDoc `json:"events"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	cal, err := s.Store.InsertCalendar(r.Context(), uid, req.Title, req.Events)
	if err != nil {
		fail(w, r, err)
		return
	}
	appLog.Info("calendar created", "calendar", cal.ID, "owner", uid, "events", len(req.Events))
	writeJSON(w, http.StatusCreated, cal)
}

func (s *Server) handleCalendarGet(w http.ResponseWriter, r *http.Request) {
	cal, _, err := s.memberCalendar(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

func (s *Server) handleCalendarUpdate(w http.ResponseWriter, r *http.Request) {
	uid, ok := actor(r)
	if !ok {
		fail(w, r, errNoActor)
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.Store.UpdateCalendar(r.Context(), id, uid, req.Title); err != nil {
		fail(w, r, err)
		return
	}
	cal, err := s.Store.GetCalendar(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

func (s *Server) handleCalendarDelete(w http.ResponseWriter, r *http.Request) {
	uid, ok := actor(r)
	if !ok {
		fail(w, r, errNoActor)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.Store.DeleteCalendar(r.Context(), id, uid); err != nil {
		fail(w, r, err)
		return
	}
	s.forgetCalendar(r, id)
	w.WriteHeader(http.StatusNoContent)
}

// forgetCalendar clears dashboard slots that showed a deleted calendar.
func (s *Server) forgetCalendar(r *http.Request, id string) {
	key := model.CustomCalendar(id, "").Key()
	changed := false
	for _, sl := range s.Slots.Assigned() {
		if sl.Source.Key() != key {
			continue
		}
		if err := s.Slots.Clear(sl.Index); err != nil {
			appLog.Error("clear slot of deleted calendar", err, "slot", sl.Index, "calendar", id)
			continue
		}
		changed = true
	}
	if changed {
		s.Dashboard.Refresh(r.Context())
	}
}

// handleCalendarShare adds a member by user id or email. Only the owner may
// share.
func (s *Server) handleCalendarShare(w http.ResponseWriter, r *http.Request) {
	cal, uid, err := s.memberCalendar(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if cal.OwnerID != uid {
		fail(w, r, store.ErrNotOwner)
		return
	}
	var req struct {
		UserID string `json:"user_id"`
		Email  string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	var member *store.User
	switch {
	case req.Email != "":
		member, err = s.Store.ShareCalendarByEmail(r.Context(), cal.ID, req.Email)
	case req.UserID != "":
		if err = s.Store.ShareCalendar(r.Context(), cal.ID, req.UserID); err == nil {
			member, err = s.Store.GetUser(r.Context(), req.UserID)
		}
	default:
		err = invalid(errors.New("user_id or email is required"))
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	appLog.Info("calendar shared", "calendar", cal.ID, "user", member.ID)
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) handleCalendarMembers(w http.ResponseWriter, r *http.Request) {
	cal, _, err := s.memberCalendar(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	users, err := s.Store.SharedUsers(r.Context(), cal.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleCalendarMemberRemove(w http.ResponseWriter, r *http.Request) {
	uid, ok := actor(r)
	if !ok {
		fail(w, r, errNoActor)
		return
	}
	vars := mux.Vars(r)
	if err := s.Store.RemoveMember(r.Context(), vars["id"], uid, vars["uid"]); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCalendarLeave(w http.ResponseWriter, r *http.Request) {
	uid, ok := actor(r)
	if !ok {
		fail(w, r, errNoActor)
		return
	}
	if err := s.Store.LeaveCalendar(r.Context(), mux.Vars(r)["id"], uid); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEventList(w http.ResponseWriter, r *http.Request) {
	cal, _, err := s.memberCalendar(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	docs, err := s.Store.ListEvents(r.Context(), cal.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleEventAdd(w http.ResponseWriter, r *http.Request) {
	cal, _, err := s.memberCalendar(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	doc, err := decodeEvent(r, cal)
	if err != nil {
		fail(w, r, err)
		return
	}
	id, err := s.Store.AddEvent(r.Context(), cal.ID, doc)
	if err != nil {
		fail(w, r, err)
		return
	}
	doc.ID = id
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleEventUpdate(w http.ResponseWriter, r *http.Request) {
	cal, _, err := s.memberCalendar(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	doc, err := decodeEvent(r, cal)
	if err != nil {
		fail(w, r, err)
		return
	}
	doc.ID = mux.Vars(r)["eid"]
	if err := s.Store.UpdateEvent(r.Context(), cal.ID, doc); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleEventDelete(w http.ResponseWriter, r *http.Request) {
	cal, _, err := s.memberCalendar(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.Store.DeleteEvent(r.Context(), cal.ID, mux.Vars(r)["eid"]); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCalendarImport merges an iCalendar payload into the calendar. The
// body is either the ICS text itself or JSON {"url": "..."} naming a feed to
// download. Events keep their UID, so importing again updates in place.
func (s *Server) handleCalendarImport(w http.ResponseWriter, r *http.Request) {
	cal, _, err := s.memberCalendar(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var body []byte
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		var req struct {
			URL string `json:"url"`
		}
		if err := decodeJSON(r, &req); err != nil {
			fail(w, r, err)
			return
		}
		body, err = s.Feeds.Fetch(r.Context(), req.URL)
		if err != nil {
			appLog.Error("ics import download failed", err, "calendar", cal.ID)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
	} else {
		body, err = io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
		if err != nil {
			fail(w, r, invalid(err))
			return
		}
	}

	parsed, err := ics.ParseICS(body, s.loc)
	if err != nil {
		fail(w, r, invalid(err))
		return
	}
	docs := make([]store.EventDoc, 0, len(parsed))
	for _, ev := range parsed {
		docs = append(docs, ev.Doc())
	}
	n, err := s.Store.ImportEvents(r.Context(), cal.ID, docs)
	if err != nil {
		fail(w, r, err)
		return
	}
	appLog.Info("ics imported", "calendar", cal.ID, "events", n)
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

// handleCalendarExport writes one VEVENT per stored event. Repeat rules are
// not expanded.
func (s *Server) handleCalendarExport(w http.ResponseWriter, r *http.Request) {
	cal, _, err := s.memberCalendar(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	docs, err := s.Store.ListEvents(r.Context(), cal.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	src := model.CustomCalendar(cal.ID, cal.Title)
	records := make([]model.EventRecord, 0, len(docs))
	for _, d := range docs {
		if rec, ok := fetch.NormalizeStored(d, src); ok {
			records = append(records, rec)
		}
	}
	writeCalendar(w, cal.ID+".ics", ics.Encode(cal.Title, records, s.now()))
}

// memberCalendar loads the calendar named in the path and checks that the
// acting user is one of its members.
func (s *Server) memberCalendar(r *http.Request) (*store.Calendar, string, error) {
	uid, ok := actor(r)
	if !ok {
		return nil, "", errNoActor
	}
	cal, err := s.Store.GetCalendar(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, "", err
	}
	if !cal.SharedWith[uid] {
		return nil, "", errNotMember
	}
	return cal, uid, nil
}

func decodeEvent(r *http.Request, cal *store.Calendar) (store.EventDoc, error) {
	var doc store.EventDoc
	if err := decodeJSON(r, &doc); err != nil {
		return doc, err
	}
	if _, ok := fetch.NormalizeStored(doc, model.CustomCalendar(cal.ID, cal.Title)); !ok {
		return doc, invalid(errUnusableEvent)
	}
	return doc, nil
}
