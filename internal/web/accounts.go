package web

import (
	"net/http"

	"chronosync/internal/auth"
	appLog "chronosync/internal/log"
	"chronosync/internal/model"
	"chronosync/internal/registry"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg auth.Registration
	if err := decodeJSON(r, &reg); err != nil {
		fail(w, r, err)
		return
	}
	u, err := s.Auth.Register(r.Context(), reg)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := s.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	appLog.Info("user logged in", "user", u.ID)
	writeJSON(w, http.StatusOK, u)
}

type countriesResponse struct {
	Status  registry.Status     `json:"status"`
	Choices []model.EventSource `json:"choices"`
}

// handleCountries lists picker choices: countries, then the acting user's
// calendars. ?q= filters by label or id. A failed country load still
// answers with the custom calendars.
func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	_ = s.Countries.Load(r.Context())

	var customs []model.EventSource
	if uid, ok := actor(r); ok {
		cals, err := s.Store.UserCalendars(r.Context(), uid)
		if err != nil {
			fail(w, r, err)
			return
		}
		for _, c := range cals {
			customs = append(customs, model.CustomCalendar(c.ID, c.Title))
		}
	}

	choices := registry.FilterChoices(s.Countries.Choices(customs), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, countriesResponse{Status: s.Countries.Status(), Choices: choices})
}

// resolveSource canonicalizes a client supplied source and fills in a
// missing display name from the country list or the calendar title. A
// custom calendar is only accepted from one of its members.
func (s *Server) resolveSource(r *http.Request, src model.EventSource) (model.EventSource, error) {
	switch src.Kind {
	case model.SourcePublic:
		src = model.PublicHolidays(src.ID, src.Name)
		if src.Name == "" {
			_ = s.Countries.Load(r.Context())
			if name, ok := s.Countries.Name(src.ID); ok {
				src.Name = name
			}
		}
	case model.SourceCustom:
		src = model.CustomCalendar(src.ID, src.Name)
		if err := src.Validate(); err != nil {
			return src, err
		}
		uid, ok := actor(r)
		if !ok {
			return src, errNoActor
		}
		cal, err := s.Store.GetCalendar(r.Context(), src.ID)
		if err != nil {
			return src, err
		}
		if !cal.SharedWith[uid] {
			return src, errNotMember
		}
		if src.Name == "" {
			src.Name = cal.Title
		}
	}
	return src, nil
}
