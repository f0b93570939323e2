package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"chronosync/internal/agenda"
	"chronosync/internal/auth"
	"chronosync/internal/config"
	"chronosync/internal/ics"
	appLog "chronosync/internal/log"
	"chronosync/internal/metrics"
	"chronosync/internal/model"
	"chronosync/internal/registry"
	"chronosync/internal/store"
)

// UserHeader carries the id of the acting user, as returned by /api/login.
const UserHeader = "X-User-ID"

// Deps are the collaborators the HTTP API is built on.
type Deps struct {
	Config     *config.Config
	Store      *store.Storage
	Auth       *auth.Service
	Slots      *registry.Slots
	Active     *registry.ActiveSet
	Countries  *registry.CountryCache
	Fetcher    agenda.Fetcher
	Aggregator *agenda.Aggregator
	Dashboard  *agenda.Dashboard
	Feeds      *ics.FeedFetcher
	Metrics    *metrics.Metrics
}

// Server exposes the dashboard, month view, calendars and accounts as a
// JSON API.
type Server struct {
	Deps
	router    *mux.Router
	loc       *time.Location
	weekStart time.Weekday
	now       func() time.Time
}

func NewServer(d Deps) *Server {
	if d.Config == nil {
		d.Config = config.DefaultConfig()
	}
	s := &Server{
		Deps:      d,
		router:    mux.NewRouter(),
		loc:       d.Config.Location(),
		weekStart: d.Config.FirstWeekday(),
		now:       time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the router wrapped in panic recovery, access logging and,
// when configured, HTTP basic auth.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.Config.Listen)
		h = s.basicAuthMiddleware(h)
	}
	h = handlers.CustomLoggingHandler(io.Discard, h, accessLog)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))(h)
}

// StartServer serves until ctx is canceled, then shuts down gracefully.
func StartServer(ctx context.Context, listen string, s *Server) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/countries", s.handleCountries).Methods(http.MethodGet)

	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/refresh", s.handleDashboardRefresh).Methods(http.MethodPost)
	api.HandleFunc("/slots", s.handleSlots).Methods(http.MethodGet)
	api.HandleFunc("/slots", s.handleSlotAdd).Methods(http.MethodPost)
	api.HandleFunc("/slots/{index:[0-9]+}", s.handleSlotAssign).Methods(http.MethodPut)
	api.HandleFunc("/slots/{index:[0-9]+}", s.handleSlotClear).Methods(http.MethodDelete)
	api.HandleFunc("/preferences", s.handlePreferences).Methods(http.MethodGet)
	api.HandleFunc("/preferences", s.handlePreferencesUpdate).Methods(http.MethodPut)

	api.HandleFunc("/month", s.handleMonth).Methods(http.MethodGet)
	api.HandleFunc("/month.ics", s.handleMonthICS).Methods(http.MethodGet)
	api.HandleFunc("/month/day", s.handleMonthDay).Methods(http.MethodGet)
	api.HandleFunc("/month/sources", s.handleMonthSources).Methods(http.MethodGet)
	api.HandleFunc("/month/sources", s.handleMonthSourcesSet).Methods(http.MethodPut)
	api.HandleFunc("/month/sources/dashboard", s.handleMonthSourcesFromDashboard).Methods(http.MethodPut)

	api.HandleFunc("/users/{id}/calendars", s.handleUserCalendars).Methods(http.MethodGet)
	api.HandleFunc("/calendars", s.handleCalendarCreate).Methods(http.MethodPost)
	api.HandleFunc("/calendars/{id}", s.handleCalendarGet).Methods(http.MethodGet)
	api.HandleFunc("/calendars/{id}", s.handleCalendarUpdate).Methods(http.MethodPatch)
	api.HandleFunc("/calendars/{id}", s.handleCalendarDelete).Methods(http.MethodDelete)
	api.HandleFunc("/calendars/{id}/share", s.handleCalendarShare).Methods(http.MethodPost)
	api.HandleFunc("/calendars/{id}/members", s.handleCalendarMembers).Methods(http.MethodGet)
	api.HandleFunc("/calendars/{id}/members/{uid}", s.handleCalendarMemberRemove).Methods(http.MethodDelete)
	api.HandleFunc("/calendars/{id}/leave", s.handleCalendarLeave).Methods(http.MethodPost)
	api.HandleFunc("/calendars/{id}/events", s.handleEventList).Methods(http.MethodGet)
	api.HandleFunc("/calendars/{id}/events", s.handleEventAdd).Methods(http.MethodPost)
	api.HandleFunc("/calendars/{id}/events/{eid}", s.handleEventUpdate).Methods(http.MethodPut)
	api.HandleFunc("/calendars/{id}/events/{eid}", s.handleEventDelete).Methods(http.MethodDelete)
	api.HandleFunc("/calendars/{id}/import", s.handleCalendarImport).Methods(http.MethodPost)
	api.HandleFunc("/calendars/{id}/export.ics", s.handleCalendarExport).Methods(http.MethodGet)

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.Config == nil || s.Config.BasicAuth == nil {
		return false
	}
	return s.Config.BasicAuth.Username != "" && s.Config.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.Config.BasicAuth.Username
	password := s.Config.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ChronoSync", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func accessLog(_ io.Writer, p handlers.LogFormatterParams) {
	appLog.Info("http request",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"bytes", p.Size,
		"took", time.Since(p.TimeStamp).String(),
	)
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	appLog.Error("http handler panic", errors.New("panic"), "detail", v)
}

// actor returns the acting user id from UserHeader.
func actor(r *http.Request) (string, bool) {
	id := r.Header.Get(UserHeader)
	return id, id != ""
}

func (s *Server) today() model.CalendarDate {
	return model.FromTime(s.now().In(s.loc))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid(err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
