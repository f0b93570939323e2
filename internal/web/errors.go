package web

import (
	"errors"
	"net/http"

	"chronosync/internal/auth"
	appLog "chronosync/internal/log"
	"chronosync/internal/model"
	"chronosync/internal/registry"
	"chronosync/internal/store"
)

var (
	errNoActor   = errors.New("missing " + UserHeader + " header")
	errNotMember = errors.New("you are not a member of this calendar")
	errNotLoaded = errors.New("month is not loaded")
)

// badRequest wraps malformed input errors.
type badRequest struct{ err error }

func (e badRequest) Error() string {
	if e.err == nil {
		return "bad request"
	}
	return e.err.Error()
}

func (e badRequest) Unwrap() error { return e.err }

func invalid(err error) error { return badRequest{err} }

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br),
		errors.Is(err, store.ErrMissingID),
		errors.Is(err, store.ErrTitleRequired),
		errors.Is(err, registry.ErrSlotIndex),
		errors.Is(err, model.ErrSourceKind),
		errors.Is(err, model.ErrSourceID),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, errNoActor), errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotOwner), errors.Is(err, errNotMember):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNotMember), errors.Is(err, errNotLoaded):
		return http.StatusNotFound
	case errors.Is(err, store.ErrEmailTaken),
		errors.Is(err, store.ErrOwnerCannotLeave),
		errors.Is(err, registry.ErrDashboardFull):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// their detail is not sent to the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		appLog.Error("request failed", err, "method", r.Method, "path", r.URL.Path)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
