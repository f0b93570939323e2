package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	appLog "chronosync/internal/log"
)

const DriverName = "sqlite3"

// CalendarIDPrefix marks calendars created by users, as opposed to public
// holiday sources.
const CalendarIDPrefix = "UM-"

var (
	ErrNotFound         = errors.New("not found")
	ErrEmailTaken       = errors.New("email is already registered")
	ErrNotOwner         = errors.New("only the calendar owner can do this")
	ErrNotMember        = errors.New("user is not a member of this calendar")
	ErrOwnerCannotLeave = errors.New("the owner cannot leave their own calendar")
	ErrMissingID        = errors.New("event id is required")
	ErrTitleRequired    = errors.New("calendar title is required")
)

// Storage is the document store for users, calendars, memberships and
// calendar events. Events are kept as raw JSON documents so records written
// by older clients survive until they are read and normalized.
type Storage struct {
	db *sqlx.DB
}

// Open opens (or creates) a sqlite database and runs migrations.
func Open(path string) (*Storage, error) {
	db, err := sql.Open(DriverName, path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	s, err := NewStorage(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewStorage(db *sql.DB) (*Storage, error) {
	s := &Storage{
		db: sqlx.NewDb(db, DriverName),
	}
	if err := s.RunMigrations(); err != nil {
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

// CreateUser stores a new user. The email is compared case-insensitively;
// an empty ID is replaced by a fresh UUID.
func (s *Storage) CreateUser(ctx context.Context, u *User) error {
	u.Email = normalizeEmail(u.Email)
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, date_of_birth, location, password_hash, created_at)
		VALUES (:id, :email, :first_name, :last_name, :date_of_birth, :location, :password_hash, :created_at)
	`, u)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (s *Storage) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Storage) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE email = ?`, normalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY email`); err != nil {
		return nil, err
	}
	return users, nil
}

// ---- calendars ----

// InsertCalendar creates a calendar owned by ownerID, makes the owner its
// first member and stores the initial events.
func (s *Storage) InsertCalendar(ctx context.Context, ownerID, title string, events []EventDoc) (*Calendar, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if _, err := s.GetUser(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("owner %s: %w", ownerID, err)
	}

	cal := &Calendar{
		ID:         CalendarIDPrefix + uuid.NewString(),
		Title:      title,
		OwnerID:    ownerID,
		CreatedAt:  time.Now().UTC(),
		SharedWith: map[string]bool{ownerID: true},
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO calendars (id, title, owner_id, created_at)
		VALUES (:id, :title, :owner_id, :created_at)
	`, cal)
	if err != nil {
		return nil, fmt.Errorf("insert calendar: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO calendar_members (calendar_id, user_id) VALUES (?, ?)
	`, cal.ID, ownerID); err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}
	for i := range events {
		if _, err := putEvent(ctx, tx, cal.ID, &events[i]); err != nil {
			return nil, fmt.Errorf("insert event %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cal, nil
}

func (s *Storage) GetCalendar(ctx context.Context, id string) (*Calendar, error) {
	var cal Calendar
	err := s.db.GetContext(ctx, &cal, `SELECT * FROM calendars WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var members []string
	if err := s.db.SelectContext(ctx, &members, `
		SELECT user_id FROM calendar_members WHERE calendar_id = ?
	`, id); err != nil {
		return nil, err
	}
	cal.SharedWith = make(map[string]bool, len(members))
	for _, m := range members {
		cal.SharedWith[m] = true
	}
	return &cal, nil
}

// UserCalendars lists every calendar the user owns or was shared with,
// ordered by title.
func (s *Storage) UserCalendars(ctx context.Context, userID string) ([]Calendar, error) {
	var cals []Calendar
	err := s.db.SelectContext(ctx, &cals, `
		SELECT c.id, c.title, c.owner_id, c.created_at
		FROM calendars c
		INNER JOIN calendar_members m ON m.calendar_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.title, c.id
	`, userID)
	if err != nil {
		return nil, err
	}
	return cals, nil
}

func (s *Storage) UpdateCalendar(ctx context.Context, id, actorID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrTitleRequired
	}
	if err := s.requireOwner(ctx, id, actorID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE calendars SET title = ? WHERE id = ?`, title, id)
	return err
}

// DeleteCalendar removes a calendar with all of its memberships and events.
func (s *Storage) DeleteCalendar(ctx context.Context, id, actorID string) error {
	if err := s.requireOwner(ctx, id, actorID); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM events WHERE calendar_id = ?`,
		`DELETE FROM calendar_members WHERE calendar_id = ?`,
		`DELETE FROM calendars WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ---- sharing ----

func (s *Storage) ShareCalendar(ctx context.Context, calendarID, userID string) error {
	if _, err := s.GetCalendar(ctx, calendarID); err != nil {
		return err
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("user %s: %w", userID, err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_members (calendar_id, user_id) VALUES (?, ?)
		ON CONFLICT(calendar_id, user_id) DO NOTHING
	`, calendarID, userID)
	return err
}

// ShareCalendarByEmail resolves the email to a user and shares the calendar
// with them. It returns the user that was added.
func (s *Storage) ShareCalendarByEmail(ctx context.Context, calendarID, email string) (*User, error) {
	u, err := s.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", email, err)
	}
	if err := s.ShareCalendar(ctx, calendarID, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// SharedUsers lists the members of a calendar, the owner included.
func (s *Storage) SharedUsers(ctx context.Context, calendarID string) ([]User, error) {
	if _, err := s.GetCalendar(ctx, calendarID); err != nil {
		return nil, err
	}
	var users []User
	err := s.db.SelectContext(ctx, &users, `
		SELECT u.*
		FROM users u
		INNER JOIN calendar_members m ON m.user_id = u.id
		WHERE m.calendar_id = ?
		ORDER BY u.email
	`, calendarID)
	if err != nil {
		return nil, err
	}
	return users, nil
}

// RemoveMember is the owner's way of revoking someone's access.
func (s *Storage) RemoveMember(ctx context.Context, calendarID, actorID, userID string) error {
	if err := s.requireOwner(ctx, calendarID, actorID); err != nil {
		return err
	}
	if userID == actorID {
		return ErrOwnerCannotLeave
	}
	return s.deleteMember(ctx, calendarID, userID)
}

func (s *Storage) LeaveCalendar(ctx context.Context, calendarID, userID string) error {
	cal, err := s.GetCalendar(ctx, calendarID)
	if err != nil {
		return err
	}
	if cal.OwnerID == userID {
		return ErrOwnerCannotLeave
	}
	return s.deleteMember(ctx, calendarID, userID)
}

func (s *Storage) deleteMember(ctx context.Context, calendarID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM calendar_members WHERE calendar_id = ? AND user_id = ?
	`, calendarID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotMember
	}
	return nil
}

func (s *Storage) requireOwner(ctx context.Context, calendarID, actorID string) error {
	var owner string
	err := s.db.GetContext(ctx, &owner, `SELECT owner_id FROM calendars WHERE id = ?`, calendarID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != actorID {
		return ErrNotOwner
	}
	return nil
}

// ---- events ----

// AddEvent stores a new event document and returns its id.
func (s *Storage) AddEvent(ctx context.Context, calendarID string, doc EventDoc) (string, error) {
	if _, err := s.GetCalendar(ctx, calendarID); err != nil {
		return "", err
	}
	doc.ID = ""
	return putEvent(ctx, s.db, calendarID, &doc)
}

// ImportEvents upserts documents keeping their ids, so a feed imported
// twice does not duplicate its events.
func (s *Storage) ImportEvents(ctx context.Context, calendarID string, docs []EventDoc) (int, error) {
	if _, err := s.GetCalendar(ctx, calendarID); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for i := range docs {
		if _, err := putEvent(ctx, tx, calendarID, &docs[i]); err != nil {
			return 0, fmt.Errorf("import event %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// UpdateEvent replaces an existing event document. The document must carry
// the id it was stored under.
func (s *Storage) UpdateEvent(ctx context.Context, calendarID string, doc EventDoc) error {
	if doc.ID == "" {
		return ErrMissingID
	}
	data, err := json.Marshal(&doc)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET doc = ?, updated_at = ? WHERE calendar_id = ? AND id = ?
	`, string(data), time.Now().UTC(), calendarID, doc.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM events WHERE calendar_id = ? AND id = ?
	`, calendarID, eventID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEvents returns every event document of a calendar. Documents that are
// not valid JSON are logged and skipped.
func (s *Storage) ListEvents(ctx context.Context, calendarID string) ([]EventDoc, error) {
	var rows []struct {
		ID  string `db:"id"`
		Doc string `db:"doc"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, doc FROM events WHERE calendar_id = ? ORDER BY updated_at, id
	`, calendarID)
	if err != nil {
		return nil, err
	}

	docs := make([]EventDoc, 0, len(rows))
	for _, r := range rows {
		var d EventDoc
		if err := json.Unmarshal([]byte(r.Doc), &d); err != nil {
			appLog.Error("skip malformed event document", err, "calendar", calendarID, "event", r.ID)
			continue
		}
		d.ID = r.ID
		docs = append(docs, d)
	}
	return docs, nil
}

func putEvent(ctx context.Context, db sqlx.ExecerContext, calendarID string, doc *EventDoc) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO events (id, calendar_id, doc, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(calendar_id, id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`, doc.ID, calendarID, string(data), time.Now().UTC())
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
