package store

import (
	"bytes"
	"encoding/json"
	"time"
)

type User struct {
	ID           string    `db:"id" json:"user_id"`
	Email        string    `db:"email" json:"email"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	DateOfBirth  string    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Location     string    `db:"location" json:"location,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Calendar is a user-owned calendar. SharedWith always contains the owner.
type Calendar struct {
	ID         string          `db:"id" json:"calendar_id"`
	Title      string          `db:"title" json:"title"`
	OwnerID    string          `db:"owner_id" json:"owner_id"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	SharedWith map[string]bool `db:"-" json:"shared_with,omitempty"`
}

// DateField is a stored event date. It is written as {"iso": "..."} and read
// from either that object or a bare string.
type DateField struct {
	ISO string `json:"iso"`
}

func (d *DateField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &d.ISO)
	}
	type plain DateField
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = DateField(p)
	return nil
}

// EventDoc is the stored document of one calendar event. Documents written
// by older clients may use name instead of title, day instead of date, or
// omit fields entirely; fetch.NormalizeStored decides what is usable.
type EventDoc struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title,omitempty"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"desc,omitempty"`
	Date        *DateField `json:"date,omitempty"`
	Day         string     `json:"day,omitempty"`
	DateStart   *DateField `json:"dateStart,omitempty"`
	DateEnd     *DateField `json:"dateEnd,omitempty"`
	TimeStart   int64      `json:"timeStart,omitempty"`
	TimeEnd     int64      `json:"timeEnd,omitempty"`
	Repeat      []string   `json:"repeat,omitempty"`
	ExDates     []string   `json:"exDates,omitempty"`
	Type        []string   `json:"type,omitempty"`
}
