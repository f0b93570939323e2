package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	appLog "chronosync/internal/log"
	"chronosync/internal/store"
)

// MinPasswordLen matches what the hosted identity provider used to enforce.
const MinPasswordLen = 6

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLen)
)

// UserStore is the subset of the document store the service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *store.User) error
	FindUserByEmail(ctx context.Context, email string) (*store.User, error)
}

// Registration carries the sign-up form.
type Registration struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Location    string `json:"location"`
}

// Service registers and authenticates local email/password accounts.
type Service struct {
	users  UserStore
	params Params
}

func NewService(users UserStore, params Params) *Service {
	return &Service{users: users, params: params}
}

func (s *Service) Register(ctx context.Context, r Registration) (*store.User, error) {
	email := strings.TrimSpace(r.Email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(r.Password) < MinPasswordLen {
		return nil, ErrWeakPassword
	}

	hash, err := HashPassword(r.Password, s.params)
	if err != nil {
		return nil, err
	}
	u := &store.User{
		Email:        email,
		FirstName:    strings.TrimSpace(r.FirstName),
		LastName:     strings.TrimSpace(r.LastName),
		DateOfBirth:  strings.TrimSpace(r.DateOfBirth),
		Location:     strings.TrimSpace(r.Location),
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	appLog.Info("user registered", "user", u.ID)
	return u, nil
}

// Login returns the account for valid credentials. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*store.User, error) {
	u, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	ok, err := VerifyPassword(password, u.PasswordHash)
	if err != nil {
		appLog.Error("stored password hash unreadable", err, "user", u.ID)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
