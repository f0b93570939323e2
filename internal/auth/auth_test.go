package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronosync/internal/store"
)

var cheap = Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}

func TestHashAndVerify(t *testing.T) {
	hash, err := HashPassword("correct horse", cheap)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))

	ok, err := VerifyPassword("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("battery staple", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := HashPassword("correct horse", cheap)
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salt must differ")
}

func TestVerifyRejectsGarbage(t *testing.T) {
	for _, h := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$a$b", "$argon2id$v=19$bad$a$b"} {
		_, err := VerifyPassword("x", h)
		assert.ErrorIs(t, err, ErrHashFormat, h)
	}
}

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewService(s, cheap)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, Registration{Email: "Jane@Example.com", Password: "secret1", FirstName: "Jane"})
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", u.Email)

	got, err := svc.Login(ctx, "jane@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Login(ctx, "jane@example.com", "wrong!!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Register(ctx, Registration{Email: "jane@example.com", Password: "another1"})
	assert.ErrorIs(t, err, store.ErrEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, Registration{Email: "not-an-email", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = svc.Register(ctx, Registration{Email: "a@b.c", Password: "123"})
	assert.ErrorIs(t, err, ErrWeakPassword)
}
