package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/youngoldiamond/lifetracker/internal/store"
	"github.com/youngoldiamond/lifetracker/internal/types"
)

func newAuth() *Auth {
	return New(DefaultConfig(), store.NewMemory())
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	a := newAuth()

	user, err := a.Register(ctx, types.Credentials{Username: "alice", Password: "hunter2"})
	assert.Equal(t, nil, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "", user.ID)
	assert.NotEqual(t, "hunter2", user.PasswordHash)

	token, err := a.Login(ctx, types.Credentials{Username: "alice", Password: "hunter2"})
	assert.Equal(t, nil, err)
	assert.NotEqual(t, "", token)

	claims, err := a.CheckToken(token)
	assert.Equal(t, nil, err)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, "alice", claims.Username)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	a := newAuth()

	_, err := a.Register(ctx, types.Credentials{Username: "alice", Password: "one"})
	assert.Equal(t, nil, err)
	_, err = a.Register(ctx, types.Credentials{Username: "alice", Password: "two"})
	assert.Equal(t, true, errors.Is(err, ErrUsernameTaken))
}

func TestRegisterRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	a := newAuth()

	_, err := a.Register(ctx, types.Credentials{Username: "", Password: "x"})
	assert.Equal(t, true, errors.Is(err, ErrInvalidCredentials))
	_, err = a.Register(ctx, types.Credentials{Username: "x", Password: ""})
	assert.Equal(t, true, errors.Is(err, ErrInvalidCredentials))
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	a := newAuth()

	_, err := a.Register(ctx, types.Credentials{Username: "alice", Password: "hunter2"})
	assert.Equal(t, nil, err)

	_, err = a.Login(ctx, types.Credentials{Username: "alice", Password: "wrong"})
	assert.Equal(t, true, errors.Is(err, ErrInvalidCredentials))

	_, err = a.Login(ctx, types.Credentials{Username: "nobody", Password: "x"})
	assert.Equal(t, true, errors.Is(err, ErrInvalidCredentials))
}

func TestCheckTokenFailures(t *testing.T) {
	a := newAuth()

	_, err := a.CheckToken("")
	assert.Equal(t, true, errors.Is(err, ErrInvalidToken))
	_, err = a.CheckToken("not.a.token")
	assert.Equal(t, true, errors.Is(err, ErrInvalidToken))

	// A token signed with a different secret is rejected.
	other := New(Config{ExpirationTime: time.Hour, SecretKey: []byte("other-secret")}, store.NewMemory())
	_, err = other.Register(context.Background(), types.Credentials{Username: "eve", Password: "x"})
	assert.Equal(t, nil, err)
	token, err := other.Login(context.Background(), types.Credentials{Username: "eve", Password: "x"})
	assert.Equal(t, nil, err)
	_, err = a.CheckToken(token)
	assert.Equal(t, true, errors.Is(err, ErrInvalidToken))
}

func TestExpiredToken(t *testing.T) {
	ctx := context.Background()
	a := New(Config{ExpirationTime: -time.Minute, SecretKey: []byte("k")}, store.NewMemory())

	_, err := a.Register(ctx, types.Credentials{Username: "alice", Password: "x"})
	assert.Equal(t, nil, err)
	token, err := a.Login(ctx, types.Credentials{Username: "alice", Password: "x"})
	assert.Equal(t, nil, err)

	_, err = a.CheckToken(token)
	assert.Equal(t, true, errors.Is(err, ErrInvalidToken))
}

func TestAddXP(t *testing.T) {
	ctx := context.Background()
	a := newAuth()

	_, err := a.Register(ctx, types.Credentials{Username: "alice", Password: "x"})
	assert.Equal(t, nil, err)

	user, err := a.AddXP(ctx, "alice", 25)
	assert.Equal(t, nil, err)
	assert.Equal(t, 25, user.XP)

	user, err = a.AddXP(ctx, "alice", 10)
	assert.Equal(t, nil, err)
	assert.Equal(t, 35, user.XP)

	// XP never goes negative.
	user, err = a.AddXP(ctx, "alice", -100)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, user.XP)

	loaded, err := a.User(ctx, "alice")
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, loaded.XP)
}
