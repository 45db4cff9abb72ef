// Package auth issues and verifies the bearer tokens used by both the REST
// surface and the realtime channel. The realtime channel derives its user
// identity from the same token; there is no client-asserted join identity.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/youngoldiamond/lifetracker/internal/store"
	"github.com/youngoldiamond/lifetracker/internal/types"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrUsernameTaken      = errors.New("auth: username taken")
)

type Config struct {
	ExpirationTime time.Duration
	SecretKey      []byte
}

// Test configuration with a 24h expiry. Not for production use.
func DefaultConfig() Config {
	return Config{
		ExpirationTime: 24 * time.Hour,
		SecretKey:      []byte("my-test-secret-key"),
	}
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Auth struct {
	config Config
	store  store.Store
}

func New(config Config, st store.Store) *Auth {
	return &Auth{config: config, store: st}
}

// storedUser is the persisted shape. types.User hides the hash from JSON
// serialization, so the store codec needs its own.
type storedUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	XP           int       `json:"xp"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (su *storedUser) user() *types.User {
	return &types.User{
		ID:           su.ID,
		Username:     su.Username,
		PasswordHash: su.PasswordHash,
		XP:           su.XP,
		CreatedAt:    su.CreatedAt,
	}
}

// Register creates the user with a bcrypt password hash. User documents ride
// in the document store keyed by username, so uniqueness falls out of the
// store's insert semantics.
func (a *Auth) Register(ctx context.Context, credentials types.Credentials) (*types.User, error) {
	if credentials.Username == "" || credentials.Password == "" {
		return nil, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(credentials.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	su := &storedUser{
		ID:           uuid.NewString(),
		Username:     credentials.Username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(su)
	if err != nil {
		return nil, err
	}

	err = a.store.Insert(ctx, &store.Document{
		Kind:  store.KindUser,
		Owner: credentials.Username,
		ID:    credentials.Username,
		Data:  data,
	})
	if errors.Is(err, store.ErrExists) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, err
	}
	return su.user(), nil
}

// Login verifies the password and returns a signed token string.
func (a *Auth) Login(ctx context.Context, credentials types.Credentials) (string, error) {
	user, err := a.User(ctx, credentials.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credentials.Password)) != nil {
		return "", ErrInvalidCredentials
	}

	claims := &Claims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.config.ExpirationTime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(a.config.SecretKey)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// CheckToken verifies the token and returns its claims. Subject is the user
// id every resource is owned by; Username keys the profile record.
func (a *Auth) CheckToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return a.config.SecretKey, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// User loads a user record by username.
func (a *Auth) User(ctx context.Context, username string) (*types.User, error) {
	doc, err := a.store.Get(ctx, store.KindUser, username)
	if err != nil {
		return nil, err
	}
	var su storedUser
	if err := json.Unmarshal(doc.Data, &su); err != nil {
		return nil, err
	}
	return su.user(), nil
}

// AddXP bumps the user's experience total and returns the updated record.
// Last write wins, same as any other document.
func (a *Auth) AddXP(ctx context.Context, username string, delta int) (*types.User, error) {
	doc, err := a.store.Get(ctx, store.KindUser, username)
	if err != nil {
		return nil, err
	}
	var su storedUser
	if err := json.Unmarshal(doc.Data, &su); err != nil {
		return nil, err
	}
	su.XP += delta
	if su.XP < 0 {
		su.XP = 0
	}
	if doc.Data, err = json.Marshal(&su); err != nil {
		return nil, err
	}
	if err := a.store.Update(ctx, doc); err != nil {
		return nil, err
	}
	return su.user(), nil
}
