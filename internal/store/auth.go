// Package store holds the client application state. All mutation goes through
// store methods; views read snapshots and never touch state directly.
package store

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/nstepura/examly/internal/api"
	"github.com/nstepura/examly/internal/model"
)

// AuthAPI is the slice of the backend client the auth store depends on.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*api.AuthPayload, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.AuthPayload, error)
}

// TokenVault persists the session token across restarts. Single slot,
// last write wins.
type TokenVault interface {
	SaveToken(token string) error
	Token() string
	ClearToken() error
}

// AuthStore holds the current identity and session token. Token presence is
// the sole authorization signal consumed by the route guard.
type AuthStore struct {
	mu    sync.Mutex
	api   AuthAPI
	vault TokenVault
	log   *zap.Logger

	// gen guards against overlapping auth submissions: a response is applied
	// only if its generation is still the newest issued.
	gen uint64

	user    *model.User
	token   string
	loading bool
	errMsg  string
}

// NewAuthStore constructs the store and bootstraps the token from the vault,
// so a persisted session survives restarts.
func NewAuthStore(authAPI AuthAPI, vault TokenVault, log *zap.Logger) *AuthStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthStore{
		api:   authAPI,
		vault: vault,
		log:   log,
		token: vault.Token(),
	}
}

// Login authenticates by email/password. On success the user and token are
// stored and the token persisted; on failure a human-readable error is
// recorded and prior state is left untouched.
func (s *AuthStore) Login(ctx context.Context, email, password string) error {
	gen := s.begin()

	payload, err := s.api.Login(ctx, email, password)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil // stale response, a newer submission owns the state
	}
	s.loading = false
	if err != nil {
		s.errMsg = errorMessage(err, nil, "Login failed")
		return err
	}
	s.apply(payload)
	return nil
}

// Register creates an account and logs the user in. Validation failures
// surface the first field-specific message (username, then email).
func (s *AuthStore) Register(ctx context.Context, req api.RegisterRequest) error {
	gen := s.begin()

	payload, err := s.api.Register(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	s.loading = false
	if err != nil {
		s.errMsg = errorMessage(err, []string{"username", "email"}, "Registration failed")
		return err
	}
	s.apply(payload)
	return nil
}

// Logout clears the persisted token and in-memory state synchronously.
// No network call is made.
func (s *AuthStore) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++ // in-flight auth responses become stale
	if err := s.vault.ClearToken(); err != nil {
		s.log.Warn("clear token", zap.Error(err))
	}
	s.user = nil
	s.token = ""
	s.errMsg = ""
	s.loading = false
}

// ClearError resets the error slot without touching other fields.
func (s *AuthStore) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}

// Token returns the current session token, or "" when unauthenticated.
func (s *AuthStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Authenticated reports whether a token is present.
func (s *AuthStore) Authenticated() bool { return s.Token() != "" }

// User returns a copy of the current identity, or nil.
func (s *AuthStore) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Err returns the recorded error message, or "".
func (s *AuthStore) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Loading reports whether an auth submission is in flight.
func (s *AuthStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// begin opens a new auth submission and returns its generation.
func (s *AuthStore) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.loading = true
	s.errMsg = ""
	return s.gen
}

// apply installs a successful auth payload. Caller holds the lock.
func (s *AuthStore) apply(payload *api.AuthPayload) {
	u := payload.User
	s.user = &u
	s.token = payload.Tokens.Access
	s.errMsg = ""
	if err := s.vault.SaveToken(s.token); err != nil {
		s.log.Warn("persist token", zap.Error(err))
	}
}

// errorMessage converts a failed call into the message shown to the user:
// the backend's error string, else the first matching field message, else
// the fallback.
func errorMessage(err error, fields []string, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		if m := apiErr.FieldMessage(fields...); m != "" {
			return m
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return fallback
}
