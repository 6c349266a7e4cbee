// Package auth resolves the bearer token used to talk to the backend.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Treat tokens this close to expiry as already expired
const expiryLeeway = 30 * time.Second

var (
	// ErrNotAuthenticated is returned when no usable token is available
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrTokenExpired is returned when logging in with a JWT that has already expired
	ErrTokenExpired = errors.New("token is expired")
)

// Store persists the session token
type Store interface {
	GetSessionToken(ctx context.Context) (string, error)
	SetSessionToken(ctx context.Context, token string) error
	ClearSessionToken(ctx context.Context) error
}

// Manager resolves tokens from the stored session, falling back to a static token
type Manager struct {
	store       Store
	staticToken string
	logger      *slog.Logger
	parser      *jwt.Parser
	now         func() time.Time
}

// NewManager creates a new auth manager. staticToken may be empty.
func NewManager(store Store, staticToken string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:       store,
		staticToken: strings.TrimSpace(staticToken),
		logger:      logger,
		parser:      jwt.NewParser(),
		now:         time.Now,
	}
}

// GetToken returns a usable token, or false when the caller is not authenticated.
// The session token wins over the static token.
func (m *Manager) GetToken(ctx context.Context) (string, bool) {
	session, err := m.store.GetSessionToken(ctx)
	if err != nil {
		m.logger.Warn("Failed to read session token", "error", err)
		session = ""
	}

	for _, token := range []string{session, m.staticToken} {
		if token == "" {
			continue
		}
		if m.expired(token) {
			m.logger.Info("Ignoring expired token")
			continue
		}
		return token, true
	}

	return "", false
}

// Login stores token as the session token
func (m *Manager) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token is empty")
	}
	if m.expired(token) {
		return ErrTokenExpired
	}

	if err := m.store.SetSessionToken(ctx, token); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	m.logger.Info("Stored session token")
	return nil
}

// Logout forgets the session token. The static token, if any, still applies.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.ClearSessionToken(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// expired reports whether token is a JWT whose exp claim has passed.
// Signatures are not checked here; the backend does that.
// Tokens that are not JWTs never expire locally.
func (m *Manager) expired(token string) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := m.parser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(m.now().Add(expiryLeeway))
}
