package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"activity-sync/internal/database"
)

func setupAuthTest(t *testing.T, staticToken string) (*Manager, *database.DB) {
	t.Helper()

	dbPath := t.TempDir() + "/test.db"
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewManager(db, staticToken, nil), db
}

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func TestGetTokenNotAuthenticated(t *testing.T) {
	manager, _ := setupAuthTest(t, "")

	if token, ok := manager.GetToken(context.Background()); ok {
		t.Errorf("Expected no token, got %q", token)
	}
}

func TestGetTokenStaticFallback(t *testing.T) {
	manager, _ := setupAuthTest(t, "  static-token ")

	token, ok := manager.GetToken(context.Background())
	if !ok {
		t.Fatal("Expected static token")
	}
	if token != "static-token" {
		t.Errorf("Expected 'static-token', got %q", token)
	}
}

func TestGetTokenSessionWins(t *testing.T) {
	manager, _ := setupAuthTest(t, "static-token")
	ctx := context.Background()

	if err := manager.Login(ctx, "session-token"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	token, ok := manager.GetToken(ctx)
	if !ok || token != "session-token" {
		t.Errorf("Expected session token, got %q (%v)", token, ok)
	}

	if err := manager.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	token, ok = manager.GetToken(ctx)
	if !ok || token != "static-token" {
		t.Errorf("Expected static token after logout, got %q (%v)", token, ok)
	}
}

func TestGetTokenSkipsExpiredJWT(t *testing.T) {
	manager, db := setupAuthTest(t, "")
	ctx := context.Background()

	// Bypass Login, which refuses expired tokens
	if err := db.SetSessionToken(ctx, signedToken(t, time.Now().Add(-time.Hour))); err != nil {
		t.Fatalf("Failed to store token: %v", err)
	}

	if _, ok := manager.GetToken(ctx); ok {
		t.Error("Expected expired JWT to be treated as absent")
	}
}

func TestGetTokenAcceptsValidJWT(t *testing.T) {
	manager, _ := setupAuthTest(t, "")
	ctx := context.Background()

	valid := signedToken(t, time.Now().Add(time.Hour))
	if err := manager.Login(ctx, valid); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	token, ok := manager.GetToken(ctx)
	if !ok || token != valid {
		t.Error("Expected valid JWT to be returned")
	}
}

func TestExpiryLeeway(t *testing.T) {
	manager, _ := setupAuthTest(t, "")

	if !manager.expired(signedToken(t, time.Now().Add(10*time.Second))) {
		t.Error("Expected token expiring within the leeway to count as expired")
	}
	if manager.expired("opaque-token") {
		t.Error("Expected opaque tokens never to expire locally")
	}
}

func TestLoginRejectsBadTokens(t *testing.T) {
	manager, _ := setupAuthTest(t, "")
	ctx := context.Background()

	if err := manager.Login(ctx, "   "); err == nil {
		t.Error("Expected error for empty token")
	}

	err := manager.Login(ctx, signedToken(t, time.Now().Add(-time.Minute)))
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}
