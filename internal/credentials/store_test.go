package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/eyelink/client/internal/models"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Token(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	if err := store.SetToken(ctx, "  "); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken got %v", err)
	}
	if err := store.SetToken(ctx, "first"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	if err := store.SetToken(ctx, "second"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	token, err := store.Token(ctx)
	if err != nil || token != "second" {
		t.Fatalf("expected latest token, got %q %v", token, err)
	}
	if err := store.DeleteToken(ctx); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if _, err := store.Token(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete got %v", err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "credentials.bin")

	store, err := NewFileStore(path, "correct horse")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Token(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	if err := store.SetToken(ctx, "bearer-123"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sealed file: %v", err)
	}
	if string(raw) == "bearer-123" || len(raw) <= len("bearer-123") {
		t.Fatal("expected token to be sealed on disk")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions got %v", info.Mode().Perm())
	}

	reopened, err := NewFileStore(path, "correct horse")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	token, err := reopened.Token(ctx)
	if err != nil || token != "bearer-123" {
		t.Fatalf("expected token after reopen, got %q %v", token, err)
	}

	wrong, err := NewFileStore(path, "battery staple")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := wrong.Token(ctx); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt with wrong secret got %v", err)
	}

	if err := store.DeleteToken(ctx); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if err := store.DeleteToken(ctx); err != nil {
		t.Fatalf("second DeleteToken should be a no-op: %v", err)
	}
}

func TestFileStoreGeneratedKey(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.bin")

	store, err := NewFileStore(path, "")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.SetToken(ctx, "opaque"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	if _, err := os.Stat(path + ".key"); err != nil {
		t.Fatalf("expected key file: %v", err)
	}

	reopened, err := NewFileStore(path, "")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if token, err := reopened.Token(ctx); err != nil || token != "opaque" {
		t.Fatalf("expected token with persisted key, got %q %v", token, err)
	}
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	prefs := NewPreferences(filepath.Join(t.TempDir(), "preferences.json"))

	if _, err := prefs.Role(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	if err := prefs.SetRole(ctx, "admin"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole got %v", err)
	}
	if err := prefs.SetRole(ctx, models.RoleHelper); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	role, err := prefs.Role(ctx)
	if err != nil || role != models.RoleHelper {
		t.Fatalf("expected helper role, got %q %v", role, err)
	}
	if err := prefs.ClearRole(ctx); err != nil {
		t.Fatalf("ClearRole: %v", err)
	}
	if _, err := prefs.Role(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear got %v", err)
	}
}

func TestSessionHelpers(t *testing.T) {
	ctx := context.Background()
	tokens := NewMemoryStore()
	roles := &MemoryRoles{}

	session, err := LoadSession(ctx, tokens, roles)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if session.Authenticated() {
		t.Fatal("expected anonymous session")
	}

	if err := SaveSession(ctx, tokens, roles, Session{Token: "tok", Role: models.RoleSeeker}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	session, err = LoadSession(ctx, tokens, roles)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if session.Token != "tok" || session.Role != models.RoleSeeker {
		t.Fatalf("unexpected session %+v", session)
	}

	if err := ClearSession(ctx, tokens, roles); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	session, _ = LoadSession(ctx, tokens, roles)
	if session.Authenticated() || session.Role != "" {
		t.Fatalf("expected cleared session got %+v", session)
	}
}

func TestParseClaims(t *testing.T) {
	expires := time.Now().Add(-time.Minute)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: models.RoleHelper,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := ParseClaims(signed)
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != models.RoleHelper {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.Expired(time.Now()) {
		t.Fatal("expected expired claims")
	}

	if _, err := ParseClaims("opaque-token"); !errors.Is(err, ErrNotJWT) {
		t.Fatalf("expected ErrNotJWT got %v", err)
	}
	if (Claims{}).Expired(time.Now()) {
		t.Fatal("claims without expiry never expire")
	}
}
