package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EYELINK_API_URL", "")
	t.Setenv("EYELINK_POLL_INTERVAL", "")
	t.Setenv("EYELINK_STATE_DIR", "/tmp/eyelink-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIURL != "http://localhost:8080/api" {
		t.Fatalf("unexpected api url %q", cfg.APIURL)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("expected 5s poll interval got %v", cfg.PollInterval)
	}
	if cfg.VoiceRestartDelay != 300*time.Millisecond {
		t.Fatalf("expected 300ms restart delay got %v", cfg.VoiceRestartDelay)
	}
	if cfg.CredentialPath() != filepath.Join("/tmp/eyelink-test", "credentials.bin") {
		t.Fatalf("unexpected credential path %q", cfg.CredentialPath())
	}
	if cfg.Snapshot.Enabled() {
		t.Fatal("snapshot archive should be disabled without a bucket")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("EYELINK_API_URL", "https://api.example.com/v1/")
	t.Setenv("EYELINK_POLL_INTERVAL", "2s")
	t.Setenv("EYELINK_REQUEST_BURST", "not-a-number")
	t.Setenv("EYELINK_REQUESTS_PER_SECOND", "-1")
	t.Setenv("EYELINK_SNAPSHOT_BUCKET", "pictures")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIURL != "https://api.example.com/v1" {
		t.Fatalf("expected trailing slash trimmed got %q", cfg.APIURL)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("expected override got %v", cfg.PollInterval)
	}
	if cfg.RequestBurst != 3 {
		t.Fatalf("expected fallback burst got %d", cfg.RequestBurst)
	}
	if cfg.RequestsPerSecond != 5 {
		t.Fatalf("expected fallback rate got %v", cfg.RequestsPerSecond)
	}
	if !cfg.Snapshot.Enabled() {
		t.Fatal("expected snapshot archive enabled")
	}
}

func TestLoadRejectsInvalidURL(t *testing.T) {
	for _, raw := range []string{"ftp://example.com", "not a url", "http://"} {
		t.Setenv("EYELINK_API_URL", raw)
		if _, err := Load(); !errors.Is(err, ErrInvalidAPIURL) {
			t.Fatalf("Load() with %q: expected ErrInvalidAPIURL got %v", raw, err)
		}
	}
}
