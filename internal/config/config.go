package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidAPIURL indicates EYELINK_API_URL is not an absolute http(s) URL.
var ErrInvalidAPIURL = errors.New("invalid api url")

// Config captures the runtime configuration for the eyelink client.
type Config struct {
	APIURL            string
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	RequestBurst      int

	PollInterval       time.Duration
	VoiceRestartDelay  time.Duration
	StateDir           string
	CredentialPassword string

	LogLevel  string
	LogFormat string

	Vision   VisionConfig
	Snapshot SnapshotConfig
}

// VisionConfig points at an OpenAI-compatible chat completions endpoint with image support.
type VisionConfig struct {
	URL      string
	APIKey   string
	Model    string
	CacheTTL time.Duration
	// Prompt replaces the default instructions when set.
	Prompt string
}

// SnapshotConfig configures the optional S3-compatible archive for captured pictures.
type SnapshotConfig struct {
	Bucket        string
	Endpoint      string
	Region        string
	PublicBaseURL string
}

// Enabled reports whether pictures should be archived before description.
func (s SnapshotConfig) Enabled() bool {
	return strings.TrimSpace(s.Bucket) != ""
}

// Load reads configuration from environment variables, applying defaults suitable for a local
// development server.
func Load() (Config, error) {
	cfg := Config{
		APIURL:             strings.TrimRight(getString("EYELINK_API_URL", "http://localhost:8080/api"), "/"),
		HTTPTimeout:        getDuration("EYELINK_HTTP_TIMEOUT", 15*time.Second),
		RequestsPerSecond:  getFloat("EYELINK_REQUESTS_PER_SECOND", 5),
		RequestBurst:       getInt("EYELINK_REQUEST_BURST", 3),
		PollInterval:       getDuration("EYELINK_POLL_INTERVAL", 5*time.Second),
		VoiceRestartDelay:  getDuration("EYELINK_VOICE_RESTART_DELAY", 300*time.Millisecond),
		StateDir:           getString("EYELINK_STATE_DIR", defaultStateDir()),
		CredentialPassword: getString("EYELINK_CREDENTIAL_PASSPHRASE", ""),
		LogLevel:           getString("EYELINK_LOG_LEVEL", "info"),
		LogFormat:          getString("EYELINK_LOG_FORMAT", "text"),
		Vision: VisionConfig{
			URL:      getString("EYELINK_VISION_URL", "https://api.openai.com/v1/chat/completions"),
			APIKey:   getString("EYELINK_VISION_API_KEY", ""),
			Model:    getString("EYELINK_VISION_MODEL", "gpt-4o-mini"),
			CacheTTL: getDuration("EYELINK_VISION_CACHE_TTL", 10*time.Minute),
			Prompt:   getString("EYELINK_VISION_PROMPT", ""),
		},
		Snapshot: SnapshotConfig{
			Bucket:        getString("EYELINK_SNAPSHOT_BUCKET", ""),
			Endpoint:      getString("EYELINK_SNAPSHOT_ENDPOINT", ""),
			Region:        getString("EYELINK_SNAPSHOT_REGION", "us-east-1"),
			PublicBaseURL: getString("EYELINK_SNAPSHOT_PUBLIC_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAPIURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidAPIURL, c.APIURL)
	}
	return nil
}

// CredentialPath is the sealed bearer token file.
func (c Config) CredentialPath() string {
	return filepath.Join(c.StateDir, "credentials.bin")
}

// PreferencesPath is the plain preference file holding the selected role.
func (c Config) PreferencesPath() string {
	return filepath.Join(c.StateDir, "preferences.json")
}

// FriendAnswersPath records which friend requests this device already answered.
func (c Config) FriendAnswersPath() string {
	return filepath.Join(c.StateDir, "friend-answers.json")
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".eyelink"
	}
	return filepath.Join(dir, "eyelink")
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
