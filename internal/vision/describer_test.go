package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eyelink/client/internal/config"
)

type capturedRequest struct {
	auth   string
	path   string
	model  string
	image  string
	prompt string
}

func newProvider(t *testing.T, reply string) (*httptest.Server, *atomic.Int32, chan capturedRequest) {
	t.Helper()
	var calls atomic.Int32
	captured := make(chan capturedRequest, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		var parts []contentPart
		if len(body.Messages) == 2 {
			_ = json.Unmarshal(body.Messages[1].Content, &parts)
		}
		c := capturedRequest{auth: r.Header.Get("Authorization"), path: r.URL.Path, model: body.Model}
		if len(body.Messages) > 0 {
			_ = json.Unmarshal(body.Messages[0].Content, &c.prompt)
		}
		for _, p := range parts {
			if p.ImageURL != nil {
				c.image = p.ImageURL.URL
			}
		}
		captured <- c

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, captured
}

func testConfig(url string) config.VisionConfig {
	return config.VisionConfig{URL: url + "/v1/chat/completions", APIKey: "sk-test", Model: "vision-small", CacheTTL: time.Minute}
}

type stubArchive struct {
	location string
	err      error
	calls    int
}

func (s *stubArchive) Put(context.Context, []byte, string) (string, error) {
	s.calls++
	return s.location, s.err
}

func TestDescribeSendsInlinePicture(t *testing.T) {
	srv, calls, captured := newProvider(t, "  A kitchen table with two mugs.  ")
	d, err := NewDescriber(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("new describer: %v", err)
	}

	text, err := d.Describe(context.Background(), []byte("picture"), "image/jpeg")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if text != "A kitchen table with two mugs." {
		t.Fatalf("unexpected description %q", text)
	}

	got := <-captured
	if got.auth != "Bearer sk-test" || got.path != "/v1/chat/completions" || got.model != "vision-small" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.prompt != defaultPrompt {
		t.Fatalf("unexpected system prompt %q", got.prompt)
	}
	if got.image != "data:image/jpeg;base64,cGljdHVyZQ==" {
		t.Fatalf("unexpected image url %q", got.image)
	}

	if _, err := d.Describe(context.Background(), []byte("picture"), "image/jpeg"); err != nil {
		t.Fatalf("cached describe: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected identical picture to be served from cache, got %d calls", calls.Load())
	}
	if last, ok := d.Last(); !ok || last != text {
		t.Fatalf("expected last result %q, got %q", text, last)
	}
}

func TestDescribeArchive(t *testing.T) {
	tests := []struct {
		name    string
		archive *stubArchive
		want    string
	}{
		{
			name:    "public url",
			archive: &stubArchive{location: "https://cdn.example.com/snapshots/a.jpg"},
			want:    "https://cdn.example.com/snapshots/a.jpg",
		},
		{
			name:    "private key falls back to inline",
			archive: &stubArchive{location: "snapshots/a.jpg"},
			want:    "data:image/jpeg;base64,",
		},
		{
			name:    "upload failure falls back to inline",
			archive: &stubArchive{err: errors.New("denied")},
			want:    "data:image/jpeg;base64,",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, captured := newProvider(t, "A door.")
			d, err := NewDescriber(testConfig(srv.URL), WithArchive(tt.archive))
			if err != nil {
				t.Fatalf("new describer: %v", err)
			}
			if _, err := d.Describe(context.Background(), []byte("door"), "image/jpeg"); err != nil {
				t.Fatalf("describe: %v", err)
			}
			got := <-captured
			if !strings.HasPrefix(got.image, tt.want) {
				t.Fatalf("expected image url with prefix %q, got %q", tt.want, got.image)
			}
			if tt.archive.calls != 1 {
				t.Fatalf("expected one archive call, got %d", tt.archive.calls)
			}
		})
	}
}

func TestDescribeErrors(t *testing.T) {
	if _, err := NewDescriber(config.VisionConfig{URL: "https://example.com/v1/chat/completions"}); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable without key, got %v", err)
	}

	var nilDescriber *Describer
	if _, err := nilDescriber.Describe(context.Background(), []byte("x"), "image/png"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	srv, calls, _ := newProvider(t, "")
	d, err := NewDescriber(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("new describer: %v", err)
	}
	if _, err := d.Describe(context.Background(), nil, "image/png"); err == nil {
		t.Fatal("expected error for empty image")
	}
	if calls.Load() != 0 {
		t.Fatal("empty image must not reach the provider")
	}
	if _, err := d.Describe(context.Background(), []byte("x"), "image/png"); err == nil {
		t.Fatal("expected error for empty description")
	}
	if _, ok := d.Last(); ok {
		t.Fatal("failed descriptions must not be remembered")
	}
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute)
	c.now = func() time.Time { return now }

	c.Store("a", "first")
	c.Store("b", "second")
	if text, ok := c.Lookup("a"); !ok || text != "first" {
		t.Fatalf("expected cached entry, got %q %v", text, ok)
	}
	if last, _ := c.Last(); last != "second" {
		t.Fatalf("expected most recent entry, got %q", last)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Lookup("a"); ok {
		t.Fatal("expected entry to expire")
	}
	if _, ok := c.Last(); ok {
		t.Fatal("expected last result to expire")
	}
}

func TestDescribeUsesCustomPrompt(t *testing.T) {
	srv, _, captured := newProvider(t, "Two steps down, then a door.")
	d, err := NewDescriber(testConfig(srv.URL), WithPrompt("Describe obstacles first."))
	if err != nil {
		t.Fatalf("new describer: %v", err)
	}

	if _, err := d.Describe(context.Background(), []byte("stairs"), "image/png"); err != nil {
		t.Fatalf("describe: %v", err)
	}
	if got := <-captured; got.prompt != "Describe obstacles first." {
		t.Fatalf("expected custom system prompt, got %q", got.prompt)
	}
}
