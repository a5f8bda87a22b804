package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eyelink/client/internal/credentials"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens TokenSource) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := New(srv.URL+"/api", tokens)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, &calls
}

func TestClientInjectsBearerToken(t *testing.T) {
	tokens := credentials.NewMemoryStore()
	if err := tokens.SetToken(context.Background(), "secret-token"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if r.URL.Path != "/api/meetings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("id") != "m-1" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected request id header")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	}, tokens)

	var out struct {
		Status string `json:"status"`
	}
	err := client.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/meetings",
		Query:  url.Values{"id": {"m-1"}},
		Auth:   true,
	}, &out)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if out.Status != "success" {
		t.Fatalf("unexpected body %+v", out)
	}
}

func TestClientWithoutTokenSkipsNetwork(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, credentials.NewMemoryStore())

	err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users/me", Auth: true}, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no network calls got %d", calls.Load())
	}
}

func TestClientUnauthenticatedRequestOmitsHeader(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("expected no authorization header")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}, nil)

	if err := client.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/login", Body: map[string]string{"email": "a@b.c"}}, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestClientErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "serverMessage",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"message":"account already exists"}`))
			},
			check: func(t *testing.T, err error) {
				var failed *RequestFailedError
				if !errors.As(err, &failed) {
					t.Fatalf("expected RequestFailedError got %v", err)
				}
				if failed.StatusCode != http.StatusConflict || failed.Reason != "account already exists" {
					t.Fatalf("unexpected failure %+v", failed)
				}
				if Message(err) != "account already exists" {
					t.Fatalf("unexpected message %q", Message(err))
				}
			},
		},
		{
			name: "statusTextFallback",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			check: func(t *testing.T, err error) {
				var failed *RequestFailedError
				if !errors.As(err, &failed) || failed.Reason != http.StatusText(http.StatusBadGateway) {
					t.Fatalf("unexpected error %v", err)
				}
			},
		},
		{
			name: "decoding",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not-json`))
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrDecoding) {
					t.Fatalf("expected ErrDecoding got %v", err)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, tc.handler, nil)
			var out map[string]any
			err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/meetings/global"}, &out)
			tc.check(t, err)
		})
	}
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := New(base, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = client.Do(context.Background(), Request{Path: "/meetings/global"}, nil)
	var failed *RequestFailedError
	if !errors.As(err, &failed) || failed.StatusCode != 0 {
		t.Fatalf("expected transport failure got %v", err)
	}
}

func TestNewRejectsInvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "ftp://example.com"} {
		if _, err := New(raw, nil); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("New(%q): expected ErrInvalidURL got %v", raw, err)
		}
	}

	client, err := New("http://example.com", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Do(context.Background(), Request{Path: "relative"}, nil); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL for relative path got %v", err)
	}
}

func TestThrottlePacesPerEndpoint(t *testing.T) {
	throttle := NewThrottle(1000, 1, time.Minute)
	ctx := context.Background()

	if err := throttle.Wait(ctx, "GET /meetings/global"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := throttle.Wait(ctx, "POST /meetings/accept-first"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if throttle.Len() != 2 {
		t.Fatalf("expected two buckets got %d", throttle.Len())
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	slow := NewThrottle(0.001, 1, time.Minute)
	_ = slow.Wait(ctx, "k")
	if err := slow.Wait(cancelled, "k"); err == nil {
		t.Fatal("expected cancelled wait to fail")
	}
}

func TestThrottleForgetsIdleEndpoints(t *testing.T) {
	throttle := NewThrottle(10, 1, time.Minute)
	now := time.Now()
	throttle.withNowFunc(func() time.Time { return now })

	_ = throttle.Wait(context.Background(), "a")
	now = now.Add(2 * time.Minute)
	_ = throttle.Wait(context.Background(), "b")

	if throttle.Len() != 1 {
		t.Fatalf("expected idle bucket to be collected, have %d", throttle.Len())
	}
}

func TestThrottleClockSwapDuringWaits(t *testing.T) {
	throttle := NewThrottle(1e6, 100, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := throttle.Wait(ctx, "GET /meetings/global"); err != nil {
					t.Errorf("Wait: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		base := time.Now()
		throttle.withNowFunc(func() time.Time { return base })
	}
	wg.Wait()

	if throttle.Len() != 1 {
		t.Fatalf("expected one bucket got %d", throttle.Len())
	}
}
