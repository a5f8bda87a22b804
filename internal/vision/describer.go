// Package vision describes captured pictures through an OpenAI-compatible chat completions
// endpoint.
package vision

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eyelink/client/internal/apiclient"
	"github.com/eyelink/client/internal/config"
	"github.com/eyelink/client/internal/logging"
)

// ErrProviderUnavailable indicates no vision endpoint or API key is configured.
var ErrProviderUnavailable = errors.New("vision provider unavailable")

const defaultPrompt = "You are helping a blind or low vision person. Describe what is in front of " +
	"the camera in two or three short sentences. Mention any text, people, and obstacles first."

// Archiver stores a picture and returns where it can be fetched from.
type Archiver interface {
	Put(ctx context.Context, image []byte, contentType string) (string, error)
}

// Option configures a Describer.
type Option func(*Describer)

// WithArchive uploads pictures before describing them so the provider fetches them by URL.
func WithArchive(a Archiver) Option {
	return func(d *Describer) { d.archive = a }
}

// WithHTTPClient replaces the HTTP client used for provider calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(d *Describer) { d.httpClient = hc }
}

// WithPrompt overrides the system prompt.
func WithPrompt(prompt string) Option {
	return func(d *Describer) { d.prompt = prompt }
}

// Describer turns pictures into short spoken-style descriptions.
type Describer struct {
	api        *apiclient.Client
	path       string
	model      string
	prompt     string
	archive    Archiver
	httpClient *http.Client
	cache      *Cache
}

// NewDescriber builds a Describer for cfg. It returns ErrProviderUnavailable when the API key is
// missing.
func NewDescriber(cfg config.VisionConfig, opts ...Option) (*Describer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrProviderUnavailable
	}

	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apiclient.ErrInvalidURL, err)
	}
	path := endpoint.Path
	if path == "" {
		path = "/"
	}
	base := url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host}

	d := &Describer{
		path:       path,
		model:      cfg.Model,
		prompt:     defaultPrompt,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		cache:      NewCache(cfg.CacheTTL),
	}
	for _, opt := range opts {
		opt(d)
	}

	api, err := apiclient.New(base.String(), staticToken(cfg.APIKey), apiclient.WithHTTPClient(d.httpClient))
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Describe returns a description of image. Identical pictures are answered from the cache.
func (d *Describer) Describe(ctx context.Context, image []byte, contentType string) (text string, err error) {
	if d == nil || d.api == nil {
		return "", ErrProviderUnavailable
	}
	if len(image) == 0 {
		return "", fmt.Errorf("describe picture: empty image")
	}
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}

	sum := sha256.Sum256(image)
	key := hex.EncodeToString(sum[:])
	if cached, ok := d.cache.Lookup(key); ok {
		d.cache.Store(key, cached)
		return cached, nil
	}

	ctx, span := logging.StartSpan(ctx, "vision.describe")
	defer func() { span.End(err) }()

	req := completionRequest{
		Model:     d.model,
		MaxTokens: 300,
		Messages: []message{
			{Role: "system", Content: d.prompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: "What do you see?"},
				{Type: "image_url", ImageURL: &imageURL{URL: d.imageLocation(ctx, image, contentType)}},
			}},
		},
	}

	var resp completionResponse
	if err := d.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: d.path, Body: req, Auth: true}, &resp); err != nil {
		return "", fmt.Errorf("describe picture: %w", err)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return "", fmt.Errorf("describe picture: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("describe picture: %w", apiclient.ErrDecoding)
	}

	text = strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("describe picture: empty description")
	}
	d.cache.Store(key, text)
	return text, nil
}

// Last returns the most recent description, if still fresh.
func (d *Describer) Last() (string, bool) {
	if d == nil {
		return "", false
	}
	return d.cache.Last()
}

// imageLocation prefers an archived public URL and falls back to an inline data URL.
func (d *Describer) imageLocation(ctx context.Context, image []byte, contentType string) string {
	if d.archive != nil {
		location, err := d.archive.Put(ctx, image, contentType)
		switch {
		case err != nil:
			logging.FromContext(ctx).Debug("picture archive failed", slog.String("error", err.Error()))
		case strings.HasPrefix(location, "https://") || strings.HasPrefix(location, "http://"):
			return location
		}
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

type completionRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}
