package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/eyelink/client/internal/apiclient"
	"github.com/eyelink/client/internal/config"
	"github.com/eyelink/client/internal/credentials"
	"github.com/eyelink/client/internal/friends"
	"github.com/eyelink/client/internal/logging"
	"github.com/eyelink/client/internal/services"
	"github.com/eyelink/client/internal/storage"
	"github.com/eyelink/client/internal/vision"
)

// Dependencies are the concrete implementations used by the commands.
type Dependencies struct {
	Tokens   credentials.TokenStore
	Roles    credentials.RoleStore
	Services services.Services
	// Answers persists friend request answers. Nil keeps them in memory.
	Answers friends.AnswerStore
	// Describer is nil when no vision provider is configured.
	Describer *vision.Describer
}

// buildDependencies wires the persistent stores, the API client and the optional vision stack.
func buildDependencies(ctx context.Context, cfg config.Config) (Dependencies, error) {
	tokens, err := credentials.NewFileStore(cfg.CredentialPath(), cfg.CredentialPassword)
	if err != nil {
		return Dependencies{}, fmt.Errorf("open credential store: %w", err)
	}
	roles := credentials.NewPreferences(cfg.PreferencesPath())

	throttle := apiclient.NewThrottle(cfg.RequestsPerSecond, cfg.RequestBurst, 0)
	api, err := apiclient.New(cfg.APIURL, tokens,
		apiclient.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		apiclient.WithLimiter(throttle),
	)
	if err != nil {
		return Dependencies{}, err
	}

	describer, err := buildDescriber(ctx, cfg)
	if err != nil {
		return Dependencies{}, err
	}

	return Dependencies{
		Tokens:    tokens,
		Roles:     roles,
		Services:  services.New(api, tokens, roles),
		Answers:   friends.NewFileAnswers(cfg.FriendAnswersPath()),
		Describer: describer,
	}, nil
}

// buildDescriber returns nil without error when vision is not configured.
func buildDescriber(ctx context.Context, cfg config.Config) (*vision.Describer, error) {
	logger := logging.FromContext(ctx)

	var opts []vision.Option
	if prompt := strings.TrimSpace(cfg.Vision.Prompt); prompt != "" {
		opts = append(opts, vision.WithPrompt(prompt))
	}
	archive, err := storage.NewS3Archive(ctx, cfg.Snapshot)
	switch {
	case errors.Is(err, storage.ErrUnavailable):
	case err != nil:
		logger.Warn("snapshot archive disabled", slog.String("error", err.Error()))
	default:
		opts = append(opts, vision.WithArchive(archive))
	}

	describer, err := vision.NewDescriber(cfg.Vision, opts...)
	switch {
	case errors.Is(err, vision.ErrProviderUnavailable):
		logger.Debug("vision provider not configured")
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("configure vision: %w", err)
	}
	return describer, nil
}
