package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/eyelink/client/internal/models"
	"github.com/eyelink/client/internal/services"
	"github.com/eyelink/client/internal/vision"
	"github.com/eyelink/client/internal/voice"
)

// voice reads transcripts from stdin, one utterance per line, and runs the matched commands.
func (a *App) voice(ctx context.Context, args []string) error {
	set := a.flags("voice")
	picture := set.String("picture", "", "image file used when asked to take a picture")
	if _, err := parse(set, args); err != nil {
		return err
	}

	session, err := a.session(ctx)
	if err != nil {
		return err
	}

	dispatcher := voice.NewDispatcher(voice.NewLineRecognizer(a.in),
		voice.WithRestartDelay(a.cfg.VoiceRestartDelay))

	// active is only touched from the dispatcher goroutine until the dispatcher stops.
	var active *seekerCall

	caps := voice.Capabilities{
		Role: session.Role,
		Navigate: func(tab voice.Tab) {
			a.printf("Opening %s.\n", tab)
		},
		CallHelper: func() {
			if active != nil && !active.finished() {
				a.printf("A call is already in progress.\n")
				return
			}
			placed, token, err := a.placeCall(ctx, models.MeetingGlobal, "")
			if err != nil {
				a.printf("Could not call a helper: %s\n", services.Message(err))
				if placed != nil {
					_ = placed.hangUp(ctx)
				}
				return
			}
			active = placed
			a.printf("Calling a helper (meeting %s).\n", token.MeetingID)
		},
		TakePicture: func() {
			if *picture == "" {
				a.printf("No camera is available.\n")
				return
			}
			text, err := a.describeFile(ctx, *picture)
			if err != nil {
				a.printf("Could not describe the picture: %s\n", describeMessage(err))
				return
			}
			a.printf("%s\n", text)
		},
		Repeat: func() {
			text, ok := a.deps.Describer.Last()
			if !ok {
				a.printf("Nothing to repeat yet.\n")
				return
			}
			a.printf("%s\n", text)
		},
	}

	if err := dispatcher.Activate(ctx, caps); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-dispatcher.Done():
	}
	dispatcher.Stop()

	if active == nil {
		return nil
	}
	if !active.call.Joined() {
		a.printf("Nobody answered.\n")
	}
	return active.hangUp(ctx)
}

func (a *App) describe(ctx context.Context, args []string) error {
	path, err := single(args, "image file")
	if err != nil {
		return err
	}
	text, err := a.describeFile(ctx, path)
	if err != nil {
		return err
	}
	a.printf("%s\n", text)
	return nil
}

func (a *App) describeFile(ctx context.Context, path string) (string, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read picture: %w", err)
	}
	return a.deps.Describer.Describe(ctx, image, http.DetectContentType(image))
}

func describeMessage(err error) string {
	if errors.Is(err, vision.ErrProviderUnavailable) {
		return "scene description is not configured"
	}
	return err.Error()
}
