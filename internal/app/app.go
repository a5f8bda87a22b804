package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/eyelink/client/internal/config"
	"github.com/eyelink/client/internal/friends"
	"github.com/eyelink/client/internal/logging"
)

// Run bootstraps the eyelink command line client.
func Run(ctx context.Context, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	ctx = logging.WithLogger(ctx, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDependencies(ctx, cfg)
	if err != nil {
		return err
	}

	return New(cfg, deps, os.Stdin, os.Stdout).Execute(ctx, args)
}

type command struct {
	usage string
	run   func(ctx context.Context, args []string) error
}

// App dispatches subcommands against a set of dependencies.
type App struct {
	cfg  config.Config
	deps Dependencies
	in   io.Reader
	out  *syncWriter
	book *friends.Book

	commands map[string]command
}

// New builds an App. Output from background goroutines (pollers, room events) is serialised.
func New(cfg config.Config, deps Dependencies, in io.Reader, out io.Writer) *App {
	a := &App{cfg: cfg, deps: deps, in: in, out: &syncWriter{w: out}}
	a.commands = map[string]command{
		"signup":         {"signup -first NAME -last NAME -email EMAIL -password PASSWORD [-role seeker|helper]", a.signUp},
		"login":          {"login -email EMAIL -password PASSWORD [-role seeker|helper]", a.login},
		"google-login":   {"google-login -id-token TOKEN [-role seeker|helper]", a.googleLogin},
		"send-code":      {"send-code -email EMAIL", a.sendCode},
		"verify-code":    {"verify-code -email EMAIL -code CODE", a.verifyCode},
		"reset-password": {"reset-password -email EMAIL -code CODE -password PASSWORD", a.resetPassword},
		"logout":         {"logout", a.logout},
		"whoami":         {"whoami", a.whoami},
		"profile":        {"profile [show | update -first NAME -last NAME -email EMAIL | delete]", a.profile},
		"friends":        {"friends [list | requests | send EMAIL | accept ID | reject ID | remove ID | edit -first NAME -last NAME ID]", a.friends},
		"meeting":        {"meeting [create -type global|specific -helper ID | end [ID] | show ID]", a.meeting},
		"help-queue":     {"help-queue [-timeout DURATION] [-hold DURATION]", a.helpQueue},
		"pending":        {"pending [list | accept ID [-hold DURATION] | decline ID]", a.pending},
		"call":           {"call [-type global|specific] [-helper ID] [-wait DURATION]", a.call},
		"voice":          {"voice [-picture FILE]", a.voice},
		"describe":       {"describe FILE", a.describe},
	}
	return a
}

// Execute runs the subcommand named by args[0].
func (a *App) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return errors.New("expected a command")
	}

	cmd, ok := a.commands[args[0]]
	if !ok {
		if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
			a.usage()
			return nil
		}
		return fmt.Errorf("unknown command %q", args[0])
	}

	logging.FromContext(ctx).Debug("running command", slog.String("command", args[0]))
	return cmd.run(ctx, args[1:])
}

func (a *App) usage() {
	names := make([]string, 0, len(a.commands))
	for name := range a.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	a.printf("usage: eyelink COMMAND [ARGS]\n\ncommands:\n")
	for _, name := range names {
		a.printf("  %s\n", a.commands[name].usage)
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// flags returns a flag set that reports parse errors instead of exiting.
func (a *App) flags(name string) *flag.FlagSet {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	set.SetOutput(a.out)
	return set
}

// parse accepts flags before and after positional arguments.
func parse(set *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := set.Parse(args); err != nil {
			return nil, err
		}
		rest := set.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func subcommand(args []string, fallback string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return fallback, args
	}
	return args[0], args[1:]
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
