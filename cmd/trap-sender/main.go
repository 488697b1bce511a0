// Package main is the entrypoint of the trap sender, the script the
// management platform runs once per notification.
//
// The platform passes the notification as environment variables (ISSUE_TYPE,
// MESSAGE, MESSAGE_URL, SEVERITY, ...). The sender maps, correlates, filters
// and forwards it, then prints the resolved sequence id on stdout. Logs go
// to stderr so stdout carries nothing else.
//
// Exit codes: 0 on success (including suppressed and filtered
// notifications), 1 when the notification could not be processed, 2 when the
// sender itself is misconfigured.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"trapforwarder/internal/app"
	"trapforwarder/internal/config"
	"trapforwarder/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

const (
	exitFailed = 1
	exitConfig = 2
)

// exitError carries the process exit code out of run.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Environ(), os.Stdout, os.Stderr, app.Overrides{}); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		code := exitFailed
		if ee, ok := err.(*exitError); ok {
			code = ee.code
		}
		stop()
		os.Exit(code)
	}
}

// run processes the notification carried by environ. The process
// configuration is read from the real environment by config.LoadConfig.
func run(ctx context.Context, environ []string, stdout, stderr io.Writer, overrides app.Overrides) error {
	var provider config.SecretProvider
	if os.Getenv("TRAPFWD_APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("TRAPFWD_AWS_REGION"))
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return &exitError{code: exitConfig, err: fmt.Errorf("loading configuration: %w", err)}
	}

	logger := &slogAdapter{logger: newLogger(stderr, cfg.LogLevel)}
	requestID := uuid.NewString()
	ctx = types.WithRequestID(ctx, requestID)

	logger.Info("trap sender starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"request_id", requestID,
	)

	proc, err := app.NewProcessor(ctx, cfg, logger, overrides)
	if err != nil {
		return &exitError{code: exitConfig, err: fmt.Errorf("assembling pipeline: %w", err)}
	}

	seqID, err := proc.Process(ctx, config.NotificationEnvironment(environ))
	if err != nil {
		return &exitError{code: exitFailed, err: err}
	}

	fmt.Fprintln(stdout, seqID)
	return nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
