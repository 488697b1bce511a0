// Package main is the entrypoint for the Trap Worker Lambda function.
//
// Platforms that cannot run a local script forward each notification to an
// SQS queue instead. Every message body is a JSON object holding the same
// key/value pairs the trap sender receives as environment variables.
//
// Handler flow:
//
//	For each SQS message in the batch (bounded parallelism):
//	  1. Unmarshal the notification environment. Malformed bodies are ACKed.
//	  2. Run it through the pipeline (audit entry written on every path).
//	  3. Report retryable (upstream) failures as batch item failures so SQS
//	     redelivers only those messages. Input errors are ACKed because a
//	     retry would fail identically.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"golang.org/x/sync/errgroup"

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

// Processor handles one notification.
type Processor interface {
	Process(ctx context.Context, env map[string]string) (string, error)
}

// Handler holds the dependencies for the trap worker Lambda handler.
type Handler struct {
	processor   Processor
	concurrency int
	logger      types.Logger
}

// Handle processes an SQS event. Messages are independent, so up to
// concurrency of them run at once.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var (
		mu       sync.Mutex
		response events.SQSEventResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(h.concurrency, 1))

	for _, record := range sqsEvent.Records {
		g.Go(func() error {
			if err := h.processMessage(gctx, record); err != nil {
				h.logger.Error("failed to process SQS message",
					"message_id", record.MessageId,
					"error", err.Error(),
				)
				mu.Lock()
				response.BatchItemFailures = append(response.BatchItemFailures,
					events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
				)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return response, nil
}

// processMessage returns an error only when the message should be retried.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var env map[string]string
	if err := json.Unmarshal([]byte(record.Body), &env); err != nil {
		h.logger.Error("failed to unmarshal notification environment",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure - do not retry (return nil to ACK).
		return nil
	}

	ctx = types.WithRequestID(ctx, record.MessageId)
	ctx = types.WithLogger(ctx, h.logger.With("message_id", record.MessageId))
	seqID, err := h.processor.Process(ctx, env)
	if err == nil {
		h.logger.Info("notification forwarded", "message_id", record.MessageId, "sequence_id", seqID)
		return nil
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code.Retryable() {
		return err
	}

	h.logger.Warn("dropping notification after permanent failure",
		"message_id", record.MessageId,
		"error", err.Error(),
	)
	return nil
}

func main() {
	var provider config.SecretProvider
	if os.Getenv("TRAPFWD_APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("TRAPFWD_AWS_REGION"))
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("Trap Worker Lambda initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)
	typedLogger := &slogAdapter{logger: logger}

	proc, err := app.NewProcessor(context.Background(), cfg, typedLogger, app.Overrides{})
	if err != nil {
		logger.Error("Failed to assemble pipeline", "error", err)
		os.Exit(1)
	}

	handler := &Handler{
		processor:   proc,
		concurrency: cfg.Worker.Concurrency,
		logger:      typedLogger,
	}

	logger.Info("Trap Worker Lambda initialized", "concurrency", cfg.Worker.Concurrency)

	// Local mode: read JSON SQS event from stdin instead of starting Lambda runtime.
	// Usage: echo '{"Records":[{"messageId":"1","body":"{\"ISSUE_TYPE\":\"1\"}"}]}' | go run ./cmd/trap-worker
	if cfg.Environment == "local" {
		logger.Info("TRAPFWD_APP_ENV=local: reading SQS event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("Failed to read stdin", "error", err)
			os.Exit(1)
		}
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(payload, &sqsEvent); err != nil {
			logger.Error("Failed to parse SQS event from stdin", "error", err)
			os.Exit(1)
		}
		resp, _ := handler.Handle(context.Background(), sqsEvent)
		out, _ := json.Marshal(resp)
		os.Stdout.Write(append(out, '\n'))
		return
	}

	lambda.Start(handler.Handle)
}
