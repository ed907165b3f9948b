package reportsmith

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/reportsmith/reportsmith/annotations"
	"github.com/reportsmith/reportsmith/events"
	"github.com/reportsmith/reportsmith/exitcodes"
	"github.com/reportsmith/reportsmith/metrics"
	"github.com/reportsmith/reportsmith/reporter"
	"github.com/reportsmith/reportsmith/sink"
)

// reportsmith implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &reportsmith{}

// reportsmith consumes a test event stream and writes a report.
type reportsmith struct {
	ctx       context.Context
	config    *Config
	version   string
	formatter SummaryFormatter
	summary   *events.Summary

	running atomic.Bool
	done    chan struct{}

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*reportsmith, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating reportsmith with config",
		"eventsPath", config.EventsPath,
		"resultsDir", config.ResultsDir,
		"settingsPath", config.SettingsPath)

	return &reportsmith{
		ctx:              ctx,
		config:           config,
		version:          version,
		formatter:        NewConsoleSummaryFormatter(),
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start consumes the event stream and writes the report.
// Start implements the cliapp.Lifecycle interface.
func (r *reportsmith) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if rec := recover(); rec != nil {
			r.config.Log.Error("Runtime error occurred", "error", rec)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	r.ctx = ctx
	r.done = make(chan struct{})
	r.running.Store(true)

	r.config.Log.Info("Starting reportsmith", "version", r.version)

	if err := r.processEvents(ctx); err != nil {
		// For runtime errors (like unreadable input), return exit code 2
		r.config.Log.Error("Runtime error processing events", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	// Check if any tests failed and return the appropriate exit code
	if r.summary != nil && r.summary.HasFailures() {
		r.config.Log.Warn("Report completed with failures, returning exit code 1")
		return NewTestFailureError(fmt.Sprintf("%d of %d tests failed", r.summary.Failed, r.summary.Tests))
	}

	go func() {
		r.shutdownCallback(nil)
	}()
	return nil // Success (exit code 0)
}

// processEvents runs the sink, reporter and adapter pipeline over the stream.
func (r *reportsmith) processEvents(ctx context.Context) error {
	runID := uuid.New().String()
	r.config.Log.Info("Processing event stream", "run_id", runID, "events", r.config.EventsPath)

	_, span := otel.Tracer("reportsmith").Start(ctx, "process events")
	defer span.End()

	start := time.Now()

	stream, closer, err := r.openEvents()
	if err != nil {
		return NewRuntimeError(err)
	}
	if closer != nil {
		defer closer.Close()
	}

	fileSink, err := sink.NewFileSink(r.config.ResultsDir, r.config.Log)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create report sink: %w", err))
	}

	rep, err := reporter.New(reporter.Config{
		Log:          r.config.Log,
		Sink:         fileSink,
		IssueBaseURL: r.config.Settings.IssueBaseURL,
		TMSBaseURL:   r.config.Settings.TMSBaseURL,
		Environment:  r.config.Settings.Environment,
		Categories:   r.config.Settings.Categories,
		OmitSource:   r.config.Settings.OmitSource,
		Formatter:    annotations.PassthroughFormatter{},
	})
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create reporter: %w", err))
	}

	adapter := events.NewAdapter(rep, runID, r.config.Log)
	if err := adapter.Run(stream); err != nil {
		return NewRuntimeError(fmt.Errorf("failed to process event stream: %w", err))
	}

	duration := time.Since(start)
	summary := adapter.Summary()
	r.summary = &summary

	fmt.Println(r.formatter.Format(r.summary, duration))

	result := "pass"
	if summary.HasFailures() {
		result = "fail"
	}
	metrics.RecordRun(runID, result, duration)
	r.config.Log.Info("Report completed",
		"run_id", runID,
		"tests", r.summary.Tests,
		"passed", r.summary.Passed,
		"failed", r.summary.Failed,
		"skipped", r.summary.Skipped,
		"duration", duration)
	return nil
}

// openEvents opens the configured event stream. The closer is nil for stdin.
func (r *reportsmith) openEvents() (io.Reader, io.Closer, error) {
	if r.config.EventsPath == StdinEventsPath {
		return os.Stdin, nil, nil
	}
	f, err := os.Open(r.config.EventsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event stream %s: %w", r.config.EventsPath, err)
	}
	return f, f, nil
}

// Stop stops the reportsmith service.
// Stop implements the cliapp.Lifecycle interface.
func (r *reportsmith) Stop(ctx context.Context) error {
	r.config.Log.Info("Stopping reportsmith")

	if !r.running.Load() {
		r.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	r.running.Store(false)
	close(r.done)

	r.config.Log.Info("reportsmith stopped successfully")
	return nil
}

// Stopped returns true if the reportsmith service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (r *reportsmith) Stopped() bool {
	return !r.running.Load()
}
