package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"dataprof/internal/analysis"
	"dataprof/internal/config"
)

func main() {
	input := flag.String("input", "", "CSV file to analyze")
	configFile := flag.String("config", "", "optional yaml config file")
	out := flag.String("out", "", "output JSON path (defaults to stdout)")
	enableTrace := flag.Bool("trace", false, "emit OTel spans to stderr")
	verbose := flag.Bool("v", false, "log progress at chunk boundaries")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(*verbose),
	}))
	slog.SetDefault(logger)

	if *input == "" {
		slog.Error("missing required -input flag")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// SIGINT/SIGTERM cancel the run; partial results are still written.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *enableTrace {
		shutdown, err := setupTracing()
		if err != nil {
			slog.Error("failed to set up tracing", "error", err)
			os.Exit(1)
		}
		defer shutdown(context.Background())
	}

	if err := run(ctx, cfg, *input, *out, *verbose); err != nil {
		slog.Error("analysis failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, input, out string, verbose bool) error {
	source, err := newCSVSource(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer source.Close()

	coord := analysis.NewCoordinator(cfg, slog.Default())
	if verbose {
		coord.SetObserver(&logObserver{})
	}
	tracer, err := analysis.NewTracer()
	if err != nil {
		return fmt.Errorf("create tracer: %w", err)
	}
	coord.SetTracer(tracer)

	result, runErr := coord.Run(ctx, source)
	if result != nil {
		if err := writeResult(result, out); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("analysis run: %w", runErr)
	}
	return nil
}

func writeResult(result *analysis.Result, out string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if out == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(out, append(data, '\n'), 0o644)
}

// setupTracing installs a stdout span exporter on the global provider.
func setupTracing() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

func logLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// logObserver logs progress notifications through slog.
type logObserver struct{}

func (o *logObserver) OnProgress(p analysis.Progress) {
	slog.Debug("analysis progress",
		"phase", p.Phase,
		"rows", p.RowsProcessed,
		"chunk_size", p.ChunkSize,
		"memory_mb", p.MemoryUsedMB,
	)
}
