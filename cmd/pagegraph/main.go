package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/edgecomet/pagegraph/internal/browser"
	"github.com/edgecomet/pagegraph/internal/common/config"
	"github.com/edgecomet/pagegraph/internal/common/configtypes"
	logutil "github.com/edgecomet/pagegraph/internal/common/logger"
	"github.com/edgecomet/pagegraph/internal/common/metricsserver"
	"github.com/edgecomet/pagegraph/internal/common/redis"
	"github.com/edgecomet/pagegraph/internal/metrics"
	"github.com/edgecomet/pagegraph/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pagegraph [options] URL...\n\n")
		fmt.Fprintf(os.Stderr, "pagegraph loads each URL in headless Chrome and exports the resources\n")
		fmt.Fprintf(os.Stderr, "the page pulled in, with redirect chains and the element counts that\n")
		fmt.Fprintf(os.Stderr, "still reference them.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pagegraph https://example.com/                 # HAR to stdout\n")
		fmt.Fprintf(os.Stderr, "  pagegraph -f json -o out/ https://a.com https://b.com\n")
		fmt.Fprintf(os.Stderr, "  pagegraph -c configs/pagegraph.yaml --store https://example.com/\n")
	}

	configFlag := pflag.StringP("config", "c", "", "Path to configuration file (default $PAGEGRAPH_CONFIG)")
	formatFlag := pflag.StringP("format", "f", "", "Export format: har or json (overrides output.format)")
	outFlag := pflag.StringP("out", "o", "", "Output file or directory, - for stdout (overrides output.path)")
	storeFlag := pflag.Bool("store", false, "Store exports in Redis (overrides storage.enabled)")
	privateFlag := pflag.Bool("allow-private", false, "Allow loopback and private network targets")
	helpFlag := pflag.BoolP("help", "h", false, "Show this help message")
	pflag.Parse()

	if *helpFlag {
		pflag.Usage()
		return 0
	}
	urls := pflag.Args()
	if len(urls) == 0 {
		pflag.Usage()
		return 2
	}

	// Initialize logger (will be reconfigured from config)
	initialLogger, err := logutil.NewDefaultLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}

	configPath, err := config.ResolvePath(*configFlag)
	if err != nil {
		initialLogger.Error("Invalid config path", zap.Error(err))
		return 1
	}
	initialLogger.Debug("Loading configuration", zap.String("path", configPath))

	cfg, err := config.Load(configPath)
	if err != nil {
		initialLogger.Error("Failed to load configuration", zap.Error(err))
		return 1
	}
	if err := applyFlags(cfg, *formatFlag, *outFlag, *storeFlag, *privateFlag); err != nil {
		initialLogger.Error("Invalid flags", zap.Error(err))
		return 2
	}

	dynamicLogger, err := logutil.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		initialLogger.Error("Failed to create configured logger", zap.Error(err))
		return 1
	}
	logger := dynamicLogger.Logger
	defer func() { _ = logger.Sync() }()

	logger.Info("pagegraph starting",
		zap.Int("urls", len(urls)),
		zap.String("format", string(cfg.Output.Format)),
		zap.String("output", cfg.Output.Path),
		zap.Bool("storage", cfg.Storage.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsCollector := metrics.NewMetricsCollector(cfg.Metrics.Namespace, logger)
	metricsSrv, err := metricsserver.Start(cfg.Metrics, metricsCollector, logger)
	if err != nil {
		logger.Error("Failed to start metrics server", zap.Error(err))
		return 1
	}

	var store *redis.ExportStore
	if cfg.Storage.Enabled {
		client, err := redis.NewClient(&cfg.Storage.Redis, logger)
		if err != nil {
			logger.Error("Failed to connect to Redis", zap.Error(err))
			return 1
		}
		defer func() { _ = client.Close() }()
		store = redis.NewExportStore(client, cfg.Storage.Compression, cfg.Storage.TTL.ToDuration())
	}

	out, err := newOutputWriter(cfg.Output.Path, cfg.Output.Format, len(urls), os.Stdout)
	if err != nil {
		logger.Error("Invalid output", zap.Error(err))
		return 1
	}

	tracer, err := browser.NewTracer(cfg, metricsCollector, logger)
	if err != nil {
		logger.Error("Failed to start Chrome", zap.Error(err))
		return 1
	}

	// Startup complete, switch to configured log level
	dynamicLogger.SwitchToConfiguredLevel()

	failed := 0
	for _, pageURL := range urls {
		if ctx.Err() != nil {
			break
		}
		if err := tracePage(ctx, tracer, store, out, metricsCollector, cfg.Output.Format, pageURL, logger); err != nil {
			failed++
			logger.Error("Trace failed", zap.String("url", pageURL), zap.Error(err))
		}
	}

	dynamicLogger.EnsureInfoLevelForShutdown()
	tracer.Close()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
		cancel()
	}

	logger.Info("pagegraph finished",
		zap.Int("traced", len(urls)-failed),
		zap.Int("failed", failed),
		zap.Bool("interrupted", ctx.Err() != nil))

	if failed > 0 || ctx.Err() != nil {
		return 1
	}
	return 0
}

// applyFlags lets command line flags override the loaded configuration
func applyFlags(cfg *configtypes.PagegraphConfig, format, out string, store, allowPrivate bool) error {
	if format != "" {
		f, err := types.ParseOutputFormat(format)
		if err != nil {
			return err
		}
		cfg.Output.Format = f
	}
	if out != "" {
		cfg.Output.Path = out
	}
	if store {
		cfg.Storage.Enabled = true
	}
	if allowPrivate {
		cfg.Chrome.AllowPrivate = true
	}
	return config.Validate(cfg)
}

func tracePage(ctx context.Context, tracer *browser.Tracer, store *redis.ExportStore, out *outputWriter,
	mc *metrics.MetricsCollector, format types.OutputFormat, pageURL string, logger *zap.Logger) error {
	res, err := tracer.Trace(ctx, pageURL)
	if err != nil {
		mc.RecordTraceError()
		return err
	}

	mc.RecordTraceDuration(res.Duration.Seconds())
	mc.RecordResources(len(res.Snapshot.Resources))
	if res.TimedOut {
		mc.RecordTraceTimeout()
	} else {
		mc.RecordTraceSuccess()
	}

	data, err := encodeResult(res, format)
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}

	target, err := out.Write(pageURL, res.TraceID, data)
	if err != nil {
		return err
	}
	logger.Info("Export written",
		zap.String("url", pageURL),
		zap.String("trace_id", res.TraceID),
		zap.String("target", target),
		zap.Int("size", len(data)))

	if store != nil {
		err := store.Put(ctx, pageURL, res.TraceID, format, data)
		mc.RecordStored(err == nil)
		if err != nil && !errors.Is(err, context.Canceled) {
			// the export already reached its output
			logger.Warn("Failed to store export", zap.String("url", pageURL), zap.Error(err))
		}
	}
	return nil
}
