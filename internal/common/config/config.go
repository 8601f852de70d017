// Package config loads the pagegraph YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/edgecomet/pagegraph/internal/common/configtypes"
	"github.com/edgecomet/pagegraph/internal/common/yamlutil"
	"github.com/edgecomet/pagegraph/pkg/types"
)

// Environment variables consulted by the loader
const (
	EnvConfigPath    = "PAGEGRAPH_CONFIG"
	EnvRedisAddr     = "PAGEGRAPH_REDIS_ADDR"
	EnvRedisPassword = "PAGEGRAPH_REDIS_PASSWORD"
	EnvChromePath    = "PAGEGRAPH_CHROME_PATH"
)

const (
	defaultMaxAge         = 2 * time.Minute
	defaultMaxBodyBytes   = 3 << 20
	defaultChunkSize      = 16 << 10
	defaultChromeTimeout  = 30 * time.Second
	defaultChromeSettle   = 500 * time.Millisecond
	defaultViewportWidth  = 1366
	defaultViewportHeight = 768
	defaultStorageTTL     = 24 * time.Hour
	defaultMetricsPath    = "/metrics"
	defaultMetricsNS      = "pagegraph"
)

var namespaceRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Load reads the configuration at path. An empty path yields the defaults.
// Environment overrides are applied before defaults and validation.
func Load(path string) (*configtypes.PagegraphConfig, error) {
	var cfg configtypes.PagegraphConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ResolvePath returns the config file to load. An explicit path wins,
// otherwise PAGEGRAPH_CONFIG is consulted after loading a .env file from the
// working directory. The result is empty when neither is set.
func ResolvePath(explicit string) (string, error) {
	path := explicit
	if path == "" {
		// A missing .env file is fine
		_ = godotenv.Load()
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return "", nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file does not exist: %s", absPath)
	}
	return absPath, nil
}

func applyEnv(cfg *configtypes.PagegraphConfig) {
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if v := os.Getenv(EnvChromePath); v != "" {
		cfg.Chrome.ExecPath = v
	}
}

// ApplyDefaults fills every unset field with its default
func ApplyDefaults(cfg *configtypes.PagegraphConfig) {
	if cfg.Tracker.MaxAge == 0 {
		cfg.Tracker.MaxAge = types.Duration(defaultMaxAge)
	}
	if cfg.Tracker.SweepOnCommit == nil {
		enabled := true
		cfg.Tracker.SweepOnCommit = &enabled
	}

	if cfg.Capture.MaxBodyBytes == 0 {
		cfg.Capture.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Capture.ChunkSize == 0 {
		cfg.Capture.ChunkSize = defaultChunkSize
	}

	if cfg.Chrome.Headless == nil {
		headless := true
		cfg.Chrome.Headless = &headless
	}
	if cfg.Chrome.Timeout == 0 {
		cfg.Chrome.Timeout = types.Duration(defaultChromeTimeout)
	}
	if cfg.Chrome.Settle == 0 {
		cfg.Chrome.Settle = types.Duration(defaultChromeSettle)
	}
	if cfg.Chrome.Viewport.Width == 0 {
		cfg.Chrome.Viewport.Width = defaultViewportWidth
	}
	if cfg.Chrome.Viewport.Height == 0 {
		cfg.Chrome.Viewport.Height = defaultViewportHeight
	}

	if cfg.Output.Format == "" {
		cfg.Output.Format = types.OutputHAR
	}
	if cfg.Output.Path == "" {
		cfg.Output.Path = "-"
	}

	if cfg.Storage.TTL == 0 {
		cfg.Storage.TTL = types.Duration(defaultStorageTTL)
	}
	if cfg.Storage.Compression == "" {
		cfg.Storage.Compression = types.CompressionSnappy
	}

	// If both outputs are disabled (zero values), enable console by default
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = configtypes.LogLevelInfo
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaultMetricsNS
	}
}

// Validate checks configuration validity
func Validate(cfg *configtypes.PagegraphConfig) error {
	if cfg.Tracker.MaxAge <= 0 {
		return fmt.Errorf("tracker.max_age must be positive")
	}

	if cfg.Capture.MaxBodyBytes < 0 {
		return fmt.Errorf("capture.max_body_bytes must be >= 0, got %d", cfg.Capture.MaxBodyBytes)
	}
	if cfg.Capture.ChunkSize < 0 {
		return fmt.Errorf("capture.chunk_size must be >= 0, got %d", cfg.Capture.ChunkSize)
	}
	if cfg.Capture.ChunkSize > cfg.Capture.MaxBodyBytes {
		return fmt.Errorf("capture.chunk_size (%d) must not exceed capture.max_body_bytes (%d)",
			cfg.Capture.ChunkSize, cfg.Capture.MaxBodyBytes)
	}

	if cfg.Chrome.Timeout <= 0 {
		return fmt.Errorf("chrome.timeout must be positive")
	}
	if cfg.Chrome.Settle < 0 {
		return fmt.Errorf("chrome.settle must be >= 0")
	}
	if cfg.Chrome.Viewport.Width < 0 || cfg.Chrome.Viewport.Height < 0 {
		return fmt.Errorf("chrome.viewport must be positive, got %dx%d",
			cfg.Chrome.Viewport.Width, cfg.Chrome.Viewport.Height)
	}

	if _, err := types.ParseOutputFormat(string(cfg.Output.Format)); err != nil {
		return fmt.Errorf("invalid output.format: %w", err)
	}

	if cfg.Storage.Enabled {
		if cfg.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required when storage enabled")
		}
		if cfg.Storage.TTL <= 0 {
			return fmt.Errorf("storage.ttl must be positive")
		}
	}
	if !cfg.Storage.Compression.Valid() {
		return fmt.Errorf("invalid storage.compression: %s (must be none, snappy or lz4)", cfg.Storage.Compression)
	}

	if err := validateLog(&cfg.Log); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("metrics.listen is required when metrics enabled")
		} else if err := configtypes.ValidateListenAddress(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %s (must start with /)", cfg.Metrics.Path)
	}
	if !namespaceRe.MatchString(cfg.Metrics.Namespace) {
		return fmt.Errorf("invalid metrics.namespace: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", cfg.Metrics.Namespace)
	}

	return nil
}

func validateLog(log *configtypes.LogConfig) error {
	validLogLevels := map[string]bool{
		configtypes.LogLevelDebug:  true,
		configtypes.LogLevelInfo:   true,
		configtypes.LogLevelWarn:   true,
		configtypes.LogLevelError:  true,
		configtypes.LogLevelDPanic: true,
		configtypes.LogLevelPanic:  true,
		configtypes.LogLevelFatal:  true,
	}
	if !validLogLevels[log.Level] {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, error, dpanic, panic, or fatal)", log.Level)
	}

	if log.Console.Enabled && log.Console.Format != configtypes.LogFormatJSON && log.Console.Format != configtypes.LogFormatConsole {
		return fmt.Errorf("invalid log.console.format: %s (must be json or console)", log.Console.Format)
	}

	if log.File.Enabled {
		if log.File.Path == "" {
			return fmt.Errorf("log.file.path must be specified when file logging is enabled")
		}
		if log.File.Format != configtypes.LogFormatJSON && log.File.Format != configtypes.LogFormatText {
			return fmt.Errorf("invalid log.file.format: %s (must be json or text)", log.File.Format)
		}
		if log.File.Rotation.MaxSize < 0 {
			return fmt.Errorf("log.file.rotation.max_size must be >= 0, got %d", log.File.Rotation.MaxSize)
		}
		if log.File.Rotation.MaxAge < 0 {
			return fmt.Errorf("log.file.rotation.max_age must be >= 0, got %d", log.File.Rotation.MaxAge)
		}
		if log.File.Rotation.MaxBackups < 0 {
			return fmt.Errorf("log.file.rotation.max_backups must be >= 0, got %d", log.File.Rotation.MaxBackups)
		}
	}
	return nil
}
