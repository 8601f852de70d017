package configtypes

import (
	"github.com/edgecomet/pagegraph/pkg/types"
)

// Log level constants
const (
	LogLevelDebug  = "debug"
	LogLevelInfo   = "info"
	LogLevelWarn   = "warn"
	LogLevelError  = "error"
	LogLevelDPanic = "dpanic"
	LogLevelPanic  = "panic"
	LogLevelFatal  = "fatal"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// PagegraphConfig is the configuration of the pagegraph tracer
type PagegraphConfig struct {
	Tracker TrackerConfig `yaml:"tracker"`
	Capture CaptureConfig `yaml:"capture"`
	Chrome  ChromeConfig  `yaml:"chrome"`
	Output  OutputConfig  `yaml:"output"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TrackerConfig controls pending navigation tracking
type TrackerConfig struct {
	MaxAge        types.Duration `yaml:"max_age"`
	SweepOnCommit *bool          `yaml:"sweep_on_commit,omitempty"`
}

// CaptureConfig limits in-memory copies of no-store response bodies
type CaptureConfig struct {
	MaxBodyBytes int `yaml:"max_body_bytes"`
	ChunkSize    int `yaml:"chunk_size"`
}

type ChromeConfig struct {
	ExecPath  string         `yaml:"exec_path"`
	Headless  *bool          `yaml:"headless,omitempty"`
	Timeout   types.Duration `yaml:"timeout"`
	Settle    types.Duration `yaml:"settle"`
	UserAgent string         `yaml:"user_agent"`
	Viewport  ViewportConfig `yaml:"viewport"`

	// AllowPrivate permits tracing loopback and private IP literals
	AllowPrivate bool `yaml:"allow_private"`
}

type ViewportConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type OutputConfig struct {
	Format types.OutputFormat `yaml:"format"`
	Path   string             `yaml:"path"` // "-" writes to stdout
}

// StorageConfig configures the optional Redis snapshot store
type StorageConfig struct {
	Enabled     bool                    `yaml:"enabled"`
	Redis       RedisConfig             `yaml:"redis"`
	TTL         types.Duration          `yaml:"ttl"`
	Compression types.CompressionFormat `yaml:"compression"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}
