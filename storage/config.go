package storage

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. HEXBUFFER_POOL_SIZE
const EnvPrefix = "HEXBUFFER"

const (
	DiskBackendFile = "file"
	DiskBackendMmap = "mmap"
)

// Config holds buffer pool configuration
type Config struct {
	// Buffer Pool Configuration
	PoolSize  uint32 `mapstructure:"pool_size"`  // Number of frames in the buffer pool
	Replacer  string `mapstructure:"replacer"`   // Replacement policy (lru-k, lru)
	ReplacerK int    `mapstructure:"replacer_k"` // History depth for lru-k
	Clock     string `mapstructure:"clock"`      // Timestamp source (logical, monotonic)

	// Disk Configuration
	DataFile    string `mapstructure:"data_file"`    // Page file path
	DiskBackend string `mapstructure:"disk_backend"` // file or mmap
	Compression string `mapstructure:"compression"`  // none, lz4, snappy (file backend only)

	// Observability
	EnableMetrics bool   `mapstructure:"enable_metrics"`
	LogLevel      string `mapstructure:"log_level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		PoolSize:      100,
		Replacer:      ReplacerLRUK,
		ReplacerK:     DefaultReplacerK,
		Clock:         ClockLogical,
		DataFile:      "./data/hexbuffer.db",
		DiskBackend:   DiskBackendFile,
		Compression:   "none",
		EnableMetrics: true,
		LogLevel:      "info",
	}
}

// newViper returns a viper instance seeded with defaults and env overrides
func newViper() *viper.Viper {
	v := viper.New()
	def := DefaultConfig()
	v.SetDefault("pool_size", def.PoolSize)
	v.SetDefault("replacer", def.Replacer)
	v.SetDefault("replacer_k", def.ReplacerK)
	v.SetDefault("clock", def.Clock)
	v.SetDefault("data_file", def.DataFile)
	v.SetDefault("disk_backend", def.DiskBackend)
	v.SetDefault("compression", def.Compression)
	v.SetDefault("enable_metrics", def.EnableMetrics)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfigFromFile loads configuration from a yaml, json or toml file.
// Environment variables override file values.
func LoadConfigFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return decodeConfig(v)
}

// LoadConfigFromEnv loads configuration from environment variables,
// falling back to defaults
func LoadConfigFromEnv() (*Config, error) {
	return decodeConfig(newViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SaveToFile saves the configuration; the format follows the file extension
func (c *Config) SaveToFile(path string) error {
	v := viper.New()
	v.Set("pool_size", c.PoolSize)
	v.Set("replacer", c.Replacer)
	v.Set("replacer_k", c.ReplacerK)
	v.Set("clock", c.Clock)
	v.Set("data_file", c.DataFile)
	v.Set("disk_backend", c.DiskBackend)
	v.Set("compression", c.Compression)
	v.Set("enable_metrics", c.EnableMetrics)
	v.Set("log_level", c.LogLevel)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.PoolSize == 0 {
		return fmt.Errorf("pool size must be greater than 0")
	}

	switch c.Replacer {
	case ReplacerLRUK:
		if c.ReplacerK < 1 {
			return fmt.Errorf("replacer_k must be at least 1, got %d", c.ReplacerK)
		}
	case ReplacerLRU:
	default:
		return fmt.Errorf("invalid replacer: %s (must be lru-k or lru)", c.Replacer)
	}

	if c.Clock != ClockLogical && c.Clock != ClockMonotonic {
		return fmt.Errorf("invalid clock: %s (must be logical or monotonic)", c.Clock)
	}

	if c.DataFile == "" {
		return fmt.Errorf("data file cannot be empty")
	}

	compression, err := ParseCompressionType(c.Compression)
	if err != nil {
		return err
	}

	switch c.DiskBackend {
	case DiskBackendFile:
	case DiskBackendMmap:
		if compression != CompressionNone {
			return fmt.Errorf("compression is not supported with the mmap backend")
		}
	default:
		return fmt.Errorf("invalid disk backend: %s (must be file or mmap)", c.DiskBackend)
	}

	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
}

// NewLogger builds a text logger writing to w at the configured level
func NewLogger(c *Config, w io.Writer) (*slog.Logger, error) {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}
