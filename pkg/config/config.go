package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	httpadapter "github.com/marmos91/dittofm/pkg/adapter/http"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DITTOFM"

// Config represents the complete DittoFM configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOFM_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// Storage Configuration Pattern:
// Each storage entry names its adapter type and carries a type-specific
// option map (local, s3, badger). Only the map matching the type is used;
// the factory for that type decodes it.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server configures the HTTP listener
	Server httpadapter.HTTPConfig `mapstructure:"server" yaml:"server"`

	// Limits bounds request payloads and archive extraction
	Limits LimitsConfig `mapstructure:"limits" yaml:"limits"`

	// RateLimit configures request throttling (disabled by default)
	RateLimit httpadapter.RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// CORS configures cross-origin access
	CORS httpadapter.CORSConfig `mapstructure:"cors" yaml:"cors"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// DefaultStorage is the storage used when a request names none.
	// Empty selects the first key in alphabetical order.
	DefaultStorage string `mapstructure:"default_storage" yaml:"default_storage,omitempty"`

	// Storages maps storage keys to adapter configurations
	Storages map[string]StorageConfig `mapstructure:"storages" yaml:"storages" validate:"dive"`

	// PublicLinks exposes storage sub-trees for direct download
	PublicLinks []PublicLinkConfig `mapstructure:"public_links" yaml:"public_links" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// LimitsConfig bounds what a single request may consume.
type LimitsConfig struct {
	// MaxUploadSize is the per-file upload ceiling in bytes
	MaxUploadSize int64 `mapstructure:"max_upload_size" yaml:"max_upload_size" validate:"gt=0"`

	// MaxJSONBytes bounds JSON command bodies, save content included
	MaxJSONBytes int64 `mapstructure:"max_json_bytes" yaml:"max_json_bytes" validate:"gt=0"`

	// Unarchive bounds archive extraction
	Unarchive UnarchiveLimits `mapstructure:"unarchive" yaml:"unarchive"`
}

// UnarchiveLimits caps a single extraction. Zero means unlimited.
type UnarchiveLimits struct {
	MaxEntries int   `mapstructure:"max_entries" yaml:"max_entries" validate:"gte=0"`
	MaxBytes   int64 `mapstructure:"max_bytes" yaml:"max_bytes" validate:"gte=0"`
}

// MetricsConfig configures the Prometheus metrics server.
type MetricsConfig struct {
	// Enabled starts the metrics server and turns on collection
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Host is the interface the metrics server binds. Empty binds all.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the metrics server port
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// StorageConfig selects a storage adapter and carries its options.
type StorageConfig struct {
	// Type specifies which adapter implementation to use
	// Valid values: local, s3, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=local s3 badger"`

	// Local contains local filesystem options. Only used when Type = "local"
	Local map[string]any `mapstructure:"local" yaml:"local,omitempty"`

	// S3 contains S3 options. Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`

	// Badger contains BadgerDB options. Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`
}

// PublicLinkConfig exposes a storage sub-tree under /public/<name>.
type PublicLinkConfig struct {
	// Name is the URL segment under /public/
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// Storage is the key of the storage holding the tree
	Storage string `mapstructure:"storage" yaml:"storage" validate:"required"`

	// Path is the root of the exposed tree within the storage
	Path string `mapstructure:"path" yaml:"path"`

	// URL is an optional external base URL used in listings instead of
	// the built-in route
	URL string `mapstructure:"url" yaml:"url,omitempty" validate:"omitempty,url"`
}

// Flag names bound into the configuration by Load.
const (
	FlagHost         = "host"
	FlagPort         = "port"
	FlagLogLevel     = "log-level"
	FlagLocalStorage = "local-storage"
	FlagConfig       = "config"
)

// flagKeys maps CLI flags to configuration keys.
var flagKeys = map[string]string{
	FlagHost:     "server.host",
	FlagPort:     "server.port",
	FlagLogLevel: "logging.level",
}

// envKeys lists the scalar keys that can be set through the environment.
// Viper only consults AutomaticEnv for keys it already knows about, so
// these are bound explicitly.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.host",
	"server.port",
	"server.read_header_timeout",
	"server.idle_timeout",
	"server.shutdown_timeout",
	"server.stream_idle_timeout",
	"limits.max_upload_size",
	"limits.max_json_bytes",
	"limits.unarchive.max_entries",
	"limits.unarchive.max_bytes",
	"rate_limit.requests_per_second",
	"rate_limit.burst",
	"rate_limit.per_client",
	"metrics.enabled",
	"metrics.host",
	"metrics.port",
	"default_storage",
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	return LoadWithFlags(configPath, nil)
}

// LoadWithFlags is Load with CLI flags taking precedence over every other
// source. Only flags the user actually set override; a nil set is ignored.
//
// The local-storage flag has no configuration key of its own: when set it
// replaces the storage named "local" with a local adapter rooted at the
// given path.
func LoadWithFlags(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if err := setupViper(v, configPath, flags); err != nil {
		return nil, err
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if flags != nil {
		if f := flags.Lookup(FlagLocalStorage); f != nil && f.Changed {
			applyLocalStorageFlag(&cfg, f.Value.String())
		}
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables, flags and config
// file settings.
func setupViper(v *viper.Viper, configPath string, flags *pflag.FlagSet) error {
	// Example: DITTOFM_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag --%s: %w", name, err)
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/dittofm/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	return nil
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func applyLocalStorageFlag(cfg *Config, path string) {
	if cfg.Storages == nil {
		cfg.Storages = make(map[string]StorageConfig)
	}
	cfg.Storages[DefaultStorageKey] = StorageConfig{
		Type:  "local",
		Local: map[string]any{"path": path},
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittofm")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittofm")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}

// ShutdownTimeout returns the graceful shutdown bound shared by the API and
// metrics servers.
func (c *Config) ShutdownTimeout() time.Duration {
	return c.Server.ShutdownTimeout
}
