package config

import (
	"strings"
	"time"

	httpadapter "github.com/marmos91/dittofm/pkg/adapter/http"
	"github.com/marmos91/dittofm/pkg/finder"
	"github.com/marmos91/dittofm/pkg/transfer"
)

const (
	// DefaultPort is the API port used when none is configured.
	DefaultPort = 8080

	// DefaultMetricsPort is the metrics server port used when none is configured.
	DefaultMetricsPort = 9090

	// DefaultStorageKey names the storage created when none is configured.
	DefaultStorageKey = "local"

	// DefaultLocalStoragePath roots the default local storage.
	DefaultLocalStoragePath = "./storage"

	// DefaultUnarchiveMaxEntries caps the entries of one extraction.
	DefaultUnarchiveMaxEntries = 10_000

	// DefaultUnarchiveMaxBytes caps the decompressed bytes of one extraction.
	DefaultUnarchiveMaxBytes int64 = 1 << 30
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Storage-specific defaults are handled by the adapter factories
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyLimitsDefaults(&cfg.Limits)
	applyCORSDefaults(&cfg.CORS)
	applyMetricsDefaults(&cfg.Metrics)
	applyStorageDefaults(cfg)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *httpadapter.HTTPConfig) {
	if cfg.Host == "" {
		cfg.Host = httpadapter.DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.StreamIdleTimeout == 0 {
		cfg.StreamIdleTimeout = 60 * time.Second
	}
}

func applyLimitsDefaults(cfg *LimitsConfig) {
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = transfer.DefaultMaxFileSize
	}
	if cfg.MaxJSONBytes == 0 {
		cfg.MaxJSONBytes = finder.DefaultMaxJSONBytes
	}
	if cfg.Unarchive.MaxEntries == 0 {
		cfg.Unarchive.MaxEntries = DefaultUnarchiveMaxEntries
	}
	if cfg.Unarchive.MaxBytes == 0 {
		cfg.Unarchive.MaxBytes = DefaultUnarchiveMaxBytes
	}
}

// applyCORSDefaults fills method, header and max-age defaults. Origins are
// left alone: an explicit empty list disables CORS.
func applyCORSDefaults(cfg *httpadapter.CORSConfig) {
	def := httpadapter.DefaultCORSConfig()
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = def.AllowedOrigins
	}
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = def.AllowedMethods
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = def.AllowedHeaders
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = def.MaxAge
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// applyStorageDefaults adds a local storage when none is configured and
// initializes the option maps.
func applyStorageDefaults(cfg *Config) {
	if len(cfg.Storages) == 0 {
		cfg.Storages = map[string]StorageConfig{
			DefaultStorageKey: {
				Type:  "local",
				Local: map[string]any{"path": DefaultLocalStoragePath},
			},
		}
	}

	for key, sc := range cfg.Storages {
		sc.Type = strings.ToLower(sc.Type)
		switch sc.Type {
		case "local":
			if sc.Local == nil {
				sc.Local = make(map[string]any)
			}
		case "s3":
			if sc.S3 == nil {
				sc.S3 = make(map[string]any)
			}
		case "badger":
			if sc.Badger == nil {
				sc.Badger = make(map[string]any)
			}
		}
		cfg.Storages[key] = sc
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
