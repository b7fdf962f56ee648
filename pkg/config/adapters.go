package config

import (
	"fmt"

	"github.com/marmos91/dittofm/pkg/adapter"
	httpadapter "github.com/marmos91/dittofm/pkg/adapter/http"
	"github.com/marmos91/dittofm/pkg/archive"
	"github.com/marmos91/dittofm/pkg/finder"
	"github.com/marmos91/dittofm/pkg/metrics"
)

// CreateAdapters creates all protocol adapters from the configuration.
//
// The HTTP adapter receives the server section plus the limits, CORS and
// rate limit sections, which it passes on to the command router.
//
// Parameters:
//   - cfg: The complete DittoFM configuration
//   - finderMetrics: Optional command metrics (nil = no metrics)
func CreateAdapters(cfg *Config, finderMetrics metrics.FinderMetrics) ([]adapter.Adapter, error) {
	httpCfg := cfg.Server
	httpCfg.Finder = FinderConfig(cfg)
	httpCfg.CORS = cfg.CORS
	httpCfg.RateLimit = cfg.RateLimit

	httpAdapter, err := httpadapter.New(httpCfg, finderMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP adapter: %w", err)
	}

	return []adapter.Adapter{httpAdapter}, nil
}

// FinderConfig derives the command router settings from cfg.
func FinderConfig(cfg *Config) finder.Config {
	return finder.Config{
		MaxUploadSize:     cfg.Limits.MaxUploadSize,
		MaxJSONBytes:      cfg.Limits.MaxJSONBytes,
		StreamIdleTimeout: cfg.Server.StreamIdleTimeout,
		Unarchive: archive.Limits{
			MaxEntries: cfg.Limits.Unarchive.MaxEntries,
			MaxBytes:   cfg.Limits.Unarchive.MaxBytes,
		},
	}
}
