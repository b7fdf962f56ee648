// Package finder implements the file manager command protocol over HTTP.
//
// A single endpoint (the API path, "/api" by default) accepts a command name
// in the q query parameter together with a storage key and a path. The
// command is looked up in a static table, its arguments are resolved through
// the storage registry, and the outcome is written as a JSON envelope:
//
//	{"status": "ok", "data": {...}, "error": null}
//	{"status": "error", "data": null, "error": "NotFound", "message": "..."}
//
// preview and download stream raw file content instead, as does the public
// link route (/public/<name>/<path>), which bypasses the command protocol.
//
// Cross-storage move and duplicate are composed here out of Open, Write and
// Mkdir, since adapters only operate within their own backend.
package finder

import (
	"net/http"
	"time"

	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/pkg/archive"
	"github.com/marmos91/dittofm/pkg/metrics"
	"github.com/marmos91/dittofm/pkg/registry"
	"github.com/marmos91/dittofm/pkg/storage"
	"github.com/marmos91/dittofm/pkg/transfer"
)

// DefaultAPIPath is where the command endpoint is mounted.
const DefaultAPIPath = "/api"

// DefaultMaxJSONBytes bounds JSON request bodies. It matches the upload
// ceiling so that save accepts anything upload does.
const DefaultMaxJSONBytes = transfer.DefaultMaxFileSize

// PublicPrefix is the route prefix for public links.
const PublicPrefix = "/public/"

// Config holds the router settings.
type Config struct {
	// APIPath is the command endpoint path. Default: /api
	APIPath string

	// MaxUploadSize is the per-file upload ceiling in bytes. Default: 100 MiB
	MaxUploadSize int64

	// MaxJSONBytes bounds JSON request bodies (save content included).
	// Default: 100 MiB
	MaxJSONBytes int64

	// StreamIdleTimeout bounds how long an upload or download may stall.
	// Zero disables the check.
	StreamIdleTimeout time.Duration

	// Unarchive bounds archive extraction.
	Unarchive archive.Limits
}

func (c *Config) applyDefaults() {
	if c.APIPath == "" {
		c.APIPath = DefaultAPIPath
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = transfer.DefaultMaxFileSize
	}
	if c.MaxJSONBytes <= 0 {
		c.MaxJSONBytes = DefaultMaxJSONBytes
	}
}

// Finder dispatches file manager commands to storage adapters.
//
// Thread Safety:
// A Finder is immutable after New and safe for concurrent use. It relies on
// the registry being sealed before the first request.
type Finder struct {
	registry *registry.Registry
	uploader *transfer.Uploader
	config   Config
	metrics  metrics.FinderMetrics
}

// New creates a Finder over the storages and public links of reg.
//
// Parameters:
//   - reg: Storage registry, sealed or about to be sealed
//   - config: Router settings; zero values select defaults
//   - m: Metrics sink, or nil for no metrics
func New(reg *registry.Registry, config Config, m metrics.FinderMetrics) *Finder {
	config.applyDefaults()
	if m == nil {
		m = metrics.NewNoopFinderMetrics()
	}

	return &Finder{
		registry: reg,
		uploader: transfer.NewUploader(config.MaxUploadSize),
		config:   config,
		metrics:  m,
	}
}

// Config returns the effective configuration.
func (f *Finder) Config() Config {
	return f.config
}

// Routes registers the command endpoint, the public link route and the
// health check on mux.
func (f *Finder) Routes(mux *http.ServeMux) {
	mux.Handle(f.config.APIPath, f)
	mux.HandleFunc("GET "+PublicPrefix+"{name}", f.servePublic)
	mux.HandleFunc("GET "+PublicPrefix+"{name}/{rest...}", f.servePublic)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Handler returns a ServeMux with Routes registered.
func (f *Finder) Handler() http.Handler {
	mux := http.NewServeMux()
	f.Routes(mux)
	return mux
}

// ServeHTTP handles one command request.
func (f *Finder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("q")
	cmd, ok := commands[name]
	if !ok {
		if name == "" {
			writeError(w, badRequest("missing command"), nil)
			return
		}
		writeError(w, errorf(storage.ErrUnsupportedCommand, "command %q", name), nil)
		return
	}

	f.metrics.RecordCommandStart(name)
	defer f.metrics.RecordCommandEnd(name)
	start := time.Now()

	req, err := f.parseRequest(w, r, name, cmd)
	if err != nil {
		f.metrics.RecordCommand(name, "", time.Since(start), err)
		writeError(w, err, nil)
		return
	}

	data, err := cmd.handle(f, req)
	f.metrics.RecordCommand(name, req.key, time.Since(start), err)

	if err != nil {
		if req.streamed {
			// Headers are gone; all that is left is to log.
			logger.Warn("%s %s: stream aborted: %v", name, req.location(), err)
			return
		}
		logger.Debug("%s %s: %v", name, req.location(), err)
		writeError(w, err, data)
		return
	}
	if cmd.mutates {
		logger.Info("%s %s (%s)", name, req.location(), time.Since(start).Round(time.Millisecond))
	}
	if req.streamed {
		return
	}
	writeOK(w, data)
}
