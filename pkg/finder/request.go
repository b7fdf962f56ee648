package finder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/marmos91/dittofm/pkg/registry"
	"github.com/marmos91/dittofm/pkg/storage"
)

type handlerFunc func(f *Finder, req *request) (any, error)

// command is one entry of the dispatch table.
type command struct {
	method  string
	mutates bool
	handle  handlerFunc
}

var commands = map[string]command{
	"index":      {method: http.MethodGet, handle: (*Finder).index},
	"subfolders": {method: http.MethodGet, handle: (*Finder).subfolders},
	"search":     {method: http.MethodGet, handle: (*Finder).search},
	"preview":    {method: http.MethodGet, handle: (*Finder).preview},
	"download":   {method: http.MethodGet, handle: (*Finder).download},
	"upload":     {method: http.MethodPost, mutates: true, handle: (*Finder).upload},
	"newfolder":  {method: http.MethodPost, mutates: true, handle: (*Finder).newFolder},
	"newfile":    {method: http.MethodPost, mutates: true, handle: (*Finder).newFile},
	"save":       {method: http.MethodPost, mutates: true, handle: (*Finder).save},
	"rename":     {method: http.MethodPost, mutates: true, handle: (*Finder).rename},
	"move":       {method: http.MethodPost, mutates: true, handle: (*Finder).move},
	"duplicate":  {method: http.MethodPost, mutates: true, handle: (*Finder).duplicate},
	"delete":     {method: http.MethodPost, mutates: true, handle: (*Finder).delete},
	"archive":    {method: http.MethodPost, mutates: true, handle: (*Finder).archive},
	"unarchive":  {method: http.MethodPost, mutates: true, handle: (*Finder).unarchive},
}

// location is a resolved path on a specific storage.
type location struct {
	key     string
	adapter storage.Adapter
	path    storage.Path
}

// String returns the "key://path" form used on the wire.
func (l location) String() string {
	return registry.FormatURI(l.key, l.path)
}

func (l location) sameStorage(o location) bool {
	return l.key == o.key
}

// item is a path reference inside a JSON body.
type item struct {
	Path string `json:"path"`
}

// request is the parsed form of one command request.
type request struct {
	w   http.ResponseWriter
	r   *http.Request
	ctx context.Context

	command   string
	key       string
	adapter   storage.Adapter
	path      storage.Path
	filter    string
	overwrite bool

	maxJSONBytes int64

	// streamed is set once a handler has started writing a raw response.
	streamed bool
}

// parseRequest validates the method and resolves the storage and path
// query parameters.
//
// The path parameter may carry its own storage key ("key://dir"), which
// takes precedence over the adapter parameter. Both may be empty, selecting
// the root of the default storage.
func (f *Finder) parseRequest(w http.ResponseWriter, r *http.Request, name string, cmd command) (*request, error) {
	if r.Method != cmd.method {
		w.Header().Set("Allow", cmd.method)
		return nil, badRequest("command %q requires %s, got %s", name, cmd.method, r.Method)
	}

	query := r.URL.Query()

	key, raw := registry.SplitURI(query.Get("path"))
	if key == "" {
		key = query.Get("adapter")
	}
	key, adapter, p, err := f.registry.Resolve(key, raw)
	if err != nil {
		return nil, err
	}

	overwrite := false
	if v := query.Get("overwrite"); v != "" {
		overwrite, err = strconv.ParseBool(v)
		if err != nil {
			return nil, badRequest("invalid overwrite flag %q", v)
		}
	}

	return &request{
		w:            w,
		r:            r,
		ctx:          r.Context(),
		command:      name,
		key:          key,
		adapter:      adapter,
		path:         p,
		filter:       query.Get("filter"),
		overwrite:    overwrite,
		maxJSONBytes: f.config.MaxJSONBytes,
	}, nil
}

func (req *request) location() location {
	return location{key: req.key, adapter: req.adapter, path: req.path}
}

// decode reads the JSON body into v.
func (req *request) decode(v any) error {
	body := http.MaxBytesReader(req.w, req.r.Body, req.maxJSONBytes)
	defer func() { _ = body.Close() }()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return errorf(storage.ErrSizeLimitExceeded, "request body larger than %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return badRequest("missing request body")
		default:
			return badRequest("invalid request body: %v", err)
		}
	}
	return nil
}

// resolve resolves a "key://path" reference from a request body. References
// without a key are taken relative to the request's storage.
func (f *Finder) resolve(req *request, uri string) (location, error) {
	if uri == "" {
		return location{}, badRequest("missing path")
	}

	key, raw := registry.SplitURI(uri)
	if key == "" {
		key = req.key
	}
	key, adapter, p, err := f.registry.Resolve(key, raw)
	if err != nil {
		return location{}, err
	}
	return location{key: key, adapter: adapter, path: p}, nil
}

func (f *Finder) resolveItems(req *request, items []item) ([]location, error) {
	if len(items) == 0 {
		return nil, badRequest("no items")
	}

	locs := make([]location, 0, len(items))
	for _, it := range items {
		loc, err := f.resolve(req, it.Path)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, nil
}
