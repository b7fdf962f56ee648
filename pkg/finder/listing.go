package finder

import (
	"sort"
	"strconv"
	"strings"

	"github.com/marmos91/dittofm/pkg/registry"
	"github.com/marmos91/dittofm/pkg/storage"
)

const (
	nodeDir  = "dir"
	nodeFile = "file"
)

// node is one directory entry on the wire.
type node struct {
	Type         string `json:"type"`
	Path         string `json:"path"`
	Basename     string `json:"basename"`
	Extension    string `json:"extension"`
	MimeType     string `json:"mime_type,omitempty"`
	LastModified int64  `json:"last_modified"`
	FileSize     int64  `json:"file_size"`
	URL          string `json:"url,omitempty"`
}

// listing is the payload of index, search and every mutating command.
type listing struct {
	Adapter  string   `json:"adapter"`
	Storages []string `json:"storages"`
	Dirname  string   `json:"dirname"`
	Files    []node   `json:"files"`
}

type folder struct {
	Adapter  string `json:"adapter"`
	Path     string `json:"path"`
	Basename string `json:"basename"`
}

func (f *Finder) node(key string, e storage.Entry) node {
	n := node{
		Type:         nodeFile,
		Path:         registry.FormatURI(key, e.Path),
		Basename:     e.Name,
		Extension:    e.Extension(),
		MimeType:     e.MimeType,
		LastModified: e.LastModified.Unix(),
		FileSize:     e.Size,
	}
	if e.IsDir {
		n.Type = nodeDir
		return n
	}
	n.URL = f.registry.PublicURL(key, e.Path)
	return n
}

// sortEntries orders directories first, then by name.
func sortEntries(entries []storage.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
}

// list builds the listing of the directory at loc.
func (f *Finder) list(req *request, loc location) (*listing, error) {
	entries, err := loc.adapter.List(req.ctx, loc.path)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)

	return f.newListing(loc, entries), nil
}

func (f *Finder) newListing(loc location, entries []storage.Entry) *listing {
	files := make([]node, 0, len(entries))
	for _, e := range entries {
		files = append(files, f.node(loc.key, e))
	}

	return &listing{
		Adapter:  loc.key,
		Storages: f.registry.ListStorages(),
		Dirname:  loc.String(),
		Files:    files,
	}
}

// refresh returns the listing of the request directory after a mutation.
func (f *Finder) refresh(req *request) (any, error) {
	return f.list(req, req.location())
}

func (f *Finder) index(req *request) (any, error) {
	return f.list(req, req.location())
}

func (f *Finder) subfolders(req *request) (any, error) {
	entries, err := req.adapter.List(req.ctx, req.path)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)

	folders := []folder{}
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		folders = append(folders, folder{
			Adapter:  req.key,
			Path:     registry.FormatURI(req.key, e.Path),
			Basename: e.Name,
		})
	}
	return map[string]any{"folders": folders}, nil
}

// search returns the files of the request directory whose name contains the
// filter, case-insensitively. With deep=true the whole subtree is searched.
func (f *Finder) search(req *request) (any, error) {
	needle := strings.ToLower(req.filter)

	deep := false
	if v := req.r.URL.Query().Get("deep"); v != "" {
		var err error
		if deep, err = strconv.ParseBool(v); err != nil {
			return nil, badRequest("invalid deep flag %q", v)
		}
	}

	match := func(e storage.Entry) bool {
		return !e.IsDir && strings.Contains(strings.ToLower(e.Name), needle)
	}

	var matches []storage.Entry
	if !deep {
		entries, err := req.adapter.List(req.ctx, req.path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if match(e) {
				matches = append(matches, e)
			}
		}
		return f.newListing(req.location(), matches), nil
	}

	dir, err := req.adapter.Stat(req.ctx, req.path)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir {
		return nil, errorf(storage.ErrNotADirectory, "search %q", req.location().String())
	}

	err = storage.Walk(req.ctx, req.adapter, req.path, func(e storage.Entry) error {
		if match(e) {
			matches = append(matches, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return f.newListing(req.location(), matches), nil
}
