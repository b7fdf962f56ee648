package finder

import (
	"strings"

	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/pkg/archive"
	"github.com/marmos91/dittofm/pkg/storage"
)

// archive zips items into <path>/<name>.zip.
func (f *Finder) archive(req *request) (any, error) {
	var body struct {
		Name  string `json:"name"`
		Items []item `json:"items"`
	}
	if err := req.decode(&body); err != nil {
		return nil, err
	}

	name := body.Name
	if !strings.HasSuffix(strings.ToLower(name), archive.Extension) {
		name += archive.Extension
	}
	if err := validName(strings.TrimSuffix(body.Name, archive.Extension)); err != nil {
		return nil, err
	}

	srcs, err := f.resolveItems(req, body.Items)
	if err != nil {
		return nil, err
	}
	sources := make([]storage.Path, 0, len(srcs))
	for _, src := range srcs {
		if !src.sameStorage(req.location()) {
			return nil, badRequest("cannot archive %q from another storage", src.String())
		}
		sources = append(sources, src.path)
	}

	if err := requireDir(req, req.location()); err != nil {
		return nil, err
	}
	dest, err := req.path.Join(name)
	if err != nil {
		return nil, err
	}

	n, err := archive.Create(req.ctx, req.adapter, sources, dest)
	if err != nil {
		return nil, err
	}
	logger.Info("archive: created %s (%d items, %d bytes)", req.location().String()+"/"+name, len(sources), n)

	return f.refresh(req)
}

// unarchiveResult is the payload of a successful unarchive.
type unarchiveResult struct {
	*listing
	*archive.Report
}

// unarchive extracts item into destination, or into <path>/<archive stem>.
// Entries that cannot be written are skipped and reported. When a ceiling is
// crossed the command fails, but the error envelope still carries what was
// extracted and skipped.
func (f *Finder) unarchive(req *request) (any, error) {
	var body struct {
		Item        string `json:"item"`
		Destination string `json:"destination"`
	}
	if err := req.decode(&body); err != nil {
		return nil, err
	}

	src, err := f.resolve(req, body.Item)
	if err != nil {
		return nil, err
	}
	if src.path.IsRoot() {
		return nil, badRequest("missing archive")
	}

	var dest location
	if body.Destination != "" {
		if dest, err = f.resolve(req, body.Destination); err != nil {
			return nil, err
		}
	} else {
		dest = req.location()
		if dest.path, err = req.path.Join(archiveStem(src.path.Base())); err != nil {
			return nil, err
		}
	}
	if !src.sameStorage(dest) {
		return nil, badRequest("cannot extract %q into another storage", src.String())
	}

	report, err := archive.Extract(req.ctx, src.adapter, src.path, dest.path, f.config.Unarchive)
	if report != nil {
		f.metrics.RecordExtraction(len(report.Extracted), len(report.Skipped))
	}
	if err != nil {
		if report != nil {
			return report, err
		}
		return nil, err
	}
	if len(report.Skipped) > 0 {
		logger.Warn("unarchive %s: skipped %d entries", src, len(report.Skipped))
	}

	l, err := f.list(req, req.location())
	if err != nil {
		return nil, err
	}
	return unarchiveResult{listing: l, Report: report}, nil
}

// archiveStem names the default extraction directory after the archive.
func archiveStem(base string) string {
	stem := base
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		stem = base[:i]
	}
	if stem == "" || stem == base && strings.HasPrefix(base, ".") {
		return "archive"
	}
	return stem
}
