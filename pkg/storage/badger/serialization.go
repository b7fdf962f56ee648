package badger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/marmos91/dittofm/pkg/storage"
)

// record is the stored form of a file or directory.
//
// Records are JSON encoded: they are small, and a human-readable value makes
// inspecting the database with badger's CLI straightforward.
type record struct {
	Dir      bool      `json:"dir"`
	Size     int64     `json:"size,omitempty"`
	Modified time.Time `json:"modified"`

	// Blob is the ID of the chunked content; empty for directories
	Blob string `json:"blob,omitempty"`

	// ChunkSize is the chunk size the blob was written with
	ChunkSize int64 `json:"chunk_size,omitempty"`
}

// rootRecord is returned for the implicit root directory.
var rootRecord = record{Dir: true}

func encodeRecord(r *record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (record, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return r, nil
}

func (r record) toEntry(p storage.Path) storage.Entry {
	return storage.NewEntry(p, r.Dir, r.Size, r.Modified)
}
