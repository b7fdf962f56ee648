package badger

import (
	"fmt"
	"strings"

	"github.com/marmos91/dittofm/pkg/storage"
)

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so we use prefixed keys to organize the two
// kinds of data the adapter stores:
//
// Data Type      Prefix   Key Format                          Value Type
// ===========================================================================
// Entries        "e:"     e:<parent>\x00<name>                record (JSON)
// Blob chunks    "b:"     b:<blobID>:<chunk index, 10 digits> raw bytes
//
// 1. Entries (e:)
//    - One entry per file or directory; the root is implicit and never stored
//    - The parent path and the name are separated by NUL, which cannot occur
//      in a storage.Path. All direct children of a directory therefore share
//      the prefix "e:<dir>\x00" and a listing is a single prefix scan that
//      never touches grandchildren.
//    - Example: e:photos\x00cat.jpg
//
// 2. Blob chunks (b:)
//    - File content split into fixed-size chunks under a random UUID
//    - A write streams chunks under a fresh blob ID and only then commits the
//      entry that references it, so readers never see partial content
//    - Renames and moves rewrite entries only; blobs stay where they are
//    - Zero-padded indexes keep chunks in order for prefix iteration
//    - Example: b:550e8400-e29b-41d4-a716-446655440000:0000000003

const (
	// prefixEntry is the key prefix for file and directory records
	prefixEntry = "e:"

	// prefixBlob is the key prefix for content chunks
	prefixBlob = "b:"

	// nameSeparator separates the parent path from the name in entry keys
	nameSeparator = "\x00"
)

// keyEntry returns the key of the record for p. Must not be called for the root.
func keyEntry(p storage.Path) []byte {
	return []byte(prefixEntry + p.Parent().String() + nameSeparator + p.Base())
}

// keyChildren returns the prefix shared by all direct children of dir.
func keyChildren(dir storage.Path) []byte {
	return []byte(prefixEntry + dir.String() + nameSeparator)
}

// nameFromKey extracts the child name from an entry key found under prefix.
func nameFromKey(key, prefix []byte) string {
	return strings.TrimPrefix(string(key), string(prefix))
}

// keyBlobChunk returns the key of chunk index of blob id.
func keyBlobChunk(id string, index int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", prefixBlob, id, index))
}

// keyBlobPrefix returns the prefix shared by all chunks of blob id.
func keyBlobPrefix(id string) []byte {
	return []byte(prefixBlob + id + ":")
}
