// Package badger implements a storage adapter backed by an embedded BadgerDB
// database.
//
// Directory records and file content both live in the database, which makes
// this adapter useful for self-contained deployments and for tests (it can run
// fully in memory).
package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittofm/pkg/storage"
)

// DefaultChunkSize is the content chunk size used when none is configured.
const DefaultChunkSize = 1 << 20

// maxUpdateAttempts bounds the retries of a transaction that lost a
// conflict against a concurrent writer.
const maxUpdateAttempts = 3

// Config contains configuration for creating a BadgerDB storage adapter.
type Config struct {
	// Path is the directory where BadgerDB will store its files.
	// BadgerDB creates multiple files in this directory (value log, LSM tree, etc.)
	Path string `mapstructure:"path" validate:"required_without=InMemory"`

	// InMemory keeps the whole database in memory. Content is lost on Close.
	InMemory bool `mapstructure:"in_memory"`

	// ChunkSize is the size of content chunks in bytes (default: 1MiB)
	ChunkSize int64 `mapstructure:"chunk_size" validate:"omitempty,gte=4096"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (0 keeps badger's default)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb" validate:"omitempty,gte=0"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (0 keeps badger's default)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb" validate:"omitempty,gte=0"`
}

// BadgerAdapter implements storage.Adapter using BadgerDB for persistence.
//
// Storage Model:
// Records and content chunks use namespaced key prefixes (see keys.go). Each
// write streams its chunks under a fresh blob ID before the record pointing
// at them is committed in a single transaction, so a failed or cancelled
// write leaves nothing visible.
//
// Thread Safety:
// BadgerDB transactions provide isolation, so the adapter holds no locks of
// its own. Transactions that lose a conflict against a concurrent writer are
// retried a bounded number of times.
type BadgerAdapter struct {
	// db is the BadgerDB database handle (thread-safe, uses internal MVCC)
	db *badger.DB

	// chunkSize is the content chunk size for new writes
	chunkSize int64

	metrics storage.Metrics
}

// New creates a BadgerDB-backed storage adapter.
//
// Parameters:
//   - ctx: Context for cancellation during database initialization
//   - config: Database location and tuning
//   - metrics: Optional operation metrics (nil disables them)
//
// Returns:
//   - *BadgerAdapter: A new adapter ready for use
//   - error: Error if the database cannot be opened or context is cancelled
func New(ctx context.Context, config Config, metrics storage.Metrics) (*BadgerAdapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.Path == "" {
			return nil, fmt.Errorf("badger storage path is required")
		}
		opts = badger.DefaultOptions(config.Path)
	}

	opts = opts.WithLoggingLevel(badger.WARNING) // Reduce log noise
	opts = opts.WithCompression(options.None)    // Content is usually already compressed

	if config.BlockCacheSizeMB > 0 {
		opts = opts.WithBlockCacheSize(config.BlockCacheSizeMB << 20)
	}
	if config.IndexCacheSizeMB > 0 {
		opts = opts.WithIndexCacheSize(config.IndexCacheSizeMB << 20)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.Path, err)
	}

	chunkSize := config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &BadgerAdapter{
		db:        db,
		chunkSize: chunkSize,
		metrics:   storage.MetricsOrNoop(metrics),
	}, nil
}

// Close closes the BadgerDB database and releases all resources.
//
// After calling Close, the adapter must not be used.
func (s *BadgerAdapter) Close() error {
	return s.db.Close()
}

// observe records the outcome of operation op. Use with a named error return:
//
//	defer s.observe("list", time.Now(), &err)
func (s *BadgerAdapter) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveOperation(op, time.Since(start), *err)
}

// update runs fn in a read-write transaction, retrying on conflicts with
// concurrent transactions.
func (s *BadgerAdapter) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// ============================================================================
// Record helpers
// ============================================================================

// get returns the record at p. The root always exists.
func get(txn *badger.Txn, p storage.Path) (record, error) {
	if p.IsRoot() {
		return rootRecord, nil
	}

	item, err := txn.Get(keyEntry(p))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return record{}, fmt.Errorf("%q: %w", p.String(), storage.ErrNotFound)
	}
	if err != nil {
		return record{}, err
	}

	var rec record
	err = item.Value(func(val []byte) error {
		rec, err = decodeRecord(val)
		return err
	})
	return rec, err
}

// exists reports whether a record exists at p.
func exists(txn *badger.Txn, p storage.Path) (bool, error) {
	_, err := get(txn, p)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func put(txn *badger.Txn, p storage.Path, rec *record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return txn.Set(keyEntry(p), data)
}

// ensureParents checks every ancestor of p. Missing ancestors are created
// when create is set and reported as ErrNotFound otherwise. An ancestor that
// is a file fails with ErrNotADirectory.
func ensureParents(txn *badger.Txn, p storage.Path, create bool, now time.Time) error {
	segments := p.Parent().Segments()
	dir := storage.Root
	for _, seg := range segments {
		dir = dir.Child(seg)

		rec, err := get(txn, dir)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			if !create {
				return err
			}
			if err := put(txn, dir, &record{Dir: true, Modified: now}); err != nil {
				return err
			}
		case err != nil:
			return err
		case !rec.Dir:
			return fmt.Errorf("%q: %w", dir.String(), storage.ErrNotADirectory)
		}
	}
	return nil
}

// node is a record together with its path, as collected by subtree.
type node struct {
	path storage.Path
	rec  record
}

// children returns the direct children of dir.
func children(txn *badger.Txn, dir storage.Path) ([]node, error) {
	prefix := keyChildren(dir)

	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
	defer it.Close()

	var nodes []node
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		name := nameFromKey(item.Key(), prefix)

		var rec record
		err := item.Value(func(val []byte) error {
			var err error
			rec, err = decodeRecord(val)
			return err
		})
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node{path: dir.Child(name), rec: rec})
	}
	return nodes, nil
}

// subtree returns p and all of its descendants, parents before children.
func subtree(txn *badger.Txn, p storage.Path) ([]node, error) {
	rec, err := get(txn, p)
	if err != nil {
		return nil, err
	}

	nodes := []node{{path: p, rec: rec}}
	for i := 0; i < len(nodes); i++ {
		if !nodes[i].rec.Dir {
			continue
		}
		kids, err := children(txn, nodes[i].path)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, kids...)
	}
	return nodes, nil
}

var _ storage.Adapter = (*BadgerAdapter)(nil)
