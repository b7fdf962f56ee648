package badger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/dittofm/pkg/storage"
)

// writeBlob streams r into chunks under a new blob ID.
//
// Chunks go through a WriteBatch so arbitrarily large content does not hit
// the transaction size limit. On error every chunk written so far is
// removed and the returned ID must not be used.
func (s *BadgerAdapter) writeBlob(ctx context.Context, r io.Reader) (string, int64, error) {
	id := uuid.NewString()
	wb := s.db.NewWriteBatch()

	src := storage.ContextReader(ctx, r)
	var total int64
	for index := int64(0); ; index++ {
		// WriteBatch keeps a reference to the value until flushed, so every
		// chunk needs its own buffer.
		buf := make([]byte, s.chunkSize)
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			if setErr := wb.Set(keyBlobChunk(id, index), buf[:n]); setErr != nil {
				wb.Cancel()
				s.deleteBlob(id)
				return "", total, setErr
			}
			total += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			wb.Cancel()
			s.deleteBlob(id)
			return "", total, err
		}
	}

	if err := wb.Flush(); err != nil {
		s.deleteBlob(id)
		return "", total, err
	}
	return id, total, nil
}

// deleteBlob removes all chunks of blob id. Failures are ignored: an
// unreferenced chunk is invisible and only costs space.
func (s *BadgerAdapter) deleteBlob(id string) {
	if id == "" {
		return
	}

	prefix := keyBlobPrefix(id)
	var keys [][]byte
	_ = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})

	wb := s.db.NewWriteBatch()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			wb.Cancel()
			return
		}
	}
	_ = wb.Flush()
}

// copyBlob duplicates the content of rec under a new blob ID.
func (s *BadgerAdapter) copyBlob(ctx context.Context, rec record) (string, error) {
	r := s.newBlobReader(rec)
	id, _, err := s.writeBlob(ctx, r)
	return id, err
}

// blobReader reads a chunked blob. It implements io.Reader, io.ReaderAt and
// storage.Sizer.
//
// The most recently fetched chunk is cached, so sequential reads with small
// buffers cost one database lookup per chunk.
type blobReader struct {
	s   *BadgerAdapter
	rec record

	mu     sync.Mutex
	offset int64
	cached int64 // index of the cached chunk, -1 if none
	chunk  []byte
}

func (s *BadgerAdapter) newBlobReader(rec record) *blobReader {
	return &blobReader{s: s, rec: rec, cached: -1}
}

func (b *blobReader) Size() int64 {
	return b.rec.Size
}

func (b *blobReader) Read(p []byte) (int, error) {
	b.mu.Lock()
	offset := b.offset
	b.mu.Unlock()

	n, err := b.ReadAt(p, offset)

	b.mu.Lock()
	b.offset += int64(n)
	b.mu.Unlock()

	if n > 0 && errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (b *blobReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset: %w", storage.ErrBadRequest)
	}

	var read int
	for read < len(p) {
		pos := off + int64(read)
		if pos >= b.rec.Size {
			return read, io.EOF
		}

		index := pos / b.rec.ChunkSize
		chunk, err := b.fetch(index)
		if err != nil {
			return read, err
		}

		within := pos - index*b.rec.ChunkSize
		if within >= int64(len(chunk)) {
			return read, fmt.Errorf("blob %s chunk %d is truncated: %w", b.rec.Blob, index, storage.ErrIOFailure)
		}
		read += copy(p[read:], chunk[within:])
	}
	return read, nil
}

// fetch returns chunk index, from the cache when possible.
func (b *blobReader) fetch(index int64) ([]byte, error) {
	b.mu.Lock()
	if b.cached == index {
		chunk := b.chunk
		b.mu.Unlock()
		return chunk, nil
	}
	b.mu.Unlock()

	var chunk []byte
	err := b.s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyBlobChunk(b.rec.Blob, index))
		if err != nil {
			return err
		}
		chunk, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		// The file was overwritten or deleted while being read.
		return nil, fmt.Errorf("blob %s chunk %d vanished: %w", b.rec.Blob, index, storage.ErrIOFailure)
	}
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.cached = index
	b.chunk = chunk
	b.mu.Unlock()

	b.s.metrics.RecordBytes("read", int64(len(chunk)))
	return chunk, nil
}

func (b *blobReader) Close() error {
	return nil
}

var _ storage.Sizer = (*blobReader)(nil)
