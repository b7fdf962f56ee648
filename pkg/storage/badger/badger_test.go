package badger

import (
	"bytes"
	"context"
	"io"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittofm/pkg/storage"
	storagetesting "github.com/marmos91/dittofm/pkg/storage/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, chunkSize int64) *BadgerAdapter {
	t.Helper()
	a, err := New(context.Background(), Config{InMemory: true, ChunkSize: chunkSize}, nil)
	require.NoError(t, err)
	return a
}

func TestBadgerAdapter(t *testing.T) {
	suite := &storagetesting.AdapterTestSuite{
		NewAdapter: func(t *testing.T) storage.Adapter {
			return newTestAdapter(t, 64*1024)
		},
	}
	suite.Run(t)
}

func TestBadgerAdapter_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a, err := New(ctx, Config{Path: dir}, nil)
	require.NoError(t, err)
	_, err = a.Write(ctx, storage.MustClean("docs/a.txt"), bytes.NewReader([]byte("persisted")), false)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a, err = New(ctx, Config{Path: dir}, nil)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	r, err := a.Open(ctx, storage.MustClean("docs/a.txt"))
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(data))
}

func TestBadgerAdapter_ChunkBoundaries(t *testing.T) {
	a := newTestAdapter(t, 4096)
	defer func() { _ = a.Close() }()
	ctx := context.Background()

	data := make([]byte, 4096*3+123)
	for i := range data {
		data[i] = byte(i % 241)
	}

	n, err := a.Write(ctx, storage.MustClean("big.bin"), bytes.NewReader(data), false)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	r, err := a.Open(ctx, storage.MustClean("big.bin"))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	sizer, ok := r.(storage.Sizer)
	require.True(t, ok)
	assert.Equal(t, int64(len(data)), sizer.Size())

	// A read spanning two chunks
	buf := make([]byte, 100)
	got, err := sizer.ReadAt(buf, 4096-50)
	require.NoError(t, err)
	assert.Equal(t, 100, got)
	assert.Equal(t, data[4096-50:4096+50], buf)

	// A read past the end
	got, err = sizer.ReadAt(buf, int64(len(data))-10)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 10, got)

	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, all)
}

func TestBadgerAdapter_OverwriteReleasesOldBlob(t *testing.T) {
	a := newTestAdapter(t, 4096)
	defer func() { _ = a.Close() }()
	ctx := context.Background()
	p := storage.MustClean("a.txt")

	_, err := a.Write(ctx, p, bytes.NewReader(bytes.Repeat([]byte("a"), 10000)), false)
	require.NoError(t, err)
	_, err = a.Write(ctx, p, bytes.NewReader([]byte("b")), true)
	require.NoError(t, err)

	assert.Equal(t, 1, countBlobChunks(t, a))
}

func TestBadgerAdapter_FailedWriteReleasesChunks(t *testing.T) {
	a := newTestAdapter(t, 4096)
	defer func() { _ = a.Close() }()

	r := io.MultiReader(bytes.NewReader(make([]byte, 10000)), &errReader{})
	_, err := a.Write(context.Background(), storage.MustClean("x.bin"), r, false)
	require.Error(t, err)

	assert.Equal(t, 0, countBlobChunks(t, a))
}

func TestBadgerAdapter_DeleteReleasesBlobs(t *testing.T) {
	a := newTestAdapter(t, 4096)
	defer func() { _ = a.Close() }()
	ctx := context.Background()

	_, err := a.Write(ctx, storage.MustClean("d/one.txt"), bytes.NewReader([]byte("1")), false)
	require.NoError(t, err)
	_, err = a.Write(ctx, storage.MustClean("d/sub/two.txt"), bytes.NewReader([]byte("2")), false)
	require.NoError(t, err)

	require.NoError(t, a.Delete(ctx, storage.MustClean("d"), true))
	assert.Equal(t, 0, countBlobChunks(t, a))
}

func TestBadgerAdapter_ListIgnoresGrandchildren(t *testing.T) {
	a := newTestAdapter(t, 4096)
	defer func() { _ = a.Close() }()
	ctx := context.Background()

	_, err := a.Write(ctx, storage.MustClean("a/b/c.txt"), bytes.NewReader([]byte("c")), false)
	require.NoError(t, err)
	_, err = a.Write(ctx, storage.MustClean("ab.txt"), bytes.NewReader([]byte("x")), false)
	require.NoError(t, err)

	entries, err := a.List(ctx, storage.MustClean("a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Name)
	assert.True(t, entries[0].IsDir)

	entries, err = a.List(ctx, storage.Root)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, io.ErrClosedPipe
}

func countBlobChunks(t *testing.T, a *BadgerAdapter) int {
	t.Helper()

	count := 0
	prefix := []byte(prefixBlob)
	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}
