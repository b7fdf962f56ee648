package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittofm/pkg/storage"
	storagetesting "github.com/marmos91/dittofm/pkg/storage/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalAdapter(t *testing.T) {
	suite := &storagetesting.AdapterTestSuite{
		NewAdapter: func(t *testing.T) storage.Adapter {
			a, err := New(context.Background(), t.TempDir(), nil)
			require.NoError(t, err)
			return a
		},
	}
	suite.Run(t)
}

func newTestAdapter(t *testing.T) *LocalAdapter {
	t.Helper()
	a, err := New(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	return a
}

func TestNew_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "storage")

	a, err := New(context.Background(), root, nil)
	require.NoError(t, err)

	info, err := os.Stat(a.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNew_RootIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := New(context.Background(), file, nil)
	assert.Error(t, err)
}

func TestLocalAdapter_SymlinkEscape(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0644))
	require.NoError(t, os.Symlink(outside, filepath.Join(a.Root(), "escape")))

	p := storage.MustClean("escape/secret.txt")

	_, err := a.Open(ctx, p)
	assert.ErrorIs(t, err, storage.ErrPathTraversal)

	_, err = a.Write(ctx, storage.MustClean("escape/new.txt"), bytes.NewReader([]byte("x")), false)
	assert.ErrorIs(t, err, storage.ErrPathTraversal)
	_, statErr := os.Stat(filepath.Join(outside, "new.txt"))
	assert.True(t, os.IsNotExist(statErr))

	entries, err := a.List(ctx, storage.Root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, "escape", e.Name)
	}
}

func TestLocalAdapter_SymlinkInsideRoot(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(a.Root(), "target.txt"), []byte("hello"), 0644))
	require.NoError(t, os.Symlink(filepath.Join(a.Root(), "target.txt"), filepath.Join(a.Root(), "link.txt")))

	r, err := a.Open(ctx, storage.MustClean("link.txt"))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	entries, err := a.List(ctx, storage.Root)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLocalAdapter_HidesTempFiles(t *testing.T) {
	a := newTestAdapter(t)

	require.NoError(t, os.WriteFile(filepath.Join(a.Root(), tempName()), []byte("partial"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(a.Root(), "visible.txt"), []byte("x"), 0644))

	entries, err := a.List(context.Background(), storage.Root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "visible.txt", entries[0].Name)
}

func TestLocalAdapter_OpenIsSizer(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.Write(ctx, storage.MustClean("a.bin"), bytes.NewReader([]byte("0123456789")), false)
	require.NoError(t, err)

	r, err := a.Open(ctx, storage.MustClean("a.bin"))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	sizer, ok := r.(storage.Sizer)
	require.True(t, ok)
	assert.Equal(t, int64(10), sizer.Size())

	buf := make([]byte, 3)
	_, err = sizer.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "456", string(buf))
}

func TestLocalAdapter_FailedWriteLeavesNoTemp(t *testing.T) {
	a := newTestAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Write(ctx, storage.MustClean("x.txt"), bytes.NewReader([]byte("x")), false)
	assert.Error(t, err)

	names, err := os.ReadDir(a.Root())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalAdapter_CopySkipsSymlinks(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0644))

	require.NoError(t, a.Mkdir(ctx, storage.MustClean("dir")))
	_, err := a.Write(ctx, storage.MustClean("dir/keep.txt"), bytes.NewReader([]byte("k")), false)
	require.NoError(t, err)
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(a.Root(), "dir", "leak.txt")))

	require.NoError(t, a.Copy(ctx, storage.MustClean("dir"), storage.MustClean("copy")))

	_, err = os.Lstat(filepath.Join(a.Root(), "copy", "leak.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(a.Root(), "copy", "keep.txt"))
	assert.NoError(t, err)
}

type recordingMetrics struct {
	mu    sync.Mutex
	ops   map[string]int
	fails map[string]int
	bytes map[string]int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{ops: map[string]int{}, fails: map[string]int{}, bytes: map[string]int64{}}
}

func (m *recordingMetrics) ObserveOperation(op string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op]++
	if err != nil {
		m.fails[op]++
	}
}

func (m *recordingMetrics) RecordBytes(direction string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[direction] += n
}

func TestLocalAdapter_Metrics(t *testing.T) {
	m := newRecordingMetrics()
	a, err := New(context.Background(), t.TempDir(), m)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = a.Write(ctx, storage.MustClean("docs/a.txt"), bytes.NewReader([]byte("hello")), false)
	require.NoError(t, err)
	_, err = a.Write(ctx, storage.MustClean("docs/a.txt"), bytes.NewReader([]byte("again")), false)
	require.ErrorIs(t, err, storage.ErrConflict)

	r, err := a.Open(ctx, storage.MustClean("docs/a.txt"))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = a.List(ctx, storage.MustClean("docs"))
	require.NoError(t, err)
	require.NoError(t, a.Move(ctx, storage.MustClean("docs/a.txt"), storage.MustClean("b.txt")))

	assert.Equal(t, 2, m.ops["write"])
	assert.Equal(t, 1, m.fails["write"])
	assert.Equal(t, 1, m.ops["open"])
	assert.Equal(t, 1, m.ops["list"])
	assert.Equal(t, 1, m.ops["move"])
	assert.Equal(t, int64(5), m.bytes["write"])
	assert.Equal(t, int64(5), m.bytes["read"])
}
