package testing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/marmos91/dittofm/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AdapterTestSuite is a conformance suite for storage.Adapter implementations.
// It tests the interface contract, not implementation details, so the same
// suite runs against the local, badger and S3 adapters.
//
// Usage:
//
//	func TestMyAdapter(t *testing.T) {
//	    suite := &storagetesting.AdapterTestSuite{
//	        NewAdapter: func(t *testing.T) storage.Adapter {
//	            return myadapter.New(t.TempDir())
//	        },
//	    }
//	    suite.Run(t)
//	}
type AdapterTestSuite struct {
	// NewAdapter creates a fresh, empty adapter for each test. The suite closes
	// it when the test ends.
	NewAdapter func(t *testing.T) storage.Adapter
}

// Run executes all tests in the suite.
func (suite *AdapterTestSuite) Run(t *testing.T) {
	t.Run("ReadOperations", suite.RunReadTests)
	t.Run("WriteOperations", suite.RunWriteTests)
	t.Run("DirectoryOperations", suite.RunDirectoryTests)
	t.Run("MoveOperations", suite.RunMoveTests)
}

func (suite *AdapterTestSuite) newAdapter(t *testing.T) storage.Adapter {
	t.Helper()
	a := suite.NewAdapter(t)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}

// ============================================================================
// Helpers
// ============================================================================

func path(t *testing.T, raw string) storage.Path {
	t.Helper()
	p, err := storage.Clean(raw)
	require.NoError(t, err)
	return p
}

func mustWrite(t *testing.T, a storage.Adapter, raw string, data []byte) {
	t.Helper()
	n, err := a.Write(testContext(), path(t, raw), bytes.NewReader(data), true)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), n)
}

func mustMkdir(t *testing.T, a storage.Adapter, raw string) {
	t.Helper()
	require.NoError(t, a.Mkdir(testContext(), path(t, raw)))
}

func mustRead(t *testing.T, a storage.Adapter, raw string) []byte {
	t.Helper()
	r, err := a.Open(testContext(), path(t, raw))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func assertContent(t *testing.T, a storage.Adapter, raw string, want []byte) {
	t.Helper()
	assert.Equal(t, want, mustRead(t, a, raw))

	e, err := a.Stat(testContext(), path(t, raw))
	require.NoError(t, err)
	assert.False(t, e.IsDir)
	assert.Equal(t, int64(len(want)), e.Size)
}

func assertExists(t *testing.T, a storage.Adapter, raw string, want bool) {
	t.Helper()
	ok, err := a.Exists(testContext(), path(t, raw))
	require.NoError(t, err)
	assert.Equal(t, want, ok, raw)
}

func names(entries []storage.Entry) map[string]bool {
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		out[e.Name] = e.IsDir
	}
	return out
}

// countingReader records whether it was read from.
type countingReader struct {
	r     io.Reader
	reads int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.r.Read(p)
}

// failingReader yields n bytes and then fails.
type failingReader struct {
	n int
}

var errInjected = errors.New("injected read failure")

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n <= 0 {
		return 0, errInjected
	}
	if len(p) > f.n {
		p = p[:f.n]
	}
	for i := range p {
		p[i] = 'x'
	}
	f.n -= len(p)
	return len(p), nil
}

// pattern returns deterministic test data of the given size.
func pattern(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}
