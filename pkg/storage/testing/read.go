package testing

import (
	"io"
	"testing"
	"time"

	"github.com/marmos91/dittofm/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunReadTests executes List, Stat, Exists and Open tests.
func (suite *AdapterTestSuite) RunReadTests(t *testing.T) {
	t.Run("List_FileAndDirectory", suite.testListFileAndDirectory)
	t.Run("List_Root", suite.testListRoot)
	t.Run("List_NotFound", suite.testListNotFound)
	t.Run("List_NotADirectory", suite.testListNotADirectory)
	t.Run("Stat_NotFound", suite.testStatNotFound)
	t.Run("Stat_Directory", suite.testStatDirectory)
	t.Run("Exists", suite.testExists)
	t.Run("Open_NotFound", suite.testOpenNotFound)
	t.Run("Open_IsADirectory", suite.testOpenIsADirectory)
	t.Run("Open_Large", suite.testOpenLarge)
}

// ============================================================================
// List Tests
// ============================================================================

func (suite *AdapterTestSuite) testListFileAndDirectory(t *testing.T) {
	a := suite.newAdapter(t)

	mustMkdir(t, a, "dir")
	mustWrite(t, a, "dir/a.txt", []byte("0123456789"))
	mustMkdir(t, a, "dir/sub")

	entries, err := a.List(testContext(), path(t, "dir"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byName := make(map[string]storage.Entry)
	for _, e := range entries {
		byName[e.Name] = e
	}

	file, ok := byName["a.txt"]
	require.True(t, ok)
	assert.False(t, file.IsDir)
	assert.Equal(t, int64(10), file.Size)
	assert.Equal(t, "dir/a.txt", file.Path.String())
	assert.NotEmpty(t, file.MimeType)
	assert.WithinDuration(t, time.Now(), file.LastModified, time.Hour)

	sub, ok := byName["sub"]
	require.True(t, ok)
	assert.True(t, sub.IsDir)
	assert.Equal(t, int64(0), sub.Size)
	assert.Equal(t, "dir/sub", sub.Path.String())
}

func (suite *AdapterTestSuite) testListRoot(t *testing.T) {
	a := suite.newAdapter(t)

	entries, err := a.List(testContext(), storage.Root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	mustWrite(t, a, "top.txt", []byte("x"))
	mustMkdir(t, a, "nested/deeper")

	entries, err = a.List(testContext(), storage.Root)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"top.txt": false, "nested": true}, names(entries))
}

func (suite *AdapterTestSuite) testListNotFound(t *testing.T) {
	a := suite.newAdapter(t)

	_, err := a.List(testContext(), path(t, "missing"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func (suite *AdapterTestSuite) testListNotADirectory(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "file.txt", []byte("data"))

	_, err := a.List(testContext(), path(t, "file.txt"))
	assert.ErrorIs(t, err, storage.ErrNotADirectory)
}

// ============================================================================
// Stat / Exists Tests
// ============================================================================

func (suite *AdapterTestSuite) testStatNotFound(t *testing.T) {
	a := suite.newAdapter(t)

	_, err := a.Stat(testContext(), path(t, "nope.txt"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func (suite *AdapterTestSuite) testStatDirectory(t *testing.T) {
	a := suite.newAdapter(t)
	mustMkdir(t, a, "photos")

	e, err := a.Stat(testContext(), path(t, "photos"))
	require.NoError(t, err)
	assert.True(t, e.IsDir)
	assert.Equal(t, "photos", e.Name)
	assert.Equal(t, int64(0), e.Size)

	root, err := a.Stat(testContext(), storage.Root)
	require.NoError(t, err)
	assert.True(t, root.IsDir)
}

func (suite *AdapterTestSuite) testExists(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "x/y.txt", []byte("y"))

	assertExists(t, a, "x", true)
	assertExists(t, a, "x/y.txt", true)
	assertExists(t, a, "x/z.txt", false)
	assertExists(t, a, "z", false)
}

// ============================================================================
// Open Tests
// ============================================================================

func (suite *AdapterTestSuite) testOpenNotFound(t *testing.T) {
	a := suite.newAdapter(t)

	_, err := a.Open(testContext(), path(t, "ghost.bin"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func (suite *AdapterTestSuite) testOpenIsADirectory(t *testing.T) {
	a := suite.newAdapter(t)
	mustMkdir(t, a, "folder")

	_, err := a.Open(testContext(), path(t, "folder"))
	assert.ErrorIs(t, err, storage.ErrIsADirectory)
}

func (suite *AdapterTestSuite) testOpenLarge(t *testing.T) {
	a := suite.newAdapter(t)
	data := pattern(3*1024*1024 + 17)
	mustWrite(t, a, "large.bin", data)

	r, err := a.Open(testContext(), path(t, "large.bin"))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, len(data), len(got))
	assert.Equal(t, data, got)
}
