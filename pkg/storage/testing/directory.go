package testing

import (
	"testing"

	"github.com/marmos91/dittofm/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDirectoryTests executes Mkdir and Delete tests.
func (suite *AdapterTestSuite) RunDirectoryTests(t *testing.T) {
	t.Run("Mkdir_Idempotent", suite.testMkdirIdempotent)
	t.Run("Mkdir_Nested", suite.testMkdirNested)
	t.Run("Mkdir_FileConflict", suite.testMkdirFileConflict)
	t.Run("Delete_File", suite.testDeleteFile)
	t.Run("Delete_NotFound", suite.testDeleteNotFound)
	t.Run("Delete_EmptyDirectory", suite.testDeleteEmptyDirectory)
	t.Run("Delete_NotEmpty", suite.testDeleteNotEmpty)
	t.Run("Delete_Recursive", suite.testDeleteRecursive)
	t.Run("Delete_Root", suite.testDeleteRoot)
}

// ============================================================================
// Mkdir Tests
// ============================================================================

func (suite *AdapterTestSuite) testMkdirIdempotent(t *testing.T) {
	a := suite.newAdapter(t)

	require.NoError(t, a.Mkdir(testContext(), path(t, "twice")))
	require.NoError(t, a.Mkdir(testContext(), path(t, "twice")))

	e, err := a.Stat(testContext(), path(t, "twice"))
	require.NoError(t, err)
	assert.True(t, e.IsDir)
}

func (suite *AdapterTestSuite) testMkdirNested(t *testing.T) {
	a := suite.newAdapter(t)
	mustMkdir(t, a, "x/y/z")

	entries, err := a.List(testContext(), path(t, "x/y"))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"z": true}, names(entries))
}

func (suite *AdapterTestSuite) testMkdirFileConflict(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "occupied", []byte("file"))

	err := a.Mkdir(testContext(), path(t, "occupied"))
	assert.ErrorIs(t, err, storage.ErrConflict)
	assertContent(t, a, "occupied", []byte("file"))
}

// ============================================================================
// Delete Tests
// ============================================================================

func (suite *AdapterTestSuite) testDeleteFile(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "d/f.txt", []byte("x"))

	require.NoError(t, a.Delete(testContext(), path(t, "d/f.txt"), false))
	assertExists(t, a, "d/f.txt", false)
	assertExists(t, a, "d", true)
}

func (suite *AdapterTestSuite) testDeleteNotFound(t *testing.T) {
	a := suite.newAdapter(t)

	err := a.Delete(testContext(), path(t, "ghost"), true)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func (suite *AdapterTestSuite) testDeleteEmptyDirectory(t *testing.T) {
	a := suite.newAdapter(t)
	mustMkdir(t, a, "empty")

	require.NoError(t, a.Delete(testContext(), path(t, "empty"), false))
	assertExists(t, a, "empty", false)
}

func (suite *AdapterTestSuite) testDeleteNotEmpty(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "full/f.txt", []byte("x"))

	err := a.Delete(testContext(), path(t, "full"), false)
	assert.ErrorIs(t, err, storage.ErrDirectoryNotEmpty)
	assertContent(t, a, "full/f.txt", []byte("x"))
}

func (suite *AdapterTestSuite) testDeleteRecursive(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "tree/a.txt", []byte("a"))
	mustWrite(t, a, "tree/sub/b.txt", []byte("b"))
	mustMkdir(t, a, "tree/sub/empty")
	mustWrite(t, a, "treehouse.txt", []byte("sibling"))

	require.NoError(t, a.Delete(testContext(), path(t, "tree"), true))

	assertExists(t, a, "tree", false)
	assertExists(t, a, "tree/sub/b.txt", false)
	assertContent(t, a, "treehouse.txt", []byte("sibling"))
}

func (suite *AdapterTestSuite) testDeleteRoot(t *testing.T) {
	a := suite.newAdapter(t)

	err := a.Delete(testContext(), storage.Root, true)
	assert.ErrorIs(t, err, storage.ErrBadRequest)
}
