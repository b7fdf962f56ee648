package testing

import (
	"testing"

	"github.com/marmos91/dittofm/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunMoveTests executes Rename, Move and Copy tests.
func (suite *AdapterTestSuite) RunMoveTests(t *testing.T) {
	t.Run("Rename_File", suite.testRenameFile)
	t.Run("Rename_Directory", suite.testRenameDirectory)
	t.Run("Rename_Conflict", suite.testRenameConflict)
	t.Run("Rename_NotFound", suite.testRenameNotFound)
	t.Run("Rename_OtherDirectory", suite.testRenameOtherDirectory)
	t.Run("Move_File", suite.testMoveFile)
	t.Run("Move_Directory", suite.testMoveDirectory)
	t.Run("Move_Conflict", suite.testMoveConflict)
	t.Run("Move_IntoItself", suite.testMoveIntoItself)
	t.Run("Move_MissingParent", suite.testMoveMissingParent)
	t.Run("Copy_File", suite.testCopyFile)
	t.Run("Copy_Directory", suite.testCopyDirectory)
	t.Run("Copy_Conflict", suite.testCopyConflict)
	t.Run("Copy_NotFound", suite.testCopyNotFound)
}

// ============================================================================
// Rename Tests
// ============================================================================

func (suite *AdapterTestSuite) testRenameFile(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "docs/old.txt", []byte("content"))

	require.NoError(t, a.Rename(testContext(), path(t, "docs/old.txt"), path(t, "docs/new.txt")))

	assertExists(t, a, "docs/old.txt", false)
	assertContent(t, a, "docs/new.txt", []byte("content"))
}

func (suite *AdapterTestSuite) testRenameDirectory(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "before/inner/f.txt", []byte("f"))

	require.NoError(t, a.Rename(testContext(), path(t, "before"), path(t, "after")))

	assertExists(t, a, "before", false)
	assertContent(t, a, "after/inner/f.txt", []byte("f"))
}

func (suite *AdapterTestSuite) testRenameConflict(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "a.txt", []byte("a"))
	mustWrite(t, a, "b.txt", []byte("b"))

	err := a.Rename(testContext(), path(t, "a.txt"), path(t, "b.txt"))
	assert.ErrorIs(t, err, storage.ErrConflict)
	assertContent(t, a, "a.txt", []byte("a"))
	assertContent(t, a, "b.txt", []byte("b"))
}

func (suite *AdapterTestSuite) testRenameNotFound(t *testing.T) {
	a := suite.newAdapter(t)

	err := a.Rename(testContext(), path(t, "nothing"), path(t, "something"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func (suite *AdapterTestSuite) testRenameOtherDirectory(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "one/f.txt", []byte("f"))
	mustMkdir(t, a, "two")

	err := a.Rename(testContext(), path(t, "one/f.txt"), path(t, "two/f.txt"))
	assert.ErrorIs(t, err, storage.ErrBadRequest)
	assertContent(t, a, "one/f.txt", []byte("f"))
}

// ============================================================================
// Move Tests
// ============================================================================

func (suite *AdapterTestSuite) testMoveFile(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "src/f.txt", []byte("moving"))
	mustMkdir(t, a, "dst")

	require.NoError(t, a.Move(testContext(), path(t, "src/f.txt"), path(t, "dst/f.txt")))

	assertExists(t, a, "src/f.txt", false)
	assertContent(t, a, "dst/f.txt", []byte("moving"))
}

func (suite *AdapterTestSuite) testMoveDirectory(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "src/tree/a.txt", []byte("a"))
	mustWrite(t, a, "src/tree/b/c.txt", []byte("c"))
	mustMkdir(t, a, "src/tree/empty")
	mustMkdir(t, a, "dst")

	require.NoError(t, a.Move(testContext(), path(t, "src/tree"), path(t, "dst/tree")))

	assertExists(t, a, "src/tree", false)
	assertContent(t, a, "dst/tree/a.txt", []byte("a"))
	assertContent(t, a, "dst/tree/b/c.txt", []byte("c"))
	assertExists(t, a, "dst/tree/empty", true)
}

func (suite *AdapterTestSuite) testMoveConflict(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "src/f.txt", []byte("new"))
	mustWrite(t, a, "dst/f.txt", []byte("old"))

	err := a.Move(testContext(), path(t, "src/f.txt"), path(t, "dst/f.txt"))
	assert.ErrorIs(t, err, storage.ErrConflict)
	assertContent(t, a, "src/f.txt", []byte("new"))
	assertContent(t, a, "dst/f.txt", []byte("old"))
}

func (suite *AdapterTestSuite) testMoveIntoItself(t *testing.T) {
	a := suite.newAdapter(t)
	mustMkdir(t, a, "loop")

	err := a.Move(testContext(), path(t, "loop"), path(t, "loop/inner"))
	assert.ErrorIs(t, err, storage.ErrBadRequest)
	assertExists(t, a, "loop", true)
}

func (suite *AdapterTestSuite) testMoveMissingParent(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "f.txt", []byte("f"))

	err := a.Move(testContext(), path(t, "f.txt"), path(t, "nowhere/f.txt"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assertContent(t, a, "f.txt", []byte("f"))
}

// ============================================================================
// Copy Tests
// ============================================================================

func (suite *AdapterTestSuite) testCopyFile(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "orig.txt", []byte("twin"))

	require.NoError(t, a.Copy(testContext(), path(t, "orig.txt"), path(t, "copy.txt")))

	assertContent(t, a, "orig.txt", []byte("twin"))
	assertContent(t, a, "copy.txt", []byte("twin"))

	// The copy is independent of the original
	mustWrite(t, a, "orig.txt", []byte("changed"))
	assertContent(t, a, "copy.txt", []byte("twin"))
}

func (suite *AdapterTestSuite) testCopyDirectory(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "album/1.jpg", []byte("one"))
	mustWrite(t, a, "album/more/2.jpg", []byte("two"))
	mustMkdir(t, a, "album/empty")

	require.NoError(t, a.Copy(testContext(), path(t, "album"), path(t, "album copy")))

	assertContent(t, a, "album/1.jpg", []byte("one"))
	assertContent(t, a, "album copy/1.jpg", []byte("one"))
	assertContent(t, a, "album copy/more/2.jpg", []byte("two"))
	assertExists(t, a, "album copy/empty", true)
}

func (suite *AdapterTestSuite) testCopyConflict(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "a.txt", []byte("a"))
	mustWrite(t, a, "b.txt", []byte("b"))

	err := a.Copy(testContext(), path(t, "a.txt"), path(t, "b.txt"))
	assert.ErrorIs(t, err, storage.ErrConflict)
	assertContent(t, a, "b.txt", []byte("b"))
}

func (suite *AdapterTestSuite) testCopyNotFound(t *testing.T) {
	a := suite.newAdapter(t)

	err := a.Copy(testContext(), path(t, "missing"), path(t, "copy"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
