package testing

import (
	"bytes"
	"context"
	"testing"

	"github.com/marmos91/dittofm/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWriteTests executes Write tests.
func (suite *AdapterTestSuite) RunWriteTests(t *testing.T) {
	t.Run("Write_Basic", suite.testWriteBasic)
	t.Run("Write_Empty", suite.testWriteEmpty)
	t.Run("Write_CreatesParents", suite.testWriteCreatesParents)
	t.Run("Write_Overwrite", suite.testWriteOverwrite)
	t.Run("Write_ConflictDoesNotConsume", suite.testWriteConflictDoesNotConsume)
	t.Run("Write_IsADirectory", suite.testWriteIsADirectory)
	t.Run("Write_FailedStreamLeavesNothing", suite.testWriteFailedStreamLeavesNothing)
	t.Run("Write_FailedOverwriteKeepsOriginal", suite.testWriteFailedOverwriteKeepsOriginal)
	t.Run("Write_Cancelled", suite.testWriteCancelled)
}

func (suite *AdapterTestSuite) testWriteBasic(t *testing.T) {
	a := suite.newAdapter(t)

	data := []byte("Hello, World!")
	n, err := a.Write(testContext(), path(t, "hello.txt"), bytes.NewReader(data), false)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	assertContent(t, a, "hello.txt", data)
}

func (suite *AdapterTestSuite) testWriteEmpty(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "empty", []byte{})

	assertContent(t, a, "empty", []byte{})
}

func (suite *AdapterTestSuite) testWriteCreatesParents(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "a/b/c/file.txt", []byte("deep"))

	for _, dir := range []string{"a", "a/b", "a/b/c"} {
		e, err := a.Stat(testContext(), path(t, dir))
		require.NoError(t, err, dir)
		assert.True(t, e.IsDir, dir)
	}
	assertContent(t, a, "a/b/c/file.txt", []byte("deep"))
}

func (suite *AdapterTestSuite) testWriteOverwrite(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "f.txt", []byte("old data that is long"))
	mustWrite(t, a, "f.txt", []byte("new"))

	assertContent(t, a, "f.txt", []byte("new"))
}

func (suite *AdapterTestSuite) testWriteConflictDoesNotConsume(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "taken.txt", []byte("original"))

	r := &countingReader{r: bytes.NewReader([]byte("intruder"))}
	_, err := a.Write(testContext(), path(t, "taken.txt"), r, false)

	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, 0, r.reads)
	assertContent(t, a, "taken.txt", []byte("original"))
}

func (suite *AdapterTestSuite) testWriteIsADirectory(t *testing.T) {
	a := suite.newAdapter(t)
	mustMkdir(t, a, "dir")

	_, err := a.Write(testContext(), path(t, "dir"), bytes.NewReader([]byte("x")), true)
	assert.ErrorIs(t, err, storage.ErrIsADirectory)

	e, err := a.Stat(testContext(), path(t, "dir"))
	require.NoError(t, err)
	assert.True(t, e.IsDir)
}

func (suite *AdapterTestSuite) testWriteFailedStreamLeavesNothing(t *testing.T) {
	a := suite.newAdapter(t)
	mustMkdir(t, a, "up")

	_, err := a.Write(testContext(), path(t, "up/partial.bin"), &failingReader{n: 64 * 1024}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)

	assertExists(t, a, "up/partial.bin", false)

	entries, err := a.List(testContext(), path(t, "up"))
	require.NoError(t, err)
	assert.Empty(t, entries, "no temporary artifacts may be visible")
}

func (suite *AdapterTestSuite) testWriteFailedOverwriteKeepsOriginal(t *testing.T) {
	a := suite.newAdapter(t)
	mustWrite(t, a, "keep.txt", []byte("precious"))

	_, err := a.Write(testContext(), path(t, "keep.txt"), &failingReader{n: 10}, true)
	require.Error(t, err)

	assertContent(t, a, "keep.txt", []byte("precious"))
}

func (suite *AdapterTestSuite) testWriteCancelled(t *testing.T) {
	a := suite.newAdapter(t)

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	_, err := a.Write(ctx, path(t, "cancelled.txt"), bytes.NewReader([]byte("data")), false)
	require.Error(t, err)
	assertExists(t, a, "cancelled.txt", false)
}
