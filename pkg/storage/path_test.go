package storage

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"/", ""},
		{".", ""},
		{"a", "a"},
		{"/a/b/", "a/b"},
		{"a//b", "a/b"},
		{"./a/./b", "a/b"},
		{"a/../b", "b"},
		{"a/b/../../c", "c"},
		{`a\b`, "a/b"},
		{"%2e%2e/x", "%2e%2e/x"},
		{"...", "..."},
		{"a/..b", "a/..b"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p, err := Clean(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
		})
	}
}

func TestClean_Traversal(t *testing.T) {
	inputs := []string{
		"..",
		"../",
		"/..",
		"../etc/passwd",
		"a/../../b",
		"a/b/../../../c",
		`..\..\windows`,
		`a\..\..\b`,
		"./../x",
		"//../x",
		"a/./../..",
	}

	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			_, err := Clean(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPathTraversal)
			assert.Equal(t, CodePathTraversal, ErrorCode(err))
		})
	}
}

func TestClean_NeverEscapes(t *testing.T) {
	// Every combination of segments either resolves to a contained path or
	// fails with ErrPathTraversal.
	segments := []string{"..", ".", "a", "", `..\`, "b/..", "../a"}
	for _, s1 := range segments {
		for _, s2 := range segments {
			for _, s3 := range segments {
				raw := strings.Join([]string{s1, s2, s3}, "/")
				p, err := Clean(raw)
				if err != nil {
					assert.ErrorIs(t, err, ErrPathTraversal, raw)
					continue
				}
				for _, seg := range p.Segments() {
					assert.NotEqual(t, "..", seg, raw)
				}
				assert.False(t, strings.HasPrefix(p.String(), "/"), raw)
			}
		}
	}
}

func TestClean_NulByte(t *testing.T) {
	_, err := Clean("a\x00b")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestPath_Join(t *testing.T) {
	base := MustClean("dest")

	p, err := base.Join("sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "dest/sub/file.txt", p.String())
	assert.True(t, p.Within(base))

	p, err = base.Join("/abs/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "dest/abs/file.txt", p.String())

	_, err = base.Join("../../evil.txt")
	assert.ErrorIs(t, err, ErrPathTraversal)

	_, err = base.Join("ok/../../evil.txt")
	assert.ErrorIs(t, err, ErrPathTraversal)

	p, err = base.Join("")
	require.NoError(t, err)
	assert.Equal(t, base, p)
}

func TestPath_Accessors(t *testing.T) {
	p := MustClean("docs/report.final.PDF")

	assert.Equal(t, "report.final.PDF", p.Base())
	assert.Equal(t, "PDF", p.Ext())
	assert.Equal(t, "docs", p.Parent().String())
	assert.True(t, p.Parent().Parent().IsRoot())
	assert.True(t, Root.Parent().IsRoot())
	assert.Equal(t, "", Root.Base())
	assert.Equal(t, []string{"docs", "report.final.PDF"}, p.Segments())
	assert.Equal(t, "docs/x", MustClean("docs").Child("x").String())
}

func TestPath_Within(t *testing.T) {
	assert.True(t, MustClean("a/b").Within(MustClean("a")))
	assert.True(t, MustClean("a").Within(MustClean("a")))
	assert.True(t, MustClean("a").Within(Root))
	assert.False(t, MustClean("ab").Within(MustClean("a")))
	assert.False(t, MustClean("a").Within(MustClean("a/b")))

	rel, ok := MustClean("a/b/c").Rel(MustClean("a"))
	assert.True(t, ok)
	assert.Equal(t, "b/c", rel)

	_, ok = MustClean("x").Rel(MustClean("a"))
	assert.False(t, ok)
}

func TestCheckMoveTarget(t *testing.T) {
	assert.ErrorIs(t, CheckMoveTarget(Root, MustClean("x")), ErrBadRequest)
	assert.ErrorIs(t, CheckMoveTarget(MustClean("a"), MustClean("a/b")), ErrBadRequest)
	assert.NoError(t, CheckMoveTarget(MustClean("a"), MustClean("ab")))

	assert.NoError(t, CheckRename(MustClean("d/a"), MustClean("d/b")))
	assert.ErrorIs(t, CheckRename(MustClean("d/a"), MustClean("e/b")), ErrBadRequest)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		code   Code
		status int
	}{
		{fmt.Errorf("x: %w", ErrNotFound), CodeNotFound, 404},
		{fmt.Errorf("x: %w", ErrConflict), CodeConflict, 409},
		{fmt.Errorf("x: %w", ErrSizeLimitExceeded), CodeSizeLimitExceeded, 413},
		{fmt.Errorf("x: %w", ErrPathTraversal), CodePathTraversal, 403},
		{fmt.Errorf("x: %w", ErrUnknownStorage), CodeUnknownStorage, 404},
		{fmt.Errorf("boom"), CodeIOFailure, 500},
	}

	for _, tt := range tests {
		code, status := Classify(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}

func TestMimeTypeByName(t *testing.T) {
	assert.Equal(t, "image/png", MimeTypeByName("photo.PNG"))
	assert.Equal(t, DefaultMimeType, MimeTypeByName("noext"))
	assert.Equal(t, DefaultMimeType, MimeTypeByName("a.unknownext"))
}
