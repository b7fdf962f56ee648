package registry

import (
	"context"
	"testing"

	"github.com/marmos91/dittofm/pkg/storage"
	"github.com/marmos91/dittofm/pkg/storage/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) storage.Adapter {
	t.Helper()
	a, err := local.New(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	return a
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.RegisterStorage("local", newLocal(t)))
	require.NoError(t, reg.RegisterStorage("media", newLocal(t)))
	return reg
}

func TestRegisterStorage(t *testing.T) {
	reg := newTestRegistry(t)

	assert.Equal(t, []string{"local", "media"}, reg.ListStorages())
	assert.Equal(t, "local", reg.DefaultStorage())
	assert.Equal(t, 2, reg.CountStorages())

	err := reg.RegisterStorage("local", newLocal(t))
	assert.Error(t, err)

	err = reg.RegisterStorage("bad key", newLocal(t))
	assert.Error(t, err)

	err = reg.RegisterStorage("with:colon", newLocal(t))
	assert.Error(t, err)

	err = reg.RegisterStorage("nil", nil)
	assert.Error(t, err)
}

func TestSeal(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Seal()

	assert.True(t, reg.Sealed())
	assert.Error(t, reg.RegisterStorage("late", newLocal(t)))
	assert.Error(t, reg.AddLink(&PublicLink{Name: "late", Storage: "local"}))

	key, _, err := reg.GetStorage("media")
	require.NoError(t, err)
	assert.Equal(t, "media", key)
}

func TestGetStorage(t *testing.T) {
	reg := newTestRegistry(t)

	key, adapter, err := reg.GetStorage("")
	require.NoError(t, err)
	assert.Equal(t, "local", key)
	assert.NotNil(t, adapter)

	_, _, err = reg.GetStorage("missing")
	assert.ErrorIs(t, err, storage.ErrUnknownStorage)

	_, _, err = NewRegistry().GetStorage("")
	assert.ErrorIs(t, err, storage.ErrUnknownStorage)
}

func TestResolve(t *testing.T) {
	reg := newTestRegistry(t)

	key, _, p, err := reg.Resolve("media", "/photos/../cat.jpg")
	require.NoError(t, err)
	assert.Equal(t, "media", key)
	assert.Equal(t, "cat.jpg", p.String())

	_, _, _, err = reg.Resolve("media", "../../etc/passwd")
	assert.ErrorIs(t, err, storage.ErrPathTraversal)

	_, _, _, err = reg.Resolve("nope", "a")
	assert.ErrorIs(t, err, storage.ErrUnknownStorage)
}

func TestResolveURI(t *testing.T) {
	reg := newTestRegistry(t)

	tests := []struct {
		uri     string
		key     string
		path    string
		wantErr error
	}{
		{uri: "media://photos/cat.jpg", key: "media", path: "photos/cat.jpg"},
		{uri: "local://", key: "local", path: ""},
		{uri: "docs/readme.md", key: "local", path: "docs/readme.md"},
		{uri: "unknown://x", wantErr: storage.ErrUnknownStorage},
		{uri: "media://../x", wantErr: storage.ErrPathTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			key, _, p, err := reg.ResolveURI(tt.uri)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.path, p.String())
		})
	}
}

func TestSplitAndFormatURI(t *testing.T) {
	key, raw := SplitURI("media://a/b")
	assert.Equal(t, "media", key)
	assert.Equal(t, "a/b", raw)

	key, raw = SplitURI("a b://c")
	assert.Equal(t, "", key)
	assert.Equal(t, "a b://c", raw)

	assert.Equal(t, "media://a/b", FormatURI("media", storage.MustClean("a/b")))
	assert.Equal(t, "media://", FormatURI("media", storage.Root))
}

func TestPublicLinks(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.AddLink(&PublicLink{Name: "shared", Storage: "local", Path: storage.MustClean("public")}))
	require.NoError(t, reg.AddLink(&PublicLink{Name: "cdn", Storage: "media", Path: storage.Root, URL: "https://cdn.example.com/"}))

	assert.Error(t, reg.AddLink(&PublicLink{Name: "shared", Storage: "local"}))
	assert.Error(t, reg.AddLink(&PublicLink{Name: "other", Storage: "missing"}))

	assert.Equal(t, "/public/shared/a%20b/c.txt", reg.PublicURL("local", storage.MustClean("public/a b/c.txt")))
	assert.Equal(t, "/public/shared", reg.PublicURL("local", storage.MustClean("public")))
	assert.Equal(t, "", reg.PublicURL("local", storage.MustClean("private/c.txt")))
	assert.Equal(t, "https://cdn.example.com/x.png", reg.PublicURL("media", storage.MustClean("x.png")))

	_, p, err := reg.ResolveLink("shared", "a/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "public/a/c.txt", p.String())

	_, _, err = reg.ResolveLink("shared", "../secret.txt")
	assert.ErrorIs(t, err, storage.ErrPathTraversal)

	_, _, err = reg.ResolveLink("missing", "x")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ElementsMatch(t, []string{"shared", "cdn"}, reg.ListLinks())
}

func TestClose(t *testing.T) {
	reg := newTestRegistry(t)
	assert.NoError(t, reg.Close())
}
