package finder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/marmos91/dittofm/pkg/archive"
	"github.com/marmos91/dittofm/pkg/registry"
	"github.com/marmos91/dittofm/pkg/storage"
	"github.com/marmos91/dittofm/pkg/storage/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Harness
// ============================================================================

type harness struct {
	t       *testing.T
	handler http.Handler
	local   storage.Adapter
	media   storage.Adapter
}

func newHarness(t *testing.T, config Config) *harness {
	t.Helper()
	return newWrappedHarness(t, config, nil)
}

// newWrappedHarness lets wrap decorate both storages, keyed by name.
func newWrappedHarness(t *testing.T, config Config, wrap func(key string, a storage.Adapter) storage.Adapter) *harness {
	t.Helper()
	ctx := context.Background()

	var localAdapter, mediaAdapter storage.Adapter
	var err error
	localAdapter, err = local.New(ctx, t.TempDir(), nil)
	require.NoError(t, err)
	mediaAdapter, err = local.New(ctx, t.TempDir(), nil)
	require.NoError(t, err)
	if wrap != nil {
		localAdapter = wrap("local", localAdapter)
		mediaAdapter = wrap("media", mediaAdapter)
	}

	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterStorage("local", localAdapter))
	require.NoError(t, reg.RegisterStorage("media", mediaAdapter))

	require.NoError(t, localAdapter.Mkdir(ctx, storage.MustClean("shared")))
	require.NoError(t, reg.AddLink(&registry.PublicLink{
		Name:    "pub",
		Storage: "local",
		Path:    storage.MustClean("shared"),
	}))
	reg.Seal()
	t.Cleanup(func() { _ = reg.Close() })

	return &harness{
		t:       t,
		handler: New(reg, config, nil).Handler(),
		local:   localAdapter,
		media:   mediaAdapter,
	}
}

func (h *harness) put(a storage.Adapter, raw, content string) {
	h.t.Helper()
	_, err := a.Write(context.Background(), storage.MustClean(raw), strings.NewReader(content), true)
	require.NoError(h.t, err)
}

func (h *harness) mkdir(a storage.Adapter, raw string) {
	h.t.Helper()
	require.NoError(h.t, a.Mkdir(context.Background(), storage.MustClean(raw)))
}

func (h *harness) read(a storage.Adapter, raw string) string {
	h.t.Helper()
	r, err := a.Open(context.Background(), storage.MustClean(raw))
	require.NoError(h.t, err)
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	require.NoError(h.t, err)
	return string(data)
}

func (h *harness) exists(a storage.Adapter, raw string) bool {
	h.t.Helper()
	ok, err := a.Exists(context.Background(), storage.MustClean(raw))
	require.NoError(h.t, err)
	return ok
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
	Message string          `json:"message"`
}

type wireNode struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	Basename  string `json:"basename"`
	Extension string `json:"extension"`
	MimeType  string `json:"mime_type"`
	FileSize  int64  `json:"file_size"`
	URL       string `json:"url"`
}

type wireListing struct {
	Adapter  string     `json:"adapter"`
	Storages []string   `json:"storages"`
	Dirname  string     `json:"dirname"`
	Files    []wireNode `json:"files"`
}

func (l wireListing) names() []string {
	names := make([]string, 0, len(l.Files))
	for _, n := range l.Files {
		names = append(names, n.Basename)
	}
	return names
}

func (h *harness) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

// call runs a command and decodes the envelope.
func (h *harness) call(method, query string, body any) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(data)
	}
	rec := h.serve(httptest.NewRequest(method, "/api?"+query, r))

	var env envelope
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

// ok runs a command that must succeed and decodes its data into v.
func (h *harness) ok(method, query string, body any, v any) {
	h.t.Helper()
	rec, env := h.call(method, query, body)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(h.t, StatusOK, env.Status)
	assert.Nil(h.t, env.Error)
	if v != nil {
		require.NoError(h.t, json.Unmarshal(env.Data, v))
	}
}

// fail runs a command that must fail with code and status.
func (h *harness) fail(method, query string, body any, status int, code storage.Code) envelope {
	h.t.Helper()
	rec, env := h.call(method, query, body)
	require.Equal(h.t, status, rec.Code, rec.Body.String())
	require.Equal(h.t, StatusError, env.Status)
	require.NotNil(h.t, env.Error)
	assert.Equal(h.t, string(code), *env.Error)
	return env
}

func items(paths ...string) []map[string]string {
	out := make([]map[string]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, map[string]string{"path": p})
	}
	return out
}

// ============================================================================
// Dispatch
// ============================================================================

func TestDispatch_UnknownCommand(t *testing.T) {
	h := newHarness(t, Config{})

	h.fail(http.MethodGet, "q=format", nil, http.StatusBadRequest, storage.CodeUnsupportedCommand)
	h.fail(http.MethodGet, "", nil, http.StatusBadRequest, storage.CodeBadRequest)
}

func TestDispatch_WrongMethod(t *testing.T) {
	h := newHarness(t, Config{})

	rec, _ := h.call(http.MethodPost, "q=index", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))

	h.fail(http.MethodGet, "q=delete", nil, http.StatusBadRequest, storage.CodeBadRequest)
}

func TestDispatch_UnknownStorage(t *testing.T) {
	h := newHarness(t, Config{})

	h.fail(http.MethodGet, "q=index&adapter=nope", nil, http.StatusNotFound, storage.CodeUnknownStorage)
	h.fail(http.MethodGet, "q=index&path=nope://docs", nil, http.StatusNotFound, storage.CodeUnknownStorage)
}

func TestDispatch_PathTraversal(t *testing.T) {
	h := newHarness(t, Config{})

	env := h.fail(http.MethodGet, "q=index&path=local://../../etc", nil, http.StatusForbidden, storage.CodePathTraversal)
	assert.NotContains(t, env.Message, "/tmp")
}

func TestDispatch_InvalidBody(t *testing.T) {
	h := newHarness(t, Config{MaxJSONBytes: 32})

	rec := h.serve(httptest.NewRequest(http.MethodPost, "/api?q=newfolder", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.serve(httptest.NewRequest(http.MethodPost, "/api?q=newfolder", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.fail(http.MethodPost, "q=newfolder", map[string]string{"name": strings.Repeat("x", 64)},
		http.StatusRequestEntityTooLarge, storage.CodeSizeLimitExceeded)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, Config{})

	rec := h.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

// ============================================================================
// Listing
// ============================================================================

func TestIndex(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "b.txt", "bb")
	h.put(h.local, "a.txt", "a")
	h.mkdir(h.local, "docs")

	var l wireListing
	h.ok(http.MethodGet, "q=index&adapter=local&path=local://", nil, &l)

	assert.Equal(t, "local", l.Adapter)
	assert.Equal(t, []string{"local", "media"}, l.Storages)
	assert.Equal(t, "local://", l.Dirname)
	assert.Equal(t, []string{"docs", "shared", "a.txt", "b.txt"}, l.names())

	docs := l.Files[0]
	assert.Equal(t, "dir", docs.Type)
	assert.Equal(t, "local://docs", docs.Path)

	a := l.Files[2]
	assert.Equal(t, "file", a.Type)
	assert.Equal(t, "txt", a.Extension)
	assert.Equal(t, int64(1), a.FileSize)
	assert.True(t, strings.HasPrefix(a.MimeType, "text/plain"), a.MimeType)
	assert.Empty(t, a.URL)
}

func TestIndex_StorageSelection(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.media, "song.mp3", "la")

	var l wireListing
	h.ok(http.MethodGet, "q=index", nil, &l)
	assert.Equal(t, "local", l.Adapter)

	h.ok(http.MethodGet, "q=index&adapter=media", nil, &l)
	assert.Equal(t, "media", l.Adapter)
	assert.Equal(t, []string{"song.mp3"}, l.names())

	// The key inside path wins over the adapter parameter.
	h.ok(http.MethodGet, "q=index&adapter=local&path=media://", nil, &l)
	assert.Equal(t, "media", l.Adapter)
}

func TestIndex_NotADirectory(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "a.txt", "a")

	h.fail(http.MethodGet, "q=index&path=local://a.txt", nil, http.StatusConflict, storage.CodeNotADirectory)
	h.fail(http.MethodGet, "q=index&path=local://missing", nil, http.StatusNotFound, storage.CodeNotFound)
}

func TestIndex_PublicURL(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "shared/my photo.png", "png")

	var l wireListing
	h.ok(http.MethodGet, "q=index&path=local://shared", nil, &l)

	require.Len(t, l.Files, 1)
	assert.Equal(t, "/public/pub/my%20photo.png", l.Files[0].URL)
}

func TestSubfolders(t *testing.T) {
	h := newHarness(t, Config{})
	h.mkdir(h.local, "docs/b")
	h.mkdir(h.local, "docs/a")
	h.put(h.local, "docs/file.txt", "x")

	var data struct {
		Folders []struct {
			Adapter  string `json:"adapter"`
			Path     string `json:"path"`
			Basename string `json:"basename"`
		} `json:"folders"`
	}
	h.ok(http.MethodGet, "q=subfolders&path=local://docs", nil, &data)

	require.Len(t, data.Folders, 2)
	assert.Equal(t, "a", data.Folders[0].Basename)
	assert.Equal(t, "local://docs/a", data.Folders[0].Path)
	assert.Equal(t, "local", data.Folders[0].Adapter)
	assert.Equal(t, "b", data.Folders[1].Basename)
}

func TestSearch(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "docs/Report.TXT", "1")
	h.put(h.local, "docs/sub/annual-report.md", "2")
	h.put(h.local, "docs/notes.txt", "3")
	h.mkdir(h.local, "docs/reports")

	var l wireListing
	h.ok(http.MethodGet, "q=search&path=local://docs&filter=REPORT", nil, &l)
	assert.Equal(t, []string{"Report.TXT"}, l.names())
	assert.Equal(t, "local://docs", l.Dirname)

	h.ok(http.MethodGet, "q=search&path=local://docs&filter=REPORT&deep=true", nil, &l)
	assert.ElementsMatch(t, []string{"Report.TXT", "annual-report.md"}, l.names())
	for _, n := range l.Files {
		assert.Equal(t, "file", n.Type)
	}

	h.fail(http.MethodGet, "q=search&path=local://docs&deep=maybe", nil, http.StatusBadRequest, storage.CodeBadRequest)
	h.fail(http.MethodGet, "q=search&path=local://docs/notes.txt&deep=1", nil, http.StatusConflict, storage.CodeNotADirectory)
	h.fail(http.MethodGet, "q=search&path=local://docs/notes.txt", nil, http.StatusConflict, storage.CodeNotADirectory)
}

// ============================================================================
// Mutations
// ============================================================================

func TestNewFolder(t *testing.T) {
	h := newHarness(t, Config{})

	var l wireListing
	h.ok(http.MethodPost, "q=newfolder&path=local://", map[string]string{"name": "projects"}, &l)
	assert.Contains(t, l.names(), "projects")
	assert.True(t, h.exists(h.local, "projects"))

	// Creating an existing folder again is not an error.
	h.ok(http.MethodPost, "q=newfolder&path=local://", map[string]string{"name": "projects"}, nil)

	h.put(h.local, "taken", "file")
	h.fail(http.MethodPost, "q=newfolder", map[string]string{"name": "taken"}, http.StatusConflict, storage.CodeConflict)
	h.fail(http.MethodPost, "q=newfolder", map[string]string{"name": "a/b"}, http.StatusBadRequest, storage.CodeBadRequest)
	h.fail(http.MethodPost, "q=newfolder", map[string]string{"name": ".."}, http.StatusBadRequest, storage.CodeBadRequest)
}

func TestNewFile(t *testing.T) {
	h := newHarness(t, Config{})
	h.mkdir(h.local, "docs")

	var l wireListing
	h.ok(http.MethodPost, "q=newfile&path=local://docs", map[string]string{"name": "todo.md"}, &l)
	assert.Equal(t, []string{"todo.md"}, l.names())
	assert.Equal(t, "", h.read(h.local, "docs/todo.md"))

	h.fail(http.MethodPost, "q=newfile&path=local://docs", map[string]string{"name": "todo.md"},
		http.StatusConflict, storage.CodeConflict)
}

func TestSave(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "docs/note.txt", "old")

	var l wireListing
	h.ok(http.MethodPost, "q=save&path=local://docs/note.txt", map[string]string{"content": "new text"}, &l)

	assert.Equal(t, "new text", h.read(h.local, "docs/note.txt"))
	assert.Equal(t, "local://docs", l.Dirname)

	h.fail(http.MethodPost, "q=save&path=local://docs/note.txt", map[string]string{}, http.StatusBadRequest, storage.CodeBadRequest)
	h.fail(http.MethodPost, "q=save&path=local://docs", map[string]string{"content": "x"}, http.StatusConflict, storage.CodeIsADirectory)
}

func TestSave_LargeContent(t *testing.T) {
	h := newHarness(t, Config{})
	content := strings.Repeat("0123456789abcdef", 128*1024) // 2 MiB

	h.ok(http.MethodPost, "q=save&path=local://big.txt", map[string]string{"content": content}, nil)
	assert.Equal(t, content, h.read(h.local, "big.txt"))
}

func TestRename(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "docs/a.txt", "a")
	h.put(h.local, "docs/b.txt", "b")

	var l wireListing
	h.ok(http.MethodPost, "q=rename&path=local://docs",
		map[string]string{"item": "local://docs/a.txt", "name": "c.txt"}, &l)
	assert.Equal(t, []string{"b.txt", "c.txt"}, l.names())
	assert.Equal(t, "a", h.read(h.local, "docs/c.txt"))

	h.fail(http.MethodPost, "q=rename&path=local://docs",
		map[string]string{"item": "local://docs/b.txt", "name": "c.txt"}, http.StatusConflict, storage.CodeConflict)
	h.fail(http.MethodPost, "q=rename&path=local://docs",
		map[string]string{"item": "local://docs/b.txt", "name": "../b.txt"}, http.StatusBadRequest, storage.CodeBadRequest)
	h.fail(http.MethodPost, "q=rename&path=local://docs",
		map[string]string{"item": "local://docs/zzz", "name": "y"}, http.StatusNotFound, storage.CodeNotFound)
}

func TestDelete(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "d/f.txt", "f")
	h.put(h.local, "d/sub/g.txt", "g")
	h.put(h.local, "keep.txt", "k")

	var l wireListing
	h.ok(http.MethodPost, "q=delete&path=local://",
		map[string]any{"items": items("local://d/f.txt", "local://d", "local://d/sub")}, &l)

	assert.False(t, h.exists(h.local, "d"))
	assert.Contains(t, l.names(), "keep.txt")
}

func TestDelete_ValidatesAllItemsFirst(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "a.txt", "a")

	h.fail(http.MethodPost, "q=delete",
		map[string]any{"items": items("local://a.txt", "local://missing.txt")}, http.StatusNotFound, storage.CodeNotFound)
	assert.True(t, h.exists(h.local, "a.txt"))

	h.fail(http.MethodPost, "q=delete", map[string]any{"items": items("local://")}, http.StatusBadRequest, storage.CodeBadRequest)
	h.fail(http.MethodPost, "q=delete", map[string]any{"items": items()}, http.StatusBadRequest, storage.CodeBadRequest)
}

func TestMove_SameStorage(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "a.txt", "a")
	h.put(h.local, "dir/x.txt", "x")
	h.mkdir(h.local, "dest")

	h.ok(http.MethodPost, "q=move&path=local://",
		map[string]any{"item": "local://dest", "items": items("local://a.txt", "local://dir")}, nil)

	assert.False(t, h.exists(h.local, "a.txt"))
	assert.False(t, h.exists(h.local, "dir"))
	assert.Equal(t, "a", h.read(h.local, "dest/a.txt"))
	assert.Equal(t, "x", h.read(h.local, "dest/dir/x.txt"))
}

func TestMove_AcrossStorages(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "proj/readme.md", "hello")
	h.put(h.local, "proj/src/main.go", "package main")
	h.mkdir(h.local, "proj/empty")

	h.ok(http.MethodPost, "q=move&path=local://",
		map[string]any{"item": "media://", "items": items("local://proj")}, nil)

	assert.False(t, h.exists(h.local, "proj"))
	assert.Equal(t, "hello", h.read(h.media, "proj/readme.md"))
	assert.Equal(t, "package main", h.read(h.media, "proj/src/main.go"))
	assert.True(t, h.exists(h.media, "proj/empty"))
}

func TestMove_Rejections(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "a.txt", "local")
	h.put(h.local, "dir/inner/x.txt", "x")
	h.put(h.media, "a.txt", "media")

	// Existing target: nothing moves.
	h.fail(http.MethodPost, "q=move",
		map[string]any{"item": "media://", "items": items("local://dir", "local://a.txt")}, http.StatusConflict, storage.CodeConflict)
	assert.True(t, h.exists(h.local, "dir"))
	assert.False(t, h.exists(h.media, "dir"))
	assert.Equal(t, "media", h.read(h.media, "a.txt"))

	h.fail(http.MethodPost, "q=move",
		map[string]any{"item": "local://dir/inner", "items": items("local://dir")}, http.StatusBadRequest, storage.CodeBadRequest)
	h.fail(http.MethodPost, "q=move",
		map[string]any{"item": "local://a.txt", "items": items("local://dir")}, http.StatusConflict, storage.CodeNotADirectory)
}

// failingAdapter rejects Move from and Write to one path.
type failingAdapter struct {
	storage.Adapter
	failOn storage.Path
}

func (a *failingAdapter) Move(ctx context.Context, from, to storage.Path) error {
	if from == a.failOn {
		return fmt.Errorf("move %q: %w", from.String(), storage.ErrIOFailure)
	}
	return a.Adapter.Move(ctx, from, to)
}

func (a *failingAdapter) Write(ctx context.Context, p storage.Path, r io.Reader, overwrite bool) (int64, error) {
	if p == a.failOn {
		return 0, fmt.Errorf("write %q: %w", p.String(), storage.ErrIOFailure)
	}
	return a.Adapter.Write(ctx, p, r, overwrite)
}

func failOn(key, raw string) func(string, storage.Adapter) storage.Adapter {
	return func(k string, a storage.Adapter) storage.Adapter {
		if k != key {
			return a
		}
		return &failingAdapter{Adapter: a, failOn: storage.MustClean(raw)}
	}
}

func TestMove_RollsBackOnFailure(t *testing.T) {
	h := newWrappedHarness(t, Config{}, failOn("local", "b.txt"))
	h.put(h.local, "a.txt", "a")
	h.put(h.local, "b.txt", "b")
	h.mkdir(h.local, "dest")

	h.fail(http.MethodPost, "q=move",
		map[string]any{"item": "local://dest", "items": items("local://a.txt", "local://b.txt")},
		http.StatusInternalServerError, storage.CodeIOFailure)

	assert.Equal(t, "a", h.read(h.local, "a.txt"))
	assert.Equal(t, "b", h.read(h.local, "b.txt"))
	assert.False(t, h.exists(h.local, "dest/a.txt"))
	assert.False(t, h.exists(h.local, "dest/b.txt"))
}

func TestMove_AcrossStoragesRollsBackOnFailure(t *testing.T) {
	h := newWrappedHarness(t, Config{}, failOn("media", "b.txt"))
	h.put(h.local, "a.txt", "a")
	h.put(h.local, "b.txt", "b")

	h.fail(http.MethodPost, "q=move",
		map[string]any{"item": "media://", "items": items("local://a.txt", "local://b.txt")},
		http.StatusInternalServerError, storage.CodeIOFailure)

	assert.Equal(t, "a", h.read(h.local, "a.txt"))
	assert.Equal(t, "b", h.read(h.local, "b.txt"))
	assert.False(t, h.exists(h.media, "a.txt"))
	assert.False(t, h.exists(h.media, "b.txt"))
}

func TestDuplicate_RemovesCopiesOnFailure(t *testing.T) {
	h := newWrappedHarness(t, Config{}, failOn("media", "b.txt"))
	h.put(h.local, "a.txt", "a")
	h.put(h.local, "b.txt", "b")

	h.fail(http.MethodPost, "q=duplicate",
		map[string]any{"item": "media://", "items": items("local://a.txt", "local://b.txt")},
		http.StatusInternalServerError, storage.CodeIOFailure)

	assert.False(t, h.exists(h.media, "a.txt"))
	assert.True(t, h.exists(h.local, "a.txt"))
}

func TestDuplicate(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "docs/a.txt", "a")
	h.put(h.local, "docs/sub/b.txt", "b")

	h.ok(http.MethodPost, "q=duplicate&path=local://docs", map[string]any{"items": items("local://docs/a.txt")}, nil)
	h.ok(http.MethodPost, "q=duplicate&path=local://docs", map[string]any{"items": items("local://docs/a.txt")}, nil)
	assert.Equal(t, "a", h.read(h.local, "docs/a (1).txt"))
	assert.Equal(t, "a", h.read(h.local, "docs/a (2).txt"))

	var l wireListing
	h.ok(http.MethodPost, "q=duplicate&path=local://docs", map[string]any{"items": items("local://docs/sub")}, &l)
	assert.Contains(t, l.names(), "sub (1)")
	assert.Equal(t, "b", h.read(h.local, "docs/sub (1)/b.txt"))
	assert.Equal(t, "b", h.read(h.local, "docs/sub/b.txt"))
}

func TestDuplicate_AcrossStorages(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "docs/a.txt", "local a")
	h.put(h.media, "a.txt", "media a")

	h.ok(http.MethodPost, "q=duplicate&path=local://docs",
		map[string]any{"item": "media://", "items": items("local://docs/a.txt", "local://docs")}, nil)

	assert.Equal(t, "media a", h.read(h.media, "a.txt"))
	assert.Equal(t, "local a", h.read(h.media, "a (1).txt"))
	assert.Equal(t, "local a", h.read(h.media, "docs/a.txt"))
	assert.Equal(t, "local a", h.read(h.local, "docs/a.txt"))
}

// ============================================================================
// Archives
// ============================================================================

func TestArchiveAndUnarchive(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "work/a.txt", "alpha")
	h.put(h.local, "work/docs/b.txt", "beta")

	var l wireListing
	h.ok(http.MethodPost, "q=archive&path=local://work",
		map[string]any{"name": "bundle", "items": items("local://work/a.txt", "local://work/docs")}, &l)
	assert.Contains(t, l.names(), "bundle.zip")

	h.fail(http.MethodPost, "q=archive&path=local://work",
		map[string]any{"name": "bundle.zip", "items": items("local://work/a.txt")}, http.StatusConflict, storage.CodeConflict)

	var result struct {
		wireListing
		archive.Report
	}
	h.ok(http.MethodPost, "q=unarchive&path=local://work", map[string]any{"item": "local://work/bundle.zip"}, &result)

	assert.Contains(t, result.names(), "bundle")
	assert.ElementsMatch(t, []string{"a.txt", "docs/b.txt"}, result.Extracted)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, "alpha", h.read(h.local, "work/bundle/a.txt"))
	assert.Equal(t, "beta", h.read(h.local, "work/bundle/docs/b.txt"))

	// Extracting again over the same files skips them all.
	h.ok(http.MethodPost, "q=unarchive&path=local://work", map[string]any{"item": "local://work/bundle.zip"}, &result)
	assert.Empty(t, result.Extracted)
	assert.Len(t, result.Skipped, 2)
}

func TestArchive_OtherStorage(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.media, "a.txt", "a")

	h.fail(http.MethodPost, "q=archive&path=local://",
		map[string]any{"name": "x", "items": items("media://a.txt")}, http.StatusBadRequest, storage.CodeBadRequest)
}

func TestUnarchive_LimitKeepsReport(t *testing.T) {
	h := newHarness(t, Config{Unarchive: archive.Limits{MaxEntries: 1}})
	h.put(h.local, "one.txt", "1")
	h.put(h.local, "two.txt", "2")

	h.ok(http.MethodPost, "q=archive",
		map[string]any{"name": "pair", "items": items("local://one.txt", "local://two.txt")}, nil)

	env := h.fail(http.MethodPost, "q=unarchive",
		map[string]any{"item": "local://pair.zip", "destination": "local://out"},
		http.StatusRequestEntityTooLarge, storage.CodeSizeLimitExceeded)

	var report archive.Report
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Len(t, report.Extracted, 1)
	assert.True(t, h.exists(h.local, "out"))
}

func TestUnarchive_NotAZip(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "fake.zip", "definitely not a zip")

	h.fail(http.MethodPost, "q=unarchive", map[string]any{"item": "local://fake.zip"},
		http.StatusBadRequest, storage.CodeBadRequest)
	assert.False(t, h.exists(h.local, "fake"))
}

func TestArchiveStem(t *testing.T) {
	assert.Equal(t, "bundle", archiveStem("bundle.zip"))
	assert.Equal(t, "a.b", archiveStem("a.b.zip"))
	assert.Equal(t, "noext", archiveStem("noext"))
	assert.Equal(t, "archive", archiveStem(".zip"))
}

// ============================================================================
// Streams
// ============================================================================

func uploadRequest(t *testing.T, query string, files map[string]string, order ...string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api?"+query, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "in/a.txt", "existing")

	rec := h.serve(uploadRequest(t, "q=upload&path=local://in",
		map[string]string{"a.txt": "new a", "b.txt": "new b"}, "a.txt", "b.txt"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var data struct {
		wireListing
		Uploads []struct {
			Name  string `json:"name"`
			Path  string `json:"path"`
			Size  int64  `json:"size"`
			Error string `json:"error"`
		} `json:"uploads"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))

	require.Len(t, data.Uploads, 2)
	assert.Equal(t, "in/a (1).txt", data.Uploads[0].Path)
	assert.Equal(t, int64(5), data.Uploads[0].Size)
	assert.Empty(t, data.Uploads[1].Error)
	assert.ElementsMatch(t, []string{"a.txt", "a (1).txt", "b.txt"}, data.names())

	assert.Equal(t, "existing", h.read(h.local, "in/a.txt"))
	assert.Equal(t, "new a", h.read(h.local, "in/a (1).txt"))
}

func TestUpload_Overwrite(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "a.txt", "old")

	rec := h.serve(uploadRequest(t, "q=upload&overwrite=true", map[string]string{"a.txt": "new"}, "a.txt"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "new", h.read(h.local, "a.txt"))
}

func TestUpload_PerFileLimit(t *testing.T) {
	h := newHarness(t, Config{MaxUploadSize: 4})

	rec := h.serve(uploadRequest(t, "q=upload",
		map[string]string{"big.bin": "0123456789", "ok.txt": "1234"}, "big.bin", "ok.txt"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), string(storage.CodeSizeLimitExceeded))

	assert.False(t, h.exists(h.local, "big.bin"))
	assert.Equal(t, "1234", h.read(h.local, "ok.txt"))
}

func TestUpload_NotMultipart(t *testing.T) {
	h := newHarness(t, Config{})

	h.fail(http.MethodPost, "q=upload", map[string]string{"name": "x"}, http.StatusBadRequest, storage.CodeBadRequest)
}

func TestPreviewAndDownload(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "docs/my notes.txt", "hello there")

	rec := h.serve(httptest.NewRequest(http.MethodGet, "/api?q=preview&path=local://docs/my%20notes.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello there", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "inline"))
	assert.Equal(t, "11", rec.Header().Get("Content-Length"))

	rec = h.serve(httptest.NewRequest(http.MethodGet, "/api?q=download&path=local://docs/my%20notes.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="my notes.txt"`, rec.Header().Get("Content-Disposition"))

	h.fail(http.MethodGet, "q=download&path=local://docs", nil, http.StatusConflict, storage.CodeIsADirectory)
	h.fail(http.MethodGet, "q=preview&path=local://docs/none.txt", nil, http.StatusNotFound, storage.CodeNotFound)
}

func TestPublicLink(t *testing.T) {
	h := newHarness(t, Config{})
	h.put(h.local, "shared/sub/page.html", "<p>hi</p>")
	h.put(h.local, "private.txt", "secret")

	rec := h.serve(httptest.NewRequest(http.MethodGet, "/public/pub/sub/page.html", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>hi</p>", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "inline"))

	rec = h.serve(httptest.NewRequest(http.MethodGet, "/public/nope/page.html", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.serve(httptest.NewRequest(http.MethodGet, "/public/pub/sub", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.serve(httptest.NewRequest(http.MethodPost, "/public/pub/sub/page.html", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPruneNested(t *testing.T) {
	loc := func(key, raw string) location {
		return location{key: key, path: storage.MustClean(raw)}
	}

	got := pruneNested([]location{
		loc("local", "a/b"),
		loc("local", "a"),
		loc("media", "a/b"),
		loc("local", "c"),
		loc("local", "c"),
	})

	var names []string
	for _, l := range got {
		names = append(names, l.String())
	}
	assert.Equal(t, []string{"local://a", "media://a/b", "local://c"}, names)
}
