package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	root := t.TempDir()
	cfg := &Config{
		Storages: map[string]StorageConfig{
			"zeta":  {Type: "local", Local: map[string]any{"path": filepath.Join(root, "zeta")}},
			"alpha": {Type: "local", Local: map[string]any{"path": filepath.Join(root, "alpha")}},
			"kv":    {Type: "badger", Badger: map[string]any{"in_memory": true}},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestInitializeRegistry(t *testing.T) {
	cfg := testConfig(t)
	cfg.PublicLinks = []PublicLinkConfig{
		{Name: "pub", Storage: "alpha", Path: "shared", URL: "https://cdn.example.com/pub/"},
	}

	reg, err := InitializeRegistry(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	assert.True(t, reg.Sealed())
	assert.Equal(t, []string{"alpha", "kv", "zeta"}, reg.ListStorages())
	assert.Equal(t, "alpha", reg.DefaultStorage())

	link, err := reg.GetLink("pub")
	require.NoError(t, err)
	assert.Equal(t, "alpha", link.Storage)
	assert.Equal(t, "shared", link.Path.String())
	assert.Equal(t, "https://cdn.example.com/pub", link.URL)
}

func TestInitializeRegistry_DefaultStorageFirst(t *testing.T) {
	cfg := testConfig(t)
	cfg.DefaultStorage = "zeta"

	reg, err := InitializeRegistry(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	assert.Equal(t, []string{"zeta", "alpha", "kv"}, reg.ListStorages())
	assert.Equal(t, "zeta", reg.DefaultStorage())
}

func TestInitializeRegistry_Failures(t *testing.T) {
	_, err := InitializeRegistry(context.Background(), nil)
	assert.Error(t, err)

	_, err = InitializeRegistry(context.Background(), &Config{})
	assert.ErrorContains(t, err, "no storages")

	cfg := testConfig(t)
	cfg.Storages["broken"] = StorageConfig{Type: "s3", S3: map[string]any{}}
	_, err = InitializeRegistry(context.Background(), cfg)
	assert.ErrorContains(t, err, `storage "broken"`)

	cfg = testConfig(t)
	cfg.PublicLinks = []PublicLinkConfig{{Name: "pub", Storage: "missing"}}
	_, err = InitializeRegistry(context.Background(), cfg)
	assert.ErrorContains(t, err, "public_links[0]")
}

func TestCreateAdapters(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Limits.MaxUploadSize = 4096
	cfg.RateLimit.RequestsPerSecond = 10

	adapters, err := CreateAdapters(cfg, nil)
	require.NoError(t, err)
	require.Len(t, adapters, 1)
	assert.Equal(t, "HTTP", adapters[0].Protocol())
	assert.Equal(t, DefaultPort, adapters[0].Port())

	fc := FinderConfig(cfg)
	assert.Equal(t, int64(4096), fc.MaxUploadSize)
	assert.Equal(t, cfg.Server.StreamIdleTimeout, fc.StreamIdleTimeout)
	assert.Equal(t, DefaultUnarchiveMaxEntries, fc.Unarchive.MaxEntries)
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	res := InitializeMetrics(GetDefaultConfig())
	assert.Nil(t, res.Server)
	assert.NotNil(t, res.FinderMetrics)
}
