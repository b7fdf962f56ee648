package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittofm/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter blocks in Serve until its context is cancelled, Stop is
// called, or fail is closed.
type fakeAdapter struct {
	protocol string
	port     int

	fail    chan struct{}
	stopped chan struct{}
	once    sync.Once

	mu       sync.Mutex
	registry *registry.Registry
	order    *[]string
}

func newFakeAdapter(protocol string, port int, order *[]string) *fakeAdapter {
	return &fakeAdapter{
		protocol: protocol,
		port:     port,
		fail:     make(chan struct{}),
		stopped:  make(chan struct{}),
		order:    order,
	}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-f.stopped:
		return nil
	case <-f.fail:
		return errors.New("listener broke")
	}
}

func (f *fakeAdapter) SetRegistry(reg *registry.Registry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry = reg
}

func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.once.Do(func() {
		if f.order != nil {
			*f.order = append(*f.order, f.protocol)
		}
		close(f.stopped)
	})
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()
	reg.Seal()
	return reg
}

func TestAddAdapter(t *testing.T) {
	reg := newRegistry(t)
	srv := New(reg)

	a := newFakeAdapter("HTTP", 8080, nil)
	require.NoError(t, srv.AddAdapter(a))
	assert.Same(t, reg, a.registry)

	assert.Error(t, srv.AddAdapter(newFakeAdapter("HTTP", 9000, nil)), "duplicate protocol")
	assert.Error(t, srv.AddAdapter(newFakeAdapter("WebDAV", 8080, nil)), "port conflict")
	assert.Error(t, srv.AddAdapter(nil))

	// Ephemeral ports never conflict.
	require.NoError(t, New(reg).AddAdapter(newFakeAdapter("A", 0, nil)))

	assert.Len(t, srv.Adapters(), 1)
}

func TestServe_NoAdapters(t *testing.T) {
	srv := New(newRegistry(t))
	assert.Error(t, srv.Serve(context.Background()))
}

func TestServe_GracefulShutdown(t *testing.T) {
	var order []string
	srv := New(newRegistry(t))
	require.NoError(t, srv.AddAdapter(newFakeAdapter("first", 1, &order)))
	require.NoError(t, srv.AddAdapter(newFakeAdapter("second", 2, &order)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	assert.Equal(t, []string{"second", "first"}, order)

	assert.ErrorIs(t, srv.Serve(context.Background()), ErrAlreadyServed)
	assert.Error(t, srv.AddAdapter(newFakeAdapter("late", 3, nil)))
}

func TestServe_AdapterFailure(t *testing.T) {
	var order []string
	srv := New(newRegistry(t))
	healthy := newFakeAdapter("healthy", 1, &order)
	broken := newFakeAdapter("broken", 2, &order)
	require.NoError(t, srv.AddAdapter(healthy))
	require.NoError(t, srv.AddAdapter(broken))

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()

	close(broken.fail)
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken adapter error")
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	assert.Equal(t, []string{"broken", "healthy"}, order)
}
