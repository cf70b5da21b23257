package services

import (
	"appcommerce/authapi"
	"appcommerce/blobstore"
	"appcommerce/docstore"
	"appcommerce/imagecache"
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// ==================== MOCKS ====================

// MockAuthClient is a mock implementation of AuthClient interface
type MockAuthClient struct {
	mock.Mock
}

var _ AuthClient = (*MockAuthClient)(nil)

func (m *MockAuthClient) SignUp(ctx context.Context, email, password string) (authapi.AuthResponse, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(authapi.AuthResponse), args.Error(1)
}

func (m *MockAuthClient) SignInWithPassword(ctx context.Context, email, password string) (authapi.AuthResponse, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(authapi.AuthResponse), args.Error(1)
}

func (m *MockAuthClient) SendOobCode(ctx context.Context, email string) (authapi.OobResponse, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(authapi.OobResponse), args.Error(1)
}

// memPrefs is an in-memory PreferenceStore
type memPrefs struct {
	mu     sync.Mutex
	values map[string]string
}

var _ PreferenceStore = (*memPrefs)(nil)

func newMemPrefs() *memPrefs { return &memPrefs{values: make(map[string]string)} }

func (p *memPrefs) Get(_ context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *memPrefs) Put(_ context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	return nil
}

func (p *memPrefs) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, key)
	return nil
}

// capturingStore hands Subscribe's listener to the test instead of
// delivering anything itself.
type capturingStore struct {
	*docstore.Memory

	mu       sync.Mutex
	listener docstore.Listener
	stopped  bool
}

func (s *capturingStore) Subscribe(_ context.Context, _ docstore.Query, fn docstore.Listener) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
	return func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
	}, nil
}

func (s *capturingStore) deliver(docs []docstore.Document, err error) {
	s.mu.Lock()
	fn := s.listener
	s.mu.Unlock()
	fn(docs, err)
}

func (s *capturingStore) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// blobServer is a Memory blob store reachable over HTTP, with a loader that
// does not touch disk.
type blobServer struct {
	blobs  *blobstore.Memory
	loader *imagecache.Loader
}

func newBlobServer(t *testing.T) *blobServer {
	t.Helper()
	blobs := blobstore.NewMemory("")
	srv := httptest.NewServer(blobs.Handler())
	t.Cleanup(srv.Close)
	blobs.BaseURL = srv.URL

	loader, err := imagecache.NewLoader("", 0, srv.Client(), nil)
	require.NoError(t, err)
	return &blobServer{blobs: blobs, loader: loader}
}
