package authclient

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/authclient/authtest"
	"github.com/MrEthical07/authclient/navigation"
	"github.com/MrEthical07/authclient/storage"
)

const (
	testUser     = "alice"
	testPassword = "correct-password-123"
)

type harness struct {
	client *Client
	server *authtest.Server
	nav    *navigation.Recorder
	store  *storage.Memory
}

func credentials(username, password string) map[string]string {
	return map[string]string{"username": username, "password": password}
}

func newHarness(t *testing.T, serverOpts []authtest.Option, configure ...func(*Builder)) *harness {
	t.Helper()

	opts := append([]authtest.Option{authtest.WithUser(testUser, testPassword)}, serverOpts...)
	srv := authtest.NewServer(opts...)
	t.Cleanup(srv.Close)

	h := &harness{
		server: srv,
		nav:    &navigation.Recorder{},
		store:  storage.NewMemory(),
	}
	b := New().
		WithBaseURL(srv.URL).
		WithStorage(h.store).
		WithNavigator(h.nav).
		WithMetricsEnabled(true)
	for _, fn := range configure {
		fn(b)
	}

	client, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(client.Close)
	h.client = client
	return h
}

func (h *harness) login(t *testing.T) Session {
	t.Helper()
	s, err := h.client.Login(context.Background(), credentials(testUser, testPassword))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return s
}

func (h *harness) storedKeys(t *testing.T) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, key := range sessionKeys {
		v, ok, err := h.store.Get(context.Background(), key)
		if err != nil {
			t.Fatalf("storage get %s: %v", key, err)
		}
		if ok {
			out[key] = v
		}
	}
	return out
}

func (h *harness) assertSignedOut(t *testing.T) {
	t.Helper()
	if h.client.IsAuthenticated() {
		t.Fatal("expected session to be cleared")
	}
	if h.client.RefreshToken() != "" {
		t.Fatal("expected refresh token to be cleared")
	}
	if keys := h.storedKeys(t); len(keys) != 0 {
		t.Fatalf("expected empty storage, got %v", keys)
	}
}

// failingStore refuses every write.
type failingStore struct {
	*storage.Memory
	mu     sync.Mutex
	writes int
}

var errStoreDown = errors.New("store down")

func (s *failingStore) Apply(context.Context, storage.Batch) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return errStoreDown
}

func (s *failingStore) Set(context.Context, string, string) error {
	return errStoreDown
}

func (s *failingStore) Delete(context.Context, ...string) error {
	return errStoreDown
}
