package correlation

import (
	"context"
	"sync"
	"time"
)

// ResultStore is the keyed store responders write answers into.
// Get reports found=false for a missing or expired key.
type ResultStore interface {
	Put(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Delete(ctx context.Context, key string) error
}

// PutHook is notified after every successful MemoryStore.Put.
type PutHook func(key string, data []byte)

// MemoryStore is a process-local ResultStore for single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	hooks   []PutHook

	stopOnce sync.Once
	stop     chan struct{}
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero = no expiry
}

// NewMemoryStore starts a janitor that sweeps expired keys every interval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
	}
	go s.cleanup(cleanupInterval)
	return s
}

// OnPut registers a hook; Registry.ResolveKey is the usual one.
func (s *MemoryStore) OnPut(h PutHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte, ttl time.Duration) error {
	e := memoryEntry{data: append([]byte(nil), data...)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	hooks := append([]PutHook(nil), s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		h(key, e.data)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return nil, false, nil
	}
	return e.data, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len counts stored keys, expired-but-unswept ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the janitor.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for k, e := range s.entries {
				if e.expired(now) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// PollStore re-reads key every interval until it appears, timeout elapses or
// ctx is done. It is the fallback for transports that cannot notify waiters:
// slower than Registry.Await but bound by the same deadline, which also caps
// each individual read. Read errors are treated as "not there yet".
func PollStore(ctx context.Context, store ResultStore, key string, timeout, interval time.Duration) ([]byte, bool) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if data, ok := getWithin(ctx, store, key); ok {
			return data, true
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// getWithin gives up on a Get once ctx is done, even if the store blocks.
func getWithin(ctx context.Context, store ResultStore, key string) ([]byte, bool) {
	type got struct {
		data []byte
		ok   bool
	}
	ch := make(chan got, 1)
	go func() {
		data, ok, err := store.Get(ctx, key)
		ch <- got{data: data, ok: ok && err == nil}
	}()
	select {
	case g := <-ch:
		return g.data, g.ok
	case <-ctx.Done():
		return nil, false
	}
}
