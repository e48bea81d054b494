package correlation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/postboard/pkg/logger"
)

// Result is what a waiter receives. OK is false for the empty result handed
// out on timeout, cancellation, duplicate registration or publish failure.
type Result struct {
	Payload any
	OK      bool
}

// Handle is the completion handle for one registered id.
type Handle struct {
	id     ID
	done   chan struct{}
	result Result
}

func newHandle(id ID) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

// ID returns the correlation id the handle waits on.
func (h *Handle) ID() ID { return h.id }

// Done is closed once the handle is resolved or expired.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the outcome and whether the handle has completed.
func (h *Handle) Result() (Result, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return Result{}, false
	}
}

// complete must be called exactly once, by whoever removed the entry.
func (h *Handle) complete(res Result) {
	h.result = res
	close(h.done)
}

// Registry owns every pending request. Resolve and Expire race for the same
// entry under one mutex; the first to remove it completes the handle.
type Registry struct {
	mu      sync.Mutex
	pending map[ID]*Handle
	log     *zap.Logger
}

// NewRegistry builds an empty registry. A nil logger falls back to the global one.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = logger.L()
	}
	return &Registry{
		pending: make(map[ID]*Handle),
		log:     log.With(zap.String("component", "correlation-registry")),
	}
}

// Register creates the pending entry for id. Registering an id twice is a
// programming error: it is logged and the caller gets an already-completed
// empty handle, while the original entry stays untouched.
func (r *Registry) Register(id ID) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pending[id]; exists {
		r.log.Error("duplicate correlation id registered", zap.String("id", id.String()))
		h := newHandle(id)
		h.complete(Result{})
		return h
	}
	h := newHandle(id)
	r.pending[id] = h
	return h
}

// Resolve completes id with payload. It returns false, and changes nothing,
// when id is unknown, already resolved or already expired.
func (r *Registry) Resolve(id ID, payload any) bool {
	r.mu.Lock()
	h, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
		h.complete(Result{Payload: payload, OK: true})
	}
	r.mu.Unlock()

	if !ok {
		r.log.Debug("ignoring late or duplicate resolve", zap.String("id", id.String()))
	}
	return ok
}

// ResolveKey resolves the id encoded in a result-store key.
func (r *Registry) ResolveKey(key string, data []byte) bool {
	_, id, ok := ParseDataKey(key)
	if !ok {
		r.log.Warn("malformed result key", zap.String("key", key))
		return false
	}
	return r.Resolve(id, json.RawMessage(data))
}

// Expire evicts id and releases its waiter with an empty result. It returns
// false when the entry was already gone.
func (r *Registry) Expire(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
		h.complete(Result{})
	}
	return ok
}

// expireHandle evicts h only while it is still the entry registered for its
// id; a duplicate handle never touches the original.
func (r *Registry) expireHandle(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.pending[h.id]; !ok || cur != h {
		return false
	}
	delete(r.pending, h.id)
	h.complete(Result{})
	return true
}

// Pending reports whether id is still waiting for an answer.
func (r *Registry) Pending(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

// Len is the number of outstanding requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Await blocks until h completes, timeout elapses or ctx is done, whichever
// comes first. It never returns later than the deadline and never fails: on
// expiry the entry is evicted and the empty Result is returned. If a resolve
// lands between the deadline firing and the eviction, its payload wins.
func (r *Registry) Await(ctx context.Context, h *Handle, timeout time.Duration) Result {
	select {
	case <-h.done:
		return h.result
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.result
	case <-timer.C:
	case <-ctx.Done():
	}

	if r.expireHandle(h) {
		r.log.Warn("correlation request timed out",
			zap.String("id", h.id.String()),
			zap.String("kind", h.id.Kind().String()),
			zap.Duration("timeout", timeout),
			zap.NamedError("ctx_err", ctx.Err()),
		)
	}
	<-h.done
	return h.result
}

// AwaitAsync is Await for callers composing several concurrent waits.
func (r *Registry) AwaitAsync(ctx context.Context, h *Handle, timeout time.Duration) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		out <- r.Await(ctx, h, timeout)
	}()
	return out
}
