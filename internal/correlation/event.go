package correlation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RequestEvent asks the owner of Kind for data about Targets (post ids or
// user ids). Params carries request-specific discriminators such as the
// viewing user or an interaction type.
type RequestEvent struct {
	ID       ID                `json:"id"`
	Kind     Kind              `json:"kind"`
	Targets  []string          `json:"targets"`
	Params   map[string]string `json:"params,omitempty"`
	IssuedAt time.Time         `json:"issued_at"`
}

// Type is the bus routing key, e.g. "comment.requested".
func (e RequestEvent) Type() string { return string(e.Kind) + ".requested" }

// Param returns Params[key] or "".
func (e RequestEvent) Param(key string) string {
	if e.Params == nil {
		return ""
	}
	return e.Params[key]
}

// Publisher emits request events. Delivery and processing are not observed.
type Publisher interface {
	Publish(ctx context.Context, evt RequestEvent) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, evt RequestEvent) error

func (f PublisherFunc) Publish(ctx context.Context, evt RequestEvent) error { return f(ctx, evt) }

// Replier is how a responder hands its answer back to the waiting caller.
type Replier interface {
	Reply(ctx context.Context, id ID, payload any) error
}

// RegistryReplier resolves waiters living in the same process.
type RegistryReplier struct {
	Registry *Registry
}

// Reply resolves id. A reply for an id that already expired is dropped
// silently by the registry and is not an error for the responder.
func (r RegistryReplier) Reply(_ context.Context, id ID, payload any) error {
	r.Registry.Resolve(id, payload)
	return nil
}

// StoreReplier serialises the payload into a ResultStore under DataKey.
type StoreReplier struct {
	Store ResultStore
	TTL   time.Duration
}

func (r StoreReplier) Reply(ctx context.Context, id ID, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s reply: %w", id.Kind(), err)
	}
	return r.Store.Put(ctx, DataKey(id.Kind(), id), data, r.TTL)
}
