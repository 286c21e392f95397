package chord

import (
	"context"

	"go.miragespace.co/dht/spec/protocol"
)

// KV is the client facing view of the ring: operations are routed to the node owning the key.
type KV interface {
	Get(ctx context.Context, key string) (values []string, err error)
	Add(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key, value string) error
}

// BindingStorage operates on the bindings held by one specific node, without routing.
type BindingStorage interface {
	GetBindings(ctx context.Context, key string) (values []string, err error)
	AddBinding(ctx context.Context, key, value string) error
	DeleteBinding(ctx context.Context, key, value string) error

	DropBindings(ctx context.Context, predID uint64) error
	ImportBindings(ctx context.Context, bindings *protocol.NodeBindings) error
}

// BindingStore is the in-memory multimap backing a node. Implementations are not
// required to be safe for concurrent use; LocalNode serializes all access.
type BindingStore interface {
	Get(key string) []string
	Add(key, value string)
	Delete(key, value string)
	Clear()
	Len() int

	// RangeKeys returns keys whose identifier is in (low, high]; low == high returns every key
	RangeKeys(low, high uint64) []string
	Export(keys []string) []*protocol.KeyBindings
	// Import merges with union semantics, so importing the same bindings twice is a no-op
	Import(bindings []*protocol.KeyBindings)
	RemoveKeys(keys []string)
}
