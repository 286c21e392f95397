package chord

import (
	"context"

	"go.miragespace.co/dht/spec/chord"
)

type successorFinder interface {
	FindSuccessor(key uint64) (chord.VNode, error)
}

func findOwner(finder successorFinder, space chord.Space, key string) (chord.VNode, error) {
	owner, err := finder.FindSuccessor(space.HashString(key))
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, chord.ErrNodeNoSuccessor
	}
	return owner, nil
}

func routedGet(ctx context.Context, finder successorFinder, space chord.Space, key string) ([]string, error) {
	owner, err := findOwner(finder, space, key)
	if err != nil {
		return nil, err
	}
	return owner.GetBindings(ctx, key)
}

func routedAdd(ctx context.Context, finder successorFinder, space chord.Space, key, value string) error {
	owner, err := findOwner(finder, space, key)
	if err != nil {
		return err
	}
	return owner.AddBinding(ctx, key, value)
}

func routedDelete(ctx context.Context, finder successorFinder, space chord.Space, key, value string) error {
	owner, err := findOwner(finder, space, key)
	if err != nil {
		return err
	}
	return owner.DeleteBinding(ctx, key, value)
}

// RoutedKV serves KV operations through an entry node that is not hosted by this
// process: the owner of a key is located with the entry's FindSuccessor and called directly.
type RoutedKV struct {
	Entry chord.VNode
	Space chord.Space
}

var _ chord.KV = (*RoutedKV)(nil)

func NewRoutedKV(entry chord.VNode, space chord.Space) *RoutedKV {
	if entry == nil {
		panic("BUG: nil entry node")
	}
	if !space.Valid() {
		panic("BUG: invalid identifier space")
	}
	return &RoutedKV{
		Entry: entry,
		Space: space,
	}
}

func (r *RoutedKV) Get(ctx context.Context, key string) ([]string, error) {
	return routedGet(ctx, r.Entry, r.Space, key)
}

func (r *RoutedKV) Add(ctx context.Context, key, value string) error {
	return routedAdd(ctx, r.Entry, r.Space, key, value)
}

func (r *RoutedKV) Delete(ctx context.Context, key, value string) error {
	return routedDelete(ctx, r.Entry, r.Space, key, value)
}
