package chord

import (
	"context"
	"fmt"

	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"

	"github.com/Yiling-J/theine-go"
	"go.uber.org/zap"
)

const defaultPoolSize = 1024

// NodePool hands out RemoteNode handles keyed by peer identity so routing tables and
// lookups share one handle per peer. Requests for the local node return the local node.
type NodePool struct {
	logger *zap.Logger
	caller Caller
	local  chord.VNode
	cache  *theine.LoadingCache[string, *RemoteNode]
}

// NewNodePool creates a pool holding at most size handles. Handles evicted while still
// referenced keep working, since a RemoteNode holds no connection of its own.
func NewNodePool(logger *zap.Logger, caller Caller, size int64) *NodePool {
	if size <= 0 {
		size = defaultPoolSize
	}
	p := &NodePool{
		logger: logger.With(zap.String("component", "node_pool")),
		caller: caller,
	}
	cache, err := theine.NewBuilder[string, *RemoteNode](size).
		RemovalListener(p.removalListener).
		BuildWithLoader(p.loader)
	if err != nil {
		panic("BUG: " + err.Error())
	}
	p.cache = cache
	return p
}

// Attach registers the node hosted by this process. It must be called before the
// pool is used by that node.
func (p *NodePool) Attach(local chord.VNode) {
	p.local = local
}

func (p *NodePool) Get(node *protocol.Node) (chord.VNode, error) {
	if node == nil {
		return nil, chord.ErrNodeNil
	}
	if p.local != nil && node.GetId() == p.local.ID() {
		return p.local, nil
	}
	r, err := p.cache.Get(context.Background(), node.String())
	if err != nil {
		return nil, fmt.Errorf("loading remote node %s: %w", node, err)
	}
	return r, nil
}

func (p *NodePool) Len() int {
	return p.cache.Len()
}

func (p *NodePool) Close() {
	p.cache.Close()
}

func (p *NodePool) loader(_ context.Context, key string) (theine.Loaded[*RemoteNode], error) {
	node, err := protocol.ParseNode(key)
	if err != nil {
		return theine.Loaded[*RemoteNode]{}, err
	}
	return theine.Loaded[*RemoteNode]{
		Value: NewRemoteNode(p.logger, p.caller, node, p.Get),
		Cost:  1,
	}, nil
}

func (p *NodePool) removalListener(key string, _ *RemoteNode, reason theine.RemoveReason) {
	var reasonStr string
	switch reason {
	case theine.EVICTED:
		reasonStr = "evicted"
	case theine.EXPIRED:
		reasonStr = "expired"
	case theine.REMOVED:
		reasonStr = "removed"
	default:
		reasonStr = "unknown"
	}
	p.logger.Debug("Remote node handle removed", zap.String("peer", key), zap.String("reason", reasonStr))
}
