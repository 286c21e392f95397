package chord

import (
	"context"

	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"
	rpcSpec "go.miragespace.co/dht/spec/rpc"
	"go.miragespace.co/dht/timing"

	"go.uber.org/zap"
)

// Caller performs a single remote call. *rpc.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, node *protocol.Node, method string, req, resp protocol.Message) error
}

// RemoteNode is a handle on a peer in another process. Every failure is reported as
// *chord.OperationError naming the peer and the call.
type RemoteNode struct {
	logger   *zap.Logger
	identity *protocol.Node
	caller   Caller
	resolve  RemoteNodeFactory
}

var _ chord.VNode = (*RemoteNode)(nil)

// NewRemoteNode returns a handle on peer. Nodes returned by the peer are turned into
// handles with resolve, falling back to plain RemoteNode when resolve is nil.
func NewRemoteNode(logger *zap.Logger, caller Caller, peer *protocol.Node, resolve RemoteNodeFactory) *RemoteNode {
	r := &RemoteNode{
		logger:   logger.With(zap.Object("peer", peer)),
		identity: peer.CloneVT(),
		caller:   caller,
		resolve:  resolve,
	}
	if r.resolve == nil {
		r.resolve = func(node *protocol.Node) (chord.VNode, error) {
			return NewRemoteNode(logger, caller, node, nil), nil
		}
	}
	return r
}

func (r *RemoteNode) ID() uint64 {
	return r.identity.GetId()
}

func (r *RemoteNode) Identity() *protocol.Node {
	return r.identity
}

func (r *RemoteNode) opError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &chord.OperationError{
		Op:   op,
		Peer: r.identity,
		Err:  err,
	}
}

func (r *RemoteNode) call(ctx context.Context, method string, req, resp protocol.Message) error {
	return r.opError(method, r.caller.Call(ctx, r.identity, method, req, resp))
}

func (r *RemoteNode) nodeCall(method string, req protocol.Message) (chord.VNode, error) {
	resp := &protocol.NodeResponse{}
	if err := r.call(context.Background(), method, req, resp); err != nil {
		return nil, err
	}
	if resp.GetNode() == nil {
		return nil, nil
	}
	vnode, err := r.resolve(resp.GetNode())
	if err != nil {
		return nil, r.opError(method, err)
	}
	return vnode, nil
}

// Identify asks the peer for its identity, used when only the address is known
func (r *RemoteNode) Identify(ctx context.Context) (*protocol.Node, error) {
	resp := &protocol.NodeResponse{}
	if err := r.call(ctx, rpcSpec.MethodIdentity, &protocol.Empty{}, resp); err != nil {
		return nil, err
	}
	if resp.GetNode() == nil {
		return nil, r.opError(rpcSpec.MethodIdentity, chord.ErrNodeNil)
	}
	return resp.GetNode(), nil
}

func (r *RemoteNode) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), timing.ChordPingTimeout)
	defer cancel()

	return r.call(ctx, rpcSpec.MethodPing, &protocol.Empty{}, &protocol.Empty{})
}

func (r *RemoteNode) Notify(predecessor chord.VNode) (*protocol.NotifyResponse, error) {
	if predecessor == nil {
		return nil, chord.ErrNodeNil
	}
	resp := &protocol.NotifyResponse{}
	if err := r.call(context.Background(), rpcSpec.MethodNotify, &protocol.NotifyRequest{
		Predecessor: predecessor.Identity(),
	}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *RemoteNode) FindSuccessor(key uint64) (chord.VNode, error) {
	return r.nodeCall(rpcSpec.MethodFindSuccessor, &protocol.IdRequest{Id: key})
}

func (r *RemoteNode) ClosestPrecedingFinger(key uint64) (chord.VNode, error) {
	return r.nodeCall(rpcSpec.MethodClosestPrecedingFinger, &protocol.IdRequest{Id: key})
}

func (r *RemoteNode) GetSuccessor() (chord.VNode, error) {
	succ, err := r.nodeCall(rpcSpec.MethodGetSuccessor, &protocol.Empty{})
	if err != nil {
		return nil, err
	}
	if succ == nil {
		return nil, r.opError(rpcSpec.MethodGetSuccessor, chord.ErrNodeNoSuccessor)
	}
	return succ, nil
}

func (r *RemoteNode) GetPredecessor() (chord.VNode, error) {
	return r.nodeCall(rpcSpec.MethodGetPredecessor, &protocol.Empty{})
}

func (r *RemoteNode) GetBindings(ctx context.Context, key string) ([]string, error) {
	resp := &protocol.BindingResponse{}
	if err := r.call(ctx, rpcSpec.MethodGetBindings, &protocol.BindingRequest{Key: key}, resp); err != nil {
		return nil, err
	}
	return resp.GetValues(), nil
}

func (r *RemoteNode) AddBinding(ctx context.Context, key, value string) error {
	return r.call(ctx, rpcSpec.MethodAddBinding, &protocol.BindingRequest{Key: key, Value: value}, &protocol.Empty{})
}

func (r *RemoteNode) DeleteBinding(ctx context.Context, key, value string) error {
	return r.call(ctx, rpcSpec.MethodDeleteBinding, &protocol.BindingRequest{Key: key, Value: value}, &protocol.Empty{})
}

func (r *RemoteNode) DropBindings(ctx context.Context, predID uint64) error {
	return r.call(ctx, rpcSpec.MethodDropBindings, &protocol.IdRequest{Id: predID}, &protocol.Empty{})
}

func (r *RemoteNode) ImportBindings(ctx context.Context, bindings *protocol.NodeBindings) error {
	if bindings == nil {
		return chord.ErrNodeNil
	}
	return r.call(ctx, rpcSpec.MethodImportBindings, bindings, &protocol.Empty{})
}
