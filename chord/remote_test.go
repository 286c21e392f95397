package chord

import (
	"context"
	"errors"
	"testing"

	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/mocks"
	"go.miragespace.co/dht/spec/protocol"
	rpcSpec "go.miragespace.co/dht/spec/rpc"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockCaller struct {
	mock.Mock
}

func (m *mockCaller) Call(_ context.Context, node *protocol.Node, method string, req, resp protocol.Message) error {
	args := m.Called(node, method, req, resp)
	return args.Error(0)
}

func respondNode(node *protocol.Node) func(mock.Arguments) {
	return func(args mock.Arguments) {
		args.Get(3).(*protocol.NodeResponse).Node = node
	}
}

func getRemote(t *testing.T) (*RemoteNode, *mockCaller, *protocol.Node) {
	peer := &protocol.Node{Host: "10.0.0.1", Port: 1234, Id: 99}
	caller := new(mockCaller)
	return NewRemoteNode(zaptest.NewLogger(t), caller, peer, nil), caller, peer
}

func TestRemoteOperationError(t *testing.T) {
	as := require.New(t)

	r, caller, peer := getRemote(t)

	caller.On("Call", peer, rpcSpec.MethodGetBindings, mock.Anything, mock.Anything).
		Return(chord.ErrKVStaleOwnership)

	_, err := r.GetBindings(context.Background(), "k")
	as.Error(err)
	as.ErrorIs(err, chord.ErrRingOperation)
	as.ErrorIs(err, chord.ErrKVStaleOwnership)
	as.True(chord.ErrorIsRetryable(err))

	var opErr *chord.OperationError
	as.True(errors.As(err, &opErr))
	as.Equal(rpcSpec.MethodGetBindings, opErr.Op)
	as.Equal(peer.GetId(), opErr.Peer.GetId())

	caller.AssertExpectations(t)
}

func TestRemoteResolvesNodes(t *testing.T) {
	as := require.New(t)

	r, caller, peer := getRemote(t)
	succ := &protocol.Node{Host: "10.0.0.2", Port: 1234, Id: 120}

	caller.On("Call", peer, rpcSpec.MethodGetSuccessor, mock.Anything, mock.Anything).
		Run(respondNode(succ)).
		Return(nil)
	caller.On("Call", peer, rpcSpec.MethodGetPredecessor, mock.Anything, mock.Anything).
		Return(nil)
	caller.On("Call", peer, rpcSpec.MethodFindSuccessor, &protocol.IdRequest{Id: 100}, mock.Anything).
		Run(respondNode(succ)).
		Return(nil)

	vnode, err := r.GetSuccessor()
	as.NoError(err)
	as.Equal(succ.GetId(), vnode.ID())
	as.Equal(succ.GetAddress(), vnode.Identity().GetAddress())

	// an unknown predecessor is not an error
	vnode, err = r.GetPredecessor()
	as.NoError(err)
	as.Nil(vnode)

	vnode, err = r.FindSuccessor(100)
	as.NoError(err)
	as.Equal(succ.GetId(), vnode.ID())

	caller.AssertExpectations(t)
}

func TestRemoteMissingSuccessor(t *testing.T) {
	as := require.New(t)

	r, caller, peer := getRemote(t)

	caller.On("Call", peer, rpcSpec.MethodGetSuccessor, mock.Anything, mock.Anything).
		Return(nil)

	_, err := r.GetSuccessor()
	as.ErrorIs(err, chord.ErrNodeNoSuccessor)
	as.ErrorIs(err, chord.ErrRingOperation)
}

func TestRemoteIdentify(t *testing.T) {
	as := require.New(t)

	r, caller, peer := getRemote(t)
	actual := &protocol.Node{Host: "10.0.0.1", Port: 1234, Id: 5}

	caller.On("Call", peer, rpcSpec.MethodIdentity, mock.Anything, mock.Anything).
		Run(respondNode(actual)).
		Return(nil)

	node, err := r.Identify(context.Background())
	as.NoError(err)
	as.Equal(uint64(5), node.GetId())
}

func TestRemoteNilArguments(t *testing.T) {
	as := require.New(t)

	r, caller, _ := getRemote(t)

	_, err := r.Notify(nil)
	as.ErrorIs(err, chord.ErrNodeNil)
	as.ErrorIs(r.ImportBindings(context.Background(), nil), chord.ErrNodeNil)

	caller.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRemoteNotify(t *testing.T) {
	as := require.New(t)

	r, caller, peer := getRemote(t)
	local := &protocol.Node{Host: "10.0.0.3", Port: 1234, Id: 50}

	caller.On("Call", peer, rpcSpec.MethodNotify, &protocol.NotifyRequest{Predecessor: local}, mock.Anything).
		Run(func(args mock.Arguments) {
			resp := args.Get(3).(*protocol.NotifyResponse)
			resp.Adopted = true
			resp.Transfer = &protocol.NodeBindings{
				Info:     peer,
				Bindings: []*protocol.KeyBindings{{Key: "k", Values: []string{"v"}}},
			}
		}).
		Return(nil)

	pre := new(mocks.VNode)
	pre.On("Identity").Return(local)

	resp, err := r.Notify(pre)
	as.NoError(err)
	as.True(resp.GetAdopted())
	as.Len(resp.GetTransfer().GetBindings(), 1)
}
