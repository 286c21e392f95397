package mocks

import (
	"context"

	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"

	"github.com/stretchr/testify/mock"
)

type VNode struct {
	mock.Mock
}

var _ chord.VNode = (*VNode)(nil)

func (n *VNode) ID() uint64 {
	args := n.Called()
	v := args.Get(0)
	return v.(uint64)
}

func (n *VNode) Identity() *protocol.Node {
	args := n.Called()
	v := args.Get(0)
	if v == nil {
		return nil
	}
	return v.(*protocol.Node)
}

func (n *VNode) Ping() error {
	args := n.Called()
	e := args.Error(0)
	return e
}

func (n *VNode) Notify(predecessor chord.VNode) (*protocol.NotifyResponse, error) {
	args := n.Called(predecessor)
	v := args.Get(0)
	e := args.Error(1)
	if v == nil {
		return nil, e
	}
	return v.(*protocol.NotifyResponse), e
}

func (n *VNode) FindSuccessor(key uint64) (chord.VNode, error) {
	args := n.Called(key)
	v := args.Get(0)
	e := args.Error(1)
	if v == nil {
		return nil, e
	}
	return v.(chord.VNode), e
}

func (n *VNode) ClosestPrecedingFinger(key uint64) (chord.VNode, error) {
	args := n.Called(key)
	v := args.Get(0)
	e := args.Error(1)
	if v == nil {
		return nil, e
	}
	return v.(chord.VNode), e
}

func (n *VNode) GetSuccessor() (chord.VNode, error) {
	args := n.Called()
	v := args.Get(0)
	e := args.Error(1)
	if v == nil {
		return nil, e
	}
	return v.(chord.VNode), e
}

func (n *VNode) GetPredecessor() (chord.VNode, error) {
	args := n.Called()
	v := args.Get(0)
	e := args.Error(1)
	if v == nil {
		return nil, e
	}
	return v.(chord.VNode), e
}

func (n *VNode) GetBindings(ctx context.Context, key string) ([]string, error) {
	args := n.Called(ctx, key)
	v := args.Get(0)
	e := args.Error(1)
	if v == nil {
		return nil, e
	}
	return v.([]string), e
}

func (n *VNode) AddBinding(ctx context.Context, key, value string) error {
	args := n.Called(ctx, key, value)
	return args.Error(0)
}

func (n *VNode) DeleteBinding(ctx context.Context, key, value string) error {
	args := n.Called(ctx, key, value)
	return args.Error(0)
}

func (n *VNode) DropBindings(ctx context.Context, predID uint64) error {
	args := n.Called(ctx, predID)
	return args.Error(0)
}

func (n *VNode) ImportBindings(ctx context.Context, bindings *protocol.NodeBindings) error {
	args := n.Called(ctx, bindings)
	return args.Error(0)
}
