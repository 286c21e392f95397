package chord

import "go.miragespace.co/dht/spec/protocol"

type VNode interface {
	ID() uint64
	Identity() *protocol.Node

	Ping() error
	Notify(predecessor VNode) (*protocol.NotifyResponse, error)

	FindSuccessor(key uint64) (VNode, error)
	ClosestPrecedingFinger(key uint64) (VNode, error)
	GetSuccessor() (VNode, error)
	GetPredecessor() (VNode, error)

	BindingStorage
}
