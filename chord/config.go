package chord

import (
	"errors"
	"time"

	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"
	"go.miragespace.co/dht/spec/rtt"
	"go.miragespace.co/dht/timing"

	"go.uber.org/zap"
)

// RemoteNodeFactory turns the identity of a peer into a handle that can be called.
type RemoteNodeFactory func(*protocol.Node) (chord.VNode, error)

type NodeConfig struct {
	Logger   *zap.Logger
	Identity *protocol.Node
	// Space is the number of identifier bits m. Zero means chord.DefaultBits
	Space chord.Space
	// Store and BackupStore must hash keys with Space.HashString
	Store       chord.BindingStore
	BackupStore chord.BindingStore
	// RemoteNodeFactory is used to reach the successor's successor learned from
	// notify responses. Without it successor failover is disabled
	RemoteNodeFactory        RemoteNodeFactory
	NodesRTT                 rtt.Recorder
	StabilizeInterval        time.Duration
	PredecessorCheckInterval time.Duration
	// RPCTimeout bounds binding transfers initiated by this node
	RPCTimeout time.Duration
	// MaxHops caps a successor lookup. Zero means 2*m
	MaxHops int
}

func (c *NodeConfig) Validate() error {
	if c == nil {
		return errors.New("nil NodeConfig")
	}
	if c.Logger == nil {
		return errors.New("nil Logger")
	}
	if c.Identity == nil {
		return errors.New("nil Identity")
	}
	if c.Space == 0 {
		c.Space = chord.DefaultBits
	}
	if !c.Space.Valid() {
		return errors.New("invalid Space, must be between 1 and 63 bits")
	}
	if c.Identity.GetId() >= c.Space.Size() {
		return errors.New("invalid Identity ID, must be within the identifier space")
	}
	if c.Store == nil {
		return errors.New("nil Store")
	}
	if c.BackupStore == nil {
		return errors.New("nil BackupStore")
	}
	if c.StabilizeInterval <= 0 {
		return errors.New("invalid StabilizeInterval, must be positive")
	}
	if c.PredecessorCheckInterval <= 0 {
		return errors.New("invalid PredecessorCheckInterval, must be positive")
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = timing.ChordRPCTimeout
	}
	if c.MaxHops < 0 {
		return errors.New("invalid MaxHops, must not be negative")
	}
	if c.MaxHops == 0 {
		c.MaxHops = 2 * c.Space.Fingers()
	}
	return nil
}
