package chord

import (
	"fmt"
	"sync"
	"time"

	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// LocalNode is a ring member hosted by this process. A single mutex guards the
// routing table, the bindings and the backup copy; it is never held across a call
// to another node.
type LocalNode struct {
	NodeConfig
	logger *zap.Logger
	state  *nodeState

	mu          sync.Mutex
	predecessor chord.VNode
	successor   chord.VNode
	fingers     []chord.VNode
	bindings    chord.BindingStore
	backup      chord.BindingStore
	backupSucc  *protocol.Node

	lastStabilized *atomic.Time

	stopCh   chan struct{}
	stopWg   sync.WaitGroup
	stopOnce sync.Once
}

var _ chord.VNode = (*LocalNode)(nil)
var _ chord.KV = (*LocalNode)(nil)

func NewLocalNode(conf NodeConfig) *LocalNode {
	if err := conf.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid NodeConfig: %s", err))
	}
	n := &LocalNode{
		NodeConfig:     conf,
		logger:         conf.Logger,
		state:          newNodeState(chord.Inactive),
		fingers:        make([]chord.VNode, conf.Space.Fingers()),
		bindings:       conf.Store,
		backup:         conf.BackupStore,
		lastStabilized: atomic.NewTime(time.Time{}),
		stopCh:         make(chan struct{}),
	}
	n.successor = n
	for i := range n.fingers {
		n.fingers[i] = n
	}

	return n
}

func (n *LocalNode) ID() uint64 {
	return n.NodeConfig.Identity.GetId()
}

func (n *LocalNode) Identity() *protocol.Node {
	return n.NodeConfig.Identity
}

func (n *LocalNode) State() chord.State {
	return n.state.Get()
}

func (n *LocalNode) checkNodeState() error {
	switch n.state.Get() {
	case chord.Inactive:
		return chord.ErrNodeNotStarted
	case chord.Leaving, chord.Left:
		return chord.ErrNodeGone
	default:
		return nil
	}
}

func (n *LocalNode) Ping() error {
	return n.checkNodeState()
}

func (n *LocalNode) GetPredecessor() (chord.VNode, error) {
	if err := n.checkNodeState(); err != nil {
		return nil, err
	}
	return n.getPredecessor(), nil
}

func (n *LocalNode) GetSuccessor() (chord.VNode, error) {
	if err := n.checkNodeState(); err != nil {
		return nil, err
	}
	return n.getSuccessor(), nil
}

func (n *LocalNode) getPredecessor() chord.VNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.predecessor
}

func (n *LocalNode) setPredecessor(pre chord.VNode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.predecessor = pre
}

func (n *LocalNode) getSuccessor() chord.VNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.successor
}

// setSuccessor also updates finger[0], which always mirrors the successor
func (n *LocalNode) setSuccessor(succ chord.VNode) {
	if succ == nil {
		panic("BUG: successor cannot be nil")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successor = succ
	n.fingers[0] = succ
}

func (n *LocalNode) getBackupSucc() *protocol.Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.backupSucc
}

func (n *LocalNode) checkFingerIndex(i int) {
	if i < 0 || i >= len(n.fingers) {
		panic(fmt.Sprintf("finger index %d out of range [0, %d)", i, len(n.fingers)))
	}
}

func (n *LocalNode) Finger(i int) chord.VNode {
	n.checkFingerIndex(i)
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fingers[i]
}

func (n *LocalNode) SetFinger(i int, node chord.VNode) {
	n.checkFingerIndex(i)
	if i == 0 {
		n.setSuccessor(node)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fingers[i] = node
}

func (n *LocalNode) fingerRange(fn func(i int, f chord.VNode) bool) {
	n.mu.Lock()
	fingers := make([]chord.VNode, len(n.fingers))
	copy(fingers, n.fingers)
	n.mu.Unlock()

	for i, f := range fingers {
		if f == nil {
			continue
		}
		if !fn(i, f) {
			return
		}
	}
}

// resolve returns a callable handle for the given identity, preferring ourselves
func (n *LocalNode) resolve(node *protocol.Node) (chord.VNode, error) {
	if node == nil {
		return nil, chord.ErrNodeNil
	}
	if node.GetId() == n.ID() {
		return n, nil
	}
	if n.RemoteNodeFactory == nil {
		return nil, fmt.Errorf("no remote node factory to reach %s", node)
	}
	return n.RemoteNodeFactory(node)
}
