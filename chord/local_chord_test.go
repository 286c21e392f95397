package chord

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"testing"
	"time"

	"go.miragespace.co/dht/kv/memory"
	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/mocks"
	"go.miragespace.co/dht/spec/protocol"
	"go.miragespace.co/dht/util/testcond"

	"github.com/stretchr/testify/require"
	"github.com/zhangyunhao116/skipmap"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const (
	testStabilizeInterval = time.Millisecond * 20
	testPredecessorCheck  = time.Millisecond * 40
	waitInterval          = time.Millisecond * 50
	waitTimeout           = time.Second * 15
)

// registry resolves identities to in-process nodes, standing in for a NodePool
type registry struct {
	nodes *skipmap.Uint64Map[*LocalNode]
}

func newRegistry() *registry {
	return &registry{
		nodes: skipmap.NewUint64[*LocalNode](),
	}
}

func (r *registry) factory(node *protocol.Node) (chord.VNode, error) {
	n, ok := r.nodes.Load(node.GetId())
	if !ok {
		return nil, chord.ErrNodeGone
	}
	return n, nil
}

func devConfig(t *testing.T, reg *registry, space chord.Space, id uint64) NodeConfig {
	if space == 0 {
		space = chord.DefaultBits
	}
	return NodeConfig{
		Logger: zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)).With(zap.Uint64("node", id)),
		Identity: &protocol.Node{
			Host: "127.0.0.1",
			Port: 10000 + uint32(id%50000),
			Id:   id,
		},
		Space:                    space,
		Store:                    memory.WithHashFn(space.HashString),
		BackupStore:              memory.WithHashFn(space.HashString),
		RemoteNodeFactory:        reg.factory,
		StabilizeInterval:        testStabilizeInterval,
		PredecessorCheckInterval: testPredecessorCheck,
		RPCTimeout:               time.Second,
	}
}

func newTestNode(t *testing.T, reg *registry, space chord.Space, id uint64) *LocalNode {
	n := NewLocalNode(devConfig(t, reg, space, id))
	reg.nodes.Store(id, n)
	t.Cleanup(n.Stop)
	return n
}

// activeNode returns a node that answers calls without running background tasks,
// so tests can wire its routing table by hand
func activeNode(t *testing.T, reg *registry, space chord.Space, id uint64) *LocalNode {
	n := newTestNode(t, reg, space, id)
	n.state.Set(chord.Active)
	return n
}

func uniqueIDs(space chord.Space, num int) []uint64 {
	seen := make(map[uint64]bool)
	ids := make([]uint64, 0, num)
	for len(ids) < num {
		id := rand.Uint64() % space.Size()
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func sortNodes(nodes []*LocalNode) []*LocalNode {
	sorted := make([]*LocalNode, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID() < sorted[j].ID()
	})
	return sorted
}

// makeRing creates a ring of num nodes and returns them sorted by identifier once
// every pointer has converged
func makeRing(t *testing.T, as *require.Assertions, reg *registry, num int) []*LocalNode {
	nodes := make([]*LocalNode, 0, num)
	for _, id := range uniqueIDs(chord.DefaultBits, num) {
		nodes = append(nodes, newTestNode(t, reg, chord.DefaultBits, id))
	}

	as.NoError(nodes[0].Create())
	for i := 1; i < num; i++ {
		as.NoError(nodes[i].Join(nodes[0]))
	}

	nodes = sortNodes(nodes)
	waitRing(as, nodes)

	return nodes
}

func ringCorrect(nodes []*LocalNode) bool {
	sorted := sortNodes(nodes)
	if len(sorted) == 1 {
		return sorted[0].getSuccessor().ID() == sorted[0].ID()
	}
	for i, n := range sorted {
		next := sorted[(i+1)%len(sorted)]
		prev := sorted[(i+len(sorted)-1)%len(sorted)]
		if n.getSuccessor().ID() != next.ID() {
			return false
		}
		pre := n.getPredecessor()
		if pre == nil || pre.ID() != prev.ID() {
			return false
		}
	}
	return true
}

func waitRing(as *require.Assertions, nodes []*LocalNode) {
	as.NoError(testcond.WaitForCondition(func() bool {
		return ringCorrect(nodes)
	}, waitInterval, waitTimeout), "ring did not converge")
	RingCheck(as, nodes)
}

func RingCheck(as *require.Assertions, nodes []*LocalNode) {
	sorted := sortNodes(nodes)
	if len(sorted) == 0 {
		return
	}
	// counter clockwise
	for i := 0; i < len(sorted)-1; i++ {
		as.Equal(sorted[i].ID(), sorted[i+1].getPredecessor().ID())
	}
	// clockwise
	for i := 0; i < len(sorted)-1; i++ {
		as.Equal(sorted[i+1].ID(), sorted[i].getSuccessor().ID())
	}
	as.Equal(sorted[0].ID(), sorted[len(sorted)-1].getSuccessor().ID())
}

// expectedSuccessor is the first node at or after id in sorted
func expectedSuccessor(sorted []*LocalNode, id uint64) uint64 {
	for _, n := range sorted {
		if n.ID() >= id {
			return n.ID()
		}
	}
	return sorted[0].ID()
}

func nodeByID(nodes []*LocalNode, id uint64) *LocalNode {
	for _, n := range nodes {
		if n.ID() == id {
			return n
		}
	}
	panic("no node with id " + strconv.FormatUint(id, 10))
}

func TestMain(m *testing.M) {
	var (
		seed int64
		err  error
	)
	if os.Getenv("RAND") == "" {
		seed = time.Now().Unix()
	} else {
		seed, err = strconv.ParseInt(os.Getenv("RAND"), 10, 64)
		if err != nil {
			panic(err)
		}
	}
	log.Printf(" ========== Using %d as seed in this test ==========\n", seed)
	rand.Seed(seed)
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreAnyFunction("github.com/Yiling-J/theine-go/internal.(*Store[...]).maintenance"),
	)
}

func TestCreate(t *testing.T) {
	as := require.New(t)

	reg := newRegistry()
	n1 := newTestNode(t, reg, 0, 42)

	_, err := n1.GetSuccessor()
	as.ErrorIs(err, chord.ErrNodeNotStarted)

	as.NoError(n1.Create())
	as.ErrorIs(n1.Create(), chord.ErrJoinInvalidState)
	as.Equal(chord.Active, n1.State())

	<-time.After(waitInterval)

	RingCheck(as, []*LocalNode{n1})
	as.Nil(n1.getPredecessor())

	for _, target := range []uint64{0, 41, 42, 43, chord.DefaultBits.Size() - 1} {
		succ, err := n1.FindSuccessor(target)
		as.NoError(err)
		as.Equal(n1.ID(), succ.ID())
	}

	as.NoError(n1.Leave())
	as.Equal(chord.Left, n1.State())
	as.ErrorIs(n1.Ping(), chord.ErrNodeGone)
	as.ErrorIs(n1.Leave(), chord.ErrLeaveInvalidState)
	as.Equal([]chord.State{chord.Inactive, chord.Joining, chord.Active, chord.Leaving, chord.Left}, n1.state.History())
}

func TestJoin(t *testing.T) {
	as := require.New(t)

	reg := newRegistry()
	n2 := newTestNode(t, reg, 0, 100)
	as.NoError(n2.Create())

	n1 := newTestNode(t, reg, 0, 200)
	as.NoError(n1.Join(n2))
	as.ErrorIs(n1.Join(n2), chord.ErrJoinInvalidState)

	waitRing(as, []*LocalNode{n1, n2})
}

func TestJoinDuplicateID(t *testing.T) {
	as := require.New(t)

	reg := newRegistry()
	n1 := newTestNode(t, reg, 0, 100)
	as.NoError(n1.Create())

	dup := NewLocalNode(devConfig(t, reg, 0, 100))
	t.Cleanup(dup.Stop)

	as.ErrorIs(dup.Join(n1), chord.ErrDuplicateJoinerID)
	as.Equal(chord.Inactive, dup.State())
}

func TestFingerIndexPanics(t *testing.T) {
	as := require.New(t)

	reg := newRegistry()
	n := newTestNode(t, reg, chord.Space(4), 0)

	as.Panics(func() {
		n.Finger(4)
	})
	as.Panics(func() {
		n.SetFinger(-1, n)
	})
	as.NotPanics(func() {
		n.Finger(3)
	})
}

func TestSetFingerZeroIsSuccessor(t *testing.T) {
	as := require.New(t)

	reg := newRegistry()
	space := chord.Space(4)
	n := activeNode(t, reg, space, 0)
	other := activeNode(t, reg, space, 5)

	n.SetFinger(0, other)
	as.Equal(other.ID(), n.getSuccessor().ID())
	as.Equal(other.ID(), n.Finger(0).ID())
}

func TestClosestPrecedingFinger(t *testing.T) {
	as := require.New(t)

	reg := newRegistry()
	space := chord.Space(4)

	n := activeNode(t, reg, space, 0)
	for i, id := range []uint64{1, 2, 4, 8} {
		n.SetFinger(i, activeNode(t, reg, space, id))
	}

	tables := []struct {
		target uint64
		expect uint64
	}{
		{target: 7, expect: 4},
		{target: 9, expect: 8},
		{target: 8, expect: 4},
		{target: 2, expect: 1},
		// nothing lies strictly between us and 1
		{target: 1, expect: 0},
		// the whole ring precedes ourselves
		{target: 0, expect: 8},
	}

	for _, table := range tables {
		t.Run(fmt.Sprintf("target %d", table.target), func(t *testing.T) {
			as := require.New(t)
			f, err := n.ClosestPrecedingFinger(table.target)
			as.NoError(err)
			as.Equal(table.expect, f.ID())
		})
	}

	// fingers that lie past target are never returned
	for target := uint64(0); target < space.Size(); target++ {
		f, err := n.ClosestPrecedingFinger(target)
		as.NoError(err)
		if f.ID() != n.ID() {
			as.True(chord.BetweenStrict(n.ID(), f.ID(), target))
		}
	}
}

func TestFindSuccessorTwoNodes(t *testing.T) {
	as := require.New(t)

	reg := newRegistry()
	space := chord.Space(4)

	a := activeNode(t, reg, space, 0)
	b := activeNode(t, reg, space, 8)

	for i := 0; i < space.Fingers(); i++ {
		a.SetFinger(i, b)
		b.SetFinger(i, a)
	}
	a.setPredecessor(b)
	b.setPredecessor(a)

	for _, entry := range []*LocalNode{a, b} {
		succ, err := entry.FindSuccessor(10)
		as.NoError(err)
		as.Equal(a.ID(), succ.ID())

		succ, err = entry.FindSuccessor(8)
		as.NoError(err)
		as.Equal(b.ID(), succ.ID())

		succ, err = entry.FindSuccessor(3)
		as.NoError(err)
		as.Equal(b.ID(), succ.ID())

		succ, err = entry.FindSuccessor(0)
		as.NoError(err)
		as.Equal(a.ID(), succ.ID())
	}
}

func TestFindSuccessorStaleFinger(t *testing.T) {
	as := require.New(t)

	reg := newRegistry()
	space := chord.Space(4)

	n := activeNode(t, reg, space, 0)
	b := activeNode(t, reg, space, 4)
	c := activeNode(t, reg, space, 8)
	gone := newTestNode(t, reg, space, 12)
	gone.state.Set(chord.Left)

	n.SetFinger(0, b)
	n.SetFinger(1, b)
	n.SetFinger(2, b)
	n.SetFinger(3, gone)
	b.SetFinger(0, c)
	c.SetFinger(0, n)

	succ, err := n.FindSuccessor(13)
	as.NoError(err)
	as.Equal(n.ID(), succ.ID())
}

func TestFindSuccessorHopLimit(t *testing.T) {
	as := require.New(t)

	reg := newRegistry()
	space := chord.Space(4)

	conf := devConfig(t, reg, space, 0)
	conf.MaxHops = 5
	n := NewLocalNode(conf)
	n.state.Set(chord.Active)
	t.Cleanup(n.Stop)

	// x and y keep pointing at each other while their successors never cover the target
	x := new(mocks.VNode)
	y := new(mocks.VNode)
	xSucc := new(mocks.VNode)
	ySucc := new(mocks.VNode)

	x.On("ID").Return(uint64(1))
	xSucc.On("ID").Return(uint64(2))
	y.On("ID").Return(uint64(3))
	ySucc.On("ID").Return(uint64(4))

	x.On("GetSuccessor").Return(xSucc, nil)
	x.On("ClosestPrecedingFinger", uint64(10)).Return(y, nil)
	y.On("GetSuccessor").Return(ySucc, nil)
	y.On("ClosestPrecedingFinger", uint64(10)).Return(x, nil)

	for i := 0; i < space.Fingers(); i++ {
		n.SetFinger(i, x)
	}

	_, err := n.FindSuccessor(10)
	as.ErrorIs(err, chord.ErrRingUnreachable)
}

func TestRandomNodes(t *testing.T) {
	as := require.New(t)

	num := 8
	nodes := makeRing(t, as, newRegistry(), num)

	for _, n := range nodes {
		as.NoError(n.FixFingers())
	}

	for _, n := range nodes {
		as.Equal(n.getSuccessor().ID(), n.Finger(0).ID())
		for i := 1; i < n.Space.Fingers(); i++ {
			start := n.Space.FingerStart(n.ID(), i)
			as.Equal(expectedSuccessor(nodes, start), n.Finger(i).ID(), "finger %d of %d", i, n.ID())
		}
	}

	for i := 0; i < 100; i++ {
		target := rand.Uint64() % chord.DefaultBits.Size()
		entry := nodes[rand.Intn(num)]
		succ, err := entry.FindSuccessor(target)
		as.NoError(err)
		as.Equal(expectedSuccessor(nodes, target), succ.ID())
	}
}

func TestLotsOfNodes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping many nodes in short mode")
	}
	as := require.New(t)

	num := 32
	nodes := makeRing(t, as, newRegistry(), num)

	for i := 0; i < 200; i++ {
		target := rand.Uint64() % chord.DefaultBits.Size()
		succ, err := nodes[rand.Intn(num)].FindSuccessor(target)
		as.NoError(err)
		as.Equal(expectedSuccessor(nodes, target), succ.ID())
	}
}
