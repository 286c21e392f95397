package chord

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"
	"go.miragespace.co/dht/util/testcond"

	"github.com/stretchr/testify/require"
)

// keyWithID finds a key hashing to id, so tests can place bindings on a small ring
func keyWithID(space chord.Space, id uint64) string {
	for i := 0; ; i++ {
		k := fmt.Sprintf("key-%d", i)
		if space.HashString(k) == id {
			return k
		}
	}
}

func makeKV(num int) (keys []string, values []string) {
	keys = make([]string, num)
	values = make([]string, num)
	for i := range keys {
		keys[i] = fmt.Sprintf("k-%d-%d", i, rand.Int63())
		values[i] = fmt.Sprintf("v-%d-%d", i, rand.Int63())
	}
	return
}

func heldKeys(n *LocalNode) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.bindings.Len()
}

func backupKeys(n *LocalNode) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.backup.Len()
}

func holds(n *LocalNode, key string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.bindings.Get(key)
}

func TestKVMultiset(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	n := newTestNode(t, newRegistry(), 0, 7)
	as.NoError(n.Create())

	as.NoError(n.Add(ctx, "k", "v"))
	as.NoError(n.Add(ctx, "k", "v"))
	as.NoError(n.Add(ctx, "k", "w"))

	vals, err := n.Get(ctx, "k")
	as.NoError(err)
	as.Equal([]string{"v", "v", "w"}, vals)

	as.NoError(n.Delete(ctx, "k", "v"))
	vals, err = n.Get(ctx, "k")
	as.NoError(err)
	as.Equal([]string{"v", "w"}, vals)

	// deleting a missing value is a no-op
	as.NoError(n.Delete(ctx, "k", "missing"))
	as.NoError(n.Delete(ctx, "absent", "v"))
	vals, err = n.Get(ctx, "k")
	as.NoError(err)
	as.Equal([]string{"v", "w"}, vals)

	vals, err = n.Get(ctx, "absent")
	as.NoError(err)
	as.Empty(vals)

	as.NoError(n.Delete(ctx, "k", "v"))
	as.NoError(n.Delete(ctx, "k", "w"))
	vals, err = n.Get(ctx, "k")
	as.NoError(err)
	as.Empty(vals)
	as.Equal(0, heldKeys(n))
}

func TestKVNotStarted(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	n := newTestNode(t, newRegistry(), 0, 7)

	_, err := n.GetBindings(ctx, "k")
	as.ErrorIs(err, chord.ErrNodeNotStarted)
	as.ErrorIs(n.AddBinding(ctx, "k", "v"), chord.ErrNodeNotStarted)
	as.ErrorIs(n.Add(ctx, "k", "v"), chord.ErrNodeNotStarted)
}

func TestConcurrentKV(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	n := newTestNode(t, newRegistry(), 0, 7)
	as.NoError(n.Create())

	var (
		workers = 8
		each    = 50
		wg      sync.WaitGroup
	)

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				v := fmt.Sprintf("%d-%d", w, i)
				as.NoError(n.Add(ctx, "shared", v))
				if i%2 == 0 {
					as.NoError(n.Delete(ctx, "shared", v))
				}
			}
		}(w)
	}
	wg.Wait()

	vals, err := n.Get(ctx, "shared")
	as.NoError(err)
	as.Len(vals, workers*each/2)

	seen := make(map[string]bool)
	for _, v := range vals {
		as.False(seen[v], "duplicated value %s", v)
		seen[v] = true
	}
}

func TestOwnershipCheck(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	reg := newRegistry()
	space := chord.Space(4)

	n := activeNode(t, reg, space, 10)
	n.setPredecessor(activeNode(t, reg, space, 5))

	as.ErrorIs(n.AddBinding(ctx, keyWithID(space, 3), "v"), chord.ErrKVStaleOwnership)
	as.ErrorIs(n.AddBinding(ctx, keyWithID(space, 5), "v"), chord.ErrKVStaleOwnership)
	_, err := n.GetBindings(ctx, keyWithID(space, 12))
	as.ErrorIs(err, chord.ErrKVStaleOwnership)
	as.ErrorIs(n.DeleteBinding(ctx, keyWithID(space, 0), "v"), chord.ErrKVStaleOwnership)

	as.NoError(n.AddBinding(ctx, keyWithID(space, 7), "v"))
	as.NoError(n.AddBinding(ctx, keyWithID(space, 10), "v"))

	// unknown predecessor accepts everything
	n.setPredecessor(nil)
	as.NoError(n.AddBinding(ctx, keyWithID(space, 3), "v"))
}

func TestNotifyTransfer(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	reg := newRegistry()
	space := chord.Space(4)

	n := activeNode(t, reg, space, 10)
	n.setPredecessor(activeNode(t, reg, space, 1))

	keys := map[uint64]string{
		3: keyWithID(space, 3),
		7: keyWithID(space, 7),
		9: keyWithID(space, 9),
	}
	for id, k := range keys {
		as.NoError(n.AddBinding(ctx, k, fmt.Sprintf("v%d", id)))
	}

	joiner := newTestNode(t, reg, space, 5)
	joiner.state.Set(chord.Joining)
	joiner.setSuccessor(n)

	as.NoError(joiner.notifySuccessor(n))

	as.Equal(joiner.ID(), n.getPredecessor().ID())

	as.Equal([]string{"v3"}, holds(joiner, keys[3]))
	as.Empty(holds(joiner, keys[7]))
	as.Empty(holds(joiner, keys[9]))

	as.Empty(holds(n, keys[3]))
	as.Equal([]string{"v7"}, holds(n, keys[7]))
	as.Equal([]string{"v9"}, holds(n, keys[9]))

	as.Equal(1, heldKeys(joiner))
	as.Equal(2, heldKeys(n))

	_, err := n.GetBindings(ctx, keys[3])
	as.ErrorIs(err, chord.ErrKVStaleOwnership)
	vals, err := joiner.GetBindings(ctx, keys[3])
	as.NoError(err)
	as.Equal([]string{"v3"}, vals)

	as.Equal(n.ID(), joiner.getBackupSucc().GetId())
}

func TestNotifyRepeatsUntilDropped(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	reg := newRegistry()
	space := chord.Space(4)

	n := activeNode(t, reg, space, 10)
	n.setPredecessor(activeNode(t, reg, space, 1))
	as.NoError(n.AddBinding(ctx, keyWithID(space, 3), "v"))

	candidate := activeNode(t, reg, space, 5)

	for i := 0; i < 2; i++ {
		resp, err := n.Notify(candidate)
		as.NoError(err)
		as.Equal(i == 0, resp.GetAdopted())
		as.Len(resp.GetTransfer().GetBindings(), 1)
		as.Len(resp.GetBackup().GetBindings(), 1)
	}

	as.NoError(n.DropBindings(ctx, candidate.ID()))

	resp, err := n.Notify(candidate)
	as.NoError(err)
	as.Empty(resp.GetTransfer().GetBindings())
	as.Empty(resp.GetBackup().GetBindings())
}

func TestNotifyFartherCandidate(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	reg := newRegistry()
	space := chord.Space(4)

	n := activeNode(t, reg, space, 10)
	n.setPredecessor(activeNode(t, reg, space, 5))
	as.NoError(n.AddBinding(ctx, keyWithID(space, 7), "v"))

	resp, err := n.Notify(activeNode(t, reg, space, 2))
	as.NoError(err)
	as.False(resp.GetAdopted())
	as.Nil(resp.GetTransfer())
	as.Len(resp.GetBackup().GetBindings(), 1)
	as.Equal(uint64(5), n.getPredecessor().ID())

	_, err = n.Notify(nil)
	as.ErrorIs(err, chord.ErrNodeNil)
}

func TestDropBindingsOverlap(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	reg := newRegistry()
	space := chord.Space(4)

	n := activeNode(t, reg, space, 10)
	n.setPredecessor(activeNode(t, reg, space, 5))
	as.NoError(n.AddBinding(ctx, keyWithID(space, 7), "v"))

	as.ErrorIs(n.DropBindings(ctx, 7), chord.ErrTransferFailure)
	as.Equal(1, heldKeys(n))

	// a request for a range we no longer own is fine
	as.NoError(n.DropBindings(ctx, 5))
	as.Equal(1, heldKeys(n))
}

// failingDrop is a successor that hands bindings over but cannot drop them afterwards
type failingDrop struct {
	*LocalNode
}

func (f *failingDrop) FindSuccessor(uint64) (chord.VNode, error) {
	return f, nil
}

func (f *failingDrop) DropBindings(context.Context, uint64) error {
	return &chord.OperationError{
		Op:   "DropBindings",
		Peer: f.Identity(),
		Err:  errors.New("connection reset"),
	}
}

func TestNotifyDropFailure(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	reg := newRegistry()
	space := chord.Space(4)

	n := activeNode(t, reg, space, 10)
	n.setPredecessor(activeNode(t, reg, space, 1))
	key := keyWithID(space, 3)
	as.NoError(n.AddBinding(ctx, key, "v3"))

	joiner := newTestNode(t, reg, space, 5)
	joiner.state.Set(chord.Joining)
	joiner.setSuccessor(n)

	err := joiner.notifySuccessor(&failingDrop{n})
	as.ErrorIs(err, chord.ErrTransferFailure)
	as.ErrorIs(err, chord.ErrRingOperation)

	// the copy stays on both sides until a later drop succeeds
	as.Equal([]string{"v3"}, holds(joiner, key))
	as.Equal([]string{"v3"}, holds(n, key))
}

func TestJoinDropFailure(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	reg := newRegistry()
	space := chord.Space(4)

	n := activeNode(t, reg, space, 10)
	n.setPredecessor(activeNode(t, reg, space, 1))
	key := keyWithID(space, 3)
	as.NoError(n.AddBinding(ctx, key, "v3"))

	joiner := newTestNode(t, reg, space, 5)
	as.NoError(joiner.Join(&failingDrop{n}))
	as.Equal(chord.Active, joiner.state.Get())

	as.Equal([]string{"v3"}, holds(joiner, key))
	as.Equal([]string{"v3"}, holds(n, key))
	as.Equal(joiner.ID(), n.getPredecessor().ID())
}

func TestImportBindings(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	reg := newRegistry()
	space := chord.Space(4)

	n := activeNode(t, reg, space, 10)
	leaving := activeNode(t, reg, space, 5)
	n.setPredecessor(leaving)

	payload := &protocol.NodeBindings{
		Info: leaving.Identity(),
		Succ: n.Identity(),
		Bindings: []*protocol.KeyBindings{
			{Key: keyWithID(space, 3), Values: []string{"a", "a"}},
		},
	}

	as.NoError(n.ImportBindings(ctx, payload))
	as.Nil(n.getPredecessor())
	as.Equal([]string{"a", "a"}, holds(n, keyWithID(space, 3)))

	// installing twice does not duplicate
	as.NoError(n.ImportBindings(ctx, payload))
	as.Equal([]string{"a", "a"}, holds(n, keyWithID(space, 3)))

	as.ErrorIs(n.ImportBindings(ctx, nil), chord.ErrNodeNil)
}

func TestKVAcrossRing(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	nodes := makeRing(t, as, newRegistry(), 5)

	keys, values := makeKV(50)
	for i, k := range keys {
		as.NoError(nodes[rand.Intn(len(nodes))].Add(ctx, k, values[i]))
	}

	total := 0
	for _, n := range nodes {
		total += heldKeys(n)
	}
	as.Equal(len(keys), total)

	for i, k := range keys {
		owner := expectedSuccessor(nodes, chord.DefaultBits.HashString(k))
		for _, n := range nodes {
			vals, err := n.Get(ctx, k)
			as.NoError(err)
			as.Equal([]string{values[i]}, vals)
			if n.ID() == owner {
				as.Equal([]string{values[i]}, holds(n, k))
			}
		}
	}

	for i, k := range keys {
		as.NoError(nodes[rand.Intn(len(nodes))].Delete(ctx, k, values[i]))
	}
	for _, n := range nodes {
		as.Equal(0, heldKeys(n))
	}
}

func TestJoinHandoff(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	reg := newRegistry()
	nodes := makeRing(t, as, reg, 3)

	keys, values := makeKV(200)
	for i, k := range keys {
		as.NoError(nodes[0].Add(ctx, k, values[i]))
	}

	var joinerID uint64
	for {
		joinerID = rand.Uint64() % chord.DefaultBits.Size()
		if _, ok := reg.nodes.Load(joinerID); !ok {
			break
		}
	}
	joiner := newTestNode(t, reg, chord.DefaultBits, joinerID)
	as.NoError(joiner.Join(nodes[1]))

	nodes = sortNodes(append(nodes, joiner))
	waitRing(as, nodes)

	// every binding lives on its owner and nowhere else
	total := 0
	for _, n := range nodes {
		total += heldKeys(n)
	}
	as.Equal(len(keys), total)

	for i, k := range keys {
		owner := expectedSuccessor(nodes, chord.DefaultBits.HashString(k))
		for _, n := range nodes {
			if n.ID() == owner {
				as.Equal([]string{values[i]}, holds(n, k))
			} else {
				as.Empty(holds(n, k))
			}
		}
	}
}

func TestLeaveTransfer(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	nodes := makeRing(t, as, newRegistry(), 3)

	keys, values := makeKV(100)
	for i, k := range keys {
		as.NoError(nodes[0].Add(ctx, k, values[i]))
	}

	leaver := nodes[1]
	as.NoError(leaver.Leave())
	as.Equal(0, heldKeys(leaver))

	remaining := []*LocalNode{nodes[0], nodes[2]}
	waitRing(as, remaining)

	kv := chord.WrapRetryKV(remaining[0], waitInterval, 20)
	for i, k := range keys {
		vals, err := kv.Get(ctx, k)
		as.NoError(err)
		as.Equal([]string{values[i]}, vals)
	}
}

func TestCrashFailover(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	nodes := makeRing(t, as, newRegistry(), 4)

	keys, values := makeKV(100)
	for i, k := range keys {
		as.NoError(nodes[0].Add(ctx, k, values[i]))
	}

	// wait for every predecessor to hold a copy of its successor's bindings
	as.NoError(testcond.WaitForCondition(func() bool {
		for i, n := range nodes {
			succ := nodes[(i+1)%len(nodes)]
			if backupKeys(n) != heldKeys(succ) {
				return false
			}
		}
		return true
	}, waitInterval, waitTimeout))
	<-time.After(testStabilizeInterval * 2)

	crashed := nodes[2]
	crashed.Stop()

	remaining := []*LocalNode{nodes[0], nodes[1], nodes[3]}
	waitRing(as, remaining)

	as.NoError(testcond.WaitForCondition(func() bool {
		for i, k := range keys {
			vals, err := remaining[i%len(remaining)].Get(ctx, k)
			if err != nil || len(vals) != 1 || vals[0] != values[i] {
				return false
			}
		}
		return true
	}, waitInterval, waitTimeout), "bindings of the crashed node were not restored")
}
