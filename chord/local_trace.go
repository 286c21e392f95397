package chord

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/zhangyunhao116/skipset"
)

func formatNode(n *protocol.Node) string {
	if n == nil {
		return "nil"
	}
	return fmt.Sprintf("[id=%d, addr=%s]", n.GetId(), n.GetAddress())
}

func identityOf(n chord.VNode) *protocol.Node {
	if n == nil {
		return nil
	}
	return n.Identity()
}

// ringWalk follows successors starting from us until the walk returns to us.
func (n *LocalNode) ringWalk() ([]chord.VNode, error) {
	var (
		err  error
		next chord.VNode = n
		seen             = skipset.NewUint64()
		ring             = []chord.VNode{n}
	)

	for {
		next, err = n.FindSuccessor(n.Space.ModuloSum(next.ID(), 1))
		if err != nil {
			return ring, err
		}
		if next == nil {
			return ring, chord.ErrNodeNoSuccessor
		}
		if next.ID() == n.ID() {
			return ring, nil
		}
		if !seen.Add(next.ID()) {
			return ring, fmt.Errorf("ring is unstable, revisited %d", next.ID())
		}
		ring = append(ring, next)
	}
}

func (n *LocalNode) ringTrace() string {
	ring, err := n.ringWalk()

	var sb strings.Builder
	for i, node := range ring {
		if i > 0 {
			sb.WriteString(" -> ")
		}
		sb.WriteString(strconv.FormatUint(node.ID(), 10))
	}
	if err != nil {
		if strings.Contains(err.Error(), "unstable") {
			return "unstable"
		}
		sb.WriteString(" -> error")
		return sb.String()
	}
	sb.WriteString(" -> ")
	sb.WriteString(strconv.FormatUint(n.ID(), 10))
	return sb.String()
}

func minmax(nums []int) (min, max int) {
	min = nums[0]
	max = nums[0]
	for _, num := range nums {
		if num > max {
			max = num
		}
		if num < min {
			min = num
		}
	}
	return
}

// fingerTrace collapses consecutive finger entries pointing at the same node
func (n *LocalNode) fingerTrace() [][2]string {
	type span struct {
		id      uint64
		entries []int
	}
	spans := make([]*span, 0)
	n.fingerRange(func(i int, f chord.VNode) bool {
		if l := len(spans); l > 0 && spans[l-1].id == f.ID() {
			spans[l-1].entries = append(spans[l-1].entries, i)
			return true
		}
		spans = append(spans, &span{id: f.ID(), entries: []int{i}})
		return true
	})

	rows := make([][2]string, 0, len(spans))
	for _, s := range spans {
		min, max := minmax(s.entries)
		rows = append(rows, [2]string{fmt.Sprintf("%d/%d", min, max), strconv.FormatUint(s.id, 10)})
	}
	return rows
}

// Routes writes the routing table: predecessor, successor, and every finger with
// the identifier it is meant to succeed.
func (n *LocalNode) Routes(w io.Writer) {
	n.mu.Lock()
	pre := identityOf(n.predecessor)
	succ := identityOf(n.successor)
	backupSucc := n.backupSucc
	fingers := make([]*protocol.Node, len(n.fingers))
	for i, f := range n.fingers {
		fingers[i] = identityOf(f)
	}
	n.mu.Unlock()

	nodesTable := table.NewWriter()
	nodesTable.SetOutputMirror(w)
	nodesTable.AppendHeader(table.Row{"Where", "Node"})
	nodesTable.AppendRow(table.Row{"Predecessor", formatNode(pre)})
	nodesTable.AppendRow(table.Row{"Local", formatNode(n.Identity())})
	nodesTable.AppendRow(table.Row{"Successor", formatNode(succ)})
	nodesTable.AppendRow(table.Row{"Backup successor", formatNode(backupSucc)})
	nodesTable.SetStyle(table.StyleDefault)
	nodesTable.Render()

	fingerTable := table.NewWriter()
	fingerTable.SetOutputMirror(w)
	fingerTable.AppendHeader(table.Row{"Finger", "Start", "Entry"})
	for i, f := range fingers {
		fingerTable.AppendRow(table.Row{
			fmt.Sprintf("%d+2^%d", n.ID(), i),
			n.Space.FingerStart(n.ID(), i),
			formatNode(f),
		})
	}
	fingerTable.SetCaption("(identifier space: %d bits)", n.Space)
	fingerTable.SetStyle(table.StyleDefault)
	fingerTable.Render()
}

// Display writes the bindings held by this node, marking keys outside (predecessor, self]
func (n *LocalNode) Display(w io.Writer) {
	n.mu.Lock()
	pre := n.predecessor
	keys := n.bindings.RangeKeys(0, 0)
	exported := n.bindings.Export(keys)
	backupKeys := n.backup.Len()
	n.mu.Unlock()

	bindingsTable := table.NewWriter()
	bindingsTable.SetOutputMirror(w)
	bindingsTable.AppendHeader(table.Row{"owner", "hash(key)", "key", "values"})

	misplaced := 0
	for _, kb := range exported {
		id := n.Space.HashString(kb.GetKey())
		ownership := ""
		if pre != nil && !chord.BetweenInclusiveHigh(pre.ID(), id, n.ID()) {
			ownership = "X"
			misplaced++
		}
		bindingsTable.AppendRow(table.Row{ownership, id, kb.GetKey(), strings.Join(kb.GetValues(), ", ")})
	}
	bindingsTable.SetCaption("(With %d keys, %d misplaced, %d keys in backup; X in owner column indicates incorrect owner)", len(exported), misplaced, backupKeys)
	bindingsTable.SetStyle(table.StyleDefault)
	bindingsTable.Style().Options.SeparateRows = true
	bindingsTable.Render()
}
