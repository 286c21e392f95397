package chord

import (
	"fmt"
	"net/http"
	"time"

	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/rtt"

	"github.com/jedib0t/go-pretty/v6/table"
)

const rttWindow = time.Second * 10

func (n *LocalNode) rttSnapshot(node chord.VNode) string {
	if n.NodesRTT == nil || node == nil {
		return ""
	}
	return n.NodesRTT.Snapshot(rtt.MakeMeasurementKey(node.Identity()), rttWindow).String()
}

func (n *LocalNode) printSummary(w http.ResponseWriter) {
	pre := n.getPredecessor()
	succ := n.getSuccessor()
	backupSucc := n.getBackupSucc()

	fmt.Fprintf(w, "Current state: %s (since %s)\n", n.state.Get().String(), n.state.Since().Format(time.RFC3339))
	fmt.Fprintf(w, "State history:")
	for _, t := range n.state.transitions() {
		fmt.Fprintf(w, " %s@%s", t.state, t.at.Format(time.TimeOnly))
	}
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Ring: %s\n", n.ringTrace())
	fmt.Fprintf(w, "---\n")

	nodesTable := table.NewWriter()
	nodesTable.SetOutputMirror(w)
	nodesTable.AppendHeader(table.Row{"Where", "ID", "Address", fmt.Sprintf("RTT (-%s)", rttWindow)})
	if pre != nil {
		nodesTable.AppendRow(table.Row{"Predecessor", pre.ID(), pre.Identity().GetAddress(), n.rttSnapshot(pre)})
	} else {
		nodesTable.AppendRow(table.Row{"Predecessor", "nil", "", ""})
	}
	nodesTable.AppendRow(table.Row{"Local", n.ID(), n.Identity().GetAddress(), ""})
	nodesTable.AppendRow(table.Row{"Successor", succ.ID(), succ.Identity().GetAddress(), n.rttSnapshot(succ)})
	if backupSucc != nil {
		nodesTable.AppendRow(table.Row{"Backup successor", backupSucc.GetId(), backupSucc.GetAddress(), ""})
	}
	nodesTable.SetCaption("(Last stabilized: %s)", n.lastStabilized.Load().Format(time.RFC3339))
	nodesTable.SetStyle(table.StyleDefault)
	nodesTable.Style().Options.SeparateRows = true
	nodesTable.Render()

	fmt.Fprintf(w, "---\n")

	fingerTable := table.NewWriter()
	fingerTable.SetOutputMirror(w)
	fingerTable.AppendHeader(table.Row{"Range", "ID"})
	for _, row := range n.fingerTrace() {
		fingerTable.AppendRow(table.Row{row[0], row[1]})
	}
	fingerTable.SetCaption("(range: %v)", n.Space.Size())
	fingerTable.SetStyle(table.StyleDefault)
	fingerTable.Render()

	fmt.Fprintf(w, "---\n")

	n.Display(w)
}

func (n *LocalNode) printKey(w http.ResponseWriter, r *http.Request, key string) {
	values, err := n.Get(r.Context(), key)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "error getting bindings: %v", err)
		return
	}
	for _, v := range values {
		fmt.Fprintln(w, v)
	}
}

func (n *LocalNode) StatsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; charset=utf-8")

	query := r.URL.Query()
	if query.Has("key") {
		n.printKey(w, r, query.Get("key"))
		return
	}
	n.printSummary(w)
}

func (n *LocalNode) RoutesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; charset=utf-8")
	n.Routes(w)
}

func (n *LocalNode) BindingsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; charset=utf-8")
	n.Display(w)
}

func (n *LocalNode) FixFingersHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; charset=utf-8")
	if err := n.FixFingers(); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "error fixing fingers: %v\n", err)
		return
	}
	n.Routes(w)
}
