package chord

import (
	"net/http"

	"go.miragespace.co/dht/spec/protocol"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

func vertexHash(n *protocol.Node) string {
	return n.String()
}

var vOptions = []func(*graph.VertexProperties){
	graph.VertexAttribute("shape", "box"),
}

var rootVOptions = append(vOptions,
	graph.VertexAttribute("style", "filled"),
	graph.VertexAttribute("color", "yellow"),
)

// RingGraphHandler renders the ring as seen from root in DOT format
func RingGraphHandler(root *LocalNode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ring, err := root.ringWalk()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		g := graph.New(vertexHash, graph.Directed())

		nodes := make([]*protocol.Node, 0, len(ring))
		for _, vnode := range ring {
			node := vnode.Identity()
			nodes = append(nodes, node)
			if node.GetId() == root.ID() {
				g.AddVertex(node, rootVOptions...)
			} else {
				g.AddVertex(node, vOptions...)
			}
		}

		for i := 0; i < len(nodes)-1; i++ {
			g.AddEdge(vertexHash(nodes[i]), vertexHash(nodes[i+1]))
		}
		if len(nodes) > 1 {
			g.AddEdge(vertexHash(nodes[len(nodes)-1]), vertexHash(nodes[0]))
		}

		w.Header().Set("content-type", "text/plain")
		draw.DOT(g, w)
	}
}
