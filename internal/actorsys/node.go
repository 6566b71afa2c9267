package actorsys

import (
	"sync/atomic"

	"github.com/ylxdzsw/sopipe/internal/component"
)

// Node is a compiled composite node, identified by its index in the
// Graph's flat array (spec.md §3). Forward and Backward are the same
// Actor for a symmetric component; distinct when the node was built by
// `!!`.
type Node struct {
	Name      string
	Forward   component.Actor
	Backward  component.Actor
	Outputs   []int
	taskCount int32
}

// Symmetric reports whether Forward and Backward are the same actor
// instance — the identity check `original_source/src/main.rs` makes
// with a raw pointer comparison before calling spawn_source.
func (n *Node) Symmetric() bool { return n.Forward == n.Backward }

func (n *Node) liveTasks() int32 { return atomic.LoadInt32(&n.taskCount) }

// Graph is the flat, immutable-once-built array of compiled nodes
// produced by the pipeline compiler.
type Graph struct {
	Nodes []*Node
}

// SourceIndices returns the indices of nodes not referenced in any
// other node's Outputs — the graph roots spec.md §3 calls source nodes.
func (g *Graph) SourceIndices() []int {
	referenced := make(map[int]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		for _, o := range n.Outputs {
			referenced[o] = true
		}
	}
	var sources []int
	for i := range g.Nodes {
		if !referenced[i] {
			sources = append(sources, i)
		}
	}
	return sources
}
