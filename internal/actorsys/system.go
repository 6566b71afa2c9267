// Package actorsys implements the channel & runtime handler layer of
// sopipe: bounded byte-frame channels, the per-actor RuntimeHandle
// exposing SpawnNext/Channel/SpawnTask/RunLevel, and the System that
// owns the compiled node graph and its per-node live-task counters
// (spec.md §4.4). It is grounded on the teacher's pkg/actor/system.go
// (per-actor goroutine + dispatcher) and on
// _examples/original_source/src/runtime.rs, which spec.md §4.4
// describes at matching precision.
package actorsys

import (
	"context"
	"sync/atomic"

	"github.com/ylxdzsw/sopipe/internal/component"
)

// System owns the compiled graph and the process-wide runlevel. It is
// the thing the scheduler package drives through Init → Run → Shut.
type System struct {
	Graph    *Graph
	ctx      context.Context
	runlevel atomic.Int32
}

// NewSystem creates a System bound to ctx — cancelling ctx tears down
// every outstanding Send/Recv across the whole graph, used by the
// scheduler as the final hard-stop after a second SIGINT.
func NewSystem(ctx context.Context, graph *Graph) *System {
	return &System{Graph: graph, ctx: ctx}
}

// SetRunLevel moves the process-wide lifecycle phase forward (spec.md §4.5).
func (s *System) SetRunLevel(level component.RunLevel) {
	s.runlevel.Store(int32(level))
}

// RunLevel reads the current phase.
func (s *System) RunLevel() component.RunLevel {
	return component.RunLevel(s.runlevel.Load())
}

// SpawnSource instantiates a graph-root actor's SpawnSource entry
// point. Sources are expected to open listeners/sockets but busy-check
// RunLevel before accepting work (spec.md §4.5).
func (s *System) SpawnSource(node *Node) {
	node.Forward.SpawnSource(RuntimeHandle{sys: s, node: node})
}

// TaskCountsZero reports whether every node's live-task counter has
// returned to zero — the scheduler's shutdown quiescence signal.
func (s *System) TaskCountsZero() bool {
	for _, n := range s.Graph.Nodes {
		if n.liveTasks() != 0 {
			return false
		}
	}
	return true
}

// RuntimeHandle is the per-actor handle passed to Spawn/SpawnSource/
// SpawnComposite; it is a small value type, cheap to clone whenever an
// actor needs to hand a fresh one to a spawned task (spec.md §5).
type RuntimeHandle struct {
	sys         *System
	node        *Node
	isComposite bool
}

var _ component.Runtime = RuntimeHandle{}
