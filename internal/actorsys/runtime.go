package actorsys

import (
	"context"
	"sync/atomic"

	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/metadata"
)

// SpawnNext instantiates the index-th downstream of the caller's node
// (in its compiled Outputs list), wiring it per the composite-
// transparency rules in spec.md §4.4:
//   - symmetric downstream (Forward == Backward): call its Spawn once
//     with the supplied address/mailbox.
//   - composite downstream (Forward != Backward, built by `!!`):
//     allocate two internal channel pairs, call Forward.SpawnComposite
//     and Backward.SpawnComposite with the cross-wired halves, then
//     recurse into the composite's own single downstream.
//
// Ported from _examples/original_source/src/runtime.rs's `spawn_next`,
// which spec.md §4.4 describes at matching precision.
//
// Composite-interior actors (is_composite) are forbidden to call this —
// enforced with a panic (spec.md §4.4: "a runtime assertion enforces
// this").
func (h RuntimeHandle) SpawnNext(index int, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	if h.isComposite {
		panic("actorsys: components spawned inside a composite node may not call SpawnNext")
	}

	next := h.sys.Graph.Nodes[h.node.Outputs[index]]

	if next.Symmetric() {
		nh := RuntimeHandle{sys: h.sys, node: next}
		next.Forward.Spawn(nh, md, addr, mb)
		return
	}

	forwardAddr, forwardMailbox := h.Channel()
	backwardAddr, backwardMailbox := h.Channel()

	fh := RuntimeHandle{sys: h.sys, node: next, isComposite: true}
	next.Forward.SpawnComposite(fh, md.Clone(), forwardAddr, mb)

	bh := RuntimeHandle{sys: h.sys, node: next, isComposite: true}
	next.Backward.SpawnComposite(bh, md.Clone(), addr, backwardMailbox)

	rh := RuntimeHandle{sys: h.sys, node: next}
	rh.SpawnNext(0, md, backwardAddr, forwardMailbox)
}

// Channel creates a new bounded (~4-frame) address/mailbox pair.
func (h RuntimeHandle) Channel() (component.Address, component.Mailbox) {
	return newChannel()
}

// SpawnTask schedules fn onto the executor. A scoped guard increments
// the caller node's live-task count on entry and decrements on exit,
// including on panic, so the scheduler's shutdown quiescence check
// stays precise (spec.md §4.4, §9 "task counters instead of a JoinSet").
func (h RuntimeHandle) SpawnTask(fn func(ctx context.Context)) {
	atomic.AddInt32(&h.node.taskCount, 1)
	go func() {
		defer h.taskDone()
		fn(h.sys.ctx)
	}()
}

// SpawnTaskWithRuntime is like SpawnTask but hands fn a freshly-cloned
// runtime handle, needed when an async continuation wants to call
// SpawnNext after suspension (spec.md §4.4; grounded on
// `spawn_task_with_runtime` in original_source/src/runtime.rs, used by
// the auth_client and socks5_server components).
func (h RuntimeHandle) SpawnTaskWithRuntime(fn func(ctx context.Context, rt component.Runtime)) {
	atomic.AddInt32(&h.node.taskCount, 1)
	go func() {
		defer h.taskDone()
		fn(h.sys.ctx, h)
	}()
}

func (h RuntimeHandle) taskDone() {
	if r := recover(); r != nil {
		h.Logger().Errorf("task panicked: %v", r)
	}
	atomic.AddInt32(&h.node.taskCount, -1)
}

// RunLevel reads the current process-wide lifecycle phase.
func (h RuntimeHandle) RunLevel() component.RunLevel {
	return h.sys.RunLevel()
}

// Logger returns a logger tagged with the calling component's node name.
func (h RuntimeHandle) Logger() component.Logger {
	return stdLogger{tag: h.node.Name}
}

// Pass loops on mb and forwards each frame to addr until either end
// closes — the standard helper every component uses to wire a neutral
// leg of its pipeline (spec.md §4.4 "pass-through utility"; grounded on
// `api::pass` in original_source/components/*).
func Pass(ctx context.Context, addr component.Address, mb component.Mailbox) {
	if addr == nil || mb == nil {
		return
	}
	defer mb.Close()
	defer addr.Close()
	for {
		f, ok := mb.Recv(ctx)
		if !ok {
			return
		}
		if err := addr.Send(ctx, f); err != nil {
			return
		}
	}
}
