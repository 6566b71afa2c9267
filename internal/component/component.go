// Package component defines the contract every sopipe plug-in implements
// (spec.md §4.6 / §6), and the runtime-facing interfaces (Runtime,
// Address, Mailbox) those plug-ins program against. The concrete runtime
// that satisfies Runtime lives in internal/actorsys; this package only
// holds the vtable-like surface so components and the runtime can be
// compiled independently, mirroring the teacher's own split between
// pkg/actor (runtime) and pkg/actor/types (component kinds).
package component

import (
	"context"

	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/metadata"
)

// RunLevel is the process-wide lifecycle phase (spec.md §3).
type RunLevel int32

const (
	RunLevelInit RunLevel = iota
	RunLevelRun
	RunLevelShut
)

func (r RunLevel) String() string {
	switch r {
	case RunLevelInit:
		return "init"
	case RunLevelRun:
		return "run"
	case RunLevelShut:
		return "shut"
	default:
		return "unknown"
	}
}

// Frame is the unit of transfer on every channel: an immutable owned
// byte buffer. The runtime is agnostic to its content (spec.md §3).
type Frame []byte

// Address is a cloneable, send-capable handle accepting frames. Send
// returns a "closed" error if the receiving end has gone away. Close
// tears down the underlying pipe from the sending side; components call
// it from a defer when they stop producing, so a peer blocked on Recv
// observes end-of-stream instead of leaking.
type Address interface {
	Send(ctx context.Context, f Frame) error
	Close()
}

// Mailbox is a non-cloneable receiver. Recv returns ok=false once the
// channel is closed and drained. Close tears down the underlying pipe
// from the receiving side, so a peer blocked on Send observes
// ErrClosed instead of leaking.
type Mailbox interface {
	Recv(ctx context.Context) (Frame, bool)
	Close()
}

// Runtime is the uniform contract every actor programs against
// (spec.md §4.4).
type Runtime interface {
	// SpawnNext instantiates the index-th downstream of the caller's
	// node (in its compiled outputs list), wiring address/mailbox per
	// the composite-transparency rules in spec.md §4.4.
	SpawnNext(index int, md metadata.MetaData, addr Address, mb Mailbox)

	// Channel creates a new bounded (~4-frame) address/mailbox pair.
	Channel() (Address, Mailbox)

	// SpawnTask schedules fn onto the executor; the caller node's live
	// task counter is incremented on entry and decremented on exit,
	// including on panic.
	SpawnTask(fn func(ctx context.Context))

	// SpawnTaskWithRuntime is like SpawnTask but hands fn a runtime
	// handle it can use to spawn further actors after suspension —
	// required when an async continuation wants to call SpawnNext from
	// inside the task body.
	SpawnTaskWithRuntime(fn func(ctx context.Context, rt Runtime))

	// RunLevel reads the current process-wide lifecycle phase.
	RunLevel() RunLevel

	// Logger returns a tagged logger for the calling component.
	Logger() Logger
}

// Logger is the small structured-ish logging surface every component
// uses; the concrete implementation wraps stdlib log (SPEC_FULL.md
// Ambient Stack — the teacher never reaches for a third-party logger).
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// Actor is a component instance. Exactly one of the three entry points
// is valid for a given graph position (spec.md §3):
//   - Spawn: middle/sink position, has a mailbox, may have an address.
//   - SpawnSource: graph root, no input channel, must create its first
//     downstream itself.
//   - SpawnComposite: used only inside a composite (`!!`) node; acts as
//     a one-way pipe and may not create further descendants.
type Actor interface {
	Spawn(rt Runtime, md metadata.MetaData, addr Address, mb Mailbox)
	SpawnSource(rt Runtime)
	SpawnComposite(rt Runtime, md metadata.MetaData, addr Address, mb Mailbox)
}

// UnimplementedActor embeds into concrete actors that only use one or
// two of the three entry points, so they don't need to stub the rest.
// Calling an unimplemented entry point is a Misuse error — this is a
// graph well-formedness bug in the compiler or in the component's own
// schema, so it panics.
type UnimplementedActor struct{ Component string }

func (u UnimplementedActor) Spawn(Runtime, metadata.MetaData, Address, Mailbox) {
	panic("component " + u.Component + " does not support the middle/sink position")
}

func (u UnimplementedActor) SpawnSource(Runtime) {
	panic("component " + u.Component + " is not a valid source")
}

func (u UnimplementedActor) SpawnComposite(Runtime, metadata.MetaData, Address, Mailbox) {
	panic("component " + u.Component + " cannot be used in a `!!` composite")
}

// Component is a statically-registered factory producing actors. One
// component may register several function names (spec.md §4.6).
type Component interface {
	// Functions returns the DSL identifiers that instantiate this
	// component.
	Functions() []string

	// Name returns a short identifier for diagnostics and CLI listing.
	Name() string

	// Create produces an actor from the final argument list (including
	// the reserved function_name/outputs entries). Errors returned here
	// are Misuse errors (spec.md §7): the whole process aborts.
	Create(args argument.List) (Actor, error)
}
