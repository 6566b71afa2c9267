package tee

import (
	"context"
	"testing"

	"github.com/ylxdzsw/sopipe/internal/actorsys"
	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/metadata"
)

type captureActor struct{ fn func(component.Runtime) }

func (c captureActor) SpawnSource(rt component.Runtime) { c.fn(rt) }
func (captureActor) Spawn(component.Runtime, metadata.MetaData, component.Address, component.Mailbox) {
}
func (captureActor) SpawnComposite(component.Runtime, metadata.MetaData, component.Address, component.Mailbox) {
}

type sinkActor struct{ out chan component.Frame }

func (s sinkActor) Spawn(rt component.Runtime, _ metadata.MetaData, addr component.Address, mb component.Mailbox) {
	rt.SpawnTask(func(ctx context.Context) {
		if addr != nil {
			defer addr.Close()
		}
		for {
			f, ok := mb.Recv(ctx)
			if !ok {
				close(s.out)
				return
			}
			s.out <- f
		}
	})
}
func (sinkActor) SpawnSource(component.Runtime) {}
func (sinkActor) SpawnComposite(component.Runtime, metadata.MetaData, component.Address, component.Mailbox) {
}

func testRuntime(outs ...chan component.Frame) component.Runtime {
	nodes := []*actorsys.Node{{Name: "src", Outputs: make([]int, len(outs))}}
	for i, out := range outs {
		nodes[0].Outputs[i] = i + 1
		nodes = append(nodes, &actorsys.Node{Name: "sink", Forward: sinkActor{out: out}, Backward: sinkActor{out: out}})
	}
	var rt component.Runtime
	nodes[0].Forward = captureActor{fn: func(r component.Runtime) { rt = r }}
	nodes[0].Backward = nodes[0].Forward
	sys := actorsys.NewSystem(context.Background(), &actorsys.Graph{Nodes: nodes})
	sys.SetRunLevel(component.RunLevelRun)
	sys.SpawnSource(nodes[0])
	return rt
}

func TestCreateRequiresAtLeastOneOutput(t *testing.T) {
	c := New()
	_, err := c.Create(argument.List{
		{Name: argument.KeyFunctionName, Value: argument.String("tee")},
		{Name: argument.KeyOutputs, Value: argument.ListValue(nil)},
	})
	if err == nil {
		t.Fatal("expected error: tee requires at least one output")
	}
}

func TestSpawnFansOutToEveryOutput(t *testing.T) {
	c := New()
	a, err := c.Create(argument.List{
		{Name: argument.KeyFunctionName, Value: argument.String("tee")},
		{Name: argument.KeyOutputs, Value: argument.ListValue([]argument.Value{argument.String(""), argument.String(""), argument.String("")})},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	out0 := make(chan component.Frame, 4)
	out1 := make(chan component.Frame, 4)
	out2 := make(chan component.Frame, 4)
	rt := testRuntime(out0, out1, out2)

	in, inMB := rt.Channel()
	upstreamAck, upstreamAckMB := rt.Channel()
	a.Spawn(rt, metadata.New(), upstreamAck, inMB)

	ctx := context.Background()
	in.Send(ctx, component.Frame("broadcast"))
	in.Close()

	for i, out := range []chan component.Frame{out0, out1, out2} {
		f, ok := <-out
		if !ok || string(f) != "broadcast" {
			t.Fatalf("output %d: got %q, %v, want \"broadcast\", true", i, f, ok)
		}
	}
	if _, ok := upstreamAckMB.Recv(ctx); ok {
		t.Fatal("expected the upstream ack address to be closed once input drains")
	}
}

// fastDownstream closes its backward leg immediately, without ever
// reading its forward mailbox, simulating a branch that finishes well
// before the others.
type fastDownstream struct{}

func (fastDownstream) Spawn(_ component.Runtime, _ metadata.MetaData, addr component.Address, _ component.Mailbox) {
	addr.Close()
}
func (fastDownstream) SpawnSource(component.Runtime) {}
func (fastDownstream) SpawnComposite(component.Runtime, metadata.MetaData, component.Address, component.Mailbox) {
}

// slowDownstream waits for one forwarded frame, replies with it on its
// backward leg, then closes.
type slowDownstream struct{}

func (slowDownstream) Spawn(rt component.Runtime, _ metadata.MetaData, addr component.Address, mb component.Mailbox) {
	rt.SpawnTask(func(ctx context.Context) {
		defer addr.Close()
		f, ok := mb.Recv(ctx)
		if !ok {
			return
		}
		addr.Send(ctx, f)
	})
}
func (slowDownstream) SpawnSource(component.Runtime) {}
func (slowDownstream) SpawnComposite(component.Runtime, metadata.MetaData, component.Address, component.Mailbox) {
}

// TestBranchCompletionDoesNotDropOtherBranchesReplies guards against
// the bug where the first branch to finish closed the single shared
// upstream address for every other branch, silently dropping their
// later replies.
func TestBranchCompletionDoesNotDropOtherBranchesReplies(t *testing.T) {
	c := New()
	a, err := c.Create(argument.List{
		{Name: argument.KeyFunctionName, Value: argument.String("tee")},
		{Name: argument.KeyOutputs, Value: argument.ListValue([]argument.Value{argument.String(""), argument.String("")})},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	nodes := []*actorsys.Node{
		{Name: "src", Outputs: []int{1, 2}},
		{Name: "fast", Forward: fastDownstream{}, Backward: fastDownstream{}},
		{Name: "slow", Forward: slowDownstream{}, Backward: slowDownstream{}},
	}
	var rt component.Runtime
	nodes[0].Forward = captureActor{fn: func(r component.Runtime) { rt = r }}
	nodes[0].Backward = nodes[0].Forward
	sys := actorsys.NewSystem(context.Background(), &actorsys.Graph{Nodes: nodes})
	sys.SetRunLevel(component.RunLevelRun)
	sys.SpawnSource(nodes[0])

	in, inMB := rt.Channel()
	upstreamAck, upstreamAckMB := rt.Channel()
	a.Spawn(rt, metadata.New(), upstreamAck, inMB)

	ctx := context.Background()
	in.Send(ctx, component.Frame("broadcast"))
	in.Close()

	f, ok := upstreamAckMB.Recv(ctx)
	if !ok {
		t.Fatal("expected the slow branch's reply, but the upstream address was already closed")
	}
	if string(f) != "broadcast" {
		t.Errorf("got %q, want %q", f, "broadcast")
	}

	if _, ok := upstreamAckMB.Recv(ctx); ok {
		t.Fatal("expected the upstream address to close once both branches finish")
	}
}
