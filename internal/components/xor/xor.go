// Package xor implements the `xor(key: string)` component: a symmetric
// stream cipher that XORs every byte against a repeating key. Grounded
// on _examples/original_source/components/xor/src/lib.rs.
package xor

import (
	"context"

	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/metadata"
	"github.com/ylxdzsw/sopipe/internal/sopipeerr"
)

type Component struct{}

func New() *Component { return &Component{} }

func (*Component) Functions() []string { return []string{"xor"} }
func (*Component) Name() string        { return "xor" }

type config struct {
	Key string `arg:"key"`
}

func (*Component) Create(args argument.List) (component.Actor, error) {
	if n := len(args.OutputNames()); n != 1 {
		return nil, sopipeerr.Misusef("xor: must have exactly 1 output")
	}
	var cfg config
	if err := argument.Parse(args, &cfg); err != nil {
		return nil, sopipeerr.Misusef("xor: %w", err)
	}
	if cfg.Key == "" {
		return nil, sopipeerr.Misusef("xor: key must not be empty")
	}
	return &actor{component.UnimplementedActor{Component: "xor"}, []byte(cfg.Key)}, nil
}

type actor struct {
	component.UnimplementedActor
	key []byte
}

// Spawn wires xor as a forwarding node: a fresh downstream actor is
// spawned via SpawnNext, and the forward/backward legs run independent
// xorLoop instances (each with its own keystream position), mirroring
// deflate.go's and aead.go's shape for a symmetric bidirectional codec.
func (a *actor) Spawn(rt component.Runtime, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	forwardAddr, forwardMailbox := rt.Channel()
	backwardAddr, backwardMailbox := rt.Channel()
	rt.SpawnNext(0, md, backwardAddr, forwardMailbox)

	rt.SpawnTask(func(ctx context.Context) { a.xorLoop(ctx, forwardAddr, mb) })
	rt.SpawnTask(func(ctx context.Context) { a.xorLoop(ctx, addr, backwardMailbox) })
}

func (a *actor) SpawnComposite(rt component.Runtime, _ metadata.MetaData, addr component.Address, mb component.Mailbox) {
	rt.SpawnTask(func(ctx context.Context) { a.xorLoop(ctx, addr, mb) })
}

func (a *actor) xorLoop(ctx context.Context, addr component.Address, mb component.Mailbox) {
	defer addr.Close()
	defer mb.Close()
	count := 0
	for {
		f, ok := mb.Recv(ctx)
		if !ok {
			return
		}
		out := make(component.Frame, len(f))
		for i, c := range f {
			out[i] = c ^ a.key[count]
			count = (count + 1) % len(a.key)
		}
		if err := addr.Send(ctx, out); err != nil {
			return
		}
	}
}
