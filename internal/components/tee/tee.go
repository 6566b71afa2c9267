// Package tee implements the `tee(outputs: N)` component: it fans every
// incoming frame to N downstream addresses, awaiting each send in turn
// before accepting the next frame (spec.md §5's intentional head-of-line
// trade-off). Grounded on
// _examples/original_source/components/tee/src/lib.rs.
package tee

import (
	"context"
	"sync"

	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/metadata"
	"github.com/ylxdzsw/sopipe/internal/sopipeerr"
)

type Component struct{}

func New() *Component { return &Component{} }

func (*Component) Functions() []string { return []string{"tee"} }
func (*Component) Name() string        { return "tee" }

func (*Component) Create(args argument.List) (component.Actor, error) {
	n := len(args.OutputNames())
	if n < 1 {
		return nil, sopipeerr.Misusef("tee: requires at least one output")
	}
	return &actor{component.UnimplementedActor{Component: "tee"}, n}, nil
}

type actor struct {
	component.UnimplementedActor
	nOutputs int
}

// component.Address has no reference-counted Clone (unlike the
// original's mpsc::Sender, which only truly closes once every cloned
// handle is dropped), so every backward leg shares the single upstream
// addr; a WaitGroup makes sure it is closed exactly once, after every
// branch has finished, rather than by whichever branch happens to
// finish first.
func (a *actor) Spawn(rt component.Runtime, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	forwardAddrs := make([]component.Address, a.nOutputs)
	var branchesDone sync.WaitGroup
	branchesDone.Add(a.nOutputs)

	for i := 0; i < a.nOutputs; i++ {
		forwardAddr, forwardMailbox := rt.Channel()
		backwardAddr, backwardMailbox := rt.Channel()
		rt.SpawnNext(i, md.Clone(), backwardAddr, forwardMailbox)
		forwardAddrs[i] = forwardAddr

		rt.SpawnTask(func(ctx context.Context) {
			defer branchesDone.Done()
			for {
				f, ok := backwardMailbox.Recv(ctx)
				if !ok {
					return
				}
				if err := addr.Send(ctx, f); err != nil {
					return
				}
			}
		})
	}

	rt.SpawnTask(func(ctx context.Context) {
		branchesDone.Wait()
		addr.Close()
	})

	rt.SpawnTask(func(ctx context.Context) {
		defer mb.Close()
		for _, fa := range forwardAddrs {
			defer fa.Close()
		}
		for {
			f, ok := mb.Recv(ctx)
			if !ok {
				return
			}
			for _, fa := range forwardAddrs {
				if err := fa.Send(ctx, f); err != nil {
					// TODO: a send failure on one output currently aborts
					// fan-out to the rest too, same open question the
					// original component left (components/tee/src/lib.rs).
					return
				}
			}
		}
	})
}
