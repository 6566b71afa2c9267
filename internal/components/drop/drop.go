// Package drop implements the `drop` component: a symmetric sink that
// discards every frame it receives. Grounded on
// _examples/original_source/components/drop/src/lib.rs.
package drop

import (
	"context"

	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/metadata"
)

type Component struct{}

func New() *Component { return &Component{} }

func (*Component) Functions() []string { return []string{"drop"} }
func (*Component) Name() string        { return "drop" }

func (*Component) Create(args argument.List) (component.Actor, error) {
	return actor{component.UnimplementedActor{Component: "drop"}}, nil
}

type actor struct {
	component.UnimplementedActor
}

func (actor) Spawn(rt component.Runtime, _ metadata.MetaData, addr component.Address, mb component.Mailbox) {
	if addr != nil {
		addr.Close()
	}
	rt.SpawnTask(func(ctx context.Context) {
		defer mb.Close()
		for {
			if _, ok := mb.Recv(ctx); !ok {
				return
			}
		}
	})
}

func (a actor) SpawnComposite(rt component.Runtime, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	a.Spawn(rt, md, addr, mb)
}
