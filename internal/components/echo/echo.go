// Package echo implements the `echo` component: a symmetric pass-through
// that forwards every frame unchanged. Grounded on
// _examples/original_source/components/echo/src/lib.rs.
package echo

import (
	"context"

	"github.com/ylxdzsw/sopipe/internal/actorsys"
	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/metadata"
)

// Component registers the "echo" function name.
type Component struct{}

func New() *Component { return &Component{} }

func (*Component) Functions() []string { return []string{"echo"} }
func (*Component) Name() string        { return "echo" }

func (*Component) Create(args argument.List) (component.Actor, error) {
	return actor{component.UnimplementedActor{Component: "echo"}}, nil
}

type actor struct {
	component.UnimplementedActor
}

func (actor) Spawn(rt component.Runtime, _ metadata.MetaData, addr component.Address, mb component.Mailbox) {
	rt.SpawnTask(func(ctx context.Context) {
		actorsys.Pass(ctx, addr, mb)
	})
}

// SpawnComposite behaves identically to Spawn — `echo !! echo` must be
// indistinguishable from a plain `echo` (spec.md §8 invariant 7).
func (a actor) SpawnComposite(rt component.Runtime, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	a.Spawn(rt, md, addr, mb)
}
