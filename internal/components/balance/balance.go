// Package balance implements the `balance(outputs: N, method:
// "round_robin", redis: addr?)` component: it assigns each new stream to
// the next output index modulo N. Grounded on
// _examples/original_source/components/balance/src/lib.rs and
// pkg/actor/types/router.go's RoundRobinRouter in the teacher. The
// optional `redis` argument is a DOMAIN STACK addition (SPEC_FULL.md
// §4.7) letting several sopipe processes share one counter through
// internal/store/redisreplay.
package balance

import (
	"context"
	"sync/atomic"

	"github.com/ylxdzsw/sopipe/internal/actorsys"
	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/metadata"
	"github.com/ylxdzsw/sopipe/internal/sopipeerr"
	"github.com/ylxdzsw/sopipe/internal/store/redisreplay"
)

type Component struct{}

func New() *Component { return &Component{} }

func (*Component) Functions() []string { return []string{"balance"} }
func (*Component) Name() string        { return "balance" }

type config struct {
	Method string `arg:"method"`
	Redis  string `arg:"redis"`
}

func (*Component) Create(args argument.List) (component.Actor, error) {
	n := len(args.OutputNames())
	if n < 1 {
		return nil, sopipeerr.Misusef("balance: requires at least one output")
	}
	var cfg config
	if err := argument.Parse(args, &cfg); err != nil {
		return nil, sopipeerr.Misusef("balance: %w", err)
	}
	if cfg.Method != "" && cfg.Method != "round_robin" {
		return nil, sopipeerr.Misusef("balance: unsupported method %q", cfg.Method)
	}

	a := &actor{UnimplementedActor: component.UnimplementedActor{Component: "balance"}, nOutputs: uint64(n)}
	if cfg.Redis != "" {
		a.shared = redisreplay.NewCounter(cfg.Redis, "sopipe:balance")
	}
	return a, nil
}

type actor struct {
	component.UnimplementedActor
	nOutputs uint64
	counter  atomic.Uint64
	shared   *redisreplay.Counter // nil unless `redis:` was given
}

// next picks the output index for a newly-arriving stream. The shared
// redis path is best-effort: on error it falls back to the in-process
// counter rather than failing the stream (an optional coordination
// feature should not make balance less available than it was without
// redis).
func (a *actor) next() uint64 {
	if a.shared != nil {
		if n, err := a.shared.Next(context.Background()); err == nil {
			return n % a.nOutputs
		}
	}
	return a.counter.Add(1) - 1
}

func (a *actor) Spawn(rt component.Runtime, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	idx := int(a.next() % a.nOutputs)
	forwardAddr, forwardMailbox := rt.Channel()
	backwardAddr, backwardMailbox := rt.Channel()
	rt.SpawnNext(idx, md, backwardAddr, forwardMailbox)
	rt.SpawnTask(func(ctx context.Context) { actorsys.Pass(ctx, addr, backwardMailbox) })
	rt.SpawnTask(func(ctx context.Context) { actorsys.Pass(ctx, forwardAddr, mb) })
}
