// Package stdio implements the `stdin` / `stdout` / `stdio` components,
// realizing scenario §8.1 (a pipeline wired straight to the process's
// standard streams). Grounded on
// _examples/original_source/components/stdio/src/lib.rs, whose single
// Spec registers all three function names and dispatches on
// function_name exactly like this Component does.
package stdio

import (
	"bufio"
	"context"
	"os"

	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/metadata"
	"github.com/ylxdzsw/sopipe/internal/sopipeerr"
)

const readBufSize = 1024

type Component struct{}

func New() *Component { return &Component{} }

func (*Component) Functions() []string { return []string{"stdin", "stdout", "stdio"} }
func (*Component) Name() string        { return "stdio" }

type config struct {
	NoFlush bool `arg:"no_flush"`
}

func (*Component) Create(args argument.List) (component.Actor, error) {
	var cfg config
	if err := argument.Parse(args, &cfg); err != nil {
		return nil, sopipeerr.Misusef("stdio: %w", err)
	}
	fn := args.FunctionName()
	a := &actor{
		UnimplementedActor: component.UnimplementedActor{Component: fn},
		readsStdin:         fn == "stdin" || fn == "stdio",
		writesStdout:       fn == "stdout" || fn == "stdio",
		noFlush:            cfg.NoFlush,
	}
	if a.readsStdin && len(args.OutputNames()) != 1 {
		return nil, sopipeerr.Misusef("%s: requires exactly one output", fn)
	}
	return a, nil
}

type actor struct {
	component.UnimplementedActor
	readsStdin   bool
	writesStdout bool
	noFlush      bool
}

// SpawnSource is valid for stdin/stdio: reads os.Stdin and pushes each
// chunk to the single downstream until EOF.
func (a *actor) SpawnSource(rt component.Runtime) {
	if !a.readsStdin {
		panic("stdio: " + a.Component + " is not a valid source")
	}
	rt.SpawnTaskWithRuntime(func(ctx context.Context, rt component.Runtime) {
		addr, mb := rt.Channel()
		rt.SpawnNext(0, metadata.New(), addr, mb)
		readStdin(ctx, addr)
	})
}

func readStdin(ctx context.Context, addr component.Address) {
	defer addr.Close()
	buf := make([]byte, readBufSize)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			frame := make(component.Frame, n)
			copy(frame, buf[:n])
			if sendErr := addr.Send(ctx, frame); sendErr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Spawn is valid for stdout/stdio: drains the mailbox and writes each
// frame to os.Stdout, flushing after every frame unless `no_flush` was
// given.
func (a *actor) Spawn(rt component.Runtime, _ metadata.MetaData, addr component.Address, mb component.Mailbox) {
	if !a.writesStdout {
		panic("stdio: " + a.Component + " does not support the middle/sink position")
	}
	rt.SpawnTask(func(ctx context.Context) {
		defer mb.Close()
		if addr != nil {
			defer addr.Close()
		}
		w := bufio.NewWriter(os.Stdout)
		for {
			f, ok := mb.Recv(ctx)
			if !ok {
				return
			}
			if _, err := w.Write(f); err != nil {
				return
			}
			if !a.noFlush {
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
}
