// Package tcp implements the `tcp(port)` / `tcp(addr)` component: a TCP
// endpoint whose shape is picked by which spawn method the runtime calls
// (spec.md §9), not by a synthesized `direction` argument the way
// _examples/original_source/components/tcp/src/{listen,passive}.rs does
// it — `SpawnSource` runs the accept loop (valid only when configured
// with a port), `Spawn` dials out to the destination carried in MetaData
// (set by e.g. socks5_server) or else to the configured address; a
// stream that carries a destination is rejected when an address or port
// is also configured.
package tcp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/metadata"
	"github.com/ylxdzsw/sopipe/internal/sopipeerr"
)

// acceptTimeout bounds how long a listener's Accept blocks before the
// loop rechecks the process runlevel (spec.md §4.5/§5, grounded on
// listen.rs/passive.rs's `tokio::time::timeout(Duration::from_secs(1),
// listener.accept())`).
const acceptTimeout = time.Second

const initPollInterval = 20 * time.Millisecond

const readBufSize = 4096

type Component struct{}

func New() *Component { return &Component{} }

func (*Component) Functions() []string { return []string{"tcp"} }
func (*Component) Name() string        { return "tcp" }

// Create accepts a single positional argument, either an int (a port —
// `tcp(2222)`) or a string (an address, optionally "host:port" —
// `tcp("example:80")`); both may be supplied together via `port:`/`addr:`
// keywords. Matches lib.rs's raw match on the positional/`port` argument
// rather than a declarative schema, since the positional's type alone
// picks the field.
func (*Component) Create(args argument.List) (component.Actor, error) {
	a := &actor{UnimplementedActor: component.UnimplementedActor{Component: "tcp"}}
	for _, p := range args {
		switch p.Name {
		case "", "port", "addr":
		default:
			continue // function_name, outputs, and any other reserved/unknown keys
		}
		if n, ok := p.Value.AsInt(); ok {
			port := uint16(n)
			a.port = &port
			continue
		}
		if s, ok := p.Value.AsString(); ok {
			a.addr = &s
			continue
		}
		return nil, sopipeerr.Misusef("tcp: positional argument must be a port (int) or an address (string)")
	}
	switch n := len(args.OutputNames()); n {
	case 0, 1:
		a.hasOutput = n == 1
	default:
		return nil, sopipeerr.Misusef("tcp: can only accept one output")
	}
	return a, nil
}

type actor struct {
	component.UnimplementedActor
	addr      *string
	port      *uint16
	hasOutput bool
}

// SpawnSource runs the accept loop: `tcp(port)` used as the graph root.
func (a *actor) SpawnSource(rt component.Runtime) {
	if a.port == nil {
		panic("tcp: a source position requires a port argument")
	}
	if !a.hasOutput {
		panic("tcp: a source position requires exactly one output")
	}
	rt.SpawnTaskWithRuntime(func(ctx context.Context, rt component.Runtime) {
		a.listen(ctx, rt)
	})
}

// Spawn dials out: `tcp(addr)` or bare `tcp()` used mid-pipeline, using
// the metadata-carried destination when present (e.g. after
// socks5_server) and falling back to the configured address/port.
func (a *actor) Spawn(rt component.Runtime, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	host, port, err := a.resolveDestination(md)
	if err != nil {
		rt.Logger().Errorf("%v", err)
		addr.Close()
		mb.Close()
		return
	}
	rt.SpawnTaskWithRuntime(func(ctx context.Context, rt component.Runtime) {
		a.dial(ctx, rt, host, port, addr, mb)
	})
}

func (a *actor) resolveDestination(md metadata.MetaData) (string, uint16, error) {
	metaAddr, hasMetaAddr := metadata.Take[string](md, metadata.KeyDestinationAddr)
	metaPort, hasMetaPort := metadata.Take[uint16](md, metadata.KeyDestinationPort)
	if hasMetaAddr || hasMetaPort {
		if a.addr != nil || a.port != nil {
			return "", 0, fmt.Errorf("tcp: the stream already carries destination information")
		}
		return metaAddr, metaPort, nil
	}

	if a.addr == nil {
		return "", 0, fmt.Errorf("tcp: no destination address configured or carried by the stream")
	}
	if a.port != nil {
		return *a.addr, *a.port, nil
	}
	host, portStr, err := net.SplitHostPort(*a.addr)
	if err != nil {
		return "", 0, fmt.Errorf("tcp: %q is not host:port and no port argument was given: %w", *a.addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("tcp: invalid port in %q: %w", *a.addr, err)
	}
	return host, uint16(port), nil
}

func (a *actor) dial(ctx context.Context, rt component.Runtime, host string, port uint16, addr component.Address, mb component.Mailbox) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		rt.Logger().Errorf("connect error: %v", err)
		addr.Close()
		mb.Close()
		return
	}
	rt.SpawnTask(func(ctx context.Context) { readLoop(ctx, conn, addr) })
	rt.SpawnTask(func(context.Context) { writeLoop(conn, mb) })
}

func (a *actor) listen(ctx context.Context, rt component.Runtime) {
	host := "0.0.0.0"
	if a.addr != nil {
		host = *a.addr
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(*a.port))))
	if err != nil {
		rt.Logger().Errorf("listen error: %v", err)
		return
	}
	defer ln.Close()
	tl := ln.(*net.TCPListener)

	for rt.RunLevel() == component.RunLevelInit {
		time.Sleep(initPollInterval)
	}

	for rt.RunLevel() == component.RunLevelRun {
		tl.SetDeadline(time.Now().Add(acceptTimeout))
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			rt.Logger().Errorf("accept error: %v", err)
			continue
		}
		rt.Logger().Infof("accepted connection from %s", conn.RemoteAddr())

		md := metadata.New()
		md.Set(metadata.KeyStreamType, "tcp")
		md.Set(metadata.KeyOriginAddr, conn.RemoteAddr().String())
		md.Set(metadata.KeyStreamID, uuid.New().String())

		forwardAddr, forwardMailbox := rt.Channel()
		backwardAddr, backwardMailbox := rt.Channel()
		rt.SpawnNext(0, md, backwardAddr, forwardMailbox)
		rt.SpawnTask(func(ctx context.Context) { readLoop(ctx, conn, forwardAddr) })
		rt.SpawnTask(func(context.Context) { writeLoop(conn, backwardMailbox) })
	}
}

func readLoop(ctx context.Context, conn net.Conn, addr component.Address) {
	defer addr.Close()
	buf := make([]byte, readBufSize)
	for {
		n, err := conn.Read(buf)
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

func writeLoop(conn net.Conn, mb component.Mailbox) {
	defer conn.Close()
	for {
		f, ok := mb.Recv(context.Background())
		if !ok {
			return
		}
		if _, err := conn.Write(f); err != nil {
			return
		}
	}
}
