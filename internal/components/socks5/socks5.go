// Package socks5 implements the `socks5_server` component: a byte-exact
// SOCKS5 NO-AUTH handshake and CONNECT parser that hands the parsed
// destination to the next node via MetaData, then passes the connection
// through transparently. Grounded on
// _examples/original_source/components/socks5/src/server.rs.
package socks5

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/ylxdzsw/sopipe/internal/actorsys"
	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/metadata"
)

type Component struct{}

func New() *Component { return &Component{} }

func (*Component) Functions() []string { return []string{"socks5_server"} }
func (*Component) Name() string        { return "socks5_server" }

func (*Component) Create(args argument.List) (component.Actor, error) {
	return actor{component.UnimplementedActor{Component: "socks5_server"}}, nil
}

type actor struct {
	component.UnimplementedActor
}

func (a actor) Spawn(rt component.Runtime, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	rt.SpawnTaskWithRuntime(func(ctx context.Context, rt component.Runtime) {
		negotiate(ctx, rt, md, addr, mb)
	})
}

// negotiate runs the handshake and CONNECT parse inline on the task that
// owns the connection's address/mailbox, then wires the data-phase
// forward/backward pump exactly like the original's final two spawned
// tasks.
func negotiate(ctx context.Context, rt component.Runtime, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	var buf []byte

	handedOff := false
	defer func() {
		if !handedOff {
			if addr != nil {
				addr.Close()
			}
			mb.Close()
		}
	}()

	recv := func() bool {
		f, ok := mb.Recv(ctx)
		if !ok {
			return false
		}
		buf = append(buf, f...)
		return true
	}

	// handshake: version, n-methods, methods; reply with the chosen
	// method or 0xff when NO AUTH isn't offered.
	var consumed int
	for {
		if len(buf) < 2 {
			if !recv() {
				return
			}
			continue
		}
		if buf[0] != 5 {
			rt.Logger().Errorf("socks5: unsupported version %d", buf[0])
			return
		}
		nMethods := int(buf[1])
		if len(buf) < 2+nMethods {
			if !recv() {
				return
			}
			continue
		}
		methods := buf[2 : 2+nMethods]
		if !containsByte(methods, 0) {
			_ = addr.Send(ctx, component.Frame{5, 0xff})
			rt.Logger().Errorf("socks5: client does not support NO AUTH")
			return
		}
		if err := addr.Send(ctx, component.Frame{5, 0}); err != nil {
			return
		}
		consumed = 2 + nMethods
		break
	}

	// request: version, cmd, rsv, atyp, dest addr, dest port.
	var destAddr string
	var destPort uint16
	for {
		slice := buf[consumed:]
		if len(slice) < 4 {
			if !recv() {
				return
			}
			continue
		}
		ver, cmd, atyp := slice[0], slice[1], slice[3]
		if ver != 5 {
			rt.Logger().Errorf("socks5: unsupported version %d", ver)
			return
		}
		if cmd != 1 {
			rt.Logger().Errorf("socks5: unsupported command %d", cmd)
		}

		rest := slice[4:]
		var addrBytes []byte
		switch atyp {
		case 0x01:
			if len(rest) < 4 {
				if !recv() {
					return
				}
				continue
			}
			addrBytes, rest = rest[:4], rest[4:]
			destAddr = net.IP(addrBytes).String()
		case 0x04:
			if len(rest) < 16 {
				if !recv() {
					return
				}
				continue
			}
			addrBytes, rest = rest[:16], rest[16:]
			destAddr = net.IP(addrBytes).String()
		case 0x03:
			if len(rest) < 1 {
				if !recv() {
					return
				}
				continue
			}
			n := int(rest[0])
			if len(rest) < 1+n {
				if !recv() {
					return
				}
				continue
			}
			destAddr = string(rest[1 : 1+n])
			rest = rest[1+n:]
		default:
			rt.Logger().Errorf("socks5: unknown ATYP %d", atyp)
			return
		}

		if len(rest) < 2 {
			if !recv() {
				return
			}
			continue
		}
		destPort = binary.BigEndian.Uint16(rest[:2])
		consumed = len(buf) - (len(rest) - 2)
		break
	}

	reply := component.Frame{5, 0, 0, 1, 0, 0, 0, 0, 0, 0}
	if err := addr.Send(ctx, reply); err != nil {
		return
	}

	md.Set(metadata.KeyDestinationAddr, destAddr)
	md.Set(metadata.KeyDestinationPort, destPort)
	rt.Logger().Infof("socks5: CONNECT %s", fmt.Sprintf("%s:%d", destAddr, destPort))

	forwardAddr, forwardMailbox := rt.Channel()
	backwardAddr, backwardMailbox := rt.Channel()
	rt.SpawnNext(0, md, backwardAddr, forwardMailbox)
	handedOff = true

	rt.SpawnTask(func(ctx context.Context) {
		defer forwardAddr.Close()
		if len(buf) > consumed {
			if err := forwardAddr.Send(ctx, component.Frame(buf[consumed:])); err != nil {
				return
			}
		}
		for {
			f, ok := mb.Recv(ctx)
			if !ok {
				return
			}
			if err := forwardAddr.Send(ctx, f); err != nil {
				return
			}
		}
	})
	rt.SpawnTask(func(ctx context.Context) { actorsys.Pass(ctx, addr, backwardMailbox) })
}

func containsByte(b []byte, v byte) bool {
	for _, x := range b {
		if x == v {
			return true
		}
	}
	return false
}
