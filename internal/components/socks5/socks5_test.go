package socks5

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

type sinkActor struct{ md chan metadata.MetaData }

func (s sinkActor) Spawn(rt component.Runtime, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	s.md <- md
	rt.SpawnTask(func(ctx context.Context) {
		if addr != nil {
			defer addr.Close()
		}
		for {
			if _, ok := mb.Recv(ctx); !ok {
				return
			}
		}
	})
}
func (sinkActor) SpawnSource(component.Runtime) {}
func (sinkActor) SpawnComposite(component.Runtime, metadata.MetaData, component.Address, component.Mailbox) {
}

// testGraph wires node 0 (a capture stand-in, its identity unused) with
// a single output to a metadata-capturing sink, and returns a Runtime
// bound to node 0 plus the channel the sink reports its received
// MetaData on.
func testGraph() (component.Runtime, chan metadata.MetaData) {
	mdCh := make(chan metadata.MetaData, 1)
	sink := &actorsys.Node{Name: "sink", Forward: sinkActor{md: mdCh}, Backward: sinkActor{md: mdCh}}

	var rt component.Runtime
	src := &actorsys.Node{Name: "src", Outputs: []int{1}}
	src.Forward = captureActor{fn: func(r component.Runtime) { rt = r }}
	src.Backward = src.Forward

	sys := actorsys.NewSystem(context.Background(), &actorsys.Graph{Nodes: []*actorsys.Node{src, sink}})
	sys.SetRunLevel(component.RunLevelRun)
	sys.SpawnSource(src)
	return rt, mdCh
}

func TestNegotiateParsesConnectIPv4(t *testing.T) {
	c := New()
	a, err := c.Create(argument.List{{Name: argument.KeyFunctionName, Value: argument.String("socks5_server")}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rt, mdCh := testGraph()
	ctx := context.Background()
	clientOut, serverMB := rt.Channel()
	serverOut, clientMB := rt.Channel()

	a.Spawn(rt, metadata.New(), serverOut, serverMB)

	// handshake: version 5, one method (NO AUTH).
	if err := clientOut.Send(ctx, component.Frame{5, 1, 0}); err != nil {
		t.Fatalf("send handshake: %v", err)
	}
	reply, ok := clientMB.Recv(ctx)
	if !ok || len(reply) != 2 || reply[0] != 5 || reply[1] != 0 {
		t.Fatalf("handshake reply = %v, ok=%v, want [5 0]", reply, ok)
	}

	// CONNECT 93.184.216.34:80 (example.com's old IPv4).
	req := component.Frame{5, 1, 0, 1, 93, 184, 216, 34, 0, 80}
	req = append(req, []byte("trailing-application-data")...)
	if err := clientOut.Send(ctx, req); err != nil {
		t.Fatalf("send request: %v", err)
	}
	reply2, ok := clientMB.Recv(ctx)
	if !ok || len(reply2) != 10 || reply2[0] != 5 || reply2[1] != 0 {
		t.Fatalf("connect reply = %v, ok=%v", reply2, ok)
	}

	md := <-mdCh
	addr, ok := metadata.Get[string](md, metadata.KeyDestinationAddr)
	if !ok || addr != "93.184.216.34" {
		t.Errorf("destination_addr = %q, ok=%v", addr, ok)
	}
	port, ok := metadata.Get[uint16](md, metadata.KeyDestinationPort)
	if !ok || port != 80 {
		t.Errorf("destination_port = %d, ok=%v", port, ok)
	}
}

func TestNegotiateRejectsWrongVersion(t *testing.T) {
	c := New()
	a, _ := c.Create(argument.List{{Name: argument.KeyFunctionName, Value: argument.String("socks5_server")}})

	rt, _ := testGraph()
	ctx := context.Background()
	clientOut, serverMB := rt.Channel()
	serverOut, clientMB := rt.Channel()
	a.Spawn(rt, metadata.New(), serverOut, serverMB)

	clientOut.Send(ctx, component.Frame{4, 1, 0})
	clientOut.Close()

	if _, ok := clientMB.Recv(ctx); ok {
		t.Fatal("expected no reply for an unsupported SOCKS version")
	}
}
