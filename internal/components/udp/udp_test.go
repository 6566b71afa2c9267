package udp

import (
	"testing"

	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/metadata"
)

func TestCreateParsesPortAndAddr(t *testing.T) {
	c := New()
	a, err := c.Create(argument.List{
		{Name: argument.KeyFunctionName, Value: argument.String("udp")},
		{Name: "addr", Value: argument.String("10.0.0.1")},
		{Name: "port", Value: argument.Int(5353)},
		{Name: argument.KeyOutputs, Value: argument.ListValue(nil)},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	impl := a.(*actor)
	if impl.addr == nil || *impl.addr != "10.0.0.1" {
		t.Errorf("addr = %v, want 10.0.0.1", impl.addr)
	}
	if impl.port == nil || *impl.port != 5353 {
		t.Errorf("port = %v, want 5353", impl.port)
	}
}

func TestResolveDestinationRequiresBothAddrAndPort(t *testing.T) {
	addr := "example.org"
	impl := &actor{addr: &addr}
	if _, _, err := impl.resolveDestination(metadata.New()); err == nil {
		t.Fatal("expected error: addr without port is insufficient for udp, unlike tcp")
	}
}

func TestResolveDestinationFromMetadata(t *testing.T) {
	impl := &actor{}
	md := metadata.New()
	md.Set(metadata.KeyDestinationAddr, "198.51.100.1")
	md.Set(metadata.KeyDestinationPort, uint16(53))
	host, port, err := impl.resolveDestination(md)
	if err != nil {
		t.Fatalf("resolveDestination: %v", err)
	}
	if host != "198.51.100.1" || port != 53 {
		t.Errorf("got %s:%d", host, port)
	}
}

func TestCreateRejectsTwoOutputs(t *testing.T) {
	c := New()
	_, err := c.Create(argument.List{
		{Name: argument.KeyFunctionName, Value: argument.String("udp")},
		{Value: argument.Int(53)},
		{Name: argument.KeyOutputs, Value: argument.ListValue([]argument.Value{argument.String(""), argument.String("")})},
	})
	if err == nil {
		t.Fatal("expected error for two outputs")
	}
}
