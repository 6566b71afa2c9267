package aead

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

func testRuntime() component.Runtime {
	var rt component.Runtime
	node := &actorsys.Node{Name: "test"}
	node.Forward = captureActor{fn: func(r component.Runtime) { rt = r }}
	node.Backward = node.Forward
	sys := actorsys.NewSystem(context.Background(), &actorsys.Graph{Nodes: []*actorsys.Node{node}})
	sys.SetRunLevel(component.RunLevelRun)
	sys.SpawnSource(node)
	return rt
}

func withOneOutput(fn string, pairs ...argument.Pair) argument.List {
	l := argument.List{{Name: argument.KeyFunctionName, Value: argument.String(fn)}}
	l = append(l, pairs...)
	l = append(l, argument.Pair{Name: argument.KeyOutputs, Value: argument.ListValue([]argument.Value{argument.String("")})})
	return l
}

func TestCreateRejectsUnknownCipher(t *testing.T) {
	c := New()
	_, err := c.Create(withOneOutput("aead_encode",
		argument.Pair{Name: "key", Value: argument.String("secret")},
		argument.Pair{Name: "method", Value: argument.String("aes_gcm")},
	))
	if err == nil {
		t.Fatal("expected error for unsupported cipher")
	}
}

func TestCreateRequiresExactlyOneOutput(t *testing.T) {
	c := New()
	args := argument.List{
		{Name: argument.KeyFunctionName, Value: argument.String("aead_encode")},
		{Name: "key", Value: argument.String("secret")},
		{Name: argument.KeyOutputs, Value: argument.ListValue(nil)},
	}
	if _, err := c.Create(args); err == nil {
		t.Fatal("expected error for zero outputs")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := New()
	encActor, err := c.Create(withOneOutput("aead_encode", argument.Pair{Name: "key", Value: argument.String("shared-secret")}))
	if err != nil {
		t.Fatalf("create encoder: %v", err)
	}
	decActor, err := c.Create(withOneOutput("aead_decode", argument.Pair{Name: "key", Value: argument.String("shared-secret")}))
	if err != nil {
		t.Fatalf("create decoder: %v", err)
	}

	rt := testRuntime()
	ctx := context.Background()

	plainIn, plainInMB := rt.Channel()
	cipherAddr, cipherMB := rt.Channel()
	encActor.SpawnComposite(rt, metadata.New(), cipherAddr, plainInMB)

	plainOutAddr, plainOutMB := rt.Channel()
	decActor.SpawnComposite(rt, metadata.New(), plainOutAddr, cipherMB)

	msgs := [][]byte{[]byte("hello"), []byte("a slightly longer frame of plaintext"), {0x00, 0x01}}
	go func() {
		defer plainIn.Close()
		for _, m := range msgs {
			if err := plainIn.Send(ctx, component.Frame(m)); err != nil {
				return
			}
		}
	}()

	for _, want := range msgs {
		got, ok := plainOutMB.Recv(ctx)
		if !ok {
			t.Fatal("decoder closed early")
		}
		if string(got) != string(want) {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestDecodeRejectsTamperedCiphertext(t *testing.T) {
	c := New()
	encActor, _ := c.Create(withOneOutput("aead_encode", argument.Pair{Name: "key", Value: argument.String("k")}))
	decActor, _ := c.Create(withOneOutput("aead_decode", argument.Pair{Name: "key", Value: argument.String("k")}))

	rt := testRuntime()
	ctx := context.Background()

	plainIn, plainInMB := rt.Channel()
	wireOutAddr, wireOutMB := rt.Channel() // encoder's raw output, under test control
	encActor.SpawnComposite(rt, metadata.New(), wireOutAddr, plainInMB)

	wireInAddr, wireInMB := rt.Channel() // decoder's raw input, under test control
	plainOutAddr, plainOutMB := rt.Channel()
	decActor.SpawnComposite(rt, metadata.New(), plainOutAddr, wireInMB)

	go func() {
		defer plainIn.Close()
		plainIn.Send(ctx, component.Frame("attack at dawn"))
	}()

	// relay every sealed frame through untouched except the last byte of
	// the first ciphertext frame (the IV), which we flip.
	first := true
	for {
		f, ok := wireOutMB.Recv(ctx)
		if !ok {
			wireInAddr.Close()
			break
		}
		if first {
			f = append(component.Frame(nil), f...)
			f[len(f)-1] ^= 0xff
			first = false
		}
		if err := wireInAddr.Send(ctx, f); err != nil {
			break
		}
	}

	if _, ok := plainOutMB.Recv(ctx); ok {
		t.Fatal("expected decoder to reject a tampered IV/first frame")
	}
}
