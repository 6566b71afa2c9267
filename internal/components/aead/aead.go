// Package aead implements `aead_encode` / `aead_decode(key, method?,
// salt?)`: an authenticated stream cipher pair, usable standalone
// (`Spawn`, full-duplex: the encoder encodes outgoing and decodes
// incoming, the decoder is its mirror) or as either leg of a `!!`
// composite (`SpawnComposite`, one direction only). Grounded on
// _examples/original_source/components/aead/src/lib.rs. DOMAIN STACK:
// built on golang.org/x/crypto/chacha20poly1305 instead of the
// original's selectable ring algorithm — the idiomatic Go AEAD
// construction, and the only one this package supports (SPEC_FULL.md
// §4.7); `method` is still accepted and must name chacha20 or be empty.
package aead

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/metadata"
	"github.com/ylxdzsw/sopipe/internal/sopipeerr"
)

const (
	defaultSalt = "sopipe_is_good"
	pbkdf2Iter  = 4096
	ivLen       = 4
	nonceLen    = chacha20poly1305.NonceSize
)

type Component struct{}

func New() *Component { return &Component{} }

func (*Component) Functions() []string { return []string{"aead_encode", "aead_decode"} }
func (*Component) Name() string        { return "aead" }

type config struct {
	Key       string  `arg:"key"`
	Algorithm string  `arg:"method"`
	Salt      *string `arg:"salt"`
}

func (*Component) Create(args argument.List) (component.Actor, error) {
	if n := len(args.OutputNames()); n != 1 {
		return nil, sopipeerr.Misusef("aead: must have exactly 1 output")
	}
	var cfg config
	if err := argument.Parse(args, &cfg); err != nil {
		return nil, sopipeerr.Misusef("aead: %w", err)
	}
	switch cfg.Algorithm {
	case "", "chacha20", "chacha20_poly1305":
	default:
		return nil, sopipeerr.Misusef("aead: unknown cipher %q, only chacha20_poly1305 is supported", cfg.Algorithm)
	}

	salt := defaultSalt
	if cfg.Salt != nil {
		salt = *cfg.Salt
	}
	key := pbkdf2.Key([]byte(cfg.Key), []byte(salt), pbkdf2Iter, chacha20poly1305.KeySize, sha256.New)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, sopipeerr.Fatalf("aead: %w", err)
	}

	fn := args.FunctionName()
	return &actor{
		UnimplementedActor: component.UnimplementedActor{Component: fn},
		aead:               aead,
		isEncoder:          fn == "aead_encode",
	}, nil
}

type actor struct {
	component.UnimplementedActor
	aead      cipher.AEAD
	isEncoder bool
}

func (a *actor) Spawn(rt component.Runtime, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	if st, ok := metadata.Get[string](md, metadata.KeyStreamType); ok && st == "udp" {
		rt.Logger().Errorf("aead is not designed for UDP streams")
	}

	forwardAddr, forwardMailbox := rt.Channel()
	backwardAddr, backwardMailbox := rt.Channel()
	rt.SpawnNext(0, md, backwardAddr, forwardMailbox)

	if a.isEncoder {
		rt.SpawnTask(func(ctx context.Context) { a.encode(ctx, rt, forwardAddr, mb) })
		rt.SpawnTask(func(ctx context.Context) { a.decode(ctx, rt, addr, backwardMailbox) })
	} else {
		rt.SpawnTask(func(ctx context.Context) { a.decode(ctx, rt, forwardAddr, mb) })
		rt.SpawnTask(func(ctx context.Context) { a.encode(ctx, rt, addr, backwardMailbox) })
	}
}

func (a *actor) SpawnComposite(rt component.Runtime, _ metadata.MetaData, addr component.Address, mb component.Mailbox) {
	if a.isEncoder {
		rt.SpawnTask(func(ctx context.Context) { a.encode(ctx, rt, addr, mb) })
	} else {
		rt.SpawnTask(func(ctx context.Context) { a.decode(ctx, rt, addr, mb) })
	}
}

// nonceCounter reproduces the original's NonceSequence: a per-stream
// random 4-byte IV followed by a monotonically incremented 8-byte
// big-endian counter, advanced once per Seal/Open call.
type nonceCounter struct {
	iv    [ivLen]byte
	count uint64
}

func (n *nonceCounter) next() []byte {
	nonce := make([]byte, nonceLen)
	copy(nonce, n.iv[:])
	binary.BigEndian.PutUint64(nonce[ivLen:], n.count)
	n.count++
	return nonce
}

// encode seals every frame twice — once for its 2-byte length prefix,
// once for its content — without additional authenticated data, and
// prefixes the stream with a random IV. Grounded on Actor::encode.
func (a *actor) encode(ctx context.Context, rt component.Runtime, addr component.Address, mb component.Mailbox) {
	defer addr.Close()
	defer mb.Close()

	var counter nonceCounter
	if _, err := rand.Read(counter.iv[:]); err != nil {
		rt.Logger().Errorf("aead: failed to generate IV: %v", err)
		return
	}
	if err := addr.Send(ctx, append([]byte(nil), counter.iv[:]...)); err != nil {
		return
	}

	for {
		msg, ok := mb.Recv(ctx)
		if !ok {
			return
		}
		if len(msg) == 0 {
			continue
		}
		if len(msg) > 1<<16 {
			rt.Logger().Errorf("aead: frame too large to encode (%d bytes)", len(msg))
			continue
		}

		lengthField := make([]byte, 2)
		binary.BigEndian.PutUint16(lengthField, uint16(len(msg)-1))

		sealedLen := a.aead.Seal(nil, counter.next(), lengthField, nil)
		sealedContent := a.aead.Seal(nil, counter.next(), msg, nil)

		out := make([]byte, 0, len(sealedLen)+len(sealedContent))
		out = append(out, sealedLen...)
		out = append(out, sealedContent...)
		if err := addr.Send(ctx, out); err != nil {
			return
		}
	}
}

// decode is encode's mirror: it consumes the IV prefix, then opens each
// frame's length seal and content seal in turn, re-framing the decoded
// content as one outgoing Frame per original message.
func (a *actor) decode(ctx context.Context, rt component.Runtime, addr component.Address, mb component.Mailbox) {
	defer addr.Close()
	defer mb.Close()

	var buf []byte
	recv := func() bool {
		f, ok := mb.Recv(ctx)
		if !ok {
			return false
		}
		buf = append(buf, f...)
		return true
	}

	for len(buf) < ivLen {
		if !recv() {
			return
		}
	}
	var counter nonceCounter
	copy(counter.iv[:], buf[:ivLen])
	buf = buf[ivLen:]

	tagLen := a.aead.Overhead()
	for {
		lengthOffset := 2 + tagLen
		for len(buf) < lengthOffset {
			if !recv() {
				return
			}
		}
		plainLen, err := a.aead.Open(nil, counter.next(), buf[:lengthOffset], nil)
		if err != nil {
			rt.Logger().Errorf("aead: decryption failed: %v", err)
			return
		}
		length := int(binary.BigEndian.Uint16(plainLen[:2])) + 1

		totalOffset := lengthOffset + length + tagLen
		for len(buf) < totalOffset {
			if !recv() {
				return
			}
		}
		content, err := a.aead.Open(nil, counter.next(), buf[lengthOffset:totalOffset], nil)
		if err != nil {
			rt.Logger().Errorf("aead: decryption failed: %v", err)
			return
		}
		if err := addr.Send(ctx, append([]byte(nil), content...)); err != nil {
			return
		}

		buf = buf[totalOffset:]
	}
}
