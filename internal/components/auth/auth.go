// Package auth implements `auth_client` / `auth_server(key, salt?,
// method?, redis?)`: a time-based HMAC replay guard. Grounded on
// _examples/original_source/components/auth/src/{lib,time}.rs — only
// the "time" method is ported; "challenge" is a Non-goal (SPEC_FULL.md
// §4.7).
package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ylxdzsw/sopipe/internal/actorsys"
	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/metadata"
	"github.com/ylxdzsw/sopipe/internal/sopipeerr"
	"github.com/ylxdzsw/sopipe/internal/store/redisreplay"
)

const (
	defaultSalt  = "sopipe_is_good"
	pbkdf2Iter   = 4096
	macSize      = sha256.Size
	timestampLen = 8

	// serverTolerancePast/Future bound how far a client's clock may
	// drift from the server's (spec.md: [-5s, +1s]).
	serverTolerancePast   = 5 * time.Second
	serverToleranceFuture = 1 * time.Second
)

type Component struct{}

func New() *Component { return &Component{} }

func (*Component) Functions() []string { return []string{"auth_client", "auth_server"} }
func (*Component) Name() string        { return "auth" }

type config struct {
	Key    string  `arg:"key"`
	Method string  `arg:"method"`
	Salt   *string `arg:"salt"`
	Redis  string  `arg:"redis"`
}

func (*Component) Create(args argument.List) (component.Actor, error) {
	if n := len(args.OutputNames()); n != 1 {
		return nil, sopipeerr.Misusef("auth: must have exactly 1 output")
	}
	var cfg config
	if err := argument.Parse(args, &cfg); err != nil {
		return nil, sopipeerr.Misusef("auth: %w", err)
	}
	if cfg.Method != "" && cfg.Method != "time" {
		return nil, sopipeerr.Misusef("auth: unknown auth method %q. Available: time", cfg.Method)
	}

	salt := defaultSalt
	if cfg.Salt != nil {
		salt = *cfg.Salt
	}
	key := deriveKey([]byte(salt), []byte(cfg.Key))

	fn := args.FunctionName()
	a := &actor{UnimplementedActor: component.UnimplementedActor{Component: fn}, key: key, isClient: fn == "auth_client"}
	if !a.isClient && cfg.Redis != "" {
		a.shared = redisreplay.NewReplayGuard(cfg.Redis, "sopipe:auth")
	}
	return a, nil
}

func deriveKey(salt, pass []byte) []byte {
	return pbkdf2.Key(pass, salt, pbkdf2Iter, macSize, sha256.New)
}

func sign(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

type actor struct {
	component.UnimplementedActor
	key      []byte
	isClient bool
	lastTime atomic.Uint64         // server-side replay guard, scoped to this configured key
	shared   *redisreplay.ReplayGuard // non-nil when `redis:` was given (auth_server only)
}

func (a *actor) Spawn(rt component.Runtime, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	if a.isClient {
		a.spawnClient(rt, md, addr, mb)
	} else {
		a.spawnServer(rt, md, addr, mb)
	}
}

func (a *actor) spawnClient(rt component.Runtime, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	addrNext, mbNext := rt.Channel()
	rt.SpawnNext(0, md, addr, mbNext)
	rt.SpawnTask(func(ctx context.Context) {
		now := uint64(time.Now().UnixMicro())
		msg := make([]byte, timestampLen)
		binary.BigEndian.PutUint64(msg, now)
		msg = append(msg, sign(a.key, msg)...)
		if err := addrNext.Send(ctx, msg); err != nil {
			addrNext.Close()
			mb.Close()
			return
		}
		actorsys.Pass(ctx, addrNext, mb)
	})
}

func (a *actor) spawnServer(rt component.Runtime, md metadata.MetaData, addr component.Address, mb component.Mailbox) {
	rt.SpawnTaskWithRuntime(func(ctx context.Context, rt component.Runtime) {
		handedOff := false
		defer func() {
			if !handedOff {
				if addr != nil {
					addr.Close()
				}
				mb.Close()
			}
		}()

		headerLen := timestampLen + macSize
		var buf []byte
		for len(buf) < headerLen {
			f, ok := mb.Recv(ctx)
			if !ok {
				return
			}
			buf = append(buf, f...)
		}

		timestamp := binary.BigEndian.Uint64(buf[:timestampLen])
		if !a.acceptTimestamp(ctx, timestamp) {
			return
		}

		if !hmac.Equal(sign(a.key, buf[:timestampLen]), buf[timestampLen:headerLen]) {
			if origin, ok := metadata.Get[string](md, metadata.KeyOriginAddr); ok {
				rt.Logger().Errorf("auth: failed attempt from %s", origin)
			} else {
				rt.Logger().Errorf("auth: failed attempt")
			}
			return
		}

		addrNext, mbNext := rt.Channel()
		rt.SpawnNext(0, md, addr, mbNext)
		handedOff = true
		if len(buf) > headerLen {
			if err := addrNext.Send(ctx, bytes.Clone(buf[headerLen:])); err != nil {
				addrNext.Close()
				mb.Close()
				return
			}
		}
		actorsys.Pass(ctx, addrNext, mb)
	})
}

// acceptTimestamp applies the [-5s, +1s] clock-skew tolerance and the
// strictly-increasing replay guard (spec.md §8 invariant 6, §9c).
func (a *actor) acceptTimestamp(ctx context.Context, timestamp uint64) bool {
	now := uint64(time.Now().UnixMicro())
	if timestamp < now-uint64(serverTolerancePast.Microseconds()) || timestamp > now+uint64(serverToleranceFuture.Microseconds()) {
		return false
	}
	if a.shared != nil {
		ok, err := a.shared.Accept(ctx, fmt.Sprintf("last_time:%x", sha256.Sum256(a.key)), int64(timestamp))
		if err == nil {
			return ok
		}
		// redis unavailable: fall through to the in-process guard rather
		// than fail every stream.
	}
	for {
		last := a.lastTime.Load()
		if timestamp <= last {
			return false
		}
		if a.lastTime.CompareAndSwap(last, timestamp) {
			return true
		}
	}
}
