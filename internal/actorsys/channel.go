package actorsys

import (
	"context"
	"errors"
	"sync"

	"github.com/ylxdzsw/sopipe/internal/component"
)

// ErrClosed is returned by Send once the channel has been torn down,
// either because the consumer stopped recv'ing or the producer finished
// sending (spec.md §3: "every send returns success or a closed error").
var ErrClosed = errors.New("actorsys: channel closed")

// channelCapacity bounds every channel to ~4 frames (spec.md §3, §5):
// the sole backpressure mechanism, kept small so memory stays
// proportional to the number of active streams.
const channelCapacity = 4

// pipe is the shared state behind one address/mailbox pair. Either end
// may close it — spec.md §3 treats "mailbox recv empty" and "send
// closed" as the same cascading teardown signal, so there is exactly
// one close, not a producer-close/consumer-close distinction.
type pipe struct {
	ch     chan component.Frame
	done   chan struct{}
	once   sync.Once
}

func (p *pipe) close() { p.once.Do(func() { close(p.done) }) }

type chanAddress struct{ p *pipe }
type chanMailbox struct{ p *pipe }

// newChannel establishes a new bounded address/mailbox pair.
func newChannel() (component.Address, component.Mailbox) {
	p := &pipe{ch: make(chan component.Frame, channelCapacity), done: make(chan struct{})}
	return chanAddress{p: p}, chanMailbox{p: p}
}

func (a chanAddress) Send(ctx context.Context, f component.Frame) error {
	select {
	case <-a.p.done:
		return ErrClosed
	default:
	}
	select {
	case a.p.ch <- f:
		return nil
	case <-a.p.done:
		return ErrClosed
	case <-ctx.Done():
		a.p.close()
		return ctx.Err()
	}
}

// Close tears down the pipe; any blocked or future Send returns
// ErrClosed, and Recv returns (nil, false) once the frames already
// buffered have been received.
// Components call this from a defer when they stop using their end of
// the pipe (mirrors the Rust original's Sender/Receiver drop semantics,
// which Go's GC does not give us for free).
func (a chanAddress) Close() { a.p.close() }

func (m chanMailbox) Recv(ctx context.Context) (component.Frame, bool) {
	select {
	case f, ok := <-m.p.ch:
		if !ok {
			return nil, false
		}
		return f, true
	case <-m.p.done:
		select {
		case f := <-m.p.ch:
			return f, true
		default:
			return nil, false
		}
	case <-ctx.Done():
		return nil, false
	}
}

func (m chanMailbox) Close() { m.p.close() }
