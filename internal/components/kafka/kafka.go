// Package kafka implements the `kafka(brokers, topic)` component: a
// DOMAIN STACK addition (SPEC_FULL.md §4.7) wired on
// github.com/segmentio/kafka-go, direction-selected the same way `tcp`
// is — `SpawnSource` consumes the topic's message values as opaque
// frames on a single downstream stream, `Spawn` produces each received
// frame as a Kafka message. Reader-side config grounded on the
// teacher's own `pkg/source/kafka.go` (kafka.ReaderConfig/kafka.Reader);
// the writer side has no teacher counterpart so it follows kafka-go's
// own idiomatic kafka.Writer usage.
package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ylxdzsw/sopipe/internal/argument"
	"github.com/ylxdzsw/sopipe/internal/component"
	"github.com/ylxdzsw/sopipe/internal/metadata"
	"github.com/ylxdzsw/sopipe/internal/sopipeerr"
)

const (
	initPollInterval = 20 * time.Millisecond
	readTimeout      = time.Second
	minBytes         = 1
	maxBytes         = 10 * 1024 * 1024
	maxWait          = 500 * time.Millisecond
)

type Component struct{}

func New() *Component { return &Component{} }

func (*Component) Functions() []string { return []string{"kafka"} }
func (*Component) Name() string        { return "kafka" }

type config struct {
	Brokers string `arg:"brokers"`
	Topic   string `arg:"topic"`
}

func (*Component) Create(args argument.List) (component.Actor, error) {
	var cfg config
	if err := argument.Parse(args, &cfg); err != nil {
		return nil, sopipeerr.Misusef("kafka: %w", err)
	}
	if cfg.Topic == "" {
		return nil, sopipeerr.Misusef("kafka: topic must not be empty")
	}
	brokers := strings.Split(cfg.Brokers, ",")
	if cfg.Brokers == "" || len(brokers) == 0 {
		return nil, sopipeerr.Misusef("kafka: brokers must not be empty")
	}

	a := &actor{
		UnimplementedActor: component.UnimplementedActor{Component: "kafka"},
		brokers:            brokers,
		topic:              cfg.Topic,
	}
	switch n := len(args.OutputNames()); n {
	case 0, 1:
		a.hasOutput = n == 1
	default:
		return nil, sopipeerr.Misusef("kafka: can only accept one output")
	}
	return a, nil
}

type actor struct {
	component.UnimplementedActor
	brokers   []string
	topic     string
	hasOutput bool
}

func (a *actor) SpawnSource(rt component.Runtime) {
	if !a.hasOutput {
		panic("kafka: a source position requires exactly one output")
	}
	rt.SpawnTaskWithRuntime(func(ctx context.Context, rt component.Runtime) {
		a.consume(ctx, rt)
	})
}

func (a *actor) Spawn(rt component.Runtime, _ metadata.MetaData, addr component.Address, mb component.Mailbox) {
	if a.hasOutput {
		panic("kafka: a producer position must not have an output")
	}
	rt.SpawnTaskWithRuntime(func(ctx context.Context, rt component.Runtime) {
		a.produce(ctx, rt, addr, mb)
	})
}

func (a *actor) consume(ctx context.Context, rt component.Runtime) {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  a.brokers,
		Topic:    a.topic,
		MinBytes: minBytes,
		MaxBytes: maxBytes,
		MaxWait:  maxWait,
	})
	defer reader.Close()

	for rt.RunLevel() == component.RunLevelInit {
		time.Sleep(initPollInterval)
	}

	forwardAddr, forwardMailbox := rt.Channel()
	backwardAddr, backwardMailbox := rt.Channel()
	md := metadata.New()
	md.Set(metadata.KeyStreamType, "kafka")
	md.Set(metadata.KeyOriginAddr, a.topic)
	rt.SpawnNext(0, md, backwardAddr, forwardMailbox)
	backwardMailbox.Close() // this source has no reply path

	defer forwardAddr.Close()
	for rt.RunLevel() == component.RunLevelRun {
		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		msg, err := reader.ReadMessage(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			rt.Logger().Errorf("read error: %v", err)
			continue
		}
		if err := forwardAddr.Send(ctx, component.Frame(msg.Value)); err != nil {
			return
		}
	}
}

func (a *actor) produce(ctx context.Context, rt component.Runtime, addr component.Address, mb component.Mailbox) {
	w := &kafkago.Writer{
		Addr:     kafkago.TCP(a.brokers...),
		Topic:    a.topic,
		Balancer: &kafkago.LeastBytes{},
	}
	defer w.Close()
	if addr != nil {
		defer addr.Close()
	}
	defer mb.Close()
	for {
		f, ok := mb.Recv(ctx)
		if !ok {
			return
		}
		if err := w.WriteMessages(ctx, kafkago.Message{Value: f}); err != nil {
			rt.Logger().Errorf("write error: %v", err)
			return
		}
	}
}
