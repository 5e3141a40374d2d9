// Package dispatch executes the effects of flow runs in the background.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/bot-flow/internal/channel"
	"github.com/openkcm/bot-flow/internal/interpreter"
)

var ErrClosed = errors.New("dispatcher is closed")

type Config struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

type job struct {
	ctx  context.Context
	send interpreter.OutboundSend
}

// Dispatcher delivers outbound sends on a fixed pool of workers. Delivery
// order is not preserved.
type Dispatcher struct {
	sender  channel.Sender
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup

	delivered metric.Int64Counter
	failures  metric.Int64Counter
}

var _ = interpreter.EffectRunner(&Dispatcher{})

func New(ctx context.Context, sender channel.Sender, cfg Config) *Dispatcher {
	workers := max(cfg.Workers, 1)
	d := &Dispatcher{
		sender:  sender,
		timeout: cfg.SendTimeout,
		queue:   make(chan job, max(cfg.QueueSize, 0)),
	}
	d.initMeters(ctx)

	d.wg.Add(workers)
	for range workers {
		go d.work()
	}

	return d
}

func (d *Dispatcher) initMeters(ctx context.Context) {
	meter := otel.Meter("bot-flow/dispatch", metric.WithInstrumentationVersion(otel.Version()))

	var err error
	d.delivered, err = meter.Int64Counter(
		"dispatch.delivered",
		metric.WithDescription("Outbound messages handed to the channel sender"),
		metric.WithUnit("message"),
	)
	if err != nil {
		slogctx.Warn(ctx, "Could not create delivered meter", "error", err)
		d.delivered = noop.Int64Counter{}
	}

	d.failures, err = meter.Int64Counter(
		"dispatch.failures",
		metric.WithDescription("Outbound messages the channel sender failed to deliver"),
		metric.WithUnit("message"),
	)
	if err != nil {
		slogctx.Warn(ctx, "Could not create failures meter", "error", err)
		d.failures = noop.Int64Counter{}
	}
}

// Run queues the effects. It blocks while the queue is full. The effects
// outlive ctx cancellation but keep its values.
func (d *Dispatcher) Run(ctx context.Context, effects []interpreter.Effect) {
	ctx = context.WithoutCancel(ctx)

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, e := range effects {
		send, ok := e.(interpreter.OutboundSend)
		if !ok {
			slogctx.Warn(ctx, "Dropping effect of unknown type", "effect", e)
			continue
		}
		if d.closed {
			d.fail(ctx, send, ErrClosed)
			continue
		}
		d.queue <- job{ctx: ctx, send: send}
	}
}

// Close stops accepting effects and waits until the queued ones are
// delivered or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j.ctx, j.send)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, send interpreter.OutboundSend) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.sender.Send(ctx, send.Platform, send.Address, send.Message); err != nil {
		d.fail(ctx, send, err)
		return
	}

	d.delivered.Add(ctx, 1, metric.WithAttributes(attribute.String("platform", send.Platform)))
}

func (d *Dispatcher) fail(ctx context.Context, send interpreter.OutboundSend, err error) {
	slogctx.Error(ctx, "Could not deliver outbound message",
		"bot_id", send.BotID,
		"session_id", send.SessionID,
		"node_id", send.NodeID,
		"message_id", send.MessageID,
		"platform", send.Platform,
		"error", err,
	)
	d.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("platform", send.Platform)))
}
