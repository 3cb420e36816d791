// Package clickproducer is the buffered click-event producer from spec
// §4.H: an at-least-once Kafka producer over github.com/Shopify/sarama,
// the message bus library grounded on the rest of the example pack's
// manifests. Click ingestion never blocks a redirect, so Publish enqueues
// onto an in-process buffered channel and drops the oldest entry on
// overflow rather than applying backpressure to the caller.
package clickproducer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jordigilh/urlshort/internal/model"
)

// Options configures the producer per spec §4.H defaults.
type Options struct {
	Topic         string
	BufferSize    int
	FlushInterval time.Duration
	FlushBytes    int
}

// DefaultOptions mirrors the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		Topic:         "click-events",
		BufferSize:    10_000,
		FlushInterval: 5 * time.Second,
		FlushBytes:    64 * 1024,
	}
}

// Producer buffers click events in-process and forwards them to Kafka,
// partitioned by short code so one aggregator consumer always observes
// the full click history for a given code in order.
type Producer struct {
	opts    Options
	async   sarama.AsyncProducer
	buf     chan model.ClickEvent
	done    chan struct{}
	log     *zap.Logger
	dropped int64
}

// New dials brokers; it does not start the forwarding loop. Callers
// must call Run in a goroutine (or via an errgroup) before Publish is
// useful; Publish itself never blocks on the network.
func New(brokers []string, opts Options, log *zap.Logger) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true
	cfg.Producer.Flush.Frequency = opts.FlushInterval
	cfg.Producer.Flush.Bytes = opts.FlushBytes
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	async, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = 10_000
	}
	p := &Producer{
		opts:  opts,
		async: async,
		buf:   make(chan model.ClickEvent, opts.BufferSize),
		done:  make(chan struct{}),
		log:   log,
	}
	return p, nil
}

// Publish enqueues a click event. If the buffer is full, the oldest
// queued event is dropped to make room (spec §4.H's overflow policy) —
// ingestion favors availability over completeness.
func (p *Producer) Publish(ev model.ClickEvent) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	select {
	case p.buf <- ev:
	default:
		select {
		case <-p.buf:
			p.dropped++
			p.log.Warn("click event buffer full, dropped oldest", zap.String("shortCode", ev.ShortCode))
		default:
		}
		select {
		case p.buf <- ev:
		default:
		}
	}
}

// Run drains the buffer onto the Kafka producer and logs delivery errors
// until ctx is cancelled. It also drains the underlying async producer's
// error channel so sarama never blocks on a full error queue.
func (p *Producer) Run(ctx context.Context) error {
	go func() {
		for err := range p.async.Errors() {
			p.log.Warn("click event delivery failed", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return p.shutdown()
		case ev := <-p.buf:
			p.send(ev)
		}
	}
}

func (p *Producer) send(ev model.ClickEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("click event marshal failed", zap.Error(err))
		return
	}
	p.async.Input() <- &sarama.ProducerMessage{
		Topic: p.opts.Topic,
		Key:   sarama.StringEncoder(ev.ShortCode),
		Value: sarama.ByteEncoder(raw),
	}
}

// shutdown flushes whatever remains in the in-process buffer synchronously
// and closes the underlying producer, per spec §4.H's drain-on-stop rule.
func (p *Producer) shutdown() error {
	for {
		select {
		case ev := <-p.buf:
			p.send(ev)
		default:
			close(p.done)
			return p.async.Close()
		}
	}
}

// Dropped returns the cumulative count of events dropped by buffer
// overflow.
func (p *Producer) Dropped() int64 { return p.dropped }
