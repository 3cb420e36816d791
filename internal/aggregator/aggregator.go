// Package aggregator is the click-aggregation consumer from spec §4.I: a
// sarama consumer group that folds click events into in-memory tumbling
// windows and periodically flushes them into the daily-summary store.
// Offsets are only committed once a window's flush has succeeded, so a
// crash mid-flush simply replays the window — UpsertSummaryHour is
// idempotent under replay per spec §3.
package aggregator

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"

	"github.com/jordigilh/urlshort/internal/geoip"
	"github.com/jordigilh/urlshort/internal/model"
	"github.com/jordigilh/urlshort/internal/store"
)

// Options configures the consumer per spec §4.I's documented defaults.
type Options struct {
	Topic         string
	GroupID       string
	WindowSize    time.Duration
	FlushInterval time.Duration
	LateGrace     time.Duration
	GeoTimeout    time.Duration
}

// DefaultOptions mirrors the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		Topic:         "click-events",
		GroupID:       "urlshort-aggregator",
		WindowSize:    5 * time.Minute,
		FlushInterval: 60 * time.Second,
		LateGrace:     60 * time.Second,
		GeoTimeout:    3 * time.Second,
	}
}

type markRef struct {
	session sarama.ConsumerGroupSession
	message *sarama.ConsumerMessage
}

// Aggregator consumes click events and maintains tumbling windows keyed
// by (short code, window start) until each window is flushed.
type Aggregator struct {
	opts      Options
	summaries store.SummaryStore
	events    store.EventStore
	client    sarama.ConsumerGroup
	geo       *geoip.Enricher
	log       *zap.Logger

	mu      sync.Mutex
	windows map[model.WindowKey]*model.WindowAggregate
	marks   map[model.WindowKey][]markRef
}

// New dials brokers and joins the consumer group. Run must be called to
// actually start consuming. geo is optional (nil disables country/region/
// city enrichment) and, when set, must already be running its own Run
// loop so its rate-limited queue drains independently of this consumer.
func New(brokers []string, summaries store.SummaryStore, events store.EventStore, geo *geoip.Enricher, opts Options, log *zap.Logger) (*Aggregator, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true
	cfg.Version = sarama.V2_8_0_0

	client, err := sarama.NewConsumerGroup(brokers, opts.GroupID, cfg)
	if err != nil {
		return nil, err
	}

	return &Aggregator{
		opts:      opts,
		summaries: summaries,
		events:    events,
		client:    client,
		geo:       geo,
		log:       log,
		windows:   make(map[model.WindowKey]*model.WindowAggregate),
		marks:     make(map[model.WindowKey][]markRef),
	}, nil
}

// Run joins the consumer group and flushes closed windows until ctx is
// cancelled, at which point it drains any still-open windows and closes
// the underlying client.
func (a *Aggregator) Run(ctx context.Context) error {
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		a.flushLoop(ctx)
	}()

	go func() {
		for err := range a.client.Errors() {
			a.log.Warn("consumer group error", zap.Error(err))
		}
	}()

	for ctx.Err() == nil {
		if err := a.client.Consume(ctx, []string{a.opts.Topic}, a); err != nil {
			a.log.Warn("consumer group session ended", zap.Error(err))
		}
	}

	<-flushDone
	a.flushAll(context.Background())
	return a.client.Close()
}

// Setup implements sarama.ConsumerGroupHandler.
func (a *Aggregator) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (a *Aggregator) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim implements sarama.ConsumerGroupHandler, folding every
// delivered message into its tumbling window without marking the offset;
// the offset is marked only once that window flushes successfully.
func (a *Aggregator) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			var ev model.ClickEvent
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				a.log.Warn("dropping malformed click event", zap.Error(err))
				sess.MarkMessage(msg, "")
				continue
			}
			a.enrich(sess.Context(), &ev)
			a.fold(ev, sess, msg)
		case <-sess.Context().Done():
			return nil
		}
	}
}

// enrich backfills country/region/city from the event's IP address when
// the producer didn't already populate them, via a bounded synchronous
// GeoIP lookup; it is a no-op when geo is unset, the event already
// carries geography, or the IP is missing/unparseable.
func (a *Aggregator) enrich(ctx context.Context, ev *model.ClickEvent) {
	if a.geo == nil || ev.CountryCode != "" || ev.IPAddress == "" {
		return
	}
	ip := net.ParseIP(ev.IPAddress)
	if ip == nil {
		return
	}
	if res, ok := a.geo.LookupSync(ctx, ip, a.opts.GeoTimeout); ok {
		ev.CountryCode, ev.Region, ev.City = res.CountryCode, res.Region, res.City
	}
}

func (a *Aggregator) fold(ev model.ClickEvent, sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
	key := model.WindowKey{
		ShortCode:   ev.ShortCode,
		WindowStart: ev.Timestamp.Truncate(a.opts.WindowSize),
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	w, ok := a.windows[key]
	if !ok {
		w = model.NewWindowAggregate(key, a.opts.WindowSize)
		a.windows[key] = w
	}
	w.Add(ev)
	a.marks[key] = append(a.marks[key], markRef{session: sess, message: msg})

	if err := a.events.InsertEvent(context.Background(), ev); err != nil {
		a.log.Debug("raw event insert skipped", zap.Error(err))
	}
}

// flushLoop periodically flushes windows that have passed their late
// arrival grace period.
func (a *Aggregator) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(a.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.flushReady(time.Now())
		}
	}
}

func (a *Aggregator) flushReady(now time.Time) {
	a.mu.Lock()
	ready := make([]model.WindowKey, 0)
	for key, w := range a.windows {
		if now.After(w.WindowEnd().Add(a.opts.LateGrace)) {
			ready = append(ready, key)
		}
	}
	a.mu.Unlock()

	for _, key := range ready {
		a.flushWindow(key)
	}
}

// flushAll drains every still-open window, used on shutdown.
func (a *Aggregator) flushAll(_ context.Context) {
	a.mu.Lock()
	keys := make([]model.WindowKey, 0, len(a.windows))
	for key := range a.windows {
		keys = append(keys, key)
	}
	a.mu.Unlock()

	for _, key := range keys {
		a.flushWindow(key)
	}
}

func (a *Aggregator) flushWindow(key model.WindowKey) {
	a.mu.Lock()
	w, ok := a.windows[key]
	refs := a.marks[key]
	a.mu.Unlock()
	if !ok {
		return
	}

	delta := store.HourDelta{
		Clicks:    w.ClickCount,
		UniqueIPs: int64(len(w.UniqueIPs)),
		Referrers: w.Referrers,
		Countries: w.Countries,
		Devices:   w.Devices,
		Browsers:  w.Browsers,
	}
	date := time.Date(key.WindowStart.Year(), key.WindowStart.Month(), key.WindowStart.Day(), 0, 0, 0, 0, key.WindowStart.Location())
	hour := key.WindowStart.Hour()

	err := a.summaries.UpsertSummaryHour(context.Background(), key.ShortCode, date, hour, delta)
	if err != nil {
		a.log.Warn("window flush failed, will retry next tick",
			zap.String("shortCode", key.ShortCode), zap.Time("windowStart", key.WindowStart), zap.Error(err))
		return
	}

	for _, ref := range refs {
		ref.session.MarkMessage(ref.message, "")
	}

	a.mu.Lock()
	delete(a.windows, key)
	delete(a.marks, key)
	a.mu.Unlock()
}
