// Package tracker is the entry point hosts call: it validates and normalizes
// an event, suppresses local duplicates and hands the event to the
// dispatcher, either inline or through the worker pool.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Priya8975/capi-relay/internal/commerce"
	"github.com/Priya8975/capi-relay/internal/domain"
	"github.com/Priya8975/capi-relay/internal/engine"
	ws "github.com/Priya8975/capi-relay/internal/websocket"
	"github.com/Priya8975/capi-relay/internal/worker"
)

// DefaultSource tags events that originate on the server.
const DefaultSource = "server"

// Deduper is satisfied by *engine.DedupGuard.
type Deduper interface {
	Allow(ctx context.Context, session, eventName string, params any, source string) bool
}

// Enqueuer is satisfied by *worker.Pool.
type Enqueuer interface {
	Submit(job worker.Job) bool
}

// OrderGuard records that an order's Purchase was tracked. MarkOrderTracked
// returns false when the order was already marked.
type OrderGuard interface {
	MarkOrderTracked(ctx context.Context, orderID, eventID string) (bool, error)
}

type Monitor interface {
	Broadcast(event ws.DispatchEvent)
}

// SendOptions tunes a single track call.
type SendOptions struct {
	// EventID is the id already handed to the browser Pixel. Empty mints one.
	EventID  string
	TestCode string
	// Source distinguishes emitters of the same event for dedup. Defaults to
	// DefaultSource.
	Source   string
}

type Tracker struct {
	normalizer *engine.Normalizer
	dedup      Deduper
	sender     worker.Sender
	pool       Enqueuer
	orders     OrderGuard
	monitor    Monitor
	logger     *slog.Logger
}

// Option configures optional collaborators.
type Option func(*Tracker)

func WithDedup(d Deduper) Option {
	return func(t *Tracker) { t.dedup = d }
}

func WithPool(p Enqueuer) Option {
	return func(t *Tracker) { t.pool = p }
}

func WithOrderGuard(g OrderGuard) Option {
	return func(t *Tracker) { t.orders = g }
}

func WithMonitor(m Monitor) Option {
	return func(t *Tracker) { t.monitor = m }
}

func New(normalizer *engine.Normalizer, sender worker.Sender, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		normalizer: normalizer,
		sender:     sender,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Validate checks an event name and custom data without sending anything.
func (t *Tracker) Validate(name string, data domain.CustomData) error {
	return t.normalizer.Validate(name, data)
}

// NewEventID mints an id the host can share between the browser Pixel and
// the server send.
func (t *Tracker) NewEventID(name string) (string, error) {
	if !engine.IsAllowedEventName(name) {
		return "", &domain.ValidationError{Field: "event_name", Reason: fmt.Sprintf("unknown event %q", name)}
	}
	return t.normalizer.NewEventID(name), nil
}

// NormalizeAndSend builds the event and sends it inline. Validation failures
// are returned as errors; send failures are reported in the result.
func (t *Tracker) NormalizeAndSend(ctx context.Context, rc domain.RequestContext, name string, data domain.CustomData, ud *domain.UserData, opts SendOptions) (domain.DispatchResult, error) {
	return t.track(ctx, rc, name, data, ud, opts, false)
}

// Enqueue builds the event and queues it for a background send. The result
// carries the event id; Success reports whether the event was queued.
func (t *Tracker) Enqueue(ctx context.Context, rc domain.RequestContext, name string, data domain.CustomData, ud *domain.UserData, opts SendOptions) (domain.DispatchResult, error) {
	return t.track(ctx, rc, name, data, ud, opts, true)
}

// TrackPurchase tracks an order's Purchase at most once per order id. A
// repeat returns domain.ErrAlreadyTracked.
func (t *Tracker) TrackPurchase(ctx context.Context, rc domain.RequestContext, order commerce.Order, opts SendOptions, async bool) (domain.DispatchResult, error) {
	data, err := commerce.Purchase(order)
	if err != nil {
		return domain.DispatchResult{}, err
	}

	billing := order.Billing
	ev, err := t.normalizer.Normalize(engine.RawEvent{
		Name:       "Purchase",
		CustomData: data,
		UserData:   &billing,
		EventID:    opts.EventID,
	}, rc)
	if err != nil {
		return domain.DispatchResult{}, err
	}

	if t.orders != nil {
		first, err := t.orders.MarkOrderTracked(ctx, order.ID, ev.EventID)
		if err != nil {
			return domain.DispatchResult{}, fmt.Errorf("marking order %s tracked: %w", order.ID, err)
		}
		if !first {
			t.logger.Info("purchase already tracked", "order_id", order.ID)
			return domain.DispatchResult{}, domain.ErrAlreadyTracked
		}
	}

	return t.deliver(ctx, ev, opts.TestCode, async), nil
}

func (t *Tracker) track(ctx context.Context, rc domain.RequestContext, name string, data domain.CustomData, ud *domain.UserData, opts SendOptions, async bool) (domain.DispatchResult, error) {
	ev, err := t.normalizer.Normalize(engine.RawEvent{
		Name:       name,
		CustomData: data,
		UserData:   ud,
		EventID:    opts.EventID,
	}, rc)
	if err != nil {
		return domain.DispatchResult{}, err
	}

	source := strings.TrimSpace(opts.Source)
	if source == "" {
		source = DefaultSource
	}

	if t.dedup != nil && !t.dedup.Allow(ctx, rc.Session(), ev.EventName, ev.CustomData, source) {
		t.notifySuppressed(ev)
		return domain.DispatchResult{EventID: ev.EventID, ErrorKind: domain.ErrorKindDuplicate}, nil
	}

	return t.deliver(ctx, ev, opts.TestCode, async), nil
}

func (t *Tracker) deliver(ctx context.Context, ev *domain.TrackedEvent, testCode string, async bool) domain.DispatchResult {
	if !async || t.pool == nil {
		return t.sender.Send(ctx, ev, testCode)
	}

	if !t.pool.Submit(worker.Job{Event: ev, TestCode: testCode}) {
		return domain.DispatchResult{EventID: ev.EventID, ErrorKind: domain.ErrorKindDropped}
	}
	return domain.DispatchResult{Success: true, EventID: ev.EventID}
}

func (t *Tracker) notifySuppressed(ev *domain.TrackedEvent) {
	if t.monitor == nil {
		return
	}
	t.monitor.Broadcast(ws.DispatchEvent{
		Type:      ws.TypeEventSuppressed,
		EventID:   ev.EventID,
		EventName: ev.EventName,
		ErrorKind: domain.ErrorKindDuplicate,
	})
}
