package conversions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Priya8975/capi-relay/internal/domain"
	"github.com/Priya8975/capi-relay/internal/store"
	ws "github.com/Priya8975/capi-relay/internal/websocket"
)

// CounterStore keeps the day-bucketed sent/error counters.
type CounterStore interface {
	IncrSent(ctx context.Context) error
	IncrError(ctx context.Context) error
}

// DispatchLog persists one row per attempt.
type DispatchLog interface {
	RecordDispatch(ctx context.Context, rec store.DispatchRecord) error
}

// Breaker gates sends while the remote endpoint is failing.
type Breaker interface {
	Allow(ctx context.Context, pixelID string) (string, bool)
	RecordSuccess(ctx context.Context, pixelID string)
	RecordFailure(ctx context.Context, pixelID string)
}

// Monitor receives live dispatch outcomes.
type Monitor interface {
	Broadcast(event ws.DispatchEvent)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the default client (timeout from Config).
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

func WithCounters(c CounterStore) Option {
	return func(d *Dispatcher) { d.counters = c }
}

func WithDispatchLog(l DispatchLog) Option {
	return func(d *Dispatcher) { d.dispatchLog = l }
}

func WithBreaker(b Breaker) Option {
	return func(d *Dispatcher) { d.breaker = b }
}

func WithMonitor(m Monitor) Option {
	return func(d *Dispatcher) { d.monitor = m }
}

// WithVerifier sets the fallback verifier used after permission errors.
func WithVerifier(v *Verifier) Option {
	return func(d *Dispatcher) { d.verifier = v }
}

// Dispatcher sends single-event batches to the Conversions API. Sends are
// at-most-once: no retries, and failures are folded into the DispatchResult.
type Dispatcher struct {
	cfg         Config
	httpClient  *http.Client
	counters    CounterStore
	dispatchLog DispatchLog
	breaker     Breaker
	monitor     Monitor
	verifier    *Verifier
	logger      *slog.Logger
}

func NewDispatcher(cfg Config, logger *slog.Logger, opts ...Option) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// Send posts ev to the remote endpoint. testCode overrides the configured
// test event code when non-empty.
func (d *Dispatcher) Send(ctx context.Context, ev *domain.TrackedEvent, testCode string) domain.DispatchResult {
	result := domain.DispatchResult{EventID: ev.EventID}

	if !d.cfg.Enabled {
		result.ErrorKind = domain.ErrorKindDisabled
		return result
	}
	if !d.cfg.Configured() {
		d.logger.Error("conversions api not configured", "event_name", ev.EventName)
		result.ErrorKind = domain.ErrorKindNotConfigured
		return result
	}

	if d.breaker != nil {
		if state, ok := d.breaker.Allow(ctx, d.cfg.PixelID); !ok {
			d.logger.Warn("send skipped, circuit open",
				"event_id", ev.EventID,
				"pixel_id", d.cfg.PixelID,
				"state", state,
			)
			result.ErrorKind = domain.ErrorKindCircuitOpen
			d.notify(ev, result, 0)
			return result
		}
	}

	if testCode == "" {
		testCode = d.cfg.TestEventCode
	}

	start := time.Now()

	form, err := d.cfg.eventsForm(ev, testCode)
	if err != nil {
		result.ErrorKind = domain.ErrorKindEncoding
		result.RemoteMessage = err.Error()
		return d.finish(ctx, ev, start, result)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.EventsURL(), strings.NewReader(form.Encode()))
	if err != nil {
		result.ErrorKind = domain.ErrorKindTransport
		result.RemoteMessage = fmt.Sprintf("failed to create request: %v", err)
		return d.finish(ctx, ev, start, result)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", d.cfg.UserAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		result.ErrorKind = domain.ErrorKindTransport
		result.RemoteMessage = fmt.Sprintf("request failed: %v", err)
		return d.finish(ctx, ev, start, result)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	result.HTTPStatus = resp.StatusCode

	parsed, ok := parseGraphResponse(body)
	switch {
	case ok && parsed.Error != nil:
		result.RemoteCode = parsed.Error.Code
		result.RemoteMessage = parsed.Error.Message
		result.ErrorKind = ClassifyRemoteError(parsed.Error.Code)
		if triggersFallback(parsed.Error.Code) && d.verifier != nil {
			v := d.verifier.Probe(ctx)
			result.Verification = &v
		}
	case resp.StatusCode >= 400:
		result.ErrorKind = domain.ErrorKindRemote
		result.RemoteMessage = truncate(string(body), 256)
	default:
		result.Success = true
		if ok && parsed.EventsReceived != nil {
			result.EventsReceived = *parsed.EventsReceived
		}
	}

	return d.finish(ctx, ev, start, result)
}

// finish updates counters, breaker, log and monitor, then returns result.
func (d *Dispatcher) finish(ctx context.Context, ev *domain.TrackedEvent, start time.Time, result domain.DispatchResult) domain.DispatchResult {
	elapsed := time.Since(start).Milliseconds()

	if result.Success {
		if d.counters != nil {
			if err := d.counters.IncrSent(ctx); err != nil {
				d.logger.Error("failed to update sent counter", "error", err)
			}
		}
		if d.breaker != nil {
			d.breaker.RecordSuccess(ctx, d.cfg.PixelID)
		}
		d.logger.Info("event sent",
			"event_id", ev.EventID,
			"event_name", ev.EventName,
			"pixel_id", d.cfg.PixelID,
			"status_code", result.HTTPStatus,
			"events_received", result.EventsReceived,
			"response_time_ms", elapsed,
		)
	} else {
		if d.counters != nil {
			if err := d.counters.IncrError(ctx); err != nil {
				d.logger.Error("failed to update error counter", "error", err)
			}
		}
		if d.breaker != nil && countsAgainstEndpoint(result) {
			d.breaker.RecordFailure(ctx, d.cfg.PixelID)
		}
		d.logger.Warn("event send failed",
			"event_id", ev.EventID,
			"event_name", ev.EventName,
			"pixel_id", d.cfg.PixelID,
			"error_kind", result.ErrorKind,
			"remote_code", result.RemoteCode,
			"error", result.RemoteMessage,
			"status_code", result.HTTPStatus,
			"response_time_ms", elapsed,
		)
	}

	if d.dispatchLog != nil {
		status := "success"
		if !result.Success {
			status = "failed"
		}
		err := d.dispatchLog.RecordDispatch(ctx, store.DispatchRecord{
			EventID:        ev.EventID,
			EventName:      ev.EventName,
			PixelID:        d.cfg.PixelID,
			Status:         status,
			HTTPStatusCode: result.HTTPStatus,
			ErrorKind:      result.ErrorKind,
			RemoteMessage:  result.RemoteMessage,
			ResponseTimeMs: int(elapsed),
		})
		if err != nil {
			d.logger.Error("failed to record dispatch", "error", err, "event_id", ev.EventID)
		}
	}

	d.notify(ev, result, elapsed)
	return result
}

func (d *Dispatcher) notify(ev *domain.TrackedEvent, result domain.DispatchResult, elapsed int64) {
	if d.monitor == nil {
		return
	}
	typ := ws.TypeEventSent
	if !result.Success {
		typ = ws.TypeEventFailed
	}
	d.monitor.Broadcast(ws.DispatchEvent{
		Type:       typ,
		EventID:    ev.EventID,
		EventName:  ev.EventName,
		PixelID:    d.cfg.PixelID,
		StatusCode: result.HTTPStatus,
		ErrorKind:  result.ErrorKind,
		Error:      result.RemoteMessage,
		ResponseMs: elapsed,
	})
}

// countsAgainstEndpoint reports whether a failure says the endpoint itself is
// unhealthy, as opposed to a problem with this event or credential.
func countsAgainstEndpoint(result domain.DispatchResult) bool {
	switch result.ErrorKind {
	case domain.ErrorKindTransport, domain.ErrorKindThrottled:
		return true
	case domain.ErrorKindRemote:
		return result.HTTPStatus >= 500
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
