// Package erp delivers validated record batches to the downstream ERP.
// The dispatcher wraps a BatchSender with retry, jittered exponential
// backoff and a per-endpoint circuit breaker.
package erp

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/EthanVT97/rangoon-middleware/internal/metrics"
)

// DispatcherConfig tunes batching, retry and breaker behavior.
type DispatcherConfig struct {
	BatchSize        int
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = time.Minute
	}
	return c
}

// Rejection attributes a dispatch failure to one record.
type Rejection struct {
	Record Record
	Reason string
}

// BatchResult is the outcome of dispatching one batch. Accepted and Rejected
// together cover every record in the batch.
type BatchResult struct {
	Accepted []Record
	Rejected []Rejection
	Response map[string]interface{}
	Attempts int
}

// Dispatcher sends batches through a BatchSender, retrying transient
// failures and tripping a per-endpoint circuit breaker on consecutive ones.
type Dispatcher struct {
	sender BatchSender
	clock  Clock
	cfg    DispatcherConfig
	log    zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
	onChange func(endpoint string, from, to BreakerState)
}

// NewDispatcher builds a dispatcher around sender. Pass RealClock outside
// tests.
func NewDispatcher(sender BatchSender, clock Clock, cfg DispatcherConfig, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		clock:    clock,
		cfg:      cfg.withDefaults(),
		log:      log.With().Str("component", "dispatcher").Logger(),
		breakers: make(map[string]*Breaker),
	}
}

// OnBreakerChange registers a callback fired on every breaker transition,
// used for metrics and operator alerts. Call before the first Dispatch.
func (d *Dispatcher) OnBreakerChange(fn func(endpoint string, from, to BreakerState)) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// BatchSize returns the configured records-per-batch limit.
func (d *Dispatcher) BatchSize() int { return d.cfg.BatchSize }

// Batches splits records into dispatch-sized chunks, preserving order.
func (d *Dispatcher) Batches(records []Record) [][]Record {
	if len(records) == 0 {
		return nil
	}
	var out [][]Record
	for start := 0; start < len(records); start += d.cfg.BatchSize {
		end := start + d.cfg.BatchSize
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}

// BreakerState reports the breaker position and consecutive-failure count
// for an endpoint. Unknown endpoints read as closed.
func (d *Dispatcher) BreakerState(endpoint string) (BreakerState, int) {
	d.mu.Lock()
	br, ok := d.breakers[endpoint]
	d.mu.Unlock()
	if !ok {
		return BreakerClosed, 0
	}
	return br.State(), br.FailureCount()
}

// BreakerRetryAfter reports how long until the endpoint's breaker admits a
// trial request.
func (d *Dispatcher) BreakerRetryAfter(endpoint string) time.Duration {
	d.mu.Lock()
	br, ok := d.breakers[endpoint]
	d.mu.Unlock()
	if !ok {
		return 0
	}
	return br.RetryAfter()
}

func (d *Dispatcher) breaker(endpoint string) *Breaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	br, ok := d.breakers[endpoint]
	if !ok {
		br = NewBreaker(endpoint, d.cfg.FailureThreshold, d.cfg.Cooldown, d.clock, d.notifyChange)
		d.breakers[endpoint] = br
	}
	return br
}

func (d *Dispatcher) notifyChange(endpoint string, from, to BreakerState) {
	d.mu.Lock()
	fn := d.onChange
	d.mu.Unlock()
	d.log.Warn().
		Str("endpoint", endpoint).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("circuit breaker state changed")
	if fn != nil {
		fn(endpoint, from, to)
	}
}

// backoff returns the delay before the next attempt: exponential doubling
// from BaseDelay, capped at MaxDelay, with jitter in [d/2, d].
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.cfg.MaxDelay {
			delay = d.cfg.MaxDelay
			break
		}
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// Dispatch sends one batch, retrying transient failures (network errors and
// 5xx replies) up to MaxAttempts with backoff in between. 4xx replies are
// permanent and reject the batch immediately. An open breaker returns an
// *OpenError without touching the wire; exhausted retries reject the whole
// batch rather than returning an error.
//
// Cancelling ctx never aborts a send already on the wire: an in-flight batch
// runs to completion so its outcome can be attributed. Cancellation takes
// effect between attempts.
func (d *Dispatcher) Dispatch(ctx context.Context, endpoint string, records []Record) (BatchResult, error) {
	br := d.breaker(endpoint)
	var lastErr string

	start := time.Now()
	defer func() {
		metrics.DispatchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := br.Allow(); err != nil {
			return BatchResult{}, err
		}

		resp, err := d.sender.SendBatch(context.WithoutCancel(ctx), endpoint, records)
		switch {
		case err != nil:
			// A cancelled caller is not an ERP fault; leave the shared
			// breaker alone and surface the cancellation.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return BatchResult{}, ctxErr
			}
			br.RecordFailure()
			lastErr = err.Error()
			d.log.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempt).
				Msg("batch dispatch failed")
		case resp.StatusCode < 300:
			br.RecordSuccess()
			return acceptedResult(records, resp, attempt), nil
		case resp.StatusCode >= 500:
			br.RecordFailure()
			lastErr = fmt.Sprintf("ERP returned HTTP %d", resp.StatusCode)
			d.log.Warn().Str("endpoint", endpoint).Int("status", resp.StatusCode).
				Int("attempt", attempt).Msg("batch dispatch failed")
		default:
			// 4xx: the batch itself is bad, retrying cannot help.
			br.RecordFailure()
			return rejectedResult(records, resp, attempt), nil
		}

		if attempt < d.cfg.MaxAttempts {
			if err := d.clock.Sleep(ctx, d.backoff(attempt)); err != nil {
				return BatchResult{}, err
			}
		}
	}

	reason := "dispatch retries exhausted: " + lastErr
	return BatchResult{
		Rejected: rejectAll(records, reason),
		Response: map[string]interface{}{"error": lastErr, "attempts": d.cfg.MaxAttempts},
		Attempts: d.cfg.MaxAttempts,
	}, nil
}

// acceptedResult splits a 2xx acknowledgement into accepted and rejected
// records using the per-row verdicts when the ERP provided them.
func acceptedResult(records []Record, resp *BatchResponse, attempt int) BatchResult {
	out := BatchResult{Response: responseSummary(resp), Attempts: attempt}
	if len(resp.Results) != len(records) {
		out.Accepted = records
		return out
	}
	for i, r := range resp.Results {
		if r.Accepted {
			out.Accepted = append(out.Accepted, records[i])
		} else {
			reason := r.Reason
			if reason == "" {
				reason = "rejected by ERP"
			}
			out.Rejected = append(out.Rejected, Rejection{Record: records[i], Reason: reason})
		}
	}
	return out
}

// rejectedResult attributes a 4xx reply to each record, per row when the
// acknowledgement carries verdicts, otherwise batch-wide.
func rejectedResult(records []Record, resp *BatchResponse, attempt int) BatchResult {
	out := BatchResult{Response: responseSummary(resp), Attempts: attempt}
	if len(resp.Results) == len(records) && len(records) > 0 {
		for i, r := range resp.Results {
			if r.Accepted {
				out.Accepted = append(out.Accepted, records[i])
			} else {
				reason := r.Reason
				if reason == "" {
					reason = fmt.Sprintf("rejected by ERP (HTTP %d)", resp.StatusCode)
				}
				out.Rejected = append(out.Rejected, Rejection{Record: records[i], Reason: reason})
			}
		}
		return out
	}
	reason := fmt.Sprintf("ERP rejected batch: HTTP %d", resp.StatusCode)
	if msg := bodyMessage(resp.Body); msg != "" {
		reason += ": " + msg
	}
	out.Rejected = rejectAll(records, reason)
	return out
}

func rejectAll(records []Record, reason string) []Rejection {
	out := make([]Rejection, len(records))
	for i, r := range records {
		out[i] = Rejection{Record: r, Reason: reason}
	}
	return out
}

func responseSummary(resp *BatchResponse) map[string]interface{} {
	summary := map[string]interface{}{"status_code": resp.StatusCode}
	if len(resp.Body) > 0 {
		summary["body"] = resp.Body
	}
	return summary
}

func bodyMessage(body map[string]interface{}) string {
	for _, key := range []string{"error", "message", "detail"} {
		if msg, ok := body[key].(string); ok && msg != "" {
			return msg
		}
	}
	return ""
}
