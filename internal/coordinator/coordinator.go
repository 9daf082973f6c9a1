// Package coordinator turns a callback-driven, one-operation-at-a-time radio
// API into awaitable request/response calls.
//
// Every GATT completion callback hands its result to Deliver. A caller issues
// an operation through SubmitAndWait, which runs the side effect (the actual
// GATT call) and then consumes the shared FIFO result channel until a result
// with the awaited id shows up or the deadline passes. Results for any other id
// are discarded.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/groutine"
	"github.com/srg/perbench/internal/ringchan"
)

const (
	// MTUID is the correlation id of MTU negotiation results.
	MTUID = "MTU"

	DefaultTimeout = 5 * time.Second
	DefaultBuffer  = 64
)

// ErrClosed is returned by SubmitAndWait once the coordinator has been closed.
var ErrClosed = errors.New("coordinator closed")

// Kind is the kind of radio operation a request stands for.
type Kind int

const (
	KindRead Kind = iota
	KindWrite
	KindEnableNotify
	KindDisableNotify
	KindNegotiateMTU
)

func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindEnableNotify:
		return "enable-notify"
	case KindDisableNotify:
		return "disable-notify"
	case KindNegotiateMTU:
		return "negotiate-mtu"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Request is an outstanding radio operation.
type Request struct {
	ID       string
	Kind     Kind
	Deadline time.Time // zero means now + the coordinator's timeout
}

// Result is the completion of a Request.
type Result struct {
	ID     string
	Value  []byte
	Status device.Status
}

// OK reports whether the platform reported success.
func (r Result) OK() bool { return r.Status.OK() }

// Err returns a *StatusError for non-success statuses and nil otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{ID: r.ID, Status: r.Status}
}

// StatusError is a non-success GATT status carried by a Result.
type StatusError struct {
	ID     string
	Status device.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gatt operation %q failed with status %s", e.ID, e.Status)
}

// TimeoutError reports that no matching result arrived before the deadline.
// The radio operation itself keeps running.
type TimeoutError struct {
	ID      string
	Kind    Kind
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %q: no result within %s", e.Kind, e.ID, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return device.ErrTimeout }

// Stats are lifetime counters of a Coordinator.
type Stats struct {
	Delivered int64 // results handed to Deliver
	Matched   int64 // results returned to a waiting caller
	Discarded int64 // results whose id did not match the awaited one
	Flushed   int64 // results already buffered when a request was issued
	Overflow  int64 // results overwritten because nobody consumed them
	Timeouts  int64
	Overlaps  int64 // SubmitAndWait calls made while another was in flight
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the default wait for requests without a deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBuffer sets the capacity of the result channel.
func WithBuffer(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// Coordinator bridges GATT callbacks and sequential callers.
//
// It does not serialize callers; overlapping calls are only detected and
// logged. Callers that share a coordinator must issue one request at a time.
type Coordinator struct {
	results  *ringchan.RingChannel[Result]
	logger   *logrus.Logger
	timeout  time.Duration
	buffer   int
	inFlight atomic.Pointer[Request]
	closed   atomic.Bool

	delivered, matched, discarded, flushed, timeouts, overlaps atomic.Int64
}

// New creates a coordinator with DefaultTimeout and DefaultBuffer unless overridden.
func New(logger *logrus.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Coordinator{
		logger:  logger,
		timeout: DefaultTimeout,
		buffer:  DefaultBuffer,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.results = ringchan.New[Result](c.buffer)
	return c
}

// Timeout returns the default wait applied to requests without a deadline.
func (c *Coordinator) Timeout() time.Duration {
	return c.timeout
}

// NewRequest builds a request that expires after the coordinator's timeout.
func (c *Coordinator) NewRequest(id string, kind Kind) Request {
	return Request{ID: id, Kind: kind, Deadline: time.Now().Add(c.timeout)}
}

// Deliver queues a result. It never blocks: when the channel is full the
// oldest buffered result is dropped.
func (c *Coordinator) Deliver(r Result) {
	c.delivered.Add(1)
	if c.closed.Load() {
		c.logger.WithField("id", r.ID).Debug("Result delivered after close, dropping")
		return
	}
	if c.results.ForceSend(r) {
		c.logger.WithFields(logrus.Fields{
			"id":       r.ID,
			"capacity": c.results.Cap(),
		}).Warn("Result channel full, dropped oldest result")
	}
}

// SubmitAndWait runs sideEffect and waits for the result whose id is req.ID.
//
// Results buffered before the side effect runs belong to earlier requests
// and are flushed. A side effect error is returned wrapped and nothing is
// awaited. On deadline a *TimeoutError is returned; when ctx ends first its
// error is returned.
func (c *Coordinator) SubmitAndWait(ctx context.Context, req Request, sideEffect func() error) (Result, error) {
	if c.closed.Load() {
		return Result{}, ErrClosed
	}
	if req.Deadline.IsZero() {
		req.Deadline = time.Now().Add(c.timeout)
	}
	timeout := time.Until(req.Deadline)

	if prev := c.inFlight.Swap(&req); prev != nil {
		c.overlaps.Add(1)
		c.logger.WithFields(logrus.Fields{
			"id":             req.ID,
			"kind":           req.Kind.String(),
			"caller":         groutine.GetName(ctx),
			"in_flight":      prev.ID,
			"in_flight_kind": prev.Kind.String(),
		}).Warn("Operation submitted while another is in flight")
	}
	defer c.inFlight.CompareAndSwap(&req, nil)

	if stale := c.results.Drain(); len(stale) > 0 {
		c.flushed.Add(int64(len(stale)))
		c.logger.WithFields(logrus.Fields{
			"id":      req.ID,
			"flushed": len(stale),
		}).Debug("Flushed stale results before issuing operation")
	}

	logger := c.logger.WithFields(logrus.Fields{
		"id":      req.ID,
		"kind":    req.Kind.String(),
		"timeout": timeout,
	})
	if caller := groutine.GetName(ctx); caller != "" {
		logger = logger.WithField("caller", caller)
	}
	logger.Debug("Issuing operation")

	if sideEffect != nil {
		if err := sideEffect(); err != nil {
			logger.WithField("error", err).Debug("Operation could not be issued")
			return Result{}, fmt.Errorf("%s %q: %w", req.Kind, req.ID, err)
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case r, ok := <-c.results.C():
			if !ok {
				return Result{}, ErrClosed
			}
			if r.ID != req.ID {
				c.discarded.Add(1)
				logger.WithField("result_id", r.ID).Debug("Discarding result for another operation")
				continue
			}
			c.matched.Add(1)
			logger.WithField("status", r.Status.String()).Debug("Operation completed")
			return r, nil
		case <-timer.C:
			c.timeouts.Add(1)
			logger.Warn("Operation timed out")
			return Result{}, &TimeoutError{ID: req.ID, Kind: req.Kind, Timeout: timeout}
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
}

// InFlight returns the request currently awaited, if any.
func (c *Coordinator) InFlight() (Request, bool) {
	if r := c.inFlight.Load(); r != nil {
		return *r, true
	}
	return Request{}, false
}

// Stats returns a snapshot of the lifetime counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Delivered: c.delivered.Load(),
		Matched:   c.matched.Load(),
		Discarded: c.discarded.Load(),
		Flushed:   c.flushed.Load(),
		Overflow:  c.results.GetMetrics().Overwritten,
		Timeouts:  c.timeouts.Load(),
		Overlaps:  c.overlaps.Load(),
	}
}

// Close wakes any waiter with ErrClosed. Later deliveries are dropped.
func (c *Coordinator) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.results.Close()
}
