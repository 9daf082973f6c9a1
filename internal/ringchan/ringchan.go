// Package ringchan provides a bounded channel with overwrite-oldest semantics.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers never block: if the buffer is full, the oldest element is
// discarded. Sends after Close are dropped and counted instead of panicking,
// so platform callbacks that fire late are harmless.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.ForceSend(i)
//	}
//	for v := range rc.C() { // 7, 8, 9
//	    fmt.Println(v)
//	}
type RingChannel[T any] struct {
	ch      chan T
	mu      sync.RWMutex // guards closed against concurrent sends
	closed  bool
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
//
// Reads from C() bypass the Processed metric.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// ForceSend always succeeds immediately, discarding the oldest elements if needed.
// It reports whether anything was discarded to make room.
func (rc *RingChannel[T]) ForceSend(v T) (dropped bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.closed {
		rc.metrics.addError()
		return true
	}

	for {
		select {
		case rc.ch <- v:
			rc.metrics.addWritten(1)
			return dropped
		default:
		}
		// another producer may have refilled the slot; loop until ours lands
		select {
		case <-rc.ch:
			rc.metrics.addOverwritten(1)
			dropped = true
		default:
		}
	}
}

// TryReceive attempts a non-blocking receive.
// Returns (zero, false) if no value is ready.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.metrics.addProcessed(1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Drain discards everything currently buffered and returns what it removed.
func (rc *RingChannel[T]) Drain() []T {
	var out []T
	for {
		v, ok := rc.TryReceive()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the underlying channel. Idempotent.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	rc.closed = true
	close(rc.ch)
}

// GetMetrics returns a snapshot of current metrics values.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&rc.metrics.Processed),
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
		Errors:      atomic.LoadInt64(&rc.metrics.Errors),
	}
}

// Metrics provides lock-free counters for RingChannel.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
	Errors      int64 // sends after Close
}

func (m *Metrics) addProcessed(n int) {
	atomic.AddInt64(&m.Processed, int64(n))
}

func (m *Metrics) addWritten(n int) {
	atomic.AddInt64(&m.Written, int64(n))
}

func (m *Metrics) addOverwritten(n int) {
	atomic.AddInt64(&m.Overwritten, int64(n))
}

func (m *Metrics) addError() {
	atomic.AddInt64(&m.Errors, 1)
}
