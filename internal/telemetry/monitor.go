package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
)

// DefaultBufferSize is the frame ring capacity used when none is given.
const DefaultBufferSize uint32 = 256

// MonitorStats are lifetime counters of a Monitor.
type MonitorStats struct {
	Accepted    int64
	Duplicates  int64
	NoFrame     int64
	Overwritten int64 // frames lost because the sink fell behind
	Emitted     int64
	SinkErrors  int64
}

// Monitor decodes payloads forwarded from the scan path and pumps accepted
// frames to a Sink on its own goroutine. Offer never blocks: frames go into an
// overwrite-oldest ring.
type Monitor struct {
	decoder  *Decoder
	sink     Sink
	buffer   mpmc.RichOverlappedRingBuffer[Frame]
	wake     chan struct{}
	distance atomic.Pointer[string]
	logger   *logrus.Logger

	accepted, duplicates, noFrame, overwritten, emitted, sinkErrors atomic.Int64
}

// NewMonitor creates a Monitor. bufferSize 0 selects DefaultBufferSize.
func NewMonitor(decoder *Decoder, sink Sink, bufferSize uint32, logger *logrus.Logger) (*Monitor, error) {
	if sink == nil {
		return nil, fmt.Errorf("telemetry sink cannot be nil")
	}
	if decoder == nil {
		decoder = NewDecoder()
	}
	if bufferSize == 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	m := &Monitor{
		decoder: decoder,
		sink:    sink,
		buffer:  mpmc.NewOverlappedRingBuffer[Frame](bufferSize),
		wake:    make(chan struct{}, 1),
		logger:  logger,
	}
	empty := ""
	m.distance.Store(&empty)
	return m, nil
}

// SetDistance sets the operator-entered distance written with each row.
// An empty string means not available.
func (m *Monitor) SetDistance(d string) {
	m.distance.Store(&d)
}

// Reset clears duplicate history for address, e.g. when it is selected again.
func (m *Monitor) Reset(address string) {
	m.decoder.Reset(address)
}

// LastIndex returns the index of the last frame accepted from address.
func (m *Monitor) LastIndex(address string) (uint8, bool) {
	return m.decoder.LastIndex(address)
}

// Offer decodes payload for address and queues the frame if it is new.
func (m *Monitor) Offer(address string, payload []byte) Outcome {
	f, outcome := m.decoder.Decode(address, payload)
	switch outcome {
	case NoFrame:
		m.noFrame.Add(1)
		return outcome
	case Duplicate:
		m.duplicates.Add(1)
		return outcome
	}

	m.accepted.Add(1)
	overwrites, err := m.buffer.EnqueueM(f)
	if err != nil {
		m.logger.WithField("error", err).Error("Failed to queue telemetry frame")
		return outcome
	}
	if overwrites > 0 {
		m.overwritten.Add(int64(overwrites))
		m.logger.WithField("overwritten", overwrites).Debug("Telemetry sink is behind, oldest frames overwritten")
	}

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return outcome
}

// Run emits queued frames until ctx is done, then drains what is left.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			m.drain()
			return nil
		case <-m.wake:
			m.drain()
		}
	}
}

func (m *Monitor) drain() {
	for !m.buffer.IsEmpty() {
		f, err := m.buffer.Dequeue()
		if err != nil {
			return
		}
		row := NewRow(f, *m.distance.Load())
		if err := m.sink.Emit(row); err != nil {
			m.sinkErrors.Add(1)
			m.logger.WithFields(logrus.Fields{
				"address": f.Address,
				"index":   f.Index,
				"error":   err,
			}).Warn("Telemetry sink rejected row")
			continue
		}
		m.emitted.Add(1)
		m.logger.WithFields(logrus.Fields{
			"address": f.Address,
			"index":   f.Index,
			"packets": f.PacketsReceived,
			"per":     f.PER,
			"rssi":    f.RSSI,
		}).Debug("Telemetry frame emitted")
	}
}

// Stats returns a snapshot of the lifetime counters.
func (m *Monitor) Stats() MonitorStats {
	return MonitorStats{
		Accepted:    m.accepted.Load(),
		Duplicates:  m.duplicates.Load(),
		NoFrame:     m.noFrame.Load(),
		Overwritten: m.overwritten.Load(),
		Emitted:     m.emitted.Load(),
		SinkErrors:  m.sinkErrors.Load(),
	}
}
