package telemetry

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"
)

// DistanceNotAvailable is written when the operator entered no distance.
const DistanceNotAvailable = "N/A"

// TimeLayout formats row timestamps.
const TimeLayout = "15:04:05"

// Header is the CSV header row.
var Header = []string{"Time", "Distance (Meters)", "RSSI (dBm)", "PER (%)"}

// Row is one line of telemetry output.
type Row struct {
	Time     time.Time
	Distance string
	RSSI     int
	PER      float32
}

// NewRow builds the output row for f.
func NewRow(f Frame, distance string) Row {
	if distance == "" {
		distance = DistanceNotAvailable
	}
	return Row{Time: f.ReceivedAt, Distance: distance, RSSI: f.RSSI, PER: f.PER}
}

// Record renders r as CSV fields.
func (r Row) Record() []string {
	return []string{
		r.Time.Format(TimeLayout),
		r.Distance,
		strconv.Itoa(r.RSSI),
		strconv.FormatFloat(float64(r.PER), 'f', 2, 32),
	}
}

// Sink consumes telemetry rows.
type Sink interface {
	Emit(Row) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Row) error

func (f SinkFunc) Emit(r Row) error { return f(r) }

// CSVSink writes rows as CSV, preceded by Header on the first row.
type CSVSink struct {
	mu          sync.Mutex
	w           *csv.Writer
	wroteHeader bool
}

// NewCSVSink writes to w.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

// Emit writes r and flushes.
func (s *CSVSink) Emit(r Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.wroteHeader {
		if err := s.w.Write(Header); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
		s.wroteHeader = true
	}
	if err := s.w.Write(r.Record()); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}
