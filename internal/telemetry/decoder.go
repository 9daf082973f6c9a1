package telemetry

import (
	"time"

	"github.com/cornelk/hashmap"
)

// Outcome tells why Decode did or did not produce a frame.
type Outcome int

const (
	NoFrame Outcome = iota
	Accepted
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	default:
		return "no-frame"
	}
}

// Decoder decodes advertisements and suppresses repeats of the last accepted
// sequence index per peripheral.
type Decoder struct {
	last *hashmap.Map[string, uint8]
	now  func() time.Time
}

// NewDecoder creates a Decoder with empty history.
func NewDecoder() *Decoder {
	return &Decoder{
		last: hashmap.New[string, uint8](),
		now:  time.Now,
	}
}

// Decode returns a frame for address when payload carries one whose index
// differs from the last accepted index of that address.
func (d *Decoder) Decode(address string, payload []byte) (Frame, Outcome) {
	f, ok := DecodePayload(payload)
	if !ok {
		return Frame{}, NoFrame
	}
	if prev, seen := d.last.Get(address); seen && prev == f.Index {
		return Frame{}, Duplicate
	}
	d.last.Set(address, f.Index)

	f.Address = address
	f.ReceivedAt = d.now()
	return f, Accepted
}

// Reset forgets the last accepted index of address.
func (d *Decoder) Reset(address string) {
	d.last.Del(address)
}

// LastIndex returns the last accepted index of address.
func (d *Decoder) LastIndex(address string) (uint8, bool) {
	return d.last.Get(address)
}
