// Package telemetry extracts PER/RSSI/packet-count frames from the test
// device's advertisements and hands them to a sink.
package telemetry

import (
	"encoding/binary"
	"slices"
	"time"

	"github.com/srg/perbench/internal/advert"
	"github.com/srg/perbench/internal/hexcodec"
)

// Offsets inside the manufacturer-specific block (after the 0xFF type byte).
const (
	offsetIndex   = 2
	offsetPackets = 3
	offsetPER     = 5
	offsetRSSI    = 9

	// MinBlockLen is the shortest manufacturer block that carries a frame.
	MinBlockLen = 11
)

// Frame is one decoded telemetry advertisement.
type Frame struct {
	Address         string
	Index           uint8
	PacketsReceived uint16
	PER             float32 // percent
	RSSI            int     // dBm, as measured by the test device
	ReceivedAt      time.Time
}

// DecodeBlock decodes a manufacturer-specific block. Multi-byte fields are
// little-endian on air. ok is false when the block is too short.
func DecodeBlock(block []byte) (f Frame, ok bool) {
	if len(block) < MinBlockLen {
		return Frame{}, false
	}

	perBE := slices.Clone(block[offsetPER : offsetPER+4])
	slices.Reverse(perBE)
	per, err := hexcodec.BytesToFloat32(perBE)
	if err != nil {
		return Frame{}, false
	}

	return Frame{
		Index:           block[offsetIndex],
		PacketsReceived: binary.LittleEndian.Uint16(block[offsetPackets:]),
		PER:             per,
		RSSI:            SignedRSSI(binary.LittleEndian.Uint16(block[offsetRSSI:])),
	}, true
}

// DecodePayload finds the manufacturer block in a raw advertising payload and
// decodes it. Payloads without a usable block yield ok == false.
func DecodePayload(payload []byte) (Frame, bool) {
	block, ok := advert.ManufacturerBlock(payload)
	if !ok {
		return Frame{}, false
	}
	return DecodeBlock(block)
}

// SignedRSSI maps the unsigned 16-bit RSSI field to dBm.
func SignedRSSI(raw uint16) int {
	v := int(raw)
	if v >= 32768 {
		v -= 65536
	}
	return v
}
