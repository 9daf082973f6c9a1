package testutils

import (
	"encoding/binary"
	"math"

	"github.com/srg/perbench/internal/advert"
)

// TelemetryMarker is the two-byte header the test device puts in front of a frame.
var TelemetryMarker = []byte{0x30, 0x00}

// TelemetryBlock encodes a manufacturer block the way the test device does:
// marker, index, then little-endian packets, PER and RSSI.
func TelemetryBlock(index uint8, packets uint16, per float32, rssi int) []byte {
	block := make([]byte, 0, 11)
	block = append(block, TelemetryMarker...)
	block = append(block, index)
	block = binary.LittleEndian.AppendUint16(block, packets)
	block = binary.LittleEndian.AppendUint32(block, math.Float32bits(per))
	block = binary.LittleEndian.AppendUint16(block, uint16(int16(rssi)))
	return block
}

// TelemetryPayload wraps TelemetryBlock in flags and manufacturer AD structures.
func TelemetryPayload(index uint8, packets uint16, per float32, rssi int) []byte {
	payload, _ := advert.Encode([]advert.Structure{
		{Type: advert.TypeFlags, Data: []byte{0x06}},
		{Type: advert.TypeManufacturerSpecific, Data: TelemetryBlock(index, packets, per, rssi)},
	})
	return payload
}
