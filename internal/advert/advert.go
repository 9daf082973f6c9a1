// Package advert walks the AD structures of a BLE advertising payload.
package advert

import (
	"errors"
	"fmt"
)

// AD types used by the bench.
const (
	TypeFlags                 byte = 0x01
	TypeComplete16BitServices byte = 0x03
	TypeShortenedLocalName    byte = 0x08
	TypeCompleteLocalName     byte = 0x09
	TypeTxPowerLevel          byte = 0x0A
	TypeManufacturerSpecific  byte = 0xFF
)

const maxStructureDataLen = 254

// ErrTruncated is returned when a structure's length runs past the payload.
var ErrTruncated = errors.New("advert: truncated AD structure")

// Structure is one length-type-value element of an advertising payload.
type Structure struct {
	Type byte
	Data []byte
}

// Decode splits payload into AD structures. A zero length byte marks the
// start of padding and ends the walk.
func Decode(payload []byte) ([]Structure, error) {
	var out []Structure
	for i := 0; i < len(payload); {
		length := int(payload[i])
		if length == 0 {
			break
		}
		if i+1+length > len(payload) {
			return out, fmt.Errorf("%w: offset %d length %d payload %d", ErrTruncated, i, length, len(payload))
		}
		out = append(out, Structure{
			Type: payload[i+1],
			Data: payload[i+2 : i+1+length],
		})
		i += 1 + length
	}
	return out, nil
}

// Encode is the inverse of Decode.
func Encode(structs []Structure) ([]byte, error) {
	var out []byte
	for _, s := range structs {
		if len(s.Data) > maxStructureDataLen {
			return nil, fmt.Errorf("advert: AD type 0x%02x data too long (%d bytes)", s.Type, len(s.Data))
		}
		out = append(out, byte(len(s.Data)+1), s.Type)
		out = append(out, s.Data...)
	}
	return out, nil
}

// Find returns the data of the first structure of type typ.
func Find(structs []Structure, typ byte) ([]byte, bool) {
	for _, s := range structs {
		if s.Type == typ {
			return s.Data, true
		}
	}
	return nil, false
}

// ManufacturerBlock returns the manufacturer-specific data of payload.
// ok is false when the payload is malformed or carries no such block.
func ManufacturerBlock(payload []byte) (block []byte, ok bool) {
	structs, err := Decode(payload)
	if err != nil {
		return nil, false
	}
	return Find(structs, TypeManufacturerSpecific)
}

// LocalName returns the complete local name, falling back to the shortened one.
func LocalName(payload []byte) string {
	structs, _ := Decode(payload)
	if name, ok := Find(structs, TypeCompleteLocalName); ok {
		return string(name)
	}
	if name, ok := Find(structs, TypeShortenedLocalName); ok {
		return string(name)
	}
	return ""
}

// Synthesize builds a payload from the pieces a platform stack exposes when it
// does not hand out the raw advertising bytes.
func Synthesize(name string, manufacturerData []byte) []byte {
	var structs []Structure
	if name != "" {
		n := []byte(name)
		if len(n) > maxStructureDataLen {
			n = n[:maxStructureDataLen]
		}
		structs = append(structs, Structure{Type: TypeCompleteLocalName, Data: n})
	}
	if len(manufacturerData) > 0 && len(manufacturerData) <= maxStructureDataLen {
		structs = append(structs, Structure{Type: TypeManufacturerSpecific, Data: manufacturerData})
	}
	out, _ := Encode(structs)
	return out
}
