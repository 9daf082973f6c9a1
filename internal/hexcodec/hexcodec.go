// Package hexcodec converts between byte slices, hex strings, fixed-width
// integers and IEEE-754 floats in the forms used on the PER bench wire.
//
// Hex output is always lowercase with two digits per byte. Hex input is
// accepted in either case.
package hexcodec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// DecodeError reports malformed codec input.
type DecodeError struct {
	Op     string // operation that failed, e.g. "hexToBytes"
	Input  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s (input %q)", e.Op, e.Reason, e.Input)
}

// BytesToHex encodes b as lowercase hex.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// HexToBytes decodes s. Odd lengths and non-hex characters fail with *DecodeError.
func HexToBytes(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, &DecodeError{Op: "hexToBytes", Input: s, Reason: "odd length"}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Op: "hexToBytes", Input: s, Reason: "invalid hex character"}
	}
	return b, nil
}

// IntToHex encodes v as a zero-padded big-endian hex string of numBytes bytes.
func IntToHex(v int, numBytes int) (string, error) {
	if numBytes <= 0 || numBytes > 8 {
		return "", &DecodeError{Op: "intToHex", Reason: fmt.Sprintf("unsupported width %d", numBytes)}
	}
	if v < 0 {
		return "", &DecodeError{Op: "intToHex", Reason: fmt.Sprintf("negative value %d", v)}
	}
	if numBytes < 8 && uint64(v) >= uint64(1)<<(8*numBytes) {
		return "", &DecodeError{Op: "intToHex", Reason: fmt.Sprintf("value %d does not fit in %d byte(s)", v, numBytes)}
	}
	return fmt.Sprintf("%0*x", 2*numBytes, v), nil
}

// HexEndianSwap reverses the byte order of a hex string.
func HexEndianSwap(s string) (string, error) {
	if len(s)%2 != 0 {
		return "", &DecodeError{Op: "hexEndianSwap", Input: s, Reason: "odd length"}
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := len(s) - 2; i >= 0; i -= 2 {
		sb.WriteString(s[i : i+2])
	}
	return sb.String(), nil
}

// ToLittleEndian is HexEndianSwap; both directions are the same operation.
func ToLittleEndian(s string) (string, error) { return HexEndianSwap(s) }

// ToBigEndian is HexEndianSwap; both directions are the same operation.
func ToBigEndian(s string) (string, error) { return HexEndianSwap(s) }

// BytesToFloat32 reads the first four bytes of b as a big-endian IEEE-754 float.
func BytesToFloat32(b []byte) (float32, error) {
	if len(b) < 4 {
		return 0, &DecodeError{Op: "bytesToFloat32", Reason: fmt.Sprintf("need 4 bytes, got %d", len(b))}
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b[:4])), nil
}

// StripWhitespace removes every whitespace rune, so "02 05 25" becomes "020525".
func StripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
