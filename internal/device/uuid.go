package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// CCCDUUID is the client characteristic configuration descriptor.
const CCCDUUID = "00002902" + baseUUIDSuffix

// CanonicalUUID returns the lowercase dashed 128-bit form of s. 16- and 32-bit
// forms ("2902", "0x2902") are expanded with the Bluetooth base UUID.
func CanonicalUUID(s string) (string, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	switch len(raw) {
	case 4:
		raw = "0000" + raw + baseUUIDSuffix
	case 8:
		raw += baseUUIDSuffix
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u.String(), nil
}

// MustCanonicalUUID is CanonicalUUID for constants; it panics on bad input.
func MustCanonicalUUID(s string) string {
	c, err := CanonicalUUID(s)
	if err != nil {
		panic(err)
	}
	return c
}

// SameUUID compares two UUIDs in any accepted form.
func SameUUID(a, b string) bool {
	ca, errA := CanonicalUUID(a)
	cb, errB := CanonicalUUID(b)
	return errA == nil && errB == nil && ca == cb
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
func ShortenUUID(u string) string {
	if len(u) > 8 {
		return u[:8]
	}
	return u
}
