package goble

import (
	"context"
	"errors"

	"github.com/go-ble/ble"
	"github.com/srg/perbench/internal/device"
)

// NormalizeError maps known go-ble error strings to structured ConnectionError types.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	return device.NormalizeError(err)
}

// statusOf converts the result of a blocking go-ble call into a GATT status.
// ATT protocol errors keep their code, anything else is a generic failure.
func statusOf(err error) device.Status {
	if err == nil {
		return device.StatusSuccess
	}
	var attErr ble.ATTError
	if errors.As(err, &attErr) {
		return device.Status(attErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return device.StatusConnectionTimeout
	}
	return device.StatusFailure
}

// propertiesOf converts go-ble characteristic property bits.
func propertiesOf(p ble.Property) device.Property {
	var out device.Property
	for _, m := range []struct {
		from ble.Property
		to   device.Property
	}{
		{ble.CharBroadcast, device.PropBroadcast},
		{ble.CharRead, device.PropRead},
		{ble.CharWriteNR, device.PropWriteWithoutResponse},
		{ble.CharWrite, device.PropWrite},
		{ble.CharNotify, device.PropNotify},
		{ble.CharIndicate, device.PropIndicate},
	} {
		if p&m.from != 0 {
			out |= m.to
		}
	}
	return out
}
