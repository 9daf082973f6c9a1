package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/srg/perbench/internal/coordinator"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/params"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	timeout := &coordinator.TimeoutError{ID: "fe41", Kind: coordinator.KindWrite, Timeout: 5 * time.Second}

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "bluetooth off",
			err:      fmt.Errorf("failed to create radio: %w", device.ErrBluetoothOff),
			expected: "Bluetooth is turned off; enable it and try again",
		},
		{
			name:     "timeout",
			err:      fmt.Errorf("write params: %w", timeout),
			expected: "the peripheral did not answer in time (" + timeout.Error() + ")",
		},
		{
			name:     "status",
			err:      &coordinator.StatusError{ID: "fe41", Status: device.StatusWriteNotPermitted},
			expected: `the peripheral rejected the operation: gatt operation "fe41" failed with status 3 (write not permitted)`,
		},
		{
			name:     "connection lost",
			err:      fmt.Errorf("read: %w", ErrConnectionLost),
			expected: "connection lost; the peripheral went out of range or was reset",
		},
		{
			name:     "field",
			err:      errors.Join(&params.FieldError{Field: "packet_count", Value: 70000, Min: 0, Max: 65535}),
			expected: "invalid parameters: packet_count 70000 out of range [0, 65535]",
		},
		{
			name:     "other",
			err:      errors.New("boom"),
			expected: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatUserError(tt.err), "FormatUserError MUST produce the user message")
		})
	}
}
