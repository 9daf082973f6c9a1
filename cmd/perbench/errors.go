package main

import (
	"errors"
	"fmt"

	"github.com/srg/perbench/internal/coordinator"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/params"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the BLE connection was unexpectedly lost during operation.
	// This is distinct from device.ErrNotConnected, which indicates an attempt to use
	// a device that was never connected or was already disconnected.
	ErrConnectionLost = errors.New("connection lost")

	// ErrDeviceNotFound is returned when a scan ends without seeing the requested peripheral.
	ErrDeviceNotFound = errors.New("device not found")
)

// FormatUserError turns an error chain into a one-line message for the terminal.
func FormatUserError(err error) string {
	var (
		timeoutErr *coordinator.TimeoutError
		statusErr  *coordinator.StatusError
		fieldErr   *params.FieldError
		notFound   *device.NotFoundError
	)
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.As(err, &timeoutErr):
		return fmt.Sprintf("the peripheral did not answer in time (%s)", timeoutErr.Error())
	case errors.As(err, &statusErr):
		return fmt.Sprintf("the peripheral rejected the operation: %s", statusErr.Error())
	case errors.Is(err, ErrConnectionLost):
		return "connection lost; the peripheral went out of range or was reset"
	case errors.As(err, &fieldErr):
		return fmt.Sprintf("invalid parameters: %s", err.Error())
	case errors.As(err, &notFound):
		return notFound.Error()
	default:
		return err.Error()
	}
}
