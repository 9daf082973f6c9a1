//go:build !darwin && !windows

package tinygo

import (
	"fmt"

	"github.com/srg/perbench/internal/device"
	"tinygo.org/x/bluetooth"
)

// The BlueZ binding only writes without response, so PropWrite is never
// advertised and the machine picks WriteWithoutResponse.
const assumedProperties = device.PropRead | device.PropWriteWithoutResponse | device.PropNotify

func writeWithResponse(bluetooth.DeviceCharacteristic, []byte) error {
	return fmt.Errorf("write with response: %w", device.ErrUnsupported)
}
