//go:build darwin || windows

package tinygo

import (
	"github.com/srg/perbench/internal/device"
	"tinygo.org/x/bluetooth"
)

// tinygo does not expose characteristic property flags portably.
const assumedProperties = device.PropRead | device.PropWrite | device.PropWriteWithoutResponse | device.PropNotify

func writeWithResponse(c bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := c.Write(data)
	return err
}
