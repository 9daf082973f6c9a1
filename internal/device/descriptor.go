package device

import (
	"encoding/binary"
	"fmt"
)

// ClientConfig is the decoded client characteristic configuration descriptor (0x2902).
type ClientConfig struct {
	Notifications bool
	Indications   bool
}

// ParseClientConfig decodes a CCCD value: bit 0 enables notifications,
// bit 1 indications.
func ParseClientConfig(data []byte) (ClientConfig, error) {
	if len(data) != 2 {
		return ClientConfig{}, fmt.Errorf("invalid length for client config: expected 2, got %d", len(data))
	}
	value := binary.LittleEndian.Uint16(data)
	return ClientConfig{
		Notifications: value&0x0001 != 0,
		Indications:   value&0x0002 != 0,
	}, nil
}

// Mode returns the notify mode c configures. Indications win when both bits are set.
func (c ClientConfig) Mode() NotifyMode {
	switch {
	case c.Indications:
		return NotifyIndication
	case c.Notifications:
		return NotifyNotification
	default:
		return NotifyOff
	}
}

func (m NotifyMode) String() string {
	switch m {
	case NotifyNotification:
		return "notification"
	case NotifyIndication:
		return "indication"
	default:
		return "off"
	}
}
