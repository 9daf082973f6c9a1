package device

import (
	"context"
	"fmt"
)

// Advertisement is one scan event as delivered by a platform stack.
type Advertisement interface {
	Addr() string
	LocalName() string
	RSSI() int
	Connectable() bool
	ManufacturerData() []byte
	// Payload returns the raw advertising bytes as AD structures.
	Payload() []byte
}

// Radio is the platform BLE stack: scanning and opening GATT links.
type Radio interface {
	// Scan blocks until ctx is done or the stack fails.
	Scan(ctx context.Context, handler func(Advertisement)) error
	// Connect starts a connection attempt. Stacks that dial synchronously may
	// block within ctx. The link state always arrives through
	// cb.OnConnectionStateChange, possibly before Connect has returned.
	Connect(ctx context.Context, address string, cb GattCallback) (Gatt, error)
}

// Gatt is a native GATT client handle. Every operation returns as soon as it
// has been issued; completion is reported through the GattCallback passed to
// Radio.Connect.
type Gatt interface {
	Address() string
	DiscoverServices() error
	RequestMTU(size int) error
	Properties(service, characteristic string) (Property, error)
	ReadCharacteristic(service, characteristic string) error
	WriteCharacteristic(service, characteristic string, value []byte, writeType WriteType) error
	SetNotifications(service, characteristic string, mode NotifyMode) error
	Disconnect() error
	// Close releases the native handle. Safe to call more than once.
	Close() error
}

// GattCallback receives GATT completions. Implementations must not block.
type GattCallback interface {
	OnConnectionStateChange(status Status, newState LinkState)
	OnServicesDiscovered(status Status)
	OnMtuChanged(mtu int, status Status)
	OnCharacteristicRead(uuid string, value []byte, status Status)
	OnCharacteristicWrite(uuid string, value []byte, status Status)
	OnDescriptorWrite(uuid string, value []byte, status Status)
	OnCharacteristicChanged(uuid string, value []byte)
}

// LinkState is the link-level state reported by the platform.
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnected
)

func (s LinkState) String() string {
	if s == LinkConnected {
		return "connected"
	}
	return "disconnected"
}

// Status is a GATT status code as reported by the platform.
type Status int

const (
	StatusSuccess                Status = 0
	StatusReadNotPermitted       Status = 2
	StatusWriteNotPermitted      Status = 3
	StatusInsufficientAuth       Status = 5
	StatusRequestNotSupported    Status = 6
	StatusConnectionTimeout      Status = 8
	StatusInvalidAttributeLength Status = 13
	StatusFailure                Status = 257
)

var statusNames = map[Status]string{
	StatusSuccess:                "success",
	StatusReadNotPermitted:       "read not permitted",
	StatusWriteNotPermitted:      "write not permitted",
	StatusInsufficientAuth:       "insufficient authentication",
	StatusRequestNotSupported:    "request not supported",
	StatusConnectionTimeout:      "connection timeout",
	StatusInvalidAttributeLength: "invalid attribute length",
	StatusFailure:                "failure",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return fmt.Sprintf("%d (%s)", int(s), name)
	}
	return fmt.Sprintf("%d", int(s))
}

// OK reports whether s is StatusSuccess.
func (s Status) OK() bool { return s == StatusSuccess }

// WriteType selects the ATT write procedure.
type WriteType int

const (
	WriteWithResponse WriteType = iota
	WriteWithoutResponse
)

func (w WriteType) String() string {
	if w == WriteWithoutResponse {
		return "without-response"
	}
	return "with-response"
}

// NotifyMode is the value written to a client characteristic configuration descriptor.
type NotifyMode int

const (
	NotifyOff NotifyMode = iota
	NotifyNotification
	NotifyIndication
)

// CCCDValue returns the two descriptor bytes for m.
func (m NotifyMode) CCCDValue() []byte {
	switch m {
	case NotifyNotification:
		return []byte{0x01, 0x00}
	case NotifyIndication:
		return []byte{0x02, 0x00}
	default:
		return []byte{0x00, 0x00}
	}
}

// Property is a bitmask of characteristic properties.
type Property uint8

const (
	PropBroadcast Property = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
)

func (p Property) Has(flag Property) bool { return p&flag != 0 }

func (p Property) String() string {
	names := []struct {
		flag Property
		name string
	}{
		{PropBroadcast, "broadcast"},
		{PropRead, "read"},
		{PropWriteWithoutResponse, "write-without-response"},
		{PropWrite, "write"},
		{PropNotify, "notify"},
		{PropIndicate, "indicate"},
	}
	out := ""
	for _, n := range names {
		if p.Has(n.flag) {
			if out != "" {
				out += ","
			}
			out += n.name
		}
	}
	return out
}
