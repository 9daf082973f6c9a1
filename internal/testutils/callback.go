package testutils

import (
	"github.com/srg/perbench/internal/device"
)

// GattEvent is one callback invocation seen by RecordingCallback.
type GattEvent struct {
	Kind   string // "state", "services", "mtu", "read", "write", "descriptor", "changed"
	Status device.Status
	State  device.LinkState
	MTU    int
	UUID   string
	Value  []byte
}

// RecordingCallback is a device.GattCallback that queues every invocation on
// Events. Platform adapter tests read from it to check what was reported.
type RecordingCallback struct {
	Events chan GattEvent
}

func NewRecordingCallback() *RecordingCallback {
	return &RecordingCallback{Events: make(chan GattEvent, 64)}
}

func (r *RecordingCallback) OnConnectionStateChange(status device.Status, newState device.LinkState) {
	r.Events <- GattEvent{Kind: "state", Status: status, State: newState}
}

func (r *RecordingCallback) OnServicesDiscovered(status device.Status) {
	r.Events <- GattEvent{Kind: "services", Status: status}
}

func (r *RecordingCallback) OnMtuChanged(mtu int, status device.Status) {
	r.Events <- GattEvent{Kind: "mtu", MTU: mtu, Status: status}
}

func (r *RecordingCallback) OnCharacteristicRead(uuid string, value []byte, status device.Status) {
	r.Events <- GattEvent{Kind: "read", UUID: uuid, Value: value, Status: status}
}

func (r *RecordingCallback) OnCharacteristicWrite(uuid string, value []byte, status device.Status) {
	r.Events <- GattEvent{Kind: "write", UUID: uuid, Value: value, Status: status}
}

func (r *RecordingCallback) OnDescriptorWrite(uuid string, value []byte, status device.Status) {
	r.Events <- GattEvent{Kind: "descriptor", UUID: uuid, Value: value, Status: status}
}

func (r *RecordingCallback) OnCharacteristicChanged(uuid string, value []byte) {
	r.Events <- GattEvent{Kind: "changed", UUID: uuid, Value: value}
}
