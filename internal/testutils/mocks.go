package testutils

import (
	"context"
	"sync"

	"github.com/srg/perbench/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockRadio is a testify mock of device.Radio. Connect records the callback
// it was given so tests can drive GATT events.
type MockRadio struct {
	mock.Mock

	mu        sync.Mutex
	callbacks []device.GattCallback
}

func (m *MockRadio) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	args := m.Called(ctx, handler)
	return args.Error(0)
}

func (m *MockRadio) Connect(ctx context.Context, address string, cb device.GattCallback) (device.Gatt, error) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, cb)
	m.mu.Unlock()

	args := m.Called(ctx, address, cb)
	gatt, _ := args.Get(0).(device.Gatt)
	return gatt, args.Error(1)
}

// Callback returns the callback of the most recent Connect call.
func (m *MockRadio) Callback() device.GattCallback {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.callbacks) == 0 {
		return nil
	}
	return m.callbacks[len(m.callbacks)-1]
}

// CallbackAt returns the callback of the i-th Connect call.
func (m *MockRadio) CallbackAt(i int) device.GattCallback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callbacks[i]
}

// MockGatt is a testify mock of device.Gatt.
type MockGatt struct {
	mock.Mock
}

func (m *MockGatt) Address() string {
	return m.Called().String(0)
}

func (m *MockGatt) DiscoverServices() error {
	return m.Called().Error(0)
}

func (m *MockGatt) RequestMTU(size int) error {
	return m.Called(size).Error(0)
}

func (m *MockGatt) Properties(service, characteristic string) (device.Property, error) {
	args := m.Called(service, characteristic)
	return args.Get(0).(device.Property), args.Error(1)
}

func (m *MockGatt) ReadCharacteristic(service, characteristic string) error {
	return m.Called(service, characteristic).Error(0)
}

func (m *MockGatt) WriteCharacteristic(service, characteristic string, value []byte, writeType device.WriteType) error {
	return m.Called(service, characteristic, value, writeType).Error(0)
}

func (m *MockGatt) SetNotifications(service, characteristic string, mode device.NotifyMode) error {
	return m.Called(service, characteristic, mode).Error(0)
}

func (m *MockGatt) Disconnect() error {
	return m.Called().Error(0)
}

func (m *MockGatt) Close() error {
	return m.Called().Error(0)
}
