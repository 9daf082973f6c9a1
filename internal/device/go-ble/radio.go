package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/groutine"
)

// Radio implements device.Radio on top of go-ble. The native device is
// created on first use and shared by scanning and connecting.
type Radio struct {
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

// NewRadio creates a go-ble radio. Nothing is opened until Scan or Connect.
func NewRadio(logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{logger: logger}
}

func (r *Radio) device() (ble.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev != nil {
		return r.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		r.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	r.dev = dev
	return dev, nil
}

// Scan reports every advertisement, repeats included, until ctx is done.
func (r *Radio) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	dev, err := r.device()
	if err != nil {
		return err
	}
	err = dev.Scan(ctx, true, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
	return NormalizeError(err)
}

// Connect dials address within ctx. go-ble dials synchronously, so the
// link-up report is delivered on its own goroutine right after Connect
// returns the handle.
func (r *Radio) Connect(ctx context.Context, address string, cb device.GattCallback) (device.Gatt, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	dev, err := r.device()
	if err != nil {
		return nil, err
	}

	r.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	g := newGattClient(address, client, cb, r.logger)
	g.watch()
	groutine.Go(context.Background(), "ble-link-up", func(context.Context) {
		cb.OnConnectionStateChange(device.StatusSuccess, device.LinkConnected)
	})
	return g, nil
}
