// Package tinygo binds device.Radio to tinygo.org/x/bluetooth, the
// alternative backend selected with backend: tinygo.
package tinygo

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/groutine"
	"tinygo.org/x/bluetooth"
)

// Radio implements device.Radio on the default tinygo adapter.
//
// tinygo cannot build an Address from a string on every platform (CoreBluetooth
// identifies peripherals by UUID), so Connect only accepts addresses seen by a
// previous Scan.
type Radio struct {
	adapter *bluetooth.Adapter
	logger  *logrus.Logger

	enableOnce sync.Once
	enableErr  error

	mu   sync.Mutex
	seen map[string]bluetooth.Address
}

// NewRadio creates a radio on bluetooth.DefaultAdapter. The adapter is enabled on first use.
func NewRadio(logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{
		adapter: bluetooth.DefaultAdapter,
		logger:  logger,
		seen:    make(map[string]bluetooth.Address),
	}
}

func (r *Radio) enable() error {
	r.enableOnce.Do(func() {
		r.logger.Debug("Enabling Bluetooth adapter...")
		if err := r.adapter.Enable(); err != nil {
			r.enableErr = fmt.Errorf("failed to enable adapter: %w", device.NormalizeError(err))
		}
	})
	return r.enableErr
}

// Scan runs the blocking adapter scan until ctx is done.
func (r *Radio) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	if err := r.enable(); err != nil {
		return err
	}

	errc := make(chan error, 1)
	groutine.Go(ctx, "tinygo-scan", func(context.Context) {
		errc <- r.adapter.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
			adv := fromScanResult(res)
			r.mu.Lock()
			r.seen[strings.ToUpper(adv.addr)] = res.Address
			r.mu.Unlock()
			handler(adv)
		})
	})

	select {
	case <-ctx.Done():
		if err := r.adapter.StopScan(); err != nil {
			r.logger.WithField("error", err).Warn("Failed to stop scan cleanly")
		}
		<-errc
		return ctx.Err()
	case err := <-errc:
		return device.NormalizeError(err)
	}
}

// Connect dials within ctx. The adapter call cannot be cancelled, so a link
// that comes up after ctx expired is dropped again.
func (r *Radio) Connect(ctx context.Context, address string, cb device.GattCallback) (device.Gatt, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	if err := r.enable(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	addr, ok := r.seen[strings.ToUpper(address)]
	r.mu.Unlock()
	if !ok {
		return nil, &device.NotFoundError{Resource: "peripheral", UUIDs: []string{address}}
	}

	type dialResult struct {
		dev bluetooth.Device
		err error
	}
	done := make(chan dialResult, 1)
	groutine.Go(context.Background(), "tinygo-connect", func(context.Context) {
		dev, err := r.adapter.Connect(addr, bluetooth.ConnectionParams{})
		done <- dialResult{dev: dev, err: err}
	})

	select {
	case <-ctx.Done():
		groutine.Go(context.Background(), "tinygo-connect-abandon", func(context.Context) {
			if res := <-done; res.err == nil {
				_ = res.dev.Disconnect()
			}
		})
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, ctx.Err())
	case res := <-done:
		if res.err != nil {
			r.logger.WithFields(logrus.Fields{
				"address": address,
				"error":   res.err,
			}).Error("Failed to connect")
			return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, device.NormalizeError(res.err))
		}
		g := newGattClient(address, res.dev, cb, r.logger)
		groutine.Go(context.Background(), "tinygo-link-up", func(context.Context) {
			cb.OnConnectionStateChange(device.StatusSuccess, device.LinkConnected)
		})
		return g, nil
	}
}
