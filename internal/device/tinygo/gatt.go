package tinygo

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/groutine"
	"tinygo.org/x/bluetooth"
)

// maxReadLen bounds a characteristic read; ATT values are at most 512 bytes.
const maxReadLen = 512

type gattClient struct {
	address string
	dev     bluetooth.Device
	cb      device.GattCallback
	logger  *logrus.Logger

	mu     sync.Mutex
	chars  map[string]bluetooth.DeviceCharacteristic
	closed bool
	down   sync.Once
}

func newGattClient(address string, dev bluetooth.Device, cb device.GattCallback, logger *logrus.Logger) *gattClient {
	return &gattClient{
		address: address,
		dev:     dev,
		cb:      cb,
		logger:  logger,
		chars:   make(map[string]bluetooth.DeviceCharacteristic),
	}
}

func charKey(service, uuid string) string {
	s, err := device.CanonicalUUID(service)
	if err != nil {
		s = service
	}
	c, err := device.CanonicalUUID(uuid)
	if err != nil {
		c = uuid
	}
	return s + "/" + c
}

func statusOf(err error) device.Status {
	if err == nil {
		return device.StatusSuccess
	}
	return device.StatusFailure
}

func (g *gattClient) run(name string, op func()) error {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return device.ErrNotConnected
	}
	groutine.Go(context.Background(), name, func(context.Context) { op() })
	return nil
}

func (g *gattClient) characteristic(service, uuid string) (bluetooth.DeviceCharacteristic, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.chars[charKey(service, uuid)]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return c, nil
}

func (g *gattClient) Address() string { return g.address }

func (g *gattClient) DiscoverServices() error {
	return g.run("tinygo-discover", func() {
		chars, err := g.discover()
		if err != nil {
			g.logger.WithFields(logrus.Fields{
				"address": g.address,
				"error":   err,
			}).Error("Failed to discover services")
		} else {
			g.mu.Lock()
			g.chars = chars
			g.mu.Unlock()
		}
		g.cb.OnServicesDiscovered(statusOf(err))
	})
}

func (g *gattClient) discover() (map[string]bluetooth.DeviceCharacteristic, error) {
	services, err := g.dev.DiscoverServices(nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bluetooth.DeviceCharacteristic)
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, err
		}
		for _, c := range chars {
			out[charKey(svc.UUID().String(), c.UUID().String())] = c
		}
	}
	return out, nil
}

// RequestMTU reports the MTU the stack negotiated on its own; tinygo has no
// explicit exchange.
func (g *gattClient) RequestMTU(size int) error {
	return g.run("tinygo-mtu", func() {
		g.mu.Lock()
		var first *bluetooth.DeviceCharacteristic
		for _, c := range g.chars {
			first = &c
			break
		}
		g.mu.Unlock()

		if first == nil {
			g.cb.OnMtuChanged(23, device.StatusRequestNotSupported)
			return
		}
		mtu, err := first.GetMTU()
		g.cb.OnMtuChanged(int(mtu), statusOf(err))
	})
}

func (g *gattClient) Properties(service, uuid string) (device.Property, error) {
	if _, err := g.characteristic(service, uuid); err != nil {
		return 0, err
	}
	return assumedProperties, nil
}

func (g *gattClient) ReadCharacteristic(service, uuid string) error {
	c, err := g.characteristic(service, uuid)
	if err != nil {
		return err
	}
	return g.run("tinygo-read", func() {
		buf := make([]byte, maxReadLen)
		n, err := c.Read(buf)
		g.cb.OnCharacteristicRead(uuid, buf[:n], statusOf(err))
	})
}

func (g *gattClient) WriteCharacteristic(service, uuid string, value []byte, writeType device.WriteType) error {
	c, err := g.characteristic(service, uuid)
	if err != nil {
		return err
	}
	data := append([]byte(nil), value...)
	return g.run("tinygo-write", func() {
		var err error
		if writeType == device.WriteWithoutResponse {
			_, err = c.WriteWithoutResponse(data)
		} else {
			err = writeWithResponse(c, data)
		}
		g.cb.OnCharacteristicWrite(uuid, data, statusOf(err))
	})
}

// SetNotifications enables or disables value updates. tinygo picks between
// notification and indication itself and cannot read the CCCD back, so the
// completion carries no value.
func (g *gattClient) SetNotifications(service, uuid string, mode device.NotifyMode) error {
	c, err := g.characteristic(service, uuid)
	if err != nil {
		return err
	}
	return g.run("tinygo-cccd", func() {
		var err error
		if mode == device.NotifyOff {
			err = c.EnableNotifications(nil)
		} else {
			err = c.EnableNotifications(func(buf []byte) {
				g.cb.OnCharacteristicChanged(uuid, append([]byte(nil), buf...))
			})
		}
		g.cb.OnDescriptorWrite(device.CCCDUUID, nil, statusOf(err))
	})
}

func (g *gattClient) Disconnect() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return device.ErrNotConnected
	}
	g.mu.Unlock()

	groutine.Go(context.Background(), "tinygo-disconnect", func(context.Context) {
		if err := g.dev.Disconnect(); err != nil {
			g.logger.WithField("error", err).Warn("Device disconnected with errors")
		}
		g.down.Do(func() {
			g.cb.OnConnectionStateChange(device.StatusSuccess, device.LinkDisconnected)
		})
	})
	return nil
}

func (g *gattClient) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.chars = nil
	return nil
}
