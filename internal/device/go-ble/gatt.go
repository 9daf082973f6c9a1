package goble

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/groutine"
)

// gattClient adapts a blocking ble.Client to device.Gatt. Every operation runs
// the go-ble call on its own goroutine and reports the outcome through cb.
type gattClient struct {
	address string
	client  ble.Client
	cb      device.GattCallback
	logger  *logrus.Logger

	mu            sync.Mutex
	profile       *ble.Profile
	indications   map[*ble.Characteristic]bool
	disconnecting bool
	closed        bool

	down      sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

func newGattClient(address string, client ble.Client, cb device.GattCallback, logger *logrus.Logger) *gattClient {
	return &gattClient{
		address:     address,
		client:      client,
		cb:          cb,
		logger:      logger,
		indications: make(map[*ble.Characteristic]bool),
		done:        make(chan struct{}),
	}
}

// watch reports the link going down when go-ble exposes a Disconnected channel.
func (g *gattClient) watch() {
	dc, ok := g.client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		g.logger.Debug("Client does not support Disconnected() channel, relying on Disconnect")
		return
	}
	groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
		select {
		case <-dc.Disconnected():
			g.mu.Lock()
			requested := g.disconnecting
			g.mu.Unlock()
			if requested {
				g.linkDown(device.StatusSuccess)
				return
			}
			g.logger.WithField("address", g.address).Warn("BLE stack reported disconnection")
			g.linkDown(device.StatusFailure)
		case <-g.done:
		}
	})
}

func (g *gattClient) linkDown(status device.Status) {
	g.down.Do(func() {
		g.cb.OnConnectionStateChange(status, device.LinkDisconnected)
	})
}

// run executes op on its own goroutine unless the handle is closed.
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

func (g *gattClient) Address() string { return g.address }

func (g *gattClient) DiscoverServices() error {
	return g.run("ble-discover", func() {
		p, err := g.client.DiscoverProfile(true)
		if err != nil {
			g.logger.WithFields(logrus.Fields{
				"address": g.address,
				"error":   err,
			}).Error("Failed to discover profile")
		} else {
			g.mu.Lock()
			g.profile = p
			g.mu.Unlock()
			g.logger.WithFields(logrus.Fields{
				"address":  g.address,
				"services": len(p.Services),
			}).Debug("Profile discovered successfully")
		}
		g.cb.OnServicesDiscovered(statusOf(err))
	})
}

func (g *gattClient) RequestMTU(size int) error {
	return g.run("ble-mtu", func() {
		mtu, err := g.client.ExchangeMTU(size)
		g.cb.OnMtuChanged(mtu, statusOf(err))
	})
}

// characteristic finds a discovered characteristic by service and characteristic UUID.
func (g *gattClient) characteristic(service, uuid string) (*ble.Characteristic, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.profile == nil {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	for _, svc := range g.profile.Services {
		if !device.SameUUID(svc.UUID.String(), service) {
			continue
		}
		for _, c := range svc.Characteristics {
			if device.SameUUID(c.UUID.String(), uuid) {
				return c, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
}

func (g *gattClient) Properties(service, uuid string) (device.Property, error) {
	c, err := g.characteristic(service, uuid)
	if err != nil {
		return 0, err
	}
	return propertiesOf(c.Property), nil
}

func (g *gattClient) ReadCharacteristic(service, uuid string) error {
	c, err := g.characteristic(service, uuid)
	if err != nil {
		return err
	}
	return g.run("ble-read", func() {
		data, err := g.client.ReadCharacteristic(c)
		g.cb.OnCharacteristicRead(uuid, data, statusOf(err))
	})
}

func (g *gattClient) WriteCharacteristic(service, uuid string, value []byte, writeType device.WriteType) error {
	c, err := g.characteristic(service, uuid)
	if err != nil {
		return err
	}
	data := append([]byte(nil), value...)
	return g.run("ble-write", func() {
		err := g.client.WriteCharacteristic(c, data, writeType == device.WriteWithoutResponse)
		g.cb.OnCharacteristicWrite(uuid, data, statusOf(err))
	})
}

// SetNotifications subscribes or unsubscribes c. go-ble writes the CCCD
// itself, so the completion is reported as the descriptor write, carrying the
// CCCD value read back from the peripheral.
func (g *gattClient) SetNotifications(service, uuid string, mode device.NotifyMode) error {
	c, err := g.characteristic(service, uuid)
	if err != nil {
		return err
	}
	return g.run("ble-cccd", func() {
		var err error
		if mode == device.NotifyOff {
			g.mu.Lock()
			ind := g.indications[c]
			delete(g.indications, c)
			g.mu.Unlock()
			err = g.client.Unsubscribe(c, ind)
		} else {
			ind := mode == device.NotifyIndication
			err = g.client.Subscribe(c, ind, func(data []byte) {
				g.cb.OnCharacteristicChanged(uuid, append([]byte(nil), data...))
			})
			if err == nil {
				g.mu.Lock()
				g.indications[c] = ind
				g.mu.Unlock()
			}
		}
		var value []byte
		if err != nil {
			g.logger.WithFields(logrus.Fields{
				"charUUID": uuid,
				"error":    err,
			}).Error("Failed to update characteristic subscription")
		} else {
			value = g.readClientConfig(uuid, c)
		}
		g.cb.OnDescriptorWrite(device.CCCDUUID, value, statusOf(err))
	})
}

// readClientConfig returns the CCCD value of c, or nil when it cannot be read.
func (g *gattClient) readClientConfig(uuid string, c *ble.Characteristic) []byte {
	if c.CCCD == nil {
		return nil
	}
	value, err := g.client.ReadDescriptor(c.CCCD)
	if err != nil {
		g.logger.WithFields(logrus.Fields{
			"charUUID": uuid,
			"error":    err,
		}).Debug("Failed to read back client config")
		return nil
	}
	return value
}

func (g *gattClient) Disconnect() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return device.ErrNotConnected
	}
	g.disconnecting = true
	g.mu.Unlock()

	groutine.Go(context.Background(), "ble-disconnect", func(context.Context) {
		if err := g.client.CancelConnection(); err != nil {
			g.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		} else {
			g.logger.WithField("address", g.address).Info("BLE device disconnected successfully")
		}
		g.linkDown(device.StatusSuccess)
	})
	return nil
}

func (g *gattClient) Close() error {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		g.closed = true
		g.profile = nil
		g.mu.Unlock()
		close(g.done)
	})
	return nil
}
