package connection

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/perbench/internal/coordinator"
	"github.com/srg/perbench/internal/device"
)

// callback adapts platform GATT callbacks for one connection attempt. Events
// tagged with an older generation belong to a previous link and are ignored.
type callback struct {
	m   *Machine
	gen uint64
}

var _ device.GattCallback = (*callback)(nil)

func (c *callback) current() bool {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if c.m.gen != c.gen {
		c.m.logger.WithField("generation", c.gen).Debug("Ignoring callback from a previous connection")
		return false
	}
	return true
}

func (c *callback) OnConnectionStateChange(status device.Status, newState device.LinkState) {
	m := c.m
	m.logger.WithFields(logrus.Fields{
		"status": status.String(),
		"link":   newState.String(),
	}).Debug("Connection state callback")

	if newState != device.LinkConnected || !status.OK() {
		m.linkDown(c.gen, status)
		return
	}

	m.mu.Lock()
	if m.gen != c.gen || m.state != Connecting {
		m.mu.Unlock()
		return
	}
	if m.gatt == nil {
		// Radio.Connect has not returned yet; it starts discovery
		m.linkUp = true
		m.mu.Unlock()
		return
	}
	gatt := m.gatt
	m.setStateLocked(ServicesDiscovering)
	m.mu.Unlock()

	m.discover(c.gen, gatt)
}

func (c *callback) OnServicesDiscovered(status device.Status) {
	m := c.m
	m.mu.Lock()
	if m.gen != c.gen || m.state != ServicesDiscovering {
		m.mu.Unlock()
		return
	}
	if !status.OK() {
		m.mu.Unlock()
		m.logger.WithField("status", status.String()).Error("Service discovery failed")
		m.abort(c.gen, status)
		return
	}
	gatt := m.gatt
	m.setStateLocked(NegotiatingMtu)
	m.mu.Unlock()

	m.logger.Debug("Services discovered, negotiating MTU")
	gen := c.gen
	m.group.Go("mtu-negotiation", func(ctx context.Context) {
		m.negotiateMTU(ctx, gen, gatt)
	})
}

func (c *callback) OnMtuChanged(mtu int, status device.Status) {
	if !c.current() {
		return
	}
	if status.OK() {
		c.m.mu.Lock()
		c.m.mtu = mtu
		c.m.mu.Unlock()
	}
	c.m.coord.Deliver(coordinator.Result{ID: coordinator.MTUID, Status: status})
}

func (c *callback) OnCharacteristicRead(uuid string, value []byte, status device.Status) {
	c.deliver(uuid, value, status)
}

func (c *callback) OnCharacteristicWrite(uuid string, value []byte, status device.Status) {
	c.deliver(uuid, value, status)
}

func (c *callback) OnDescriptorWrite(uuid string, value []byte, status device.Status) {
	c.deliver(uuid, value, status)
}

func (c *callback) OnCharacteristicChanged(uuid string, value []byte) {
	m := c.m
	m.mu.Lock()
	if m.gen != c.gen {
		m.mu.Unlock()
		return
	}
	id := resultID(uuid)
	v := append([]byte(nil), value...)
	m.publishLocked(Event{Type: EventNotification, State: m.state, Address: m.address, UUID: id, Value: v})
	notify := m.notify
	m.mu.Unlock()

	if notify != nil {
		notify(id, v)
	}
}

func (c *callback) deliver(uuid string, value []byte, status device.Status) {
	if !c.current() {
		return
	}
	c.m.coord.Deliver(coordinator.Result{
		ID:     resultID(uuid),
		Value:  append([]byte(nil), value...),
		Status: status,
	})
}

// resultID is the correlation id for a callback uuid. Unparseable ids are
// passed through so that they simply never match.
func resultID(uuid string) string {
	if id, err := device.CanonicalUUID(uuid); err == nil {
		return id
	}
	return uuid
}
