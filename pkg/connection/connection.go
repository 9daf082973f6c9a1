// Package connection drives one GATT link through connect, service
// discovery and MTU negotiation to Ready, and bridges GATT callbacks into the
// operation coordinator.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/perbench/internal/coordinator"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/groutine"
	"github.com/srg/perbench/internal/ringchan"
)

// DefaultATTMTU is the MTU of a link before negotiation.
const DefaultATTMTU = 23

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	ServicesDiscovering
	NegotiatingMtu
	Ready
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case ServicesDiscovering:
		return "services-discovering"
	case NegotiatingMtu:
		return "negotiating-mtu"
	case Ready:
		return "ready"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// linked reports whether a native link exists in s.
func (s State) linked() bool {
	return s == ServicesDiscovering || s == NegotiatingMtu || s == Ready
}

// EventType classifies machine events.
type EventType int

const (
	EventStateChanged EventType = iota
	EventConnectionFailed
	EventDisconnected
	EventNotification
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state-changed"
	case EventConnectionFailed:
		return "connection-failed"
	case EventDisconnected:
		return "disconnected"
	case EventNotification:
		return "notification"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is published on the machine's event channel for UI collaborators.
type Event struct {
	Type    EventType
	State   State
	Address string
	Status  device.Status
	Message string // user-facing text for EventConnectionFailed
	UUID    string // characteristic of an EventNotification
	Value   []byte
}

// Options configures a Machine.
type Options struct {
	MTU            int           `default:"517"`
	ConnectTimeout time.Duration `default:"30s"`
	EventBuffer    int           `default:"64"`
}

// DefaultOptions returns the options used by the bench.
func DefaultOptions() Options {
	opts := Options{}
	defaults.SetDefaults(&opts)
	return opts
}

// Machine is the connection state machine. Exactly one link is driven at a
// time; the native handle is owned by the machine.
type Machine struct {
	radio  device.Radio
	coord  *coordinator.Coordinator
	group  *groutine.Group
	logger *logrus.Logger
	opts   Options

	mu      sync.Mutex
	state   State
	gen     uint64 // incremented per connection attempt; tags callbacks
	gatt    device.Gatt
	linkUp  bool // link-up callback arrived before Radio.Connect returned
	address string
	name    string
	mtu     int
	failure device.Status // pending failure reason for the next link-down
	failed  bool          // failure already reported for this generation
	lastErr string        // message of the last reported failure
	changed chan struct{}
	notify  func(uuid string, value []byte)

	opMu   sync.Mutex // serializes GATT operations
	events *ringchan.RingChannel[Event]
	closed bool
}

// New creates a Machine in Disconnected. Zero option fields take defaults.
func New(radio device.Radio, coord *coordinator.Coordinator, opts Options, logger *logrus.Logger) *Machine {
	if logger == nil {
		logger = logrus.New()
	}
	def := DefaultOptions()
	if opts.MTU <= 0 {
		opts.MTU = def.MTU
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}
	return &Machine{
		radio:   radio,
		coord:   coord,
		group:   groutine.NewGroup(context.Background()),
		logger:  logger,
		opts:    opts,
		state:   Disconnected,
		mtu:     DefaultATTMTU,
		changed: make(chan struct{}),
		events:  ringchan.New[Event](opts.EventBuffer),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Address returns the address of the current or last peripheral.
func (m *Machine) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}

// Name returns the advertised name given to Connect.
func (m *Machine) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// MTU returns the negotiated MTU, DefaultATTMTU until negotiation succeeds.
func (m *Machine) MTU() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mtu
}

// Events returns the read-only event channel.
func (m *Machine) Events() <-chan Event {
	return m.events.C()
}

// SetNotificationHandler registers fn for characteristic value changes.
// nil removes the handler.
func (m *Machine) SetNotificationHandler(fn func(uuid string, value []byte)) {
	m.mu.Lock()
	m.notify = fn
	m.mu.Unlock()
}

// WaitState blocks until the machine is in want or ctx is done.
func (m *Machine) WaitState(ctx context.Context, want State) error {
	for {
		m.mu.Lock()
		state, changed := m.state, m.changed
		m.mu.Unlock()
		if state == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s (current %s): %w", want, state, ctx.Err())
		case <-changed:
		}
	}
}

// WaitReady blocks until the current attempt reaches Ready. It fails when
// the machine falls back to Disconnected, with the failure message if one was
// reported.
func (m *Machine) WaitReady(ctx context.Context) error {
	for {
		m.mu.Lock()
		state, changed, lastErr := m.state, m.changed, m.lastErr
		m.mu.Unlock()
		switch state {
		case Ready:
			return nil
		case Disconnected:
			if lastErr != "" {
				return &device.ConnectionError{State: device.ConnectFailed, Msg: lastErr}
			}
			return device.ErrNotConnected
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for ready (current %s): %w", state, ctx.Err())
		case <-changed:
		}
	}
}

// Connect starts a connection attempt to address. It returns once the
// platform call has been issued; use WaitState to wait for Ready. Outside
// Disconnected it does nothing and returns device.ErrAlreadyConnected.
func (m *Machine) Connect(ctx context.Context, address, name string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return device.ErrNotInitialized
	}
	if m.state != Disconnected {
		state := m.state
		m.mu.Unlock()
		m.logger.WithFields(logrus.Fields{
			"address": address,
			"state":   state.String(),
		}).Debug("Connect ignored, a connection already exists")
		return device.ErrAlreadyConnected
	}
	m.gen++
	gen := m.gen
	m.address = address
	m.name = name
	m.mtu = DefaultATTMTU
	m.linkUp = false
	m.failed = false
	m.lastErr = ""
	m.failure = device.StatusSuccess
	m.setStateLocked(Connecting)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"address": address,
		"name":    name,
	}).Info("Connecting to device...")

	connectCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	gatt, err := m.radio.Connect(connectCtx, address, &callback{m: m, gen: gen})
	if err != nil {
		err = device.NormalizeError(err)
		m.mu.Lock()
		if m.gen == gen && m.state == Connecting {
			m.setStateLocked(Disconnected)
			m.reportFailureLocked(fmt.Sprintf("Connection attempt failed for %s! Error: %v", address, err), device.StatusFailure)
			m.publishLocked(Event{Type: EventDisconnected, State: Disconnected, Address: address})
		}
		m.mu.Unlock()
		if gatt != nil {
			_ = gatt.Close()
		}
		m.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Connection attempt failed")

		var cerr *device.ConnectionError
		if errors.As(err, &cerr) {
			return err
		}
		return fmt.Errorf("%w: %v", device.ErrConnectFailed, err)
	}

	m.mu.Lock()
	if m.gen != gen || m.state == Disconnected {
		// the attempt already ended through a callback
		m.mu.Unlock()
		_ = gatt.Close()
		return nil
	}
	m.gatt = gatt
	discover := m.linkUp && m.state == Connecting
	if discover {
		m.setStateLocked(ServicesDiscovering)
	}
	m.mu.Unlock()

	if discover {
		m.discover(gen, gatt)
	}
	return nil
}

// Disconnect tears the link down. Allowed from ServicesDiscovering,
// NegotiatingMtu and Ready; the platform confirmation moves the machine to
// Disconnected.
func (m *Machine) Disconnect() error {
	m.mu.Lock()
	if m.state == Disconnecting {
		m.mu.Unlock()
		return nil
	}
	if !m.state.linked() {
		m.mu.Unlock()
		return device.ErrNotConnected
	}
	gen, gatt, address := m.gen, m.gatt, m.address
	m.setStateLocked(Disconnecting)
	m.mu.Unlock()

	m.logger.WithField("address", address).Info("Disconnecting from device...")
	if err := gatt.Disconnect(); err != nil {
		m.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Warn("Platform disconnect failed, dropping the link")
		m.linkDown(gen, device.StatusSuccess)
		return device.NormalizeError(err)
	}
	return nil
}

// Close drops any link without waiting for confirmation and stops the
// machine's workers. The machine cannot be reused.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.gen++
	gatt := m.gatt
	m.gatt = nil
	if m.state != Disconnected {
		m.setStateLocked(Disconnected)
		m.publishLocked(Event{Type: EventDisconnected, State: Disconnected, Address: m.address})
	}
	m.mu.Unlock()

	if gatt != nil {
		if err := gatt.Disconnect(); err != nil {
			m.logger.WithField("error", err).Debug("Disconnect on close failed")
		}
		_ = gatt.Close()
	}
	m.group.Stop()
	m.events.Close()
}

// ready returns the handle when the machine is Ready.
func (m *Machine) ready() (device.Gatt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Ready || m.gatt == nil {
		return nil, device.ErrNotConnected
	}
	return m.gatt, nil
}

// ReadCharacteristic reads a characteristic value. The result carries the
// value and the platform status.
func (m *Machine) ReadCharacteristic(ctx context.Context, service, characteristic string) (coordinator.Result, error) {
	svc, char, err := canonicalPair(service, characteristic)
	if err != nil {
		return coordinator.Result{}, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	gatt, err := m.ready()
	if err != nil {
		return coordinator.Result{}, err
	}
	return m.coord.SubmitAndWait(ctx, m.coord.NewRequest(char, coordinator.KindRead), func() error {
		return gatt.ReadCharacteristic(svc, char)
	})
}

// WriteCharacteristic writes value. The write type follows the
// characteristic's properties: with response when writable, otherwise without
// response; neither is device.ErrUnsupported.
func (m *Machine) WriteCharacteristic(ctx context.Context, service, characteristic string, value []byte) (coordinator.Result, error) {
	svc, char, err := canonicalPair(service, characteristic)
	if err != nil {
		return coordinator.Result{}, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	gatt, err := m.ready()
	if err != nil {
		return coordinator.Result{}, err
	}

	props, err := gatt.Properties(svc, char)
	if err != nil {
		return coordinator.Result{}, err
	}
	var writeType device.WriteType
	switch {
	case props.Has(device.PropWrite):
		writeType = device.WriteWithResponse
	case props.Has(device.PropWriteWithoutResponse):
		writeType = device.WriteWithoutResponse
	default:
		return coordinator.Result{}, fmt.Errorf("characteristic %s is not writable (%s): %w", char, props, device.ErrUnsupported)
	}

	m.logger.WithFields(logrus.Fields{
		"characteristic": char,
		"bytes":          len(value),
		"write_type":     writeType.String(),
	}).Debug("Writing characteristic")

	return m.coord.SubmitAndWait(ctx, m.coord.NewRequest(char, coordinator.KindWrite), func() error {
		return gatt.WriteCharacteristic(svc, char, value, writeType)
	})
}

// EnableNotifications subscribes to a characteristic, preferring indications
// over notifications. The result is the CCCD write completion.
func (m *Machine) EnableNotifications(ctx context.Context, service, characteristic string) (coordinator.Result, error) {
	return m.setNotifications(ctx, service, characteristic, true)
}

// DisableNotifications unsubscribes from a characteristic.
func (m *Machine) DisableNotifications(ctx context.Context, service, characteristic string) (coordinator.Result, error) {
	return m.setNotifications(ctx, service, characteristic, false)
}

func (m *Machine) setNotifications(ctx context.Context, service, characteristic string, enable bool) (coordinator.Result, error) {
	svc, char, err := canonicalPair(service, characteristic)
	if err != nil {
		return coordinator.Result{}, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	gatt, err := m.ready()
	if err != nil {
		return coordinator.Result{}, err
	}

	mode, kind := device.NotifyOff, coordinator.KindDisableNotify
	if enable {
		props, err := gatt.Properties(svc, char)
		if err != nil {
			return coordinator.Result{}, err
		}
		switch {
		case props.Has(device.PropIndicate):
			mode = device.NotifyIndication
		case props.Has(device.PropNotify):
			mode = device.NotifyNotification
		default:
			return coordinator.Result{}, fmt.Errorf("characteristic %s does not notify (%s): %w", char, props, device.ErrUnsupported)
		}
		kind = coordinator.KindEnableNotify
	}

	res, err := m.coord.SubmitAndWait(ctx, m.coord.NewRequest(device.CCCDUUID, kind), func() error {
		return gatt.SetNotifications(svc, char, mode)
	})
	if err != nil || !res.OK() || len(res.Value) == 0 {
		return res, err
	}

	logger := m.logger.WithFields(logrus.Fields{
		"characteristic": char,
		"requested":      mode.String(),
	})
	if cfg, perr := device.ParseClientConfig(res.Value); perr != nil {
		logger.WithField("error", perr).Warn("Unexpected client config value")
	} else if cfg.Mode() != mode {
		logger.WithField("configured", cfg.Mode().String()).Warn("Client config does not match the requested mode")
	} else {
		logger.Debug("Client config written")
	}
	return res, nil
}

// RequestMTU renegotiates the MTU on a Ready link and returns the MTU in effect.
func (m *Machine) RequestMTU(ctx context.Context, size int) (int, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	gatt, err := m.ready()
	if err != nil {
		return 0, err
	}
	res, err := m.coord.SubmitAndWait(ctx, m.coord.NewRequest(coordinator.MTUID, coordinator.KindNegotiateMTU), func() error {
		return gatt.RequestMTU(size)
	})
	if err != nil {
		return m.MTU(), err
	}
	return m.MTU(), res.Err()
}

// discover issues service discovery for generation gen.
func (m *Machine) discover(gen uint64, gatt device.Gatt) {
	m.logger.WithField("address", gatt.Address()).Info("Connected, discovering services...")
	if err := gatt.DiscoverServices(); err != nil {
		m.logger.WithField("error", err).Error("Service discovery could not be started")
		m.abort(gen, device.StatusFailure)
	}
}

// abort records status as the failure reason and tears the link down.
func (m *Machine) abort(gen uint64, status device.Status) {
	m.mu.Lock()
	if m.gen != gen || !m.state.linked() {
		m.mu.Unlock()
		return
	}
	m.failure = status
	gatt := m.gatt
	m.setStateLocked(Disconnecting)
	m.mu.Unlock()

	if err := gatt.Disconnect(); err != nil {
		m.linkDown(gen, status)
	}
}

// negotiateMTU runs on the machine's worker group. Every outcome leads to Ready.
func (m *Machine) negotiateMTU(ctx context.Context, gen uint64, gatt device.Gatt) {
	m.opMu.Lock()
	res, err := m.coord.SubmitAndWait(ctx, m.coord.NewRequest(coordinator.MTUID, coordinator.KindNegotiateMTU), func() error {
		return gatt.RequestMTU(m.opts.MTU)
	})
	m.opMu.Unlock()

	logger := m.logger.WithField("requested", m.opts.MTU)
	switch {
	case err != nil:
		logger.WithField("error", err).Warn("MTU negotiation failed, continuing with the default MTU")
	case !res.OK():
		logger.WithField("status", res.Status.String()).Warn("MTU negotiation rejected, continuing with the default MTU")
	default:
		logger.WithField("mtu", m.MTU()).Info("MTU negotiated")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.state != NegotiatingMtu {
		return
	}
	m.setStateLocked(Ready)
	m.logger.WithFields(logrus.Fields{
		"address": m.address,
		"mtu":     m.mtu,
	}).Info("Device ready")
}

// linkDown moves generation gen to Disconnected, releases the native handle
// and reports the outcome.
func (m *Machine) linkDown(gen uint64, status device.Status) {
	m.mu.Lock()
	if m.gen != gen || m.state == Disconnected {
		m.mu.Unlock()
		return
	}
	prev := m.state
	gatt := m.gatt
	m.gatt = nil
	if status.OK() && !m.failure.OK() {
		status = m.failure
	}
	m.setStateLocked(Disconnected)
	// a link that never came up failed even when the platform reports success
	if !status.OK() || prev == Connecting {
		if status.OK() {
			status = device.StatusFailure
		}
		m.reportFailureLocked(fmt.Sprintf("Connection attempt failed for %s! Error: %d", m.address, int(status)), status)
	}
	m.publishLocked(Event{Type: EventDisconnected, State: Disconnected, Address: m.address, Status: status})
	address := m.address
	m.mu.Unlock()

	if gatt != nil {
		if err := gatt.Close(); err != nil {
			m.logger.WithField("error", err).Debug("Closing native handle failed")
		}
	}
	m.logger.WithFields(logrus.Fields{
		"address":    address,
		"status":     status.String(),
		"from_state": prev.String(),
	}).Info("Disconnected from device")
}

// reportFailureLocked publishes at most one failure per generation.
func (m *Machine) reportFailureLocked(msg string, status device.Status) {
	if m.failed {
		return
	}
	m.failed = true
	m.lastErr = msg
	m.publishLocked(Event{Type: EventConnectionFailed, State: m.state, Address: m.address, Status: status, Message: msg})
}

func (m *Machine) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	close(m.changed)
	m.changed = make(chan struct{})
	m.publishLocked(Event{Type: EventStateChanged, State: s, Address: m.address})
}

func (m *Machine) publishLocked(ev Event) {
	if m.events.ForceSend(ev) {
		m.logger.WithField("event", ev.Type.String()).Debug("Event buffer full, dropped oldest event")
	}
}

func canonicalPair(service, characteristic string) (string, string, error) {
	svc, err := device.CanonicalUUID(service)
	if err != nil {
		return "", "", err
	}
	char, err := device.CanonicalUUID(characteristic)
	if err != nil {
		return "", "", err
	}
	return svc, char, nil
}
