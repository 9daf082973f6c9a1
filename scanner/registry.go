package scanner

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/ringchan"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Handle is a currently visible peripheral.
type Handle struct {
	Address          string    `json:"address"`
	Name             string    `json:"name,omitempty"`
	RSSI             int       `json:"rssi"`
	Connectable      bool      `json:"connectable"`
	LastSeen         time.Time `json:"lastSeen"`
	ManufacturerData []byte    `json:"manufacturerData,omitempty"`
}

// EventType marks what happened to a handle
type EventType int

const (
	EventAdded EventType = iota
	EventUpdated
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	default:
		return "removed"
	}
}

// Event is a registry change notification.
type Event struct {
	Type   EventType
	Handle Handle
}

// Snapshot is an immutable view of the registry in discovery order.
type Snapshot struct {
	Version uint64
	Handles []Handle
}

// Forwarder receives raw advertising payloads of the selected peripheral.
type Forwarder func(address string, payload []byte)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	NamePrefix    string `default:"DTM"`
	FilterEnabled bool   `default:"true"`
	EventBuffer   int    `default:"128"`
}

// DefaultRegistryOptions returns the options used by the bench.
func DefaultRegistryOptions() RegistryOptions {
	opts := RegistryOptions{}
	defaults.SetDefaults(&opts)
	return opts
}

// Registry is the set of currently visible peripherals, keyed by address.
//
// All mutations go through one mutex, so the scan callback path and the
// periodic sweep never interleave. Readers use Snapshot, which never blocks
// on writers.
type Registry struct {
	mu            sync.Mutex
	handles       *orderedmap.OrderedMap[string, Handle]
	prefix        string
	filterEnabled bool
	selected      string
	forward       Forwarder
	version       uint64

	snapshot atomic.Pointer[Snapshot]
	events   *ringchan.RingChannel[Event]
	now      func() time.Time
	logger   *logrus.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultRegistryOptions().EventBuffer
	}
	r := &Registry{
		handles:       orderedmap.New[string, Handle](),
		prefix:        opts.NamePrefix,
		filterEnabled: opts.FilterEnabled,
		events:        ringchan.New[Event](opts.EventBuffer),
		now:           time.Now,
		logger:        logger,
	}
	r.snapshot.Store(&Snapshot{})
	return r
}

// matches is the admission predicate for unknown peripherals.
func (r *Registry) matches(name string) bool {
	return strings.HasPrefix(name, r.prefix)
}

// OnAdvertisement ingests one scan event.
func (r *Registry) OnAdvertisement(adv device.Advertisement) {
	addr := adv.Addr()
	now := r.now()

	r.mu.Lock()
	h, known := r.handles.Get(addr)
	if !known && r.filterEnabled && !r.matches(adv.LocalName()) {
		r.mu.Unlock()
		return
	}

	h.Address = addr
	if name := adv.LocalName(); name != "" || !known {
		h.Name = name
	}
	h.RSSI = adv.RSSI()
	h.Connectable = adv.Connectable()
	h.LastSeen = now
	if md := adv.ManufacturerData(); len(md) > 0 {
		h.ManufacturerData = append([]byte(nil), md...)
	}
	r.handles.Set(addr, h)
	r.publishLocked()

	var forward Forwarder
	if known && addr == r.selected {
		forward = r.forward
	}
	r.mu.Unlock()

	if known {
		r.events.ForceSend(Event{Type: EventUpdated, Handle: h})
	} else {
		r.logger.WithFields(logrus.Fields{
			"device":  h.Name,
			"address": addr,
			"rssi":    h.RSSI,
		}).Info("Discovered new device")
		r.events.ForceSend(Event{Type: EventAdded, Handle: h})
	}

	if forward != nil {
		forward(addr, adv.Payload())
	}
}

// SweepStale removes handles not seen for longer than maxAge and returns them.
func (r *Registry) SweepStale(now time.Time, maxAge time.Duration) []Handle {
	r.mu.Lock()
	var removed []Handle
	for pair := r.handles.Oldest(); pair != nil; pair = pair.Next() {
		if now.Sub(pair.Value.LastSeen) > maxAge {
			removed = append(removed, pair.Value)
		}
	}
	for _, h := range removed {
		r.handles.Delete(h.Address)
	}
	if len(removed) > 0 {
		r.publishLocked()
	}
	r.mu.Unlock()

	for _, h := range removed {
		r.logger.WithFields(logrus.Fields{
			"address":   h.Address,
			"last_seen": h.LastSeen,
		}).Debug("Removed stale device")
		r.events.ForceSend(Event{Type: EventRemoved, Handle: h})
	}
	return removed
}

// SetFilter toggles the name filter. Enabling it drops registered handles
// that fail the predicate.
func (r *Registry) SetFilter(enabled bool) []Handle {
	r.mu.Lock()
	wasEnabled := r.filterEnabled
	r.filterEnabled = enabled

	var removed []Handle
	if enabled && !wasEnabled {
		for pair := r.handles.Oldest(); pair != nil; pair = pair.Next() {
			if !r.matches(pair.Value.Name) {
				removed = append(removed, pair.Value)
			}
		}
		for _, h := range removed {
			r.handles.Delete(h.Address)
		}
	}
	r.publishLocked()
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"enabled": enabled,
		"removed": len(removed),
	}).Debug("Name filter changed")
	for _, h := range removed {
		r.events.ForceSend(Event{Type: EventRemoved, Handle: h})
	}
	return removed
}

// FilterEnabled reports whether the name filter is on.
func (r *Registry) FilterEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterEnabled
}

// Select makes address the peripheral whose payloads go to forward.
func (r *Registry) Select(address string, forward Forwarder) {
	r.mu.Lock()
	r.selected = address
	r.forward = forward
	r.mu.Unlock()
	r.logger.WithField("address", address).Debug("Peripheral selected")
}

// Deselect stops payload forwarding.
func (r *Registry) Deselect() {
	r.mu.Lock()
	r.selected = ""
	r.forward = nil
	r.mu.Unlock()
}

// Selected returns the selected address, if any.
func (r *Registry) Selected() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected, r.selected != ""
}

// Get returns the handle for address.
func (r *Registry) Get(address string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles.Get(address)
}

// Clear removes every handle. Selection is kept.
func (r *Registry) Clear() {
	r.mu.Lock()
	var removed []Handle
	for pair := r.handles.Oldest(); pair != nil; pair = pair.Next() {
		removed = append(removed, pair.Value)
	}
	r.handles = orderedmap.New[string, Handle]()
	r.publishLocked()
	r.mu.Unlock()

	for _, h := range removed {
		r.events.ForceSend(Event{Type: EventRemoved, Handle: h})
	}
}

// Snapshot returns the latest published view. Safe to iterate while the
// registry keeps changing.
func (r *Registry) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// Version returns the number of mutations so far.
func (r *Registry) Version() uint64 {
	return r.snapshot.Load().Version
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	return len(r.snapshot.Load().Handles)
}

// Events returns a read-only channel of registry changes.
func (r *Registry) Events() <-chan Event {
	return r.events.C()
}

// Close ends the event stream.
func (r *Registry) Close() {
	r.events.Close()
}

// publishLocked must be called with r.mu held.
func (r *Registry) publishLocked() {
	r.version++
	handles := make([]Handle, 0, r.handles.Len())
	for pair := r.handles.Oldest(); pair != nil; pair = pair.Next() {
		handles = append(handles, pair.Value)
	}
	r.snapshot.Store(&Snapshot{Version: r.version, Handles: handles})
}
