package testutils

import (
	"github.com/srg/perbench/internal/advert"
	"github.com/srg/perbench/internal/device"
)

// MockAdvertisement is a static device.Advertisement.
type MockAdvertisement struct {
	AddrValue        string
	Name             string
	RSSIValue        int
	IsConnectable    bool
	ManufacturerInfo []byte
	Raw              []byte
}

func (a *MockAdvertisement) Addr() string             { return a.AddrValue }
func (a *MockAdvertisement) LocalName() string        { return a.Name }
func (a *MockAdvertisement) RSSI() int                { return a.RSSIValue }
func (a *MockAdvertisement) Connectable() bool        { return a.IsConnectable }
func (a *MockAdvertisement) ManufacturerData() []byte { return a.ManufacturerInfo }
func (a *MockAdvertisement) Payload() []byte          { return a.Raw }

// AdvertisementBuilder builds advertisements for tests with a fluent API.
type AdvertisementBuilder struct {
	adv        MockAdvertisement
	payloadSet bool
}

// NewAdvertisementBuilder starts from a connectable advertisement with RSSI -60.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		adv: MockAdvertisement{
			AddrValue:     "AA:BB:CC:DD:EE:FF",
			RSSIValue:     -60,
			IsConnectable: true,
		},
	}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.AddrValue = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.RSSIValue = rssi
	return b
}

func (b *AdvertisementBuilder) WithConnectable(connectable bool) *AdvertisementBuilder {
	b.adv.IsConnectable = connectable
	return b
}

// WithManufacturerData sets the manufacturer-specific block.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.ManufacturerInfo = data
	return b
}

// WithTelemetry sets a manufacturer block carrying a telemetry frame.
func (b *AdvertisementBuilder) WithTelemetry(index uint8, packets uint16, per float32, rssi int) *AdvertisementBuilder {
	return b.WithManufacturerData(TelemetryBlock(index, packets, per, rssi))
}

// WithPayload sets the raw advertising bytes verbatim.
func (b *AdvertisementBuilder) WithPayload(payload []byte) *AdvertisementBuilder {
	b.adv.Raw = payload
	b.payloadSet = true
	return b
}

// Build returns the advertisement. Unless WithPayload was used, the payload is
// synthesized from the name and manufacturer block.
func (b *AdvertisementBuilder) Build() device.Advertisement {
	adv := b.adv
	if !b.payloadSet {
		adv.Raw = advert.Synthesize(adv.Name, adv.ManufacturerInfo)
	}
	return &adv
}
