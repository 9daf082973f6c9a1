package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/perbench/internal/advert"
	"github.com/srg/perbench/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement interface
type BLEAdvertisement struct {
	adv     ble.Advertisement
	payload []byte
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper.
//
// go-ble parses the advertising data and does not keep the raw bytes, so the
// payload is rebuilt from the local name and manufacturer data. Those are the
// only structures the bench reads.
func NewBLEAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &BLEAdvertisement{
		adv:     adv,
		payload: advert.Synthesize(adv.LocalName(), adv.ManufacturerData()),
	}
}

func (a *BLEAdvertisement) LocalName() string        { return a.adv.LocalName() }
func (a *BLEAdvertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a *BLEAdvertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int                { return a.adv.RSSI() }
func (a *BLEAdvertisement) Payload() []byte          { return a.payload }

func (a *BLEAdvertisement) Addr() string {
	if a.adv.Addr() == nil {
		return ""
	}
	return a.adv.Addr().String()
}

// Unwrap returns the underlying ble.Advertisement for internal use within go-ble package
func (a *BLEAdvertisement) Unwrap() ble.Advertisement {
	return a.adv
}
