package tinygo

import (
	"encoding/binary"

	"github.com/srg/perbench/internal/advert"
	"github.com/srg/perbench/internal/device"
	"tinygo.org/x/bluetooth"
)

// advertisement is a device.Advertisement built from a bluetooth.ScanResult.
type advertisement struct {
	addr    string
	name    string
	rssi    int
	mfr     []byte
	payload []byte
}

func fromScanResult(res bluetooth.ScanResult) *advertisement {
	return newAdvertisement(res.Address.String(), res.LocalName(), int(res.RSSI), res.ManufacturerData())
}

// newAdvertisement rebuilds the manufacturer block in its on-air form: the
// company identifier little-endian, then the data. Only the first element is
// kept, the bench peripherals advertise one.
func newAdvertisement(addr, name string, rssi int, elems []bluetooth.ManufacturerDataElement) *advertisement {
	var mfr []byte
	if len(elems) > 0 {
		mfr = binary.LittleEndian.AppendUint16(nil, elems[0].CompanyID)
		mfr = append(mfr, elems[0].Data...)
	}
	return &advertisement{
		addr:    addr,
		name:    name,
		rssi:    rssi,
		mfr:     mfr,
		payload: advert.Synthesize(name, mfr),
	}
}

var _ device.Advertisement = (*advertisement)(nil)

func (a *advertisement) Addr() string             { return a.addr }
func (a *advertisement) LocalName() string        { return a.name }
func (a *advertisement) RSSI() int                { return a.rssi }
func (a *advertisement) Connectable() bool        { return true }
func (a *advertisement) ManufacturerData() []byte { return a.mfr }
func (a *advertisement) Payload() []byte          { return a.payload }
