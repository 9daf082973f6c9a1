package tinygo

import (
	"errors"
	"testing"

	"github.com/srg/perbench/internal/advert"
	"github.com/srg/perbench/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/bluetooth"
)

func TestNewAdvertisement(t *testing.T) {
	tests := []struct {
		name    string
		elems   []bluetooth.ManufacturerDataElement
		wantMfr []byte
	}{
		{
			name:    "company id is little-endian",
			elems:   []bluetooth.ManufacturerDataElement{{CompanyID: 0x1234, Data: []byte{0xaa, 0xbb}}},
			wantMfr: []byte{0x34, 0x12, 0xaa, 0xbb},
		},
		{
			name:    "only first element kept",
			elems:   []bluetooth.ManufacturerDataElement{{CompanyID: 0xffff, Data: []byte{0x01}}, {CompanyID: 0x0001}},
			wantMfr: []byte{0xff, 0xff, 0x01},
		},
		{
			name: "no manufacturer data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv := newAdvertisement("AA:BB:CC:DD:EE:01", "DTM-RX", -70, tt.elems)

			assert.Equal(t, "AA:BB:CC:DD:EE:01", adv.Addr())
			assert.Equal(t, -70, adv.RSSI())
			assert.Equal(t, tt.wantMfr, adv.ManufacturerData())
			assert.Equal(t, "DTM-RX", advert.LocalName(adv.Payload()))

			block, ok := advert.ManufacturerBlock(adv.Payload())
			assert.Equal(t, tt.wantMfr != nil, ok)
			assert.Equal(t, tt.wantMfr, block)
		})
	}
}

func TestCharKey(t *testing.T) {
	assert.Equal(t,
		charKey("0000ffe0-0000-1000-8000-00805f9b34fb", "0000FFE1-0000-1000-8000-00805F9B34FB"),
		charKey("ffe0", "0xffe1"),
		"short and long UUID forms MUST map to the same characteristic")
}

func TestStatusOf(t *testing.T) {
	require.True(t, statusOf(nil).OK())
	assert.Equal(t, device.StatusFailure, statusOf(errors.New("boom")))
}

func TestPropertiesOfDiscoveredCharacteristic(t *testing.T) {
	g := newGattClient("AA:BB:CC:DD:EE:01", bluetooth.Device{}, nil, nil)
	g.chars[charKey("fe40", "fe41")] = bluetooth.DeviceCharacteristic{}

	props, err := g.Properties("fe40", "fe41")
	require.NoError(t, err)
	assert.True(t, props.Has(device.PropWriteWithoutResponse), "every platform MUST offer write without response")
	assert.True(t, props.Has(device.PropRead))

	_, err = g.Properties("fe40", "fe42")
	var nf *device.NotFoundError
	assert.ErrorAs(t, err, &nf, "unknown characteristic MUST be reported as not found")
}
