package advert_test

import (
	"testing"

	"github.com/srg/perbench/internal/advert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []advert.Structure
		wantErr bool
	}{
		{
			name:    "flags and manufacturer block",
			payload: []byte{0x02, 0x01, 0x06, 0x04, 0xFF, 0x30, 0x00, 0x05},
			want: []advert.Structure{
				{Type: advert.TypeFlags, Data: []byte{0x06}},
				{Type: advert.TypeManufacturerSpecific, Data: []byte{0x30, 0x00, 0x05}},
			},
		},
		{
			name:    "zero padding ends the walk",
			payload: []byte{0x02, 0x01, 0x06, 0x00, 0x00, 0x00},
			want:    []advert.Structure{{Type: advert.TypeFlags, Data: []byte{0x06}}},
		},
		{
			name:    "empty payload",
			payload: nil,
			want:    nil,
		},
		{
			name:    "truncated structure",
			payload: []byte{0x02, 0x01, 0x06, 0x09, 0xFF, 0x01},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := advert.Decode(tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, advert.ErrTruncated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeDecodeAgree(t *testing.T) {
	structs := []advert.Structure{
		{Type: advert.TypeCompleteLocalName, Data: []byte("DTM-RX")},
		{Type: advert.TypeManufacturerSpecific, Data: []byte{0x30, 0x00, 0x01, 0x02}},
	}
	payload, err := advert.Encode(structs)
	require.NoError(t, err)
	assert.Equal(t, byte(7), payload[0], "length byte MUST count the type byte")

	back, err := advert.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, structs, back)

	_, err = advert.Encode([]advert.Structure{{Type: 0xFF, Data: make([]byte, 255)}})
	assert.Error(t, err, "oversized data MUST be rejected")
}

func TestManufacturerBlock(t *testing.T) {
	block, ok := advert.ManufacturerBlock([]byte{0x02, 0x01, 0x06, 0x03, 0xFF, 0xAA, 0xBB})
	require.True(t, ok)
	assert.Equal(t, []byte{0xAA, 0xBB}, block)

	_, ok = advert.ManufacturerBlock([]byte{0x02, 0x01, 0x06})
	assert.False(t, ok, "payload without 0xFF MUST report no block")

	_, ok = advert.ManufacturerBlock([]byte{0x05, 0xFF, 0x01})
	assert.False(t, ok, "malformed payload MUST report no block")
}

func TestLocalNameAndSynthesize(t *testing.T) {
	payload := advert.Synthesize("DTM-TX", []byte{0x30, 0x00})
	assert.Equal(t, "DTM-TX", advert.LocalName(payload))

	block, ok := advert.ManufacturerBlock(payload)
	require.True(t, ok)
	assert.Equal(t, []byte{0x30, 0x00}, block)

	short, err := advert.Encode([]advert.Structure{{Type: advert.TypeShortenedLocalName, Data: []byte("DTM")}})
	require.NoError(t, err)
	assert.Equal(t, "DTM", advert.LocalName(short))

	assert.Empty(t, advert.Synthesize("", nil))
}
