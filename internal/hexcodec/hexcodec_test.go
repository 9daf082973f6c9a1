package hexcodec_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/srg/perbench/internal/hexcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesToHexRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		b := make([]byte, rng.Intn(64))
		rng.Read(b)

		s := hexcodec.BytesToHex(b)
		assert.Len(t, s, 2*len(b), "hex MUST use two digits per byte")

		back, err := hexcodec.HexToBytes(s)
		require.NoError(t, err)
		assert.Equal(t, b, back, "hexToBytes(bytesToHex(b)) MUST equal b")
	}
}

func TestBytesToHexIsLowercase(t *testing.T) {
	assert.Equal(t, "00abff", hexcodec.BytesToHex([]byte{0x00, 0xAB, 0xFF}))
}

func TestHexToBytes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{name: "empty", input: "", want: []byte{}},
		{name: "lowercase", input: "dc05", want: []byte{0xdc, 0x05}},
		{name: "uppercase", input: "DC05", want: []byte{0xdc, 0x05}},
		{name: "odd length", input: "abc", wantErr: true},
		{name: "non hex", input: "zz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hexcodec.HexToBytes(tt.input)
			if tt.wantErr {
				var de *hexcodec.DecodeError
				require.ErrorAs(t, err, &de, "malformed input MUST fail with DecodeError")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIntToHex(t *testing.T) {
	tests := []struct {
		name     string
		value    int
		numBytes int
		want     string
		wantErr  bool
	}{
		{name: "zero one byte", value: 0, numBytes: 1, want: "00"},
		{name: "max one byte", value: 255, numBytes: 1, want: "ff"},
		{name: "overflow one byte", value: 256, numBytes: 1, wantErr: true},
		{name: "packet count", value: 1500, numBytes: 2, want: "05dc"},
		{name: "padded", value: 5, numBytes: 2, want: "0005"},
		{name: "negative", value: -1, numBytes: 1, wantErr: true},
		{name: "zero width", value: 1, numBytes: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hexcodec.IntToHex(tt.value, tt.numBytes)
			if tt.wantErr {
				var de *hexcodec.DecodeError
				assert.ErrorAs(t, err, &de)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHexEndianSwap(t *testing.T) {
	got, err := hexcodec.HexEndianSwap("05dc")
	require.NoError(t, err)
	assert.Equal(t, "dc05", got)

	got, err = hexcodec.ToLittleEndian("01020304")
	require.NoError(t, err)
	assert.Equal(t, "04030201", got)

	_, err = hexcodec.HexEndianSwap("abc")
	var de *hexcodec.DecodeError
	assert.ErrorAs(t, err, &de, "odd length MUST fail")
}

func TestHexEndianSwapIsInvolutive(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		b := make([]byte, rng.Intn(32))
		rng.Read(b)
		h := hexcodec.BytesToHex(b)

		once, err := hexcodec.HexEndianSwap(h)
		require.NoError(t, err)
		twice, err := hexcodec.ToBigEndian(once)
		require.NoError(t, err)
		assert.Equal(t, h, twice, "swap(swap(h)) MUST equal h")
	}
}

func TestBytesToFloat32(t *testing.T) {
	bits := math.Float32bits(12.5)
	b := []byte{byte(bits >> 24), byte(bits >> 16), byte(bits >> 8), byte(bits), 0xEE}

	f, err := hexcodec.BytesToFloat32(b)
	require.NoError(t, err)
	assert.Equal(t, float32(12.5), f, "only the first four bytes MUST be used")

	_, err = hexcodec.BytesToFloat32([]byte{1, 2, 3})
	var de *hexcodec.DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestStripWhitespace(t *testing.T) {
	assert.Equal(t, "020525", hexcodec.StripWhitespace(" 02 05\t25\n"))
}
