package params_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/srg/perbench/internal/coordinator"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/hexcodec"
	"github.com/srg/perbench/internal/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func txExample() params.Params {
	return params.Params{
		Mode:        params.ModeTX,
		TxPower:     2,
		TxChannel:   5,
		DataLength:  37,
		PayloadCode: 0x01,
		TxPhyCode:   0x02,
		PacketCount: 1500,
	}
}

func TestEncode(t *testing.T) {
	rx := txExample()
	rx.Mode = params.ModeRX
	rx.RxChannel = 12
	rx.RxPhyCode = 0x02
	rx.ModulationIndex = 0x01

	withRxFields := txExample()
	withRxFields.RxChannel = 9
	withRxFields.RxPhyCode = 3

	negativePower := txExample()
	negativePower.TxPower = -2

	tests := []struct {
		name string
		p    params.Params
		want string
	}{
		{"tx example", txExample(), "000205250102000000dc05"},
		{"rx mode carries rx fields", rx, "0102052501020c0201dc05"},
		{"tx mode zeroes rx fields", withRxFields, "000205250102000000dc05"},
		{"negative power is two's complement", negativePower, "00fe05250102000000dc05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.p.Encode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBytes(t *testing.T) {
	b, err := txExample().Bytes()

	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x02, 0x05, 0x25, 0x01, 0x02, 0x00, 0x00, 0x00, 0xdc, 0x05}, b)
}

func TestDecode(t *testing.T) {
	rx := txExample()
	rx.Mode = params.ModeRX
	rx.TxPower = -8
	rx.RxChannel = 39
	rx.RxPhyCode = 0x02
	rx.ModulationIndex = 0x01

	b, err := rx.Bytes()
	require.NoError(t, err)
	got, err := params.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, rx, got, "a read back message MUST decode to the parameters written")

	_, err = params.Decode(b[:10])
	assert.Error(t, err, "short messages MUST be rejected")

	b[0] = 0x07
	_, err = params.Decode(b)
	assert.Error(t, err, "unknown modes MUST be rejected")
}

func TestParseMessage(t *testing.T) {
	p, err := params.ParseMessage(" 00 02 05 25\t01 02 00 00 00\nDC 05 ")
	require.NoError(t, err)
	assert.Equal(t, txExample(), p, "spaced mixed-case hex MUST parse like the encoded message")

	_, err = params.ParseMessage("00 02 05 2")
	var de *hexcodec.DecodeError
	assert.ErrorAs(t, err, &de, "odd-length hex MUST be a decode error")

	_, err = params.ParseMessage("00 02 28 25 01 02 00 00 00 dc 05")
	var fe *params.FieldError
	assert.ErrorAs(t, err, &fe, "RF channel 40 MUST fail validation")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *params.Params)
		fields []string
	}{
		{"valid", func(p *params.Params) {}, nil},
		{"channel too high", func(p *params.Params) { p.TxChannel = 40 }, []string{"tx_channel"}},
		{"data length too long", func(p *params.Params) { p.DataLength = 256 }, []string{"data_length"}},
		{"packet count overflow", func(p *params.Params) { p.PacketCount = 70000 }, []string{"packet_count"}},
		{"power too low", func(p *params.Params) { p.TxPower = -129 }, []string{"tx_power"}},
		{"rx field ignored in tx mode", func(p *params.Params) { p.RxChannel = 99 }, nil},
		{"rx field checked in rx mode", func(p *params.Params) {
			p.Mode = params.ModeRX
			p.RxChannel = 99
			p.ModulationIndex = -1
		}, []string{"rx_channel", "modulation_index"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := txExample()
			tt.mutate(&p)

			err := p.Validate()
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, f := range tt.fields {
				assert.Contains(t, err.Error(), f)
			}
			var fe *params.FieldError
			assert.True(t, errors.As(err, &fe), "MUST expose *FieldError")

			_, encErr := p.Encode()
			assert.Error(t, encErr, "invalid parameters MUST NOT encode")
		})
	}
}

func TestDefault(t *testing.T) {
	p := params.Default()

	assert.Equal(t, params.ModeTX, p.Mode)
	assert.Equal(t, 37, p.DataLength)
	assert.Equal(t, 1500, p.PacketCount)
	assert.NoError(t, p.Validate())
}

func TestParseMode(t *testing.T) {
	m, err := params.ParseMode(" RX ")
	require.NoError(t, err)
	assert.Equal(t, params.ModeRX, m)

	_, err = params.ParseMode("both")
	assert.Error(t, err)
}

func TestChannelLabel(t *testing.T) {
	tests := []struct {
		rf   int
		want string
	}{
		{0, "2402 MHz (Channel 37)"},
		{1, "2404 MHz (Channel 0)"},
		{11, "2424 MHz (Channel 10)"},
		{12, "2426 MHz (Channel 38)"},
		{13, "2428 MHz (Channel 11)"},
		{38, "2478 MHz (Channel 36)"},
		{39, "2480 MHz (Channel 39)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, params.ChannelLabel(tt.rf))
	}
}

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) WriteCharacteristic(ctx context.Context, service, characteristic string, value []byte) (coordinator.Result, error) {
	args := m.Called(ctx, service, characteristic, value)
	return args.Get(0).(coordinator.Result), args.Error(1)
}

func TestWriter(t *testing.T) {
	t.Run("writes the encoded message", func(t *testing.T) {
		transport := &mockTransport{}
		want := []byte{0x00, 0x02, 0x05, 0x25, 0x01, 0x02, 0x00, 0x00, 0x00, 0xdc, 0x05}
		transport.On("WriteCharacteristic", mock.Anything, params.ServiceUUID, params.CharacteristicUUID, want).
			Return(coordinator.Result{ID: params.CharacteristicUUID}, nil)

		res, err := params.NewWriter(transport, nil).Write(context.Background(), txExample())

		require.NoError(t, err)
		assert.True(t, res.OK())
		transport.AssertExpectations(t)
	})

	t.Run("status is returned, not raised", func(t *testing.T) {
		transport := &mockTransport{}
		transport.On("WriteCharacteristic", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(coordinator.Result{ID: params.CharacteristicUUID, Status: device.StatusInvalidAttributeLength}, nil)

		res, err := params.NewWriter(transport, nil).Write(context.Background(), txExample())

		require.NoError(t, err)
		assert.Equal(t, device.StatusInvalidAttributeLength, res.Status)
	})

	t.Run("invalid parameters never reach the radio", func(t *testing.T) {
		transport := &mockTransport{}
		p := txExample()
		p.TxChannel = 45

		_, err := params.NewWriter(transport, nil).Write(context.Background(), p)

		assert.Error(t, err)
		transport.AssertNotCalled(t, "WriteCharacteristic", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("transport errors propagate", func(t *testing.T) {
		transport := &mockTransport{}
		transport.On("WriteCharacteristic", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(coordinator.Result{}, device.ErrNotConnected)

		_, err := params.NewWriter(transport, nil).Write(context.Background(), txExample())

		assert.ErrorIs(t, err, device.ErrNotConnected)
	})
}

func TestStore(t *testing.T) {
	dir := t.TempDir()
	store := params.NewStore(filepath.Join(dir, "nested", "params.yaml"))

	p, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, params.Default(), p, "missing file MUST yield defaults")

	require.NoError(t, store.Remember(txExample()))
	p, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, txExample(), p)

	rx := params.ForRX(p)
	require.NoError(t, store.Remember(rx))
	p, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, params.ModeTX, p.Mode, "RX configurations MUST NOT overwrite saved TX values")

	assert.Equal(t, params.ModeRX, rx.Mode)
	assert.Equal(t, 5, rx.RxChannel)
	assert.Equal(t, 2, rx.RxPhyCode)
}

func TestStoreParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: sideways\n"), 0o644))

	_, err := params.NewStore(path).Load()

	assert.Error(t, err)
}
