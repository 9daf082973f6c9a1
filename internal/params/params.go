// Package params models the DTM test parameters written to a bench
// peripheral and their hex wire encoding.
package params

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mcuadros/go-defaults"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/hexcodec"
)

// Parameter characteristic of the bench firmware.
var (
	ServiceUUID        = device.MustCanonicalUUID("0000fe40-cc7a-482a-984a-7f2ed5b3e58f")
	CharacteristicUUID = device.MustCanonicalUUID("0000fe41-8e22-4541-9d4c-21edae82ed19")
)

const (
	MaxChannel     = 39
	MaxDataLength  = 255
	MaxPacketCount = 65535
)

// Mode selects whether the peripheral transmits or receives.
type Mode int

const (
	ModeTX Mode = iota
	ModeRX
)

func (m Mode) String() string {
	if m == ModeRX {
		return "rx"
	}
	return "tx"
}

// ParseMode accepts "tx" or "rx" in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tx":
		return ModeTX, nil
	case "rx":
		return ModeRX, nil
	default:
		return ModeTX, fmt.Errorf("invalid mode %q (expected tx or rx)", s)
	}
}

func (m Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

func (m *Mode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Params is one DTM configuration. Channels are RF channel indices
// (2402 MHz + 2 MHz * index); codes are the firmware's one-byte enumerations.
type Params struct {
	Mode            Mode `yaml:"mode"`
	TxPower         int  `yaml:"tx_power" default:"0"`
	TxChannel       int  `yaml:"tx_channel" default:"0"`
	DataLength      int  `yaml:"data_length" default:"37"`
	PayloadCode     int  `yaml:"payload" default:"0"`
	TxPhyCode       int  `yaml:"tx_phy" default:"1"`
	RxChannel       int  `yaml:"rx_channel" default:"0"`
	RxPhyCode       int  `yaml:"rx_phy" default:"1"`
	ModulationIndex int  `yaml:"modulation_index" default:"0"`
	PacketCount     int  `yaml:"packet_count" default:"1500"`
}

// Default returns the parameters the bench starts from.
func Default() Params {
	p := Params{}
	defaults.SetDefaults(&p)
	return p
}

// FieldError is a parameter outside its allowed range.
type FieldError struct {
	Field    string
	Value    int
	Min, Max int
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %d out of range [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

// Validate reports every field outside its range.
func (p Params) Validate() error {
	type check struct {
		field         string
		value, lo, hi int
	}
	checks := []check{
		{"tx_power", p.TxPower, -128, 127},
		{"tx_channel", p.TxChannel, 0, MaxChannel},
		{"data_length", p.DataLength, 0, MaxDataLength},
		{"payload", p.PayloadCode, 0, 255},
		{"tx_phy", p.TxPhyCode, 0, 255},
		{"packet_count", p.PacketCount, 0, MaxPacketCount},
	}
	if p.Mode == ModeRX {
		checks = append(checks,
			check{"rx_channel", p.RxChannel, 0, MaxChannel},
			check{"rx_phy", p.RxPhyCode, 0, 255},
			check{"modulation_index", p.ModulationIndex, 0, 255},
		)
	} else if p.Mode != ModeTX {
		return fmt.Errorf("invalid mode %d", int(p.Mode))
	}

	var errs []error
	for _, c := range checks {
		if c.value < c.lo || c.value > c.hi {
			errs = append(errs, &FieldError{Field: c.field, Value: c.value, Min: c.lo, Max: c.hi})
		}
	}
	return errors.Join(errs...)
}

// Encode renders the parameter message as lowercase hex:
//
//	mode | txPower | txChannel | dataLength | payload | txPhy | rxChannel | rxPhy | modIndex | packetCount(LE)
//
// RX fields are zero in TX mode.
func (p Params) Encode() (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	rxChannel, rxPhy, modIndex := 0, 0, 0
	if p.Mode == ModeRX {
		rxChannel, rxPhy, modIndex = p.RxChannel, p.RxPhyCode, p.ModulationIndex
	}

	var sb strings.Builder
	for _, v := range []int{int(p.Mode), int(uint8(int8(p.TxPower))), p.TxChannel, p.DataLength, p.PayloadCode, p.TxPhyCode, rxChannel, rxPhy, modIndex} {
		h, err := hexcodec.IntToHex(v, 1)
		if err != nil {
			return "", err
		}
		sb.WriteString(h)
	}

	count, err := hexcodec.IntToHex(p.PacketCount, 2)
	if err != nil {
		return "", err
	}
	count, err = hexcodec.ToLittleEndian(count)
	if err != nil {
		return "", err
	}
	sb.WriteString(count)
	return sb.String(), nil
}

// Bytes is Encode decoded to the bytes written on air.
func (p Params) Bytes() ([]byte, error) {
	msg, err := p.Encode()
	if err != nil {
		return nil, err
	}
	return hexcodec.HexToBytes(msg)
}

// MessageLen is the size of an encoded parameter message in bytes.
const MessageLen = 11

// Decode parses a parameter message read back from the peripheral.
func Decode(b []byte) (Params, error) {
	if len(b) != MessageLen {
		return Params{}, fmt.Errorf("parameter message is %d bytes, want %d", len(b), MessageLen)
	}
	if b[0] > byte(ModeRX) {
		return Params{}, fmt.Errorf("invalid mode %d", b[0])
	}
	count, err := hexcodec.ToBigEndian(hexcodec.BytesToHex(b[9:11]))
	if err != nil {
		return Params{}, err
	}
	packets, err := strconv.ParseUint(count, 16, 16)
	if err != nil {
		return Params{}, fmt.Errorf("invalid packet count %q: %w", count, err)
	}
	return Params{
		Mode:            Mode(b[0]),
		TxPower:         int(int8(b[1])),
		TxChannel:       int(b[2]),
		DataLength:      int(b[3]),
		PayloadCode:     int(b[4]),
		TxPhyCode:       int(b[5]),
		RxChannel:       int(b[6]),
		RxPhyCode:       int(b[7]),
		ModulationIndex: int(b[8]),
		PacketCount:     int(packets),
	}, nil
}

// ParseMessage parses a hex parameter message typed by an operator, e.g.
// "00 02 05 25 01 02 00 00 00 dc 05". Whitespace is ignored.
func ParseMessage(msg string) (Params, error) {
	b, err := hexcodec.HexToBytes(hexcodec.StripWhitespace(msg))
	if err != nil {
		return Params{}, err
	}
	p, err := Decode(b)
	if err != nil {
		return Params{}, err
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// FrequencyMHz returns the centre frequency of RF channel rf.
func FrequencyMHz(rf int) int {
	return 2402 + 2*rf
}

// BLEChannel maps an RF channel index to the BLE channel number: the three
// advertising channels 37, 38 and 39 sit at RF 0, 12 and 39.
func BLEChannel(rf int) int {
	switch {
	case rf == 0:
		return 37
	case rf == 12:
		return 38
	case rf == 39:
		return 39
	case rf < 12:
		return rf - 1
	default:
		return rf - 2
	}
}

// ChannelLabel renders rf like "2426 MHz (Channel 38)".
func ChannelLabel(rf int) string {
	return fmt.Sprintf("%d MHz (Channel %d)", FrequencyMHz(rf), BLEChannel(rf))
}
