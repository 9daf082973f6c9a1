package main

import (
	"os"
	"testing"

	"github.com/srg/perbench/internal/coordinator"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/params"
	"github.com/srg/perbench/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type ConfigureTestSuite struct {
	CommandTestSuite
}

// expectParamsWrite answers the parameter write with status.
func (suite *ConfigureTestSuite) expectParamsWrite(want []byte, status device.Status) {
	suite.Gatt.On("Properties", params.ServiceUUID, params.CharacteristicUUID).
		Return(device.PropRead|device.PropWrite, nil)
	suite.Gatt.On("WriteCharacteristic", params.ServiceUUID, params.CharacteristicUUID, want, device.WriteWithResponse).
		Return(nil).
		Run(func(args mock.Arguments) {
			go suite.Radio.Callback().OnCharacteristicWrite(args.String(1), want, status)
		})
}

func (suite *ConfigureTestSuite) TestDryRunPrintsMessage() {
	// GOAL: --dry-run renders the parameters and message without touching the radio
	//
	// TEST SCENARIO: configure --channel 12 --power 4 --dry-run → table with the encoded message → no connection

	output, err := suite.ExecuteCommand(configureCmd, addConfigureFlags,
		TestDeviceAddress1, "--mode", "tx", "--channel", "12", "--power", "4", "--dry-run")
	suite.Require().NoError(err, "dry run MUST succeed")

	testutils.NewTextAsserter(suite.T()).
		WithOptions(testutils.WithCollapseSpaces(true), testutils.WithIgnoreTrailingWhitespace(true)).
		Assert(output, `Mode: tx
TX power: 4 dBm
TX channel: 2426 MHz (Channel 38)
Data length: 37
Payload: 0
TX PHY: 1
Packets: 1500
Message: 00040c250001000000dc05
`)
	suite.Radio.AssertNumberOfCalls(suite.T(), "Connect", 0)
	suite.Radio.AssertNumberOfCalls(suite.T(), "Scan", 0)
}

func (suite *ConfigureTestSuite) TestRawMessage() {
	// GOAL: --message takes a spaced hex message in place of the field flags
	//
	// TEST SCENARIO: configure --message "00 04 0C 25 ..." --channel 3 --dry-run → fields decoded from the message → no connection

	output, err := suite.ExecuteCommand(configureCmd, addConfigureFlags,
		TestDeviceAddress1, "--message", "00 04 0C 25 00 01 00 00 00 dc 05", "--channel", "3", "--dry-run")
	suite.Require().NoError(err, "raw message MUST be accepted")

	testutils.NewTextAsserter(suite.T()).
		WithOptions(testutils.WithCollapseSpaces(true), testutils.WithIgnoreTrailingWhitespace(true)).
		Assert(output, `Mode: tx
TX power: 4 dBm
TX channel: 2426 MHz (Channel 38)
Data length: 37
Payload: 0
TX PHY: 1
Packets: 1500
Message: 00040c250001000000dc05
`)
	suite.Radio.AssertNumberOfCalls(suite.T(), "Scan", 0)

	_, err = suite.ExecuteCommand(configureCmd, addConfigureFlags,
		TestDeviceAddress1, "--message", "00 04 0c", "--dry-run")
	suite.Assert().Error(err, "truncated message MUST be rejected")
}

func (suite *ConfigureTestSuite) TestRXFollowsSavedTX() {
	// GOAL: an RX configuration starts from the remembered TX channel and PHY
	//
	// TEST SCENARIO: saved TX on RF 20 / PHY 2 → configure --mode rx --dry-run → RX channel and PHY follow

	saved := params.Default()
	saved.TxChannel = 20
	saved.TxPhyCode = 2
	suite.Require().NoError(params.NewStore(suite.ParamsPath).Save(saved), "saving MUST succeed")

	output, err := suite.ExecuteCommand(configureCmd, addConfigureFlags,
		TestDeviceAddress1, "--mode", "rx", "--packets", "200", "--dry-run")
	suite.Require().NoError(err, "dry run MUST succeed")

	testutils.NewTextAsserter(suite.T()).
		WithOptions(testutils.WithCollapseSpaces(true), testutils.WithIgnoreTrailingWhitespace(true)).
		Assert(output, `Mode: rx
TX power: 0 dBm
TX channel: 2442 MHz (Channel 18)
Data length: 37
Payload: 0
TX PHY: 2
RX channel: 2442 MHz (Channel 18)
RX PHY: 2
Modulation index: 0
Packets: 200
Message: 010014250002140200c800
`)
}

func (suite *ConfigureTestSuite) TestInvalidChannel() {
	// GOAL: out-of-range flags are rejected before any radio work
	//
	// TEST SCENARIO: configure --channel 40 → FieldError → user message names the field

	_, err := suite.ExecuteCommand(configureCmd, addConfigureFlags, TestDeviceAddress1, "--channel", "40")
	suite.Require().Error(err, "channel 40 MUST be rejected")

	var fieldErr *params.FieldError
	suite.Require().ErrorAs(err, &fieldErr)
	suite.Assert().Equal("tx_channel", fieldErr.Field)
	suite.Assert().Equal("invalid parameters: tx_channel 40 out of range [0, 39]", FormatUserError(err))
	suite.Radio.AssertNumberOfCalls(suite.T(), "Scan", 0)
}

func (suite *ConfigureTestSuite) TestWritesAndRemembersParameters() {
	// GOAL: configure scans, connects, writes the message and remembers TX parameters
	//
	// TEST SCENARIO: lowercase address → peripheral found → write succeeds → success line → params file saved

	suite.ScanWith(testutils.CreateMockAdvertisement("DTM-TX", TestDeviceAddress1, -50).Build())
	suite.ExpectLink(247)

	want := params.Default()
	want.TxChannel = 12
	want.TxPower = -8
	value, err := want.Bytes()
	suite.Require().NoError(err)
	suite.expectParamsWrite(value, device.StatusSuccess)

	output, err := suite.ExecuteCommand(configureCmd, addConfigureFlags,
		"aa:bb:cc:dd:ee:01", "--channel", "12", "--power", "-8")
	suite.Require().NoError(err, "configure MUST succeed: %s", output)

	suite.Assert().Contains(output, "Parameters written to "+TestDeviceAddress1, "output MUST confirm the write")
	suite.Gatt.AssertCalled(suite.T(), "WriteCharacteristic", params.ServiceUUID, params.CharacteristicUUID, value, device.WriteWithResponse)

	saved, err := params.NewStore(suite.ParamsPath).Load()
	suite.Require().NoError(err)
	suite.Assert().Equal(want, saved, "successful TX parameters MUST be remembered")
}

func (suite *ConfigureTestSuite) TestRejectedWrite() {
	// GOAL: a non-success write status fails the command and is not remembered
	//
	// TEST SCENARIO: peripheral answers write-not-permitted → StatusError → no params file

	suite.ScanWith(testutils.CreateMockAdvertisement("DTM-TX", TestDeviceAddress1, -50).Build())
	suite.ExpectLink(247)

	value, err := params.Default().Bytes()
	suite.Require().NoError(err)
	suite.expectParamsWrite(value, device.StatusWriteNotPermitted)

	output, err := suite.ExecuteCommand(configureCmd, addConfigureFlags, TestDeviceAddress1)
	suite.Require().Error(err, "a rejected write MUST fail the command")

	var statusErr *coordinator.StatusError
	suite.Require().ErrorAs(err, &statusErr)
	suite.Assert().Equal(device.StatusWriteNotPermitted, statusErr.Status)
	suite.Assert().Contains(output, "rejected the parameters", "output MUST report the rejection")

	_, statErr := os.Stat(suite.ParamsPath)
	suite.Assert().True(os.IsNotExist(statErr), "rejected parameters MUST NOT be remembered")
}

func (suite *ConfigureTestSuite) TestDeviceNotFound() {
	// GOAL: configure fails cleanly when the peripheral never advertises
	//
	// TEST SCENARIO: scan sees another peripheral until the scan timeout → ErrDeviceNotFound

	suite.ScanWith(testutils.CreateMockAdvertisement("DTM-TX", TestDeviceAddress2, -50).Build())

	_, err := suite.ExecuteCommand(configureCmd, addConfigureFlags, TestDeviceAddress1)
	suite.Require().ErrorIs(err, ErrDeviceNotFound)
	suite.Radio.AssertNumberOfCalls(suite.T(), "Connect", 0)
}

func TestConfigureTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigureTestSuite))
}
