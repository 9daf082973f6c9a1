package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/perbench/internal/testutils"
	"github.com/srg/perbench/scanner"
	"github.com/stretchr/testify/suite"
)

// ScanTestSuite provides testify/suite for proper test isolation
type ScanTestSuite struct {
	CommandTestSuite
}

func (suite *ScanTestSuite) TestScanCmd_Help() {
	// GOAL: Verify scan command displays help text with all flags
	//
	// TEST SCENARIO: Execute scan --help → returns success → output contains description and flag documentation

	cmd := &cobra.Command{}
	cmd.AddCommand(scanCmd)
	defer cmd.RemoveCommand(scanCmd)

	output, err := executeCommand(cmd, "scan", "--help")
	suite.Require().NoError(err, "help command MUST succeed")

	suite.Assert().Contains(output, "Scan for and display DTM test-bench peripherals", "help MUST contain command description")
	suite.Assert().Contains(output, "--duration", "help MUST document --duration flag")
	suite.Assert().Contains(output, "--format", "help MUST document --format flag")
	suite.Assert().Contains(output, "--all", "help MUST document --all flag")
}

func (suite *ScanTestSuite) TestScanCmd_InvalidFormat() {
	// GOAL: Verify scan command rejects invalid format values
	//
	// TEST SCENARIO: Execute scan with invalid format → returns error → error message lists valid formats

	_, err := suite.ExecuteCommand(scanCmd, addScanFlags, "--format=xml")

	suite.Require().Error(err, "invalid format MUST return error")
	suite.Assert().Contains(err.Error(), "invalid format 'xml': must be one of [table json csv]", "error MUST list valid formats")
	suite.Radio.AssertNumberOfCalls(suite.T(), "Scan", 0)
}

func (suite *ScanTestSuite) TestScanCmd_JSONListsDTMPeripherals() {
	// GOAL: Verify a timed scan prints admitted peripherals in discovery order
	//
	// TEST SCENARIO: radio reports two DTM peripherals and a phone → JSON output → only the DTM ones, in order

	suite.ScanWith(
		testutils.CreateMockAdvertisement("DTM-TX", TestDeviceAddress2, -61).Build(),
		testutils.CreateMockAdvertisement("Pixel 8", "11:22:33:44:55:66", -40).Build(),
		testutils.CreateMockAdvertisement("DTM-RX", TestDeviceAddress1, -55).Build(),
	)

	output, err := suite.ExecuteCommand(scanCmd, addScanFlags, "--duration", "200ms", "--format", "json")
	suite.Require().NoError(err, "scan MUST succeed")

	start := strings.Index(output, "[\n")
	suite.Require().GreaterOrEqual(start, 0, "output MUST contain a JSON array: %q", output)

	testutils.NewJSONAsserter(suite.T()).Assert(output[start:], `[
		{"address": "AA:BB:CC:DD:EE:02", "name": "DTM-TX", "rssi": -61, "connectable": true, "lastSeen": "<<PRESENCE>>"},
		{"address": "AA:BB:CC:DD:EE:01", "name": "DTM-RX", "rssi": -55, "connectable": true, "lastSeen": "<<PRESENCE>>"}
	]`)
}

func (suite *ScanTestSuite) TestScanCmd_AllDisablesNameFilter() {
	// GOAL: Verify --all admits peripherals regardless of name
	//
	// TEST SCENARIO: radio reports a phone → scan --all --format csv → the phone is listed

	suite.ScanWith(testutils.CreateMockAdvertisement("Pixel 8", "11:22:33:44:55:66", -40).Build())

	output, err := suite.ExecuteCommand(scanCmd, addScanFlags, "--duration", "200ms", "--format", "csv", "--all")
	suite.Require().NoError(err, "scan MUST succeed")
	suite.Assert().Contains(output, "name,address,rssi,connectable\n", "csv MUST start with a header")
	suite.Assert().Contains(output, "Pixel 8,11:22:33:44:55:66,-40,true\n", "--all MUST admit unnamed-prefix peripherals")
}

func (suite *ScanTestSuite) TestDisplayHandles() {
	// GOAL: Verify every output format renders handles correctly
	//
	// TEST SCENARIO: render empty and populated handle lists → compare with expected text

	handles := []scanner.Handle{
		{Address: TestDeviceAddress1, Name: "DTM-RX", RSSI: -55, Connectable: true, LastSeen: time.Now()},
		{Address: TestDeviceAddress2, Name: "DTM-A-VERY-LONG-DEVICE-NAME", RSSI: -70, LastSeen: time.Now()},
	}

	tests := []struct {
		name     string
		handles  []scanner.Handle
		format   string
		expected string
	}{
		{
			name:     "empty table",
			format:   "table",
			expected: "No devices discovered\n",
		},
		{
			name:     "empty json",
			format:   "json",
			expected: "[]\n",
		},
		{
			name:    "table",
			handles: handles,
			format:  "table",
			expected: `NAME ADDRESS RSSI LAST SEEN
----------------------------------------------------------------
DTM-RX AA:BB:CC:DD:EE:01 -55 dBm 0s ago
DTM-A-VERY-LONG-D... AA:BB:CC:DD:EE:02 -70 dBm 0s ago
`,
		},
		{
			name:    "csv",
			handles: handles,
			format:  "csv",
			expected: `name,address,rssi,connectable
DTM-RX,AA:BB:CC:DD:EE:01,-55,true
DTM-A-VERY-LONG-DEVICE-NAME,AA:BB:CC:DD:EE:02,-70,false
`,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			var buf bytes.Buffer
			suite.Require().NoError(displayHandles(&buf, tt.handles, tt.format), "display MUST succeed")
			testutils.NewTextAsserter(suite.T()).
				WithOptions(testutils.WithCollapseSpaces(true), testutils.WithIgnoreTrailingWhitespace(true)).
				Assert(buf.String(), tt.expected)
		})
	}
}

func TestScanTestSuite(t *testing.T) {
	suite.Run(t, new(ScanTestSuite))
}
