package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/perbench/internal/device"
	"github.com/srg/perbench/internal/devicefactory"
	"github.com/srg/perbench/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent mock device identification
const (
	TestDeviceAddress1 = "AA:BB:CC:DD:EE:01"
	TestDeviceAddress2 = "AA:BB:CC:DD:EE:02"
)

// CommandTestSuite runs commands against a mock radio with an isolated
// configuration and parameter file. Command suites embed it.
type CommandTestSuite struct {
	suite.Suite
	Radio      *testutils.MockRadio
	Gatt       *testutils.MockGatt
	ConfigPath string
	ParamsPath string

	originalRadioFactory func(string, *logrus.Logger) (device.Radio, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.Radio = &testutils.MockRadio{}
	s.Gatt = &testutils.MockGatt{}
	s.Gatt.On("Address").Return(TestDeviceAddress1).Maybe()
	s.Gatt.On("Close").Return(nil).Maybe()

	s.originalRadioFactory = devicefactory.RadioFactory
	devicefactory.RadioFactory = func(string, *logrus.Logger) (device.Radio, error) {
		return s.Radio, nil
	}

	dir := s.T().TempDir()
	s.ParamsPath = filepath.Join(dir, "params.yaml")
	s.ConfigPath = filepath.Join(dir, "perbench.yaml")
	cfg := fmt.Sprintf(`scan_timeout: 2s
connect_timeout: 2s
operation_timeout: 1s
params_file: %s
`, s.ParamsPath)
	s.Require().NoError(os.WriteFile(s.ConfigPath, []byte(cfg), 0o644), "config file MUST be written")
}

func (s *CommandTestSuite) TearDownTest() {
	devicefactory.RadioFactory = s.originalRadioFactory
}

// ExecuteCommand runs cmd under a fresh root with the global flags and the
// suite's --config. resetFlags re-registers cmd's flags so values and
// Changed markers from earlier runs do not leak.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, resetFlags func(), args ...string) (string, error) {
	cmd.ResetFlags()
	resetFlags()

	root := &cobra.Command{Use: "perbench", SilenceErrors: true}
	addGlobalFlags(root)
	root.AddCommand(cmd)
	defer root.RemoveCommand(cmd)

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{cmd.Name()}, append(args, "--config", s.ConfigPath)...))
	err := root.Execute()
	return buf.String(), err
}

// ScanWith makes the mock radio report advs once per scan and then idle
// until the scan stops.
func (s *CommandTestSuite) ScanWith(advs ...device.Advertisement) {
	s.Radio.On("Scan", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		handler := args.Get(1).(func(device.Advertisement))
		for _, a := range advs {
			handler(a)
		}
		<-ctx.Done()
	}).Return(context.Canceled)
}

// ExpectLink scripts a connection to TestDeviceAddress1 that comes up,
// discovers services, negotiates mtu and confirms a requested disconnect.
func (s *CommandTestSuite) ExpectLink(mtu int) {
	s.Radio.On("Connect", mock.Anything, TestDeviceAddress1, mock.Anything).Return(s.Gatt, nil).Run(func(mock.Arguments) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			s.Radio.Callback().OnConnectionStateChange(device.StatusSuccess, device.LinkConnected)
		}()
	})
	s.Gatt.On("DiscoverServices").Return(nil).Run(func(mock.Arguments) {
		go s.Radio.Callback().OnServicesDiscovered(device.StatusSuccess)
	})
	s.Gatt.On("RequestMTU", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		go s.Radio.Callback().OnMtuChanged(mtu, device.StatusSuccess)
	})
	s.Gatt.On("Disconnect").Return(nil).Run(func(mock.Arguments) {
		go s.Radio.Callback().OnConnectionStateChange(device.StatusSuccess, device.LinkDisconnected)
	}).Maybe()
}

// executeCommand runs root with args and returns the combined output.
func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}
