package main

import (
	"bytes"
	"io"
	"strings"

	"github.com/spf13/cobra"
	goble "github.com/srg/blemu/internal/peripheral/go-ble"
	"github.com/srg/blemu/internal/testutils"
	"github.com/srg/blemu/internal/testutils/mocks"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs blemu commands against a mocked Bluetooth device.
// All cmd/blemu test suites should embed this.
type CommandTestSuite struct {
	suite.Suite

	Helper *testutils.TestHelper
	Device *mocks.MockDevice

	originalFactory func() (goble.Device, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.Helper = testutils.NewTestHelper(s.T())
	s.Device = mocks.NewMockDevice(s.T())
	s.originalFactory = goble.DeviceFactory
	goble.DeviceFactory = func() (goble.Device, error) { return s.Device, nil }
}

func (s *CommandTestSuite) TearDownTest() {
	goble.DeviceFactory = s.originalFactory
	s.Helper.DumpLogsOnFailure()
}

// ExecuteCommand runs a fresh root command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	return s.ExecuteCommandWithInput("", args...)
}

// ExecuteCommandWithInput runs a fresh root command reading stdin from input.
func (s *CommandTestSuite) ExecuteCommandWithInput(input string, args ...string) (string, error) {
	return s.executeCommand(newRootCmd(), strings.NewReader(input), args...)
}

func (s *CommandTestSuite) executeCommand(cmd *cobra.Command, in io.Reader, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetIn(in)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
