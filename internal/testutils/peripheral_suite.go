package testutils

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemu/internal/peripheral"
	"github.com/srg/blemu/internal/profile"
	"github.com/stretchr/testify/suite"
)

// PeripheralSuite wires a peripheral.Server to a FakeAdapter for every test.
//
// Basic usage (heart-rate profile, adapter powered on):
//
//	type ServerSuite struct {
//	    testutils.PeripheralSuite
//	}
//
//	func TestServerSuite(t *testing.T) {
//	    suite.Run(t, new(ServerSuite))
//	}
//
// Custom profile usage:
//
//	func (s *ThermometerSuite) SetupTest() {
//	    s.Kind = profile.KindThermometer
//	    s.PeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type PeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	// Configuration applied by SetupTest
	Kind           profile.Kind       // defaults to heart rate
	ProfileOptions profile.Options    // initial readings
	ServerOptions  peripheral.Options // logger and observer are filled in
	PoweredOff     bool               // leave the adapter powered down

	Adapter *FakeAdapter
	Server  *peripheral.Server

	snapshotsMu sync.Mutex
	snapshots   []peripheral.Snapshot
}

func (s *PeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
}

// SetupTest builds a fresh profile, adapter and server.
func (s *PeripheralSuite) SetupTest() {
	kind := s.Kind
	if kind == 0 {
		kind = profile.KindHeartRate
	}
	p, err := profile.New(kind, s.ProfileOptions)
	s.Require().NoError(err, "profile MUST build")

	opts := s.ServerOptions
	opts.Logger = s.Logger
	opts.Observer = s.recordSnapshot

	s.Adapter = NewFakeAdapter()
	s.Server = peripheral.NewServer(s.Adapter, p, opts)

	s.snapshotsMu.Lock()
	s.snapshots = nil
	s.snapshotsMu.Unlock()

	if !s.PoweredOff {
		s.Server.OnAdapterPowerChanged(true)
	}
}

// TearDownTest dumps the captured log of a failed test.
func (s *PeripheralSuite) TearDownTest() {
	s.Helper.DumpLogsOnFailure()
	s.Helper.Output.Reset()
}

func (s *PeripheralSuite) recordSnapshot(snap peripheral.Snapshot) {
	s.snapshotsMu.Lock()
	defer s.snapshotsMu.Unlock()
	s.snapshots = append(s.snapshots, snap)
}

// Snapshots returns every snapshot the server emitted since SetupTest.
func (s *PeripheralSuite) Snapshots() []peripheral.Snapshot {
	s.snapshotsMu.Lock()
	defer s.snapshotsMu.Unlock()
	return append([]peripheral.Snapshot(nil), s.snapshots...)
}

// StartAdvertising runs Start and delivers both success events.
func (s *PeripheralSuite) StartAdvertising() {
	s.Require().NoError(s.Server.Start(), "Start MUST be accepted")
	s.Server.OnServiceAdded(s.Server.Profile().Service().UUID(), nil)
	s.Server.OnAdvertisingStarted(nil)
	s.Require().Equal(peripheral.Advertising, s.Server.State(), "server MUST be advertising")
}
