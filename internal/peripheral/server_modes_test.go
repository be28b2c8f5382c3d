package peripheral_test

import (
	"sync"
	"testing"

	"github.com/srg/blemu/internal/codec"
	"github.com/srg/blemu/internal/peripheral"
	"github.com/srg/blemu/internal/profile"
	"github.com/srg/blemu/internal/registry"
	"github.com/srg/blemu/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// PowerTestSuite starts with the adapter powered down
type PowerTestSuite struct {
	testutils.PeripheralSuite
}

func TestPowerTestSuite(t *testing.T) {
	suite.Run(t, new(PowerTestSuite))
}

func (s *PowerTestSuite) SetupTest() {
	s.Kind = profile.KindBattery
	s.PoweredOff = true
	s.PeripheralSuite.SetupTest()
}

func (s *PowerTestSuite) TestStartDeferredUntilPowerOn() {
	// GOAL: Verify Start is not attempted while the adapter is down and runs once power arrives
	//
	// TEST SCENARIO: Start while off → ErrAdapterNotReady, no adapter calls → power on → AddService issued

	err := s.Server.Start()
	s.Require().ErrorIs(err, peripheral.ErrAdapterNotReady)
	s.Assert().Empty(s.Adapter.Calls(), "adapter MUST NOT be touched while powered down")
	s.Assert().Equal(peripheral.Idle, s.Server.State())

	s.Server.OnAdapterPowerChanged(true)
	s.Assert().Equal(peripheral.AddingService, s.Server.State(), "deferred start MUST run on power on")
	s.Assert().Equal([]string{"AddService"}, s.Adapter.Calls())
}

func (s *PowerTestSuite) TestStopCancelsDeferredStart() {
	s.Require().ErrorIs(s.Server.Start(), peripheral.ErrAdapterNotReady)
	s.Require().NoError(s.Server.Stop())

	s.Server.OnAdapterPowerChanged(true)
	s.Assert().Equal(peripheral.Idle, s.Server.State(), "stop MUST cancel a deferred start")
	s.Assert().Empty(s.Adapter.Calls())
}

func (s *PowerTestSuite) TestPowerLossTearsDown() {
	// GOAL: Verify losing power while advertising drops the session to Idle
	//
	// TEST SCENARIO: power on → advertise → subscribe → power off → Idle, no subscribers, failure reported,
	// advertising stopped and service withdrawn → deferred start runs on power on with exactly one service

	s.Server.OnAdapterPowerChanged(true)
	s.StartAdvertising()
	s.Server.OnSubscribe("2a19", "A")
	s.Require().Equal(1, s.Server.Status().Subscribers)
	s.Adapter.Reset()

	s.Server.OnAdapterPowerChanged(false)

	snap := s.Server.Status()
	s.Assert().Equal(peripheral.Idle, snap.State)
	s.Assert().False(snap.Ready)
	s.Assert().Zero(snap.Subscribers, "subscriptions MUST be dropped on power loss")
	s.Assert().ErrorIs(snap.LastError, peripheral.ErrAdapterFailure)

	s.Assert().Equal([]string{"StopAdvertising", "RemoveService"}, s.Adapter.Calls(),
		"power loss MUST stop advertising and withdraw the service")
	s.Assert().Empty(s.Adapter.Services(), "no service MUST stay registered after power loss")
	advertising, _, _ := s.Adapter.Advertising()
	s.Assert().False(advertising, "advertising MUST be off after power loss")

	s.Assert().ErrorIs(s.Server.Start(), peripheral.ErrAdapterNotReady)

	s.Server.OnAdapterPowerChanged(true)
	s.Require().Equal(peripheral.AddingService, s.Server.State(), "deferred start MUST run on power on")
	s.Server.OnServiceAdded("180f", nil)
	s.Server.OnAdvertisingStarted(nil)
	s.Assert().Equal(peripheral.Advertising, s.Server.State())
	s.Assert().Equal([]string{"180f"}, s.Adapter.Services(), "restart MUST NOT register the service twice")
}

// PrimeSubscriberTestSuite primes only the newly subscribed central
type PrimeSubscriberTestSuite struct {
	testutils.PeripheralSuite
}

func TestPrimeSubscriberTestSuite(t *testing.T) {
	suite.Run(t, new(PrimeSubscriberTestSuite))
}

func (s *PrimeSubscriberTestSuite) SetupTest() {
	s.Kind = profile.KindThermometer
	s.ServerOptions = peripheral.Options{PrimeMode: peripheral.PrimeSubscriber, LocalName: "Thermo"}
	s.PeripheralSuite.SetupTest()
}

func (s *PrimeSubscriberTestSuite) TestPrimeTargetsNewSubscriberOnly() {
	s.StartAdvertising()
	_, _, name := s.Adapter.Advertising()
	s.Assert().Equal("Thermo", name, "configured local name MUST be advertised")

	s.Server.OnSubscribe("2a1c", "A")
	s.Server.OnSubscribe("2a1c", "B")

	notes := s.Adapter.Notifications()
	s.Require().Len(notes, 2)
	s.Assert().Equal([]registry.Subscriber{"B"}, notes[1].Subscribers, "subscriber prime MUST reach only the new central")
	s.Assert().Equal([]byte{0x00, 0xFF, 0x00, 0x01, 0x6C}, notes[1].Value)

	value, err := s.Server.HandleRead("2a21", 0)
	s.Require().NoError(err)
	s.Assert().Equal([]byte{0x00, 0x01}, value, "measurement interval MUST be readable")
}

// ProximityTestSuite exercises identifier rotation
type ProximityTestSuite struct {
	testutils.PeripheralSuite
}

func TestProximityTestSuite(t *testing.T) {
	suite.Run(t, new(ProximityTestSuite))
}

func (s *ProximityTestSuite) SetupTest() {
	s.Kind = profile.KindProximity
	s.ProfileOptions = profile.Options{TxPower: codec.FixedTxPower(-60)}
	s.ServerOptions = peripheral.Options{NotifyOnRotate: true}
	s.PeripheralSuite.SetupTest()
}

func (s *ProximityTestSuite) TestRotateNotifiesSubscribers() {
	// GOAL: Verify rotation replaces the identifier bytes and pushes them to subscribers
	//
	// TEST SCENARIO: subscribe → initial push → Rotate → second push carries the new identifier

	s.StartAdvertising()
	s.Server.OnSubscribe("fd6f", "A")

	before, err := s.Server.HandleRead("fd6f", 0)
	s.Require().NoError(err)
	s.Require().Len(before, 20)
	s.Assert().Equal(int8(-60), int8(before[17]))

	id, err := s.Server.Rotate()
	s.Require().NoError(err)

	pushed := s.Adapter.NotificationsFor("A")
	s.Require().Len(pushed, 2, "rotation MUST notify subscribers")
	s.Assert().Equal(id.ID[:], pushed[1][:16])
	s.Assert().NotEqual(before[:16], pushed[1][:16], "identifier MUST change on rotation")

	after, err := s.Server.HandleRead("fd6f", 16)
	s.Require().NoError(err)
	s.Assert().Equal([]byte{0x40, 0xC4, 0x00, 0x00}, after, "metadata suffix MUST be readable by offset")
}

func (s *ProximityTestSuite) TestModifyKeepsRotatedIdentifier() {
	// GOAL: Verify an edit derives from the identifier served at the time of the edit
	//
	// TEST SCENARIO: Rotate → Modify major=2 → served identifier is the rotated one with major 2

	id, err := s.Server.Rotate()
	s.Require().NoError(err)

	r, n, err := s.Server.Modify("fd6f", func(current codec.Reading) (codec.Reading, error) {
		p := current.(codec.ProximityIdentifier)
		p.MajorVersion = 2
		return p, nil
	})
	s.Require().NoError(err)
	s.Assert().Zero(n)

	edited := r.(codec.ProximityIdentifier)
	s.Assert().Equal(id.ID, edited.ID, "edit MUST keep the rotated identifier")
	s.Assert().Equal(uint8(2), edited.MajorVersion)

	served, ok := s.Server.Reading("fd6f")
	s.Require().True(ok)
	s.Assert().Equal(edited, served)
}

func (s *ProximityTestSuite) TestModifyRejectsFailedEdit() {
	before, _ := s.Server.Reading("fd6f")

	_, _, err := s.Server.Modify("fd6f", func(current codec.Reading) (codec.Reading, error) {
		p := current.(codec.ProximityIdentifier)
		p.MajorVersion = 9
		return p, nil
	})
	s.Assert().ErrorIs(err, codec.ErrOutOfRange, "invalid edits MUST be rejected")

	_, _, err = s.Server.Modify("2a19", func(current codec.Reading) (codec.Reading, error) {
		return current, nil
	})
	s.Assert().ErrorIs(err, peripheral.ErrAttributeNotFound, "unknown characteristics MUST be rejected")

	after, _ := s.Server.Reading("fd6f")
	s.Assert().Equal(before, after, "rejected edits MUST NOT change the reading")
}

func (s *ProximityTestSuite) TestModifyRacingRotate() {
	// GOAL: Verify concurrent edits never restore a retired identifier
	//
	// TEST SCENARIO: one goroutine rotates repeatedly while edits run → the served identifier is the last one drawn

	const rotations = 200

	var (
		wg   sync.WaitGroup
		last codec.ProximityIdentifier
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rotations; i++ {
			id, err := s.Server.Rotate()
			if err != nil {
				s.T().Errorf("rotate: %v", err)
				return
			}
			last = id
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for edits := 0; ; edits++ {
		select {
		case <-done:
			served, ok := s.Server.Reading("fd6f")
			s.Require().True(ok)
			s.Assert().Equal(last.ID, served.(codec.ProximityIdentifier).ID,
				"only rotation MUST change the identifier")
			return
		default:
		}
		_, _, err := s.Server.Modify("fd6f", func(current codec.Reading) (codec.Reading, error) {
			p := current.(codec.ProximityIdentifier)
			p.MinorVersion = uint8(edits % 4)
			return p, nil
		})
		s.Require().NoError(err)
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, peripheral.StatusSuccess, peripheral.StatusOf(nil))
	assert.Equal(t, peripheral.StatusInvalidOffset, peripheral.StatusOf(peripheral.ErrInvalidOffset))
	assert.Equal(t, peripheral.StatusAttributeNotFound, peripheral.StatusOf(peripheral.ErrAttributeNotFound))
	assert.Equal(t, peripheral.StatusUnlikelyError, peripheral.StatusOf(peripheral.ErrAdapterFailure))
	assert.Equal(t, "invalid offset", peripheral.StatusInvalidOffset.String())
}

func TestParsePrimeMode(t *testing.T) {
	for in, want := range map[string]peripheral.PrimeMode{
		"":           peripheral.PrimeBroadcast,
		"broadcast":  peripheral.PrimeBroadcast,
		"Subscriber": peripheral.PrimeSubscriber,
	} {
		got, err := peripheral.ParsePrimeMode(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got, "%q MUST parse to %s", in, want)
	}
	_, err := peripheral.ParsePrimeMode("everyone")
	assert.Error(t, err)
}
