package peripheral_test

import (
	"errors"
	"testing"

	"github.com/srg/blemu/internal/codec"
	"github.com/srg/blemu/internal/gatt"
	"github.com/srg/blemu/internal/peripheral"
	"github.com/srg/blemu/internal/registry"
	"github.com/srg/blemu/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// ServerTestSuite drives the state machine of a heart-rate peripheral through a FakeAdapter
type ServerTestSuite struct {
	testutils.PeripheralSuite
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) TestStartLifecycle() {
	// GOAL: Verify Start walks Idle → AddingService → ServiceAdded → Advertising
	//
	// TEST SCENARIO: Start → service added success → advertising success → advertised with fixed local name

	s.Require().Equal(peripheral.Idle, s.Server.State())
	s.Require().NoError(s.Server.Start())
	s.Assert().Equal(peripheral.AddingService, s.Server.State(), "state MUST wait for the add completion")
	s.Assert().Equal([]string{"AddService"}, s.Adapter.Calls())

	s.Server.OnServiceAdded("180D", nil)
	s.Assert().Equal(peripheral.ServiceAdded, s.Server.State())
	s.Assert().Equal([]string{"AddService", "StartAdvertising"}, s.Adapter.Calls(), "advertising MUST be requested right after the service is added")

	on, uuids, name := s.Adapter.Advertising()
	s.Assert().True(on)
	s.Assert().Equal([]string{"180d"}, uuids, "MUST advertise the service UUID")
	s.Assert().Equal(peripheral.DefaultLocalName, name)

	s.Server.OnAdvertisingStarted(nil)
	s.Assert().Equal(peripheral.Advertising, s.Server.State())

	err := s.Server.Start()
	var stateErr *peripheral.StateError
	s.Assert().True(errors.As(err, &stateErr), "second Start MUST be a state error")
	s.Assert().Equal(peripheral.Advertising, stateErr.State)
}

func (s *ServerTestSuite) TestStartFailures() {
	s.Run("add service rejected synchronously", func() {
		// GOAL: Verify a rejected add command reports AdapterFailure and leaves the machine idle
		//
		// TEST SCENARIO: AddService returns error → Start returns AdapterFailure → Idle → retry works

		s.SetupTest()
		s.Adapter.AddServiceErr = errors.New("boom")

		err := s.Server.Start()
		s.Require().ErrorIs(err, peripheral.ErrAdapterFailure)
		var failure *peripheral.AdapterFailure
		s.Require().True(errors.As(err, &failure))
		s.Assert().Equal("add service", failure.Op)
		s.Assert().Equal("boom", failure.Reason)
		s.Assert().Equal(peripheral.Idle, s.Server.State())
		s.Assert().ErrorIs(s.Server.Status().LastError, peripheral.ErrAdapterFailure, "failure MUST be visible to the operator")

		s.Adapter.AddServiceErr = nil
		s.StartAdvertising()
		s.Assert().NoError(s.Server.Status().LastError, "successful start MUST clear the last failure")
	})

	s.Run("add service error event", func() {
		s.SetupTest()
		s.Require().NoError(s.Server.Start())

		s.Server.OnServiceAdded("180d", errors.New("unsupported"))

		s.Assert().Equal(peripheral.Idle, s.Server.State())
		s.Assert().NotContains(s.Adapter.Calls(), "StartAdvertising", "advertising MUST NOT start after a failed add")
	})

	s.Run("advertising error event removes the service", func() {
		// GOAL: Verify a failed advertise leaves no partially published service
		//
		// TEST SCENARIO: Start → added → advertising fails → RemoveService called → Idle

		s.SetupTest()
		s.Require().NoError(s.Server.Start())
		s.Server.OnServiceAdded("180d", nil)
		s.Server.OnAdvertisingStarted(errors.New("advertising failed"))

		s.Assert().Equal(peripheral.Idle, s.Server.State())
		s.Assert().Empty(s.Adapter.Services(), "service MUST be removed after advertising failure")
		s.Assert().ErrorIs(s.Server.Status().LastError, peripheral.ErrAdapterFailure)
	})

	s.Run("advertising rejected synchronously", func() {
		s.SetupTest()
		s.Adapter.StartAdvertisingErr = errors.New("busy")
		s.Require().NoError(s.Server.Start())
		s.Server.OnServiceAdded("180d", nil)

		s.Assert().Equal(peripheral.Idle, s.Server.State())
		s.Assert().Empty(s.Adapter.Services())
	})

	s.Run("unexpected events are ignored", func() {
		s.SetupTest()
		s.Server.OnServiceAdded("180d", nil)
		s.Server.OnAdvertisingStarted(nil)
		s.Assert().Equal(peripheral.Idle, s.Server.State(), "events MUST NOT move an idle machine")

		s.Require().NoError(s.Server.Start())
		s.Server.OnServiceAdded("180f", nil)
		s.Assert().Equal(peripheral.AddingService, s.Server.State(), "completion of another service MUST be ignored")
	})
}

func (s *ServerTestSuite) TestStop() {
	// GOAL: Verify Stop clears subscriptions and unpublishes the service
	//
	// TEST SCENARIO: Advertise → subscribe A → Stop → registry empty → reads AttributeNotFound

	s.Require().NoError(s.Server.Stop(), "Stop while idle MUST be a no-op")
	s.Assert().Empty(s.Adapter.Calls(), "Stop while idle MUST NOT touch the adapter")

	s.StartAdvertising()
	s.Require().NoError(s.Server.HandleSubscribe("2a37", "A"))
	s.Require().Equal(1, s.Server.Status().Subscribers)

	s.Require().NoError(s.Server.Stop())
	s.Assert().Equal(peripheral.Idle, s.Server.State())
	s.Assert().Zero(s.Server.Status().Subscribers, "subscriptions MUST be cleared")
	s.Assert().Empty(s.Adapter.Services())
	on, _, _ := s.Adapter.Advertising()
	s.Assert().False(on)

	for _, uuid := range []string{"2a37", "2a38"} {
		_, err := s.Server.HandleRead(uuid, 0)
		s.Assert().ErrorIs(err, peripheral.ErrAttributeNotFound, "read of %s after stop MUST be AttributeNotFound", uuid)
	}

	n, err := s.Server.Notify("2a37")
	s.Assert().NoError(err)
	s.Assert().Zero(n, "notify after stop MUST reach nobody")

	s.StartAdvertising()
	s.Assert().Zero(s.Server.Status().Subscribers, "restart MUST begin without subscribers")
}

func (s *ServerTestSuite) TestStopReportsAdapterErrors() {
	s.StartAdvertising()
	s.Adapter.StopAdvertisingErr = errors.New("stop failed")

	err := s.Server.Stop()
	s.Assert().ErrorIs(err, peripheral.ErrAdapterFailure)
	s.Assert().Equal(peripheral.Idle, s.Server.State(), "server MUST end idle even when the adapter complains")
}

func (s *ServerTestSuite) TestHandleRead() {
	s.StartAdvertising()
	_, err := s.Server.SetReading(codec.HeartRateMeasurement{BPM: 300})
	s.Require().NoError(err)

	tests := []struct {
		name   string
		uuid   string
		offset int
		want   []byte
		err    error
	}{
		{"full value", "2a37", 0, []byte{0x01, 0x01, 0x2C}, nil},
		{"suffix", "2A37", 1, []byte{0x01, 0x2C}, nil},
		{"last byte", "2a37", 2, []byte{0x2C}, nil},
		{"offset equals length", "2a37", 3, []byte{}, nil},
		{"offset past length", "2a37", 4, nil, peripheral.ErrInvalidOffset},
		{"negative offset", "2a37", -1, nil, peripheral.ErrInvalidOffset},
		{"128-bit notation", "00002a38-0000-1000-8000-00805f9b34fb", 0, []byte{0x00}, nil},
		{"unknown characteristic", "2a19", 0, nil, peripheral.ErrAttributeNotFound},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			got, err := s.Server.HandleRead(tt.uuid, tt.offset)
			if tt.err != nil {
				s.Assert().ErrorIs(err, tt.err)
				s.Assert().Nil(got)
				return
			}
			s.Require().NoError(err)
			s.Assert().NotNil(got, "successful read MUST return a non-nil value")
			s.Assert().Equal(tt.want, got)
		})
	}
}

func (s *ServerTestSuite) TestOnReadRequestResponds() {
	s.StartAdvertising()

	s.Server.OnReadRequest("2a37", 0, "h1")
	s.Server.OnReadRequest("2a37", 9, "h2")
	s.Server.OnReadRequest("2a99", 0, "h3")

	responses := s.Adapter.Responses()
	s.Require().Len(responses, 3, "every request MUST be answered")
	s.Assert().Equal(testutils.ReadResponse{Handle: "h1", Status: peripheral.StatusSuccess, Value: []byte{0x00, 0x32}}, responses[0])
	s.Assert().Equal(peripheral.StatusInvalidOffset, responses[1].Status)
	s.Assert().Equal(peripheral.StatusAttributeNotFound, responses[2].Status)
	s.Assert().Equal("h3", responses[2].Handle)
}

func (s *ServerTestSuite) TestReadWhileNotPublished() {
	_, err := s.Server.HandleRead("2a37", 0)
	s.Assert().ErrorIs(err, peripheral.ErrAttributeNotFound, "idle server MUST NOT serve reads")

	s.Require().NoError(s.Server.Start())
	_, err = s.Server.HandleRead("2a37", 0)
	s.Assert().ErrorIs(err, peripheral.ErrAttributeNotFound, "service MUST NOT be readable before it is added")

	s.Server.OnServiceAdded("180d", nil)
	_, err = s.Server.HandleRead("2a37", 0)
	s.Assert().NoError(err, "added service MUST be readable before advertising confirms")
}

func (s *ServerTestSuite) TestSubscribePrimesOnce() {
	// GOAL: Verify a first-time subscription triggers exactly one notification with the current value
	//
	// TEST SCENARIO: subscribe A → one push of current value → subscribe A again → no further push

	s.StartAdvertising()

	s.Require().NoError(s.Server.HandleSubscribe("2a37", "A"))
	notes := s.Adapter.Notifications()
	s.Require().Len(notes, 1, "first subscription MUST push exactly once")
	s.Assert().Equal("2a37", notes[0].Characteristic)
	s.Assert().Equal([]byte{0x00, 0x32}, notes[0].Value, "push MUST carry the current encoded value")
	s.Assert().Equal([]registry.Subscriber{"A"}, notes[0].Subscribers)

	s.Require().NoError(s.Server.HandleSubscribe("2A37", "A"))
	s.Assert().Len(s.Adapter.Notifications(), 1, "repeated subscription MUST NOT push again")
	s.Assert().Equal(1, s.Server.Status().Subscribers, "repeated subscription MUST NOT duplicate the entry")
}

func (s *ServerTestSuite) TestSubscribeBroadcastPrime() {
	s.StartAdvertising()
	s.Require().NoError(s.Server.HandleSubscribe("2a37", "A"))
	s.Require().NoError(s.Server.HandleSubscribe("2a37", "B"))

	notes := s.Adapter.Notifications()
	s.Require().Len(notes, 2)
	s.Assert().ElementsMatch([]registry.Subscriber{"A", "B"}, notes[1].Subscribers, "broadcast prime MUST reach every subscriber")
}

func (s *ServerTestSuite) TestSubscribeRejections() {
	s.Assert().ErrorIs(s.Server.HandleSubscribe("2a37", "A"), peripheral.ErrAttributeNotFound, "idle server MUST reject subscriptions")

	s.StartAdvertising()
	s.Assert().ErrorIs(s.Server.HandleSubscribe("2a38", "A"), peripheral.ErrAttributeNotFound, "read-only characteristic MUST reject subscriptions")
	s.Assert().ErrorIs(s.Server.HandleSubscribe("2a99", "A"), peripheral.ErrAttributeNotFound)
	s.Assert().Empty(s.Adapter.Notifications())

	s.Server.OnSubscribe("2a99", "A")
	s.Assert().Zero(s.Server.Status().Subscribers, "rejected event MUST NOT register anything")
}

func (s *ServerTestSuite) TestUnsubscribeAndNotify() {
	s.StartAdvertising()

	n, err := s.Server.Notify("2a37")
	s.Require().NoError(err, "notify without subscribers MUST NOT fail")
	s.Assert().Zero(n)
	s.Assert().Empty(s.Adapter.Notifications(), "notify without subscribers MUST NOT push")

	s.Server.OnSubscribe("2a37", "A")
	s.Server.OnSubscribe("2a37", "B")
	s.Adapter.Reset()

	s.Server.OnUnsubscribe("2a37", "A")
	s.Assert().Empty(s.Adapter.Notifications(), "unsubscribe MUST NOT push")

	n, err = s.Server.Notify("2a37")
	s.Require().NoError(err)
	s.Assert().Equal(1, n)
	s.Assert().Empty(s.Adapter.NotificationsFor("A"), "unsubscribed central MUST NOT be notified")
	s.Assert().Len(s.Adapter.NotificationsFor("B"), 1)

	_, err = s.Server.Notify("2a38")
	s.Assert().ErrorIs(err, peripheral.ErrAttributeNotFound, "non-notifiable characteristic MUST be rejected")
}

func (s *ServerTestSuite) TestNotifyAdapterFailure() {
	s.StartAdvertising()
	s.Server.OnSubscribe("2a37", "A")
	s.Adapter.PushErr = errors.New("queue full")

	_, err := s.Server.Notify("2a37")
	s.Assert().ErrorIs(err, peripheral.ErrAdapterFailure)
	s.Assert().Equal(peripheral.Advertising, s.Server.State(), "failed notification MUST NOT end the session")
}

func (s *ServerTestSuite) TestHeartRateEndToEnd() {
	// GOAL: Verify the heart-rate wire bytes a subscribed central receives
	//
	// TEST SCENARIO: start → 180 bpm → subscribe A → A gets 00 B4 → 300 bpm → notify → A gets 01 01 2C

	s.StartAdvertising()

	_, err := s.Server.SetReading(codec.HeartRateMeasurement{BPM: 180})
	s.Require().NoError(err)

	s.Server.OnSubscribe(gatt.CharacteristicHeartRateMeasurement, "A")
	s.Require().Equal([][]byte{{0x00, 0xB4}}, s.Adapter.NotificationsFor("A"))

	_, err = s.Server.SetReading(codec.HeartRateMeasurement{BPM: 300})
	s.Require().NoError(err)
	n, err := s.Server.Notify(gatt.CharacteristicHeartRateMeasurement)
	s.Require().NoError(err)
	s.Assert().Equal(1, n)

	s.Assert().Equal([][]byte{{0x00, 0xB4}, {0x01, 0x01, 0x2C}}, s.Adapter.NotificationsFor("A"))
}

func (s *ServerTestSuite) TestPublish() {
	s.StartAdvertising()
	s.Server.OnSubscribe("2a37", "A")
	s.Adapter.Reset()

	n, err := s.Server.Publish(codec.HeartRateMeasurement{BPM: 72, SensorContact: codec.SensorContactDetected})
	s.Require().NoError(err)
	s.Assert().Equal(1, n)
	s.Assert().Equal([][]byte{{0x06, 0x48}}, s.Adapter.NotificationsFor("A"))

	n, err = s.Server.Publish(codec.SensorLocationWrist)
	s.Require().NoError(err, "non-notifiable reading MUST still be applied")
	s.Assert().Zero(n)
	value, err := s.Server.HandleRead("2a38", 0)
	s.Require().NoError(err)
	s.Assert().Equal([]byte{0x02}, value)

	_, err = s.Server.Publish(codec.BatteryLevel(5))
	s.Assert().Error(err, "foreign reading MUST be rejected")

	_, err = s.Server.SetReading(codec.HeartRateMeasurement{BPM: 60, SensorContact: 9})
	s.Assert().ErrorIs(err, codec.ErrOutOfRange)
}

func (s *ServerTestSuite) TestRotateUnsupported() {
	_, err := s.Server.Rotate()
	s.Assert().ErrorIs(err, peripheral.ErrRotationUnsupported)
}

func (s *ServerTestSuite) TestStatusSnapshot() {
	s.StartAdvertising()
	s.Server.OnSubscribe("2a37", "A")

	snap := s.Server.Status()
	s.Assert().Equal(peripheral.Advertising, snap.State)
	s.Assert().Equal("advertising", snap.StateName)
	s.Assert().Equal("heart-rate", snap.ProfileName)
	s.Assert().Equal("180d", snap.Service)
	s.Assert().True(snap.Ready)
	s.Assert().Equal(1, snap.Subscribers)
	s.Require().Len(snap.Characteristics, 2)

	measurement := snap.Characteristics[0]
	s.Assert().Equal("2a37", measurement.UUID)
	s.Assert().Equal("Heart Rate Measurement", measurement.Name)
	s.Assert().Equal("read,notify", measurement.Properties)
	s.Assert().Equal("0032", measurement.Hex)
	s.Assert().Equal("50 bpm", measurement.Value)
	s.Assert().Equal(1, measurement.Subscribers)

	location := snap.Characteristics[1]
	s.Assert().Equal("Other", location.Value)
	s.Assert().Zero(location.Subscribers)

	snaps := s.Snapshots()
	s.Require().NotEmpty(snaps, "observer MUST receive snapshots")
	s.Assert().Equal(peripheral.Advertising, snaps[len(snaps)-1].State)
}
