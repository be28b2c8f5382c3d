// Package peripheral implements the GATT server state machine of an emulated
// peripheral: publishing one profile's service, answering reads and fanning
// notifications out to subscribed centrals.
//
// A Server is the single owner of its session. Every event, command and reading
// update runs under the server's mutex, one at a time. Observer callbacks run after
// the mutex is released.
package peripheral

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemu/internal/codec"
	"github.com/srg/blemu/internal/gatt"
	"github.com/srg/blemu/internal/profile"
	"github.com/srg/blemu/internal/registry"
)

// DefaultLocalName is the advertised local name.
const DefaultLocalName = "Peripheral Emulator"

// Options configures a Server.
type Options struct {
	LocalName      string
	PrimeMode      PrimeMode
	NotifyOnRotate bool
	Logger         *logrus.Logger
	Observer       func(Snapshot)
}

// Server is the GATT server state machine for one profile.
type Server struct {
	mu sync.Mutex

	adapter  Adapter
	profile  profile.Profile
	service  *gatt.Service
	registry *registry.Registry

	state        State
	ready        bool
	pendingStart bool
	lastErr      error

	localName      string
	primeMode      PrimeMode
	notifyOnRotate bool
	observer       func(Snapshot)
	logger         *logrus.Logger
}

var _ EventHandler = (*Server)(nil)

// NewServer returns an idle server publishing p through adapter. The adapter is
// assumed powered down until OnAdapterPowerChanged(true) arrives.
func NewServer(adapter Adapter, p profile.Profile, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	name := opts.LocalName
	if name == "" {
		name = DefaultLocalName
	}
	return &Server{
		adapter:        adapter,
		profile:        p,
		service:        p.Service(),
		registry:       registry.New(),
		localName:      name,
		primeMode:      opts.PrimeMode,
		notifyOnRotate: opts.NotifyOnRotate,
		observer:       opts.Observer,
		logger:         logger,
	}
}

// SetObserver replaces the snapshot observer. nil disables it.
func (s *Server) SetObserver(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

// State returns the current state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Profile returns the profile the server publishes.
func (s *Server) Profile() profile.Profile {
	return s.profile
}

// Reading returns the reading currently served from characteristic.
func (s *Server) Reading(characteristic string) (codec.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Reading(characteristic)
}

// update runs fn under the mutex and then hands a snapshot to the observer.
func (s *Server) update(fn func() error) error {
	s.mu.Lock()
	err := fn()
	observer := s.observer
	var snap Snapshot
	if observer != nil {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if observer != nil {
		observer(snap)
	}
	return err
}

func (s *Server) log() *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"state":   s.state.String(),
		"service": s.service.UUID(),
	})
}

// Start publishes the service and begins advertising. It returns once the add
// command was accepted; completion arrives through OnServiceAdded and
// OnAdvertisingStarted. While the adapter is powered down the start is deferred
// until power comes back and ErrAdapterNotReady is returned.
func (s *Server) Start() error {
	return s.update(s.startLocked)
}

func (s *Server) startLocked() error {
	if s.state != Idle {
		return &StateError{Op: "start", State: s.state}
	}
	if !s.ready {
		s.pendingStart = true
		s.log().Info("Adapter not ready, start deferred until power on")
		return ErrAdapterNotReady
	}

	s.pendingStart = false
	s.lastErr = nil
	s.registry.Reset()
	for _, c := range s.service.Notifiable() {
		s.registry.Register(c.UUID())
	}

	s.setState(AddingService)
	if err := s.adapter.AddService(s.service); err != nil {
		return s.failLocked(newAdapterFailure("add service", err), false)
	}
	return nil
}

// Stop stops advertising, removes the service and drops every subscription. It is a
// no-op when idle. Adapter errors are reported but the server still ends idle.
func (s *Server) Stop() error {
	return s.update(s.stopLocked)
}

func (s *Server) stopLocked() error {
	s.pendingStart = false
	if s.state == Idle {
		return nil
	}

	var errs []error
	if err := s.adapter.StopAdvertising(); err != nil {
		errs = append(errs, err)
	}
	if err := s.adapter.RemoveService(s.service); err != nil {
		errs = append(errs, err)
	}
	s.registry.ClearAll()
	s.setState(Idle)

	if len(errs) > 0 {
		failure := newAdapterFailure("stop", errors.Join(errs...))
		s.lastErr = failure
		s.log().WithError(failure).Warn("Adapter reported errors while stopping")
		return failure
	}
	s.log().Info("Peripheral stopped")
	return nil
}

// failLocked reports a failed transition and returns the machine to Idle.
func (s *Server) failLocked(failure *AdapterFailure, published bool) error {
	s.log().WithField("transition", "failed").WithError(failure).Warn("Peripheral start failed")
	if published {
		if err := s.adapter.RemoveService(s.service); err != nil {
			s.log().WithError(err).Debug("Remove service after failure")
		}
	}
	s.registry.ClearAll()
	s.lastErr = failure
	s.setState(Idle)
	return failure
}

func (s *Server) setState(next State) {
	if next == s.state {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"service": s.service.UUID(),
		"from":    s.state.String(),
		"to":      next.String(),
	}).Info("Peripheral state changed")
	s.state = next
}

// OnServiceAdded handles completion of AddService.
func (s *Server) OnServiceAdded(serviceUUID string, err error) {
	_ = s.update(func() error {
		if s.state != AddingService || gatt.NormalizeUUID(serviceUUID) != s.service.UUID() {
			s.log().WithField("event_service", serviceUUID).Debug("Ignoring unexpected service added event")
			return nil
		}
		if err != nil {
			return s.failLocked(newAdapterFailure("add service", err), false)
		}

		s.setState(ServiceAdded)
		if err := s.adapter.StartAdvertising([]string{s.service.UUID()}, s.localName); err != nil {
			return s.failLocked(newAdapterFailure("start advertising", err), true)
		}
		return nil
	})
}

// OnAdvertisingStarted handles completion of StartAdvertising.
func (s *Server) OnAdvertisingStarted(err error) {
	_ = s.update(func() error {
		if s.state != ServiceAdded {
			s.log().Debug("Ignoring unexpected advertising started event")
			return nil
		}
		if err != nil {
			return s.failLocked(newAdapterFailure("start advertising", err), true)
		}
		s.setState(Advertising)
		s.log().WithField("local_name", s.localName).Info("Advertising")
		return nil
	})
}

// OnAdapterPowerChanged records adapter readiness. Losing power tears a running
// session down to Idle; regaining it runs a deferred Start.
func (s *Server) OnAdapterPowerChanged(ready bool) {
	_ = s.update(func() error {
		s.ready = ready
		s.log().WithField("ready", ready).Info("Adapter power changed")

		if !ready {
			if s.state != Idle {
				// Best effort; a powered-down stack usually rejects both calls.
				if err := s.adapter.StopAdvertising(); err != nil {
					s.log().WithError(err).Debug("Stop advertising after power loss")
				}
				if err := s.adapter.RemoveService(s.service); err != nil {
					s.log().WithError(err).Debug("Remove service after power loss")
				}
				s.registry.ClearAll()
				s.lastErr = &AdapterFailure{Op: "power", Reason: "adapter powered off"}
				s.setState(Idle)
			}
			return nil
		}
		if s.pendingStart && s.state == Idle {
			return s.startLocked()
		}
		return nil
	})
}

// HandleRead returns the current value of characteristic from offset on. Reads of
// an unknown characteristic, or while the service is not published, fail with
// ErrAttributeNotFound; an offset past the value length fails with
// ErrInvalidOffset. offset equal to the length yields an empty value.
func (s *Server) HandleRead(characteristic string, offset int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(characteristic, offset)
}

func (s *Server) readLocked(characteristic string, offset int) ([]byte, error) {
	c, ok := s.lookupLocked(characteristic)
	if !ok || !c.Readable() {
		return nil, fmt.Errorf("%w: %s", ErrAttributeNotFound, characteristic)
	}
	value, _ := s.profile.Value(c.UUID())
	if offset < 0 || offset > len(value) {
		return nil, fmt.Errorf("%w: offset %d, length %d", ErrInvalidOffset, offset, len(value))
	}
	return value[offset:], nil
}

func (s *Server) lookupLocked(characteristic string) (*gatt.Characteristic, bool) {
	if !s.state.Published() {
		return nil, false
	}
	return s.service.Characteristic(characteristic)
}

// OnReadRequest answers a read request through Adapter.RespondToRead.
func (s *Server) OnReadRequest(characteristic string, offset int, handle RequestHandle) {
	value, err := s.HandleRead(characteristic, offset)
	status := StatusOf(err)

	entry := s.logger.WithFields(logrus.Fields{
		"characteristic": characteristic,
		"offset":         offset,
		"status":         status.String(),
	})
	if err != nil {
		entry.WithError(err).Debug("Read rejected")
	} else {
		entry.WithField("bytes", hex.EncodeToString(value)).Debug("Read served")
	}

	s.adapter.RespondToRead(handle, status, value)
}

// HandleSubscribe adds subscriber to characteristic. A first-time subscription
// immediately pushes the current value, to every subscriber in broadcast prime mode
// or to the new one only in subscriber mode. Subscribing again is a no-op.
func (s *Server) HandleSubscribe(characteristic string, subscriber registry.Subscriber) error {
	return s.update(func() error {
		c, ok := s.lookupLocked(characteristic)
		if !ok || !c.Notifiable() {
			return fmt.Errorf("%w: %s", ErrAttributeNotFound, characteristic)
		}

		first, err := s.registry.Subscribe(c.UUID(), subscriber)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAttributeNotFound, err)
		}

		entry := s.logger.WithFields(logrus.Fields{
			"characteristic": c.UUID(),
			"subscriber":     string(subscriber),
			"first":          first,
		})
		entry.Debug("Central subscribed")
		if !first {
			return nil
		}

		targets := []registry.Subscriber{subscriber}
		if s.primeMode == PrimeBroadcast {
			targets = s.registry.SubscribersOf(c.UUID())
		}
		value, _ := s.profile.Value(c.UUID())
		if err := s.adapter.PushNotification(c.UUID(), value, targets); err != nil {
			entry.WithError(err).Warn("Initial notification failed")
			return newAdapterFailure("notify", err)
		}
		return nil
	})
}

// OnSubscribe is the adapter event form of HandleSubscribe.
func (s *Server) OnSubscribe(characteristic string, subscriber registry.Subscriber) {
	if err := s.HandleSubscribe(characteristic, subscriber); err != nil {
		s.logger.WithFields(logrus.Fields{
			"characteristic": characteristic,
			"subscriber":     string(subscriber),
		}).WithError(err).Debug("Subscribe not honoured")
	}
}

// HandleUnsubscribe removes subscriber from characteristic. It never notifies.
func (s *Server) HandleUnsubscribe(characteristic string, subscriber registry.Subscriber) {
	_ = s.update(func() error {
		removed := s.registry.Unsubscribe(characteristic, subscriber)
		s.logger.WithFields(logrus.Fields{
			"characteristic": characteristic,
			"subscriber":     string(subscriber),
			"removed":        removed,
		}).Debug("Central unsubscribed")
		return nil
	})
}

// OnUnsubscribe is the adapter event form of HandleUnsubscribe.
func (s *Server) OnUnsubscribe(characteristic string, subscriber registry.Subscriber) {
	s.HandleUnsubscribe(characteristic, subscriber)
}

// Notify pushes the current value of characteristic to every current subscriber and
// returns how many were addressed. No subscribers is not an error.
func (s *Server) Notify(characteristic string) (int, error) {
	var n int
	err := s.update(func() error {
		var err error
		n, err = s.notifyLocked(characteristic)
		return err
	})
	return n, err
}

// NotifyAll notifies every notifiable characteristic of the service.
func (s *Server) NotifyAll() (int, error) {
	var total int
	err := s.update(func() error {
		var errs []error
		for _, c := range s.service.Notifiable() {
			n, err := s.notifyLocked(c.UUID())
			total += n
			if err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	return total, err
}

func (s *Server) notifyLocked(characteristic string) (int, error) {
	c, ok := s.service.Characteristic(characteristic)
	if !ok || !c.Notifiable() {
		return 0, fmt.Errorf("%w: %s", ErrAttributeNotFound, characteristic)
	}
	subscribers := s.registry.SubscribersOf(c.UUID())
	if len(subscribers) == 0 {
		return 0, nil
	}

	value, _ := s.profile.Value(c.UUID())
	entry := s.logger.WithFields(logrus.Fields{
		"characteristic": c.UUID(),
		"subscribers":    len(subscribers),
		"bytes":          hex.EncodeToString(value),
	})
	if err := s.adapter.PushNotification(c.UUID(), value, subscribers); err != nil {
		entry.WithError(err).Warn("Notification failed")
		return 0, newAdapterFailure("notify", err)
	}
	entry.Debug("Notification pushed")
	return len(subscribers), nil
}

// SetReading validates r and applies it to the profile. It returns the UUID of the
// characteristic the reading is served from.
func (s *Server) SetReading(r codec.Reading) (string, error) {
	var uuid string
	err := s.update(func() error {
		var err error
		uuid, err = s.profile.Apply(r)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"characteristic": uuid,
				"reading":        r.String(),
			}).Debug("Reading updated")
		}
		return err
	})
	return uuid, err
}

// Publish applies r and notifies its characteristic in one step, so no read or
// subscription observes the new reading before subscribers are told.
// Readings of non-notifiable characteristics are only applied.
func (s *Server) Publish(r codec.Reading) (int, error) {
	var n int
	err := s.update(func() error {
		var err error
		n, err = s.publishLocked(r)
		return err
	})
	return n, err
}

// Modify publishes the reading edit derives from the one characteristic currently
// serves. The lookup, edit and publish happen under one lock, so a concurrent
// Rotate is never overwritten with a stale identifier. It returns the published
// reading and how many subscribers were notified.
func (s *Server) Modify(characteristic string, edit func(codec.Reading) (codec.Reading, error)) (codec.Reading, int, error) {
	var (
		next codec.Reading
		n    int
	)
	err := s.update(func() error {
		current, ok := s.profile.Reading(characteristic)
		if !ok {
			return fmt.Errorf("%w: %s", ErrAttributeNotFound, characteristic)
		}
		r, err := edit(current)
		if err != nil {
			return err
		}
		if n, err = s.publishLocked(r); err != nil {
			return err
		}
		next = r
		return nil
	})
	return next, n, err
}

func (s *Server) publishLocked(r codec.Reading) (int, error) {
	uuid, err := s.profile.Apply(r)
	if err != nil {
		return 0, err
	}
	if c, ok := s.service.Characteristic(uuid); !ok || !c.Notifiable() {
		return 0, nil
	}
	return s.notifyLocked(uuid)
}

// Rotate draws a new proximity identifier. When the server was created with
// NotifyOnRotate, subscribers are notified of it.
func (s *Server) Rotate() (codec.ProximityIdentifier, error) {
	var id codec.ProximityIdentifier
	err := s.update(func() error {
		rotator, ok := s.profile.(profile.Rotator)
		if !ok {
			return fmt.Errorf("%w: %s", ErrRotationUnsupported, s.profile.Kind())
		}
		id = rotator.Rotate()
		s.log().WithField("identifier", id.Identifier()).Info("Proximity identifier rotated")
		if s.notifyOnRotate {
			_, err := s.notifyLocked(gatt.CharacteristicProximityIdentifier)
			return err
		}
		return nil
	})
	return id, err
}
