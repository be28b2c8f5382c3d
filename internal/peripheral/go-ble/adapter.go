// Package goble implements peripheral.Adapter on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemu/internal/gatt"
	"github.com/srg/blemu/internal/groutine"
	"github.com/srg/blemu/internal/peripheral"
	"github.com/srg/blemu/internal/registry"
)

// DefaultAdvertiseSettle is how long advertising must run without error before
// it is reported as started.
const DefaultAdvertiseSettle = 250 * time.Millisecond

// Options configures an Adapter.
type Options struct {
	// AdvertiseSettle is the window an advertising call may fail in before it
	// counts as started. Zero means DefaultAdvertiseSettle.
	AdvertiseSettle time.Duration
	Logger          *logrus.Logger
}

// Adapter drives a go-ble Device as a GATT peripheral.
type Adapter struct {
	mu       sync.Mutex
	dev      Device
	handler  peripheral.EventHandler
	logger   *logrus.Logger
	settle   time.Duration
	services map[string]*ble.Service
	order    []string

	ctx       context.Context
	cancel    context.CancelFunc
	advCancel context.CancelFunc

	subscriptions *hashmap.Map[string, *subscription]
	group         groutine.Group
}

type subscription struct {
	characteristic string
	subscriber     registry.Subscriber
	notifier       ble.Notifier
}

// readRequest is the handle passed to the event handler for a pending read.
type readRequest struct {
	rsp       ble.ResponseWriter
	responded bool
}

// New creates an adapter. Open must be called before use.
func New(opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	settle := opts.AdvertiseSettle
	if settle <= 0 {
		settle = DefaultAdvertiseSettle
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		logger:        logger,
		settle:        settle,
		services:      make(map[string]*ble.Service),
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: hashmap.New[string, *subscription](),
	}
}

// Open creates the platform device and reports adapter readiness to handler.
// A powered-off adapter is reported as not ready and its error returned.
func (a *Adapter) Open(handler peripheral.EventHandler) error {
	a.mu.Lock()
	a.handler = handler
	a.mu.Unlock()

	dev, err := DeviceFactory()
	if err != nil {
		err = NormalizeError(err)
		a.logger.WithError(err).Warn("Bluetooth device unavailable")
		if errors.Is(err, ErrBluetoothOff) {
			handler.OnAdapterPowerChanged(false)
		}
		return err
	}

	a.mu.Lock()
	a.dev = dev
	a.mu.Unlock()

	a.logger.Debug("Bluetooth device opened")
	handler.OnAdapterPowerChanged(true)
	return nil
}

// Close stops advertising, releases the device and waits for adapter goroutines.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.advCancel != nil {
		a.advCancel()
		a.advCancel = nil
	}
	dev := a.dev
	a.dev = nil
	a.mu.Unlock()

	a.cancel()

	var err error
	if dev != nil {
		err = NormalizeError(dev.Stop())
	}
	a.group.Wait()
	return err
}

func (a *Adapter) device() (Device, peripheral.EventHandler, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev == nil {
		return nil, a.handler, ErrNotOpen
	}
	return a.dev, a.handler, nil
}

// AddService publishes svc. Completion is reported through OnServiceAdded.
func (a *Adapter) AddService(svc *gatt.Service) error {
	dev, handler, err := a.device()
	if err != nil {
		return err
	}

	bs, err := a.translate(svc)
	if err != nil {
		return err
	}

	if err := dev.AddService(bs); err != nil {
		a.powerCheck(err)
		return NormalizeError(err)
	}

	a.mu.Lock()
	if _, exists := a.services[svc.UUID()]; !exists {
		a.order = append(a.order, svc.UUID())
	}
	a.services[svc.UUID()] = bs
	a.mu.Unlock()

	a.logger.WithField("service", svc.UUID()).Debug("Service added to GATT database")

	uuid := svc.UUID()
	a.group.Go(a.ctx, "service-added", func(context.Context) {
		handler.OnServiceAdded(uuid, nil)
	})
	return nil
}

// RemoveService withdraws svc. go-ble can only drop the whole database, so the
// remaining services are added back.
func (a *Adapter) RemoveService(svc *gatt.Service) error {
	dev, _, err := a.device()
	if err != nil {
		return err
	}

	a.mu.Lock()
	delete(a.services, svc.UUID())
	remaining := make([]*ble.Service, 0, len(a.order))
	order := a.order[:0]
	for _, u := range a.order {
		if bs, ok := a.services[u]; ok {
			order = append(order, u)
			remaining = append(remaining, bs)
		}
	}
	a.order = order
	a.mu.Unlock()

	for _, c := range svc.Characteristics() {
		a.dropSubscriptions(c.UUID())
	}

	if err := dev.RemoveAllServices(); err != nil {
		return NormalizeError(err)
	}
	var errs []error
	for _, bs := range remaining {
		if err := dev.AddService(bs); err != nil {
			errs = append(errs, fmt.Errorf("re-add %s: %w", bs.UUID, NormalizeError(err)))
		}
	}
	return errors.Join(errs...)
}

// StartAdvertising begins advertising. Success is reported through
// OnAdvertisingStarted once advertising survives the settle window.
func (a *Adapter) StartAdvertising(serviceUUIDs []string, localName string) error {
	dev, handler, err := a.device()
	if err != nil {
		return err
	}

	uuids := make([]ble.UUID, 0, len(serviceUUIDs))
	for _, s := range serviceUUIDs {
		u, err := parseUUID(s)
		if err != nil {
			return err
		}
		uuids = append(uuids, u)
	}

	a.mu.Lock()
	if a.advCancel != nil {
		a.advCancel()
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.advCancel = cancel
	a.mu.Unlock()

	done := make(chan error, 1)
	a.group.Go(ctx, "advertise", func(ctx context.Context) {
		done <- dev.AdvertiseNameAndServices(ctx, localName, uuids...)
	})

	settle := a.settle
	a.group.Go(ctx, "advertise-settle", func(ctx context.Context) {
		timer := time.NewTimer(settle)
		defer timer.Stop()

		select {
		case err := <-done:
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				err = ErrAdvertisingEnded
			}
			a.powerCheck(err)
			handler.OnAdvertisingStarted(NormalizeError(err))
			return
		case <-timer.C:
			handler.OnAdvertisingStarted(nil)
		}

		err := <-done
		if ctx.Err() == nil {
			a.logger.WithError(NormalizeError(err)).Warn("Advertising stopped unexpectedly")
			a.powerCheck(err)
		}
	})
	return nil
}

// StopAdvertising cancels the running advertisement, if any.
func (a *Adapter) StopAdvertising() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.advCancel != nil {
		a.advCancel()
		a.advCancel = nil
	}
	return nil
}

// RespondToRead answers a read request handed out through OnReadRequest.
func (a *Adapter) RespondToRead(handle peripheral.RequestHandle, status peripheral.ResponseStatus, value []byte) {
	req, ok := handle.(*readRequest)
	if !ok || req == nil || req.responded {
		a.logger.WithField("handle", fmt.Sprintf("%v", handle)).Warn("Ignoring response for unknown read request")
		return
	}
	req.responded = true

	if status != peripheral.StatusSuccess {
		req.rsp.SetStatus(attError(status))
		return
	}
	if c := req.rsp.Cap(); c >= 0 && len(value) > c {
		value = value[:c]
	}
	if _, err := req.rsp.Write(value); err != nil {
		a.logger.WithError(err).Warn("Failed to write read response")
		req.rsp.SetStatus(ble.ErrUnlikely)
	}
}

// PushNotification writes value to each subscriber's notifier.
func (a *Adapter) PushNotification(characteristic string, value []byte, subscribers []registry.Subscriber) error {
	var errs []error
	for _, sub := range subscribers {
		s, ok := a.subscriptions.Get(subscriptionKey(characteristic, sub))
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", sub, ErrNoSubscription))
			continue
		}
		v := value
		if c := s.notifier.Cap(); c > 0 && len(v) > c {
			v = v[:c]
		}
		if _, err := s.notifier.Write(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sub, err))
		}
	}
	return errors.Join(errs...)
}

// Subscriptions returns the number of live notifier sessions.
func (a *Adapter) Subscriptions() int {
	return a.subscriptions.Len()
}

func (a *Adapter) translate(svc *gatt.Service) (*ble.Service, error) {
	su, err := parseUUID(svc.UUID())
	if err != nil {
		return nil, err
	}
	bs := ble.NewService(su)

	for _, c := range svc.Characteristics() {
		cu, err := parseUUID(c.UUID())
		if err != nil {
			return nil, err
		}
		bc := bs.NewCharacteristic(cu)
		if c.Readable() {
			bc.HandleRead(ble.ReadHandlerFunc(a.serveRead(c.UUID())))
		}
		if c.Notifiable() {
			bc.HandleNotify(ble.NotifyHandlerFunc(a.serveNotify(c.UUID())))
		}
	}
	return bs, nil
}

func (a *Adapter) serveRead(uuid string) func(ble.Request, ble.ResponseWriter) {
	return func(req ble.Request, rsp ble.ResponseWriter) {
		a.mu.Lock()
		handler := a.handler
		a.mu.Unlock()

		if handler == nil {
			rsp.SetStatus(ble.ErrAttrNotFound)
			return
		}

		r := &readRequest{rsp: rsp}
		handler.OnReadRequest(uuid, req.Offset(), r)
		if !r.responded {
			rsp.SetStatus(ble.ErrUnlikely)
		}
	}
}

func (a *Adapter) serveNotify(uuid string) func(ble.Request, ble.Notifier) {
	return func(req ble.Request, n ble.Notifier) {
		a.mu.Lock()
		handler := a.handler
		a.mu.Unlock()

		if handler == nil {
			return
		}

		sub := subscriberOf(req, n)
		key := subscriptionKey(uuid, sub)
		a.mu.Lock()
		a.subscriptions.Set(key, &subscription{characteristic: uuid, subscriber: sub, notifier: n})
		a.mu.Unlock()

		logger := a.logger.WithFields(logrus.Fields{"characteristic": uuid, "subscriber": sub})
		logger.Debug("Notification session opened")

		handler.OnSubscribe(uuid, sub)

		select {
		case <-n.Context().Done():
		case <-a.ctx.Done():
		}

		// A central that resubscribed owns the key through its newer notifier.
		a.mu.Lock()
		current, ok := a.subscriptions.Get(key)
		owned := ok && current.notifier == n
		if owned {
			a.subscriptions.Del(key)
		}
		a.mu.Unlock()

		if owned {
			handler.OnUnsubscribe(uuid, sub)
		}
		logger.Debug("Notification session closed")
	}
}

func (a *Adapter) dropSubscriptions(characteristic string) {
	var keys []string
	a.subscriptions.Range(func(k string, s *subscription) bool {
		if s.characteristic == characteristic {
			keys = append(keys, k)
		}
		return true
	})
	for _, k := range keys {
		a.subscriptions.Del(k)
	}
}

// powerCheck reports a powered-off adapter to the handler without blocking the caller.
func (a *Adapter) powerCheck(err error) {
	if !errors.Is(NormalizeError(err), ErrBluetoothOff) {
		return
	}
	a.mu.Lock()
	handler := a.handler
	a.mu.Unlock()
	if handler == nil {
		return
	}
	a.group.Go(a.ctx, "power-changed", func(context.Context) {
		handler.OnAdapterPowerChanged(false)
	})
}

func subscriberOf(req ble.Request, n ble.Notifier) registry.Subscriber {
	if req != nil {
		if conn := req.Conn(); conn != nil && conn.RemoteAddr() != nil {
			return registry.Subscriber(conn.RemoteAddr().String())
		}
	}
	return registry.Subscriber(fmt.Sprintf("%p", n))
}

func subscriptionKey(characteristic string, sub registry.Subscriber) string {
	return characteristic + "|" + string(sub)
}

func parseUUID(s string) (ble.UUID, error) {
	n := gatt.NormalizeUUID(s)
	if n == "" {
		return nil, fmt.Errorf("invalid UUID %q", s)
	}
	return ble.Parse(n)
}

func attError(status peripheral.ResponseStatus) ble.ATTError {
	switch status {
	case peripheral.StatusSuccess:
		return ble.ErrSuccess
	case peripheral.StatusInvalidOffset:
		return ble.ErrInvalidOffset
	case peripheral.StatusAttributeNotFound:
		return ble.ErrAttrNotFound
	default:
		return ble.ErrUnlikely
	}
}
