package testutils

import (
	"slices"
	"sync"

	"github.com/srg/blemu/internal/gatt"
	"github.com/srg/blemu/internal/peripheral"
	"github.com/srg/blemu/internal/registry"
)

// Notification is one PushNotification call recorded by FakeAdapter.
type Notification struct {
	Characteristic string
	Value          []byte
	Subscribers    []registry.Subscriber
}

// Delivered reports whether subscriber was addressed by the notification.
func (n Notification) Delivered(subscriber registry.Subscriber) bool {
	return slices.Contains(n.Subscribers, subscriber)
}

// ReadResponse is one RespondToRead call recorded by FakeAdapter.
type ReadResponse struct {
	Handle peripheral.RequestHandle
	Status peripheral.ResponseStatus
	Value  []byte
}

// FakeAdapter is an in-memory peripheral.Adapter. It records every command and never
// calls back; tests deliver completion events to the server themselves.
//
// Set the *Err fields to make the corresponding command fail.
type FakeAdapter struct {
	mu sync.Mutex

	AddServiceErr       error
	RemoveServiceErr    error
	StartAdvertisingErr error
	StopAdvertisingErr  error
	PushErr             error

	calls         []string
	services      []string
	advertising   bool
	advertised    []string
	localName     string
	notifications []Notification
	responses     []ReadResponse
}

var _ peripheral.Adapter = (*FakeAdapter)(nil)

// NewFakeAdapter returns an empty FakeAdapter.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{}
}

func (f *FakeAdapter) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *FakeAdapter) AddService(svc *gatt.Service) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AddService")
	if f.AddServiceErr != nil {
		return f.AddServiceErr
	}
	f.services = append(f.services, svc.UUID())
	return nil
}

func (f *FakeAdapter) RemoveService(svc *gatt.Service) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RemoveService")
	f.services = slices.DeleteFunc(f.services, func(uuid string) bool { return uuid == svc.UUID() })
	return f.RemoveServiceErr
}

func (f *FakeAdapter) StartAdvertising(serviceUUIDs []string, localName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StartAdvertising")
	if f.StartAdvertisingErr != nil {
		return f.StartAdvertisingErr
	}
	f.advertising = true
	f.advertised = slices.Clone(serviceUUIDs)
	f.localName = localName
	return nil
}

func (f *FakeAdapter) StopAdvertising() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StopAdvertising")
	f.advertising = false
	return f.StopAdvertisingErr
}

func (f *FakeAdapter) RespondToRead(handle peripheral.RequestHandle, status peripheral.ResponseStatus, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RespondToRead")
	f.responses = append(f.responses, ReadResponse{Handle: handle, Status: status, Value: slices.Clone(value)})
}

func (f *FakeAdapter) PushNotification(characteristic string, value []byte, subscribers []registry.Subscriber) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("PushNotification")
	if f.PushErr != nil {
		return f.PushErr
	}
	f.notifications = append(f.notifications, Notification{
		Characteristic: characteristic,
		Value:          slices.Clone(value),
		Subscribers:    slices.Clone(subscribers),
	})
	return nil
}

// Calls returns the recorded command names in order.
func (f *FakeAdapter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Services returns the UUIDs of the currently published services.
func (f *FakeAdapter) Services() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.services)
}

// Advertising reports whether advertising is on, with what it advertises.
func (f *FakeAdapter) Advertising() (on bool, serviceUUIDs []string, localName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.advertising, slices.Clone(f.advertised), f.localName
}

// Notifications returns every recorded notification.
func (f *FakeAdapter) Notifications() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.notifications)
}

// NotificationsFor returns the values pushed to subscriber, in order.
func (f *FakeAdapter) NotificationsFor(subscriber registry.Subscriber) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, n := range f.notifications {
		if n.Delivered(subscriber) {
			out = append(out, n.Value)
		}
	}
	return out
}

// Responses returns every recorded read response.
func (f *FakeAdapter) Responses() []ReadResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.responses)
}

// Reset forgets recorded calls, notifications and responses but keeps configured
// errors and published services.
func (f *FakeAdapter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.notifications = nil
	f.responses = nil
}
