package peripheral

import (
	"github.com/srg/blemu/internal/gatt"
	"github.com/srg/blemu/internal/registry"
)

// RequestHandle identifies one pending read request inside the adapter.
type RequestHandle any

// Adapter is the platform Bluetooth stack as seen by the server.
//
// AddService and StartAdvertising complete asynchronously through
// EventHandler.OnServiceAdded and EventHandler.OnAdvertisingStarted; a returned
// error means the command was rejected outright. No Adapter method may call back
// into the EventHandler before it returns.
type Adapter interface {
	AddService(svc *gatt.Service) error
	RemoveService(svc *gatt.Service) error
	StartAdvertising(serviceUUIDs []string, localName string) error
	StopAdvertising() error
	RespondToRead(handle RequestHandle, status ResponseStatus, value []byte)
	PushNotification(characteristic string, value []byte, subscribers []registry.Subscriber) error
}

// EventHandler receives the events an Adapter produces. *Server implements it.
type EventHandler interface {
	OnServiceAdded(serviceUUID string, err error)
	OnAdvertisingStarted(err error)
	OnReadRequest(characteristic string, offset int, handle RequestHandle)
	OnSubscribe(characteristic string, subscriber registry.Subscriber)
	OnUnsubscribe(characteristic string, subscriber registry.Subscriber)
	OnAdapterPowerChanged(ready bool)
}
