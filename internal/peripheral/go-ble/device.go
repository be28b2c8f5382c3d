package goble

import (
	"context"

	"github.com/go-ble/ble"
)

// Device is the part of ble.Device the adapter drives.
type Device interface {
	AddService(svc *ble.Service) error
	RemoveAllServices() error
	AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error
	Stop() error
}

// DeviceFactory creates the platform device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (Device, error) {
	dev, err := newPlatformDevice()
	if err != nil {
		return nil, err
	}
	return dev, nil
}
