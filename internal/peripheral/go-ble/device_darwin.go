//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

func newPlatformDevice() (ble.Device, error) {
	dev, err := darwin.NewDevice(darwin.OptPeripheralRole())
	if err != nil {
		return nil, err
	}
	return dev, nil
}
