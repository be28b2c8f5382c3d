// Package mocks holds testify mocks for the go-ble device surface.
package mocks

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockDevice is a mock of the go-ble peripheral device methods used by the adapter.
type MockDevice struct {
	mock.Mock
}

// NewMockDevice creates a MockDevice whose expectations are asserted on test cleanup.
func NewMockDevice(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockDevice {
	m := &MockDevice{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// AddService provides a mock function with given fields: svc
func (m *MockDevice) AddService(svc *ble.Service) error {
	ret := m.Called(svc)
	return ret.Error(0)
}

// RemoveAllServices provides a mock function with no fields
func (m *MockDevice) RemoveAllServices() error {
	ret := m.Called()
	return ret.Error(0)
}

// AdvertiseNameAndServices provides a mock function with given fields: ctx, name, uuids
func (m *MockDevice) AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error {
	ret := m.Called(ctx, name, uuids)
	if fn, ok := ret.Get(0).(func(context.Context, string, ...ble.UUID) error); ok {
		return fn(ctx, name, uuids...)
	}
	return ret.Error(0)
}

// Stop provides a mock function with no fields
func (m *MockDevice) Stop() error {
	ret := m.Called()
	return ret.Error(0)
}
