package goble

import (
	"errors"
	"fmt"
	"strings"
)

// Adapter errors
var (
	ErrBluetoothOff        = errors.New("bluetooth is turned off")
	ErrUnsupportedPlatform = errors.New("no peripheral support on this platform")
	ErrNotOpen             = errors.New("adapter is not open")
	ErrNoSubscription      = errors.New("no active subscription")
	ErrAdvertisingEnded    = errors.New("advertising ended unexpectedly")
)

// NormalizeError maps known go-ble error strings to the adapter's sentinel errors.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case errors.Is(err, ErrBluetoothOff):
		return err
	case strings.HasPrefix(msg, "central manager has invalid state"),
		strings.HasPrefix(msg, "peripheral manager has invalid state"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "powered off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "can't init hci"),
		containsIgnoreCase(msg, "no devices available"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
