package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blemu/internal/codec"
	"github.com/srg/blemu/internal/peripheral"
	goble "github.com/srg/blemu/internal/peripheral/go-ble"
	"github.com/srg/blemu/internal/profile"
	"github.com/srg/blemu/pkg/config"
)

// Command-level errors
var (
	// ErrUnknownCharacteristic means decode was given a UUID it has no parser for.
	ErrUnknownCharacteristic = errors.New("no decoder for characteristic")
)

// FormatUserError turns an error into the one-line message printed on exit.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable. Turn it on and try again."
	case errors.Is(err, goble.ErrUnsupportedPlatform):
		return err.Error() + " (peripheral mode needs macOS or Linux)"
	case errors.Is(err, profile.ErrUnknownKind):
		return fmt.Sprintf("%v (available: %s)", err, strings.Join(kindNames(), ", "))
	case errors.Is(err, config.ErrInvalidConfig):
		return err.Error()
	case errors.Is(err, codec.ErrOutOfRange):
		return "invalid reading: " + err.Error()
	case errors.Is(err, peripheral.ErrAdapterFailure):
		return "Bluetooth adapter error: " + err.Error()
	default:
		return err.Error()
	}
}
