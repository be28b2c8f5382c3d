// Package codec converts typed sensor readings into the bytes a peripheral puts on
// the wire, one encoder per characteristic kind, and renders known values back into
// human-readable form.
//
// Every encoder is pure and never fails for input accepted by the reading's
// Validate method. The only non-deterministic piece is the proximity transmit
// power, which comes from a TxPowerSource so callers decide how it is drawn.
package codec

import (
	"errors"
	"fmt"

	"github.com/srg/blemu/internal/gatt"
)

// ErrUnsupportedReading is returned by Encode for reading types it does not know.
var ErrUnsupportedReading = errors.New("unsupported reading")

// Reading is a typed characteristic value held by an emulated profile.
type Reading interface {
	// Validate reports whether every field is inside its declared range.
	Validate() error
	String() string
}

// CharacteristicOf returns the normalized UUID of the characteristic a reading is
// served from, or an empty string for unknown reading types.
func CharacteristicOf(r Reading) string {
	switch r.(type) {
	case BatteryLevel:
		return gatt.CharacteristicBatteryLevel
	case HeartRateMeasurement:
		return gatt.CharacteristicHeartRateMeasurement
	case BodySensorLocation:
		return gatt.CharacteristicBodySensorLocation
	case TemperatureMeasurement:
		return gatt.CharacteristicTemperatureMeasurement
	case MeasurementInterval:
		return gatt.CharacteristicMeasurementInterval
	case ProximityIdentifier:
		return gatt.CharacteristicProximityIdentifier
	default:
		return ""
	}
}

// Encode serializes any supported reading. tx is only consulted for proximity
// identifiers; a nil tx falls back to the default uniform range.
func Encode(r Reading, tx TxPowerSource) ([]byte, error) {
	switch v := r.(type) {
	case BatteryLevel:
		return EncodeBatteryLevel(v), nil
	case HeartRateMeasurement:
		return EncodeHeartRateMeasurement(v), nil
	case BodySensorLocation:
		return EncodeBodySensorLocation(v), nil
	case TemperatureMeasurement:
		return EncodeTemperatureMeasurement(v), nil
	case MeasurementInterval:
		return EncodeMeasurementInterval(v), nil
	case ProximityIdentifier:
		if tx == nil {
			tx = DefaultTxPower
		}
		return EncodeProximityIdentifier(v, tx), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedReading, r)
	}
}
