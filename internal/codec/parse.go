package codec

import (
	"encoding/hex"
	"fmt"

	"github.com/srg/blemu/internal/gatt"
)

// CharacteristicParser is a function that parses a characteristic value
type CharacteristicParser func([]byte) (fmt.Stringer, error)

func wrap[T fmt.Stringer](parse func([]byte) (T, error)) CharacteristicParser {
	return func(value []byte) (fmt.Stringer, error) {
		v, err := parse(value)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// characteristicParsers maps normalized characteristic UUIDs to their parser functions
var characteristicParsers = map[string]CharacteristicParser{
	gatt.CharacteristicBatteryLevel:           wrap(ParseBatteryLevel),
	gatt.CharacteristicHeartRateMeasurement:   wrap(ParseHeartRateMeasurement),
	gatt.CharacteristicBodySensorLocation:     wrap(ParseBodySensorLocation),
	gatt.CharacteristicTemperatureMeasurement: wrap(ParseTemperatureMeasurement),
	gatt.CharacteristicMeasurementInterval:    wrap(ParseMeasurementInterval),
	gatt.CharacteristicProximityIdentifier:    wrap(ParseProximityIdentifier),
}

// IsParsableCharacteristic returns true if the characteristic UUID supports value parsing
func IsParsableCharacteristic(uuid string) bool {
	_, exists := characteristicParsers[gatt.NormalizeUUID(uuid)]
	return exists
}

// ParseCharacteristicValue parses a characteristic value based on its UUID.
// Returns (nil, nil) for characteristics without a parser.
func ParseCharacteristicValue(uuid string, value []byte) (fmt.Stringer, error) {
	parser, exists := characteristicParsers[gatt.NormalizeUUID(uuid)]
	if !exists {
		return nil, nil
	}
	return parser(value)
}

// Describe renders a value for display: the parsed form for known characteristics,
// hex otherwise or when parsing fails.
func Describe(uuid string, value []byte) string {
	parsed, err := ParseCharacteristicValue(uuid, value)
	if err != nil || parsed == nil {
		return hex.EncodeToString(value)
	}
	return parsed.String()
}
