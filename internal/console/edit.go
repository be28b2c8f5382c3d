package console

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/srg/blemu/internal/codec"
	"github.com/srg/blemu/internal/gatt"
	"github.com/srg/blemu/internal/profile"
)

// ErrUsage reports a malformed set command.
var ErrUsage = errors.New("usage")

// Lookup returns the reading a characteristic currently serves.
type Lookup func(characteristic string) (codec.Reading, bool)

// SetUsage describes the set grammar of each profile.
var SetUsage = map[profile.Kind]string{
	profile.KindBattery:     "set <level> | set level <0-100>",
	profile.KindHeartRate:   "set <bpm> | set [bpm <n>] [contact detected|not-detected|unsupported] [energy <kJ>|off] [rr <n,n,...>|off] | set location <0-6>",
	profile.KindThermometer: "set <temp> | set [temp <value>] [unit c|f] [type <name|1-9>|off] | set interval <seconds>",
	profile.KindProximity:   "set [metadata on|off] [major <0-3>] [minor <0-3>]",
}

// Edit builds a new reading for kind from key/value args applied over the current
// reading. A single bare value sets the primary field of the primary characteristic.
// Pairs apply left to right, so "unit f temp 98.6" reads the value as Fahrenheit.
func Edit(kind profile.Kind, lookup Lookup, args []string) (codec.Reading, error) {
	args, target, err := prepare(kind, args)
	if err != nil {
		return nil, err
	}
	current, ok := lookup(target)
	if !ok {
		return nil, fmt.Errorf("no reading served from %s", target)
	}
	return editReading(current, args)
}

// prepare expands a bare value to its primary key and returns the pairs together
// with the characteristic they edit.
func prepare(kind profile.Kind, args []string) ([]string, string, error) {
	if len(args) == 0 {
		return nil, "", usage(kind)
	}
	if len(args) == 1 {
		args = append([]string{primaryKey[kind]}, args...)
	}
	if len(args)%2 != 0 {
		return nil, "", usage(kind)
	}

	target, err := targetOf(kind, args)
	if err != nil {
		return nil, "", err
	}
	return args, target, nil
}

func editReading(current codec.Reading, args []string) (codec.Reading, error) {
	var err error
	for i := 0; i < len(args); i += 2 {
		key, value := strings.ToLower(args[i]), args[i+1]
		current, err = apply(current, key, value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}

	if err := current.Validate(); err != nil {
		return nil, err
	}
	return current, nil
}

var primaryKey = map[profile.Kind]string{
	profile.KindBattery:     "level",
	profile.KindHeartRate:   "bpm",
	profile.KindThermometer: "temp",
	profile.KindProximity:   "metadata",
}

// standalone keys address a secondary characteristic and cannot be combined.
var standalone = map[string]string{
	"location": gatt.CharacteristicBodySensorLocation,
	"interval": gatt.CharacteristicMeasurementInterval,
}

var keysOf = map[profile.Kind][]string{
	profile.KindBattery:     {"level"},
	profile.KindHeartRate:   {"bpm", "contact", "energy", "rr", "location"},
	profile.KindThermometer: {"temp", "unit", "type", "interval"},
	profile.KindProximity:   {"metadata", "major", "minor"},
}

func targetOf(kind profile.Kind, args []string) (string, error) {
	allowed := keysOf[kind]
	for i := 0; i < len(args); i += 2 {
		key := strings.ToLower(args[i])
		if !slices.Contains(allowed, key) {
			return "", fmt.Errorf("%w: unknown key %q for %s: %s", ErrUsage, key, kind, SetUsage[kind])
		}
		if uuid, ok := standalone[key]; ok {
			if len(args) != 2 {
				return "", fmt.Errorf("%w: %s must be set on its own", ErrUsage, key)
			}
			return uuid, nil
		}
	}

	switch kind {
	case profile.KindBattery:
		return gatt.CharacteristicBatteryLevel, nil
	case profile.KindHeartRate:
		return gatt.CharacteristicHeartRateMeasurement, nil
	case profile.KindThermometer:
		return gatt.CharacteristicTemperatureMeasurement, nil
	case profile.KindProximity:
		return gatt.CharacteristicProximityIdentifier, nil
	}
	return "", fmt.Errorf("%w: %s", profile.ErrUnknownKind, kind)
}

func apply(r codec.Reading, key, value string) (codec.Reading, error) {
	switch v := r.(type) {
	case codec.BatteryLevel:
		n, err := parseUint(value, 8)
		return codec.BatteryLevel(n), err

	case codec.HeartRateMeasurement:
		return applyHeartRate(v, key, value)

	case codec.BodySensorLocation:
		n, err := parseUint(value, 8)
		return codec.BodySensorLocation(n), err

	case codec.TemperatureMeasurement:
		return applyTemperature(v, key, value)

	case codec.MeasurementInterval:
		n, err := parseUint(strings.TrimSuffix(value, "s"), 16)
		return codec.MeasurementInterval(n), err

	case codec.ProximityIdentifier:
		return applyProximity(v, key, value)
	}
	return nil, fmt.Errorf("%w: %T", codec.ErrUnsupportedReading, r)
}

func applyHeartRate(m codec.HeartRateMeasurement, key, value string) (codec.Reading, error) {
	switch key {
	case "bpm":
		n, err := parseUint(value, 16)
		m.BPM = uint16(n)
		return m, err
	case "contact":
		c, err := parseContact(value)
		m.SensorContact = c
		return m, err
	case "energy":
		if isOff(value) {
			m.EnergyExpended = nil
			return m, nil
		}
		n, err := parseUint(value, 16)
		e := uint16(n)
		m.EnergyExpended = &e
		return m, err
	case "rr":
		if isOff(value) {
			m.RRIntervals = nil
			return m, nil
		}
		var rr []uint16
		for _, part := range strings.Split(value, ",") {
			n, err := parseUint(strings.TrimSpace(part), 16)
			if err != nil {
				return m, err
			}
			rr = append(rr, uint16(n))
		}
		m.RRIntervals = rr
		return m, nil
	}
	return m, ErrUsage
}

func applyTemperature(m codec.TemperatureMeasurement, key, value string) (codec.Reading, error) {
	switch key {
	case "temp":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return m, fmt.Errorf("invalid number %q", value)
		}
		// the value is given in the unit currently reported
		if m.Fahrenheit {
			f = codec.FahrenheitToCelsius(f)
		}
		m.Celsius = f
		return m, nil
	case "unit":
		switch strings.ToLower(value) {
		case "c", "celsius":
			m.Fahrenheit = false
		case "f", "fahrenheit":
			m.Fahrenheit = true
		default:
			return m, fmt.Errorf("unknown unit %q", value)
		}
		return m, nil
	case "type":
		if isOff(value) {
			m.Type = nil
			return m, nil
		}
		t, err := parseTemperatureType(value)
		m.Type = &t
		return m, err
	}
	return m, ErrUsage
}

func applyProximity(p codec.ProximityIdentifier, key, value string) (codec.Reading, error) {
	switch key {
	case "metadata":
		on, err := parseSwitch(value)
		p.Metadata = on
		return p, err
	case "major":
		n, err := parseUint(value, 8)
		p.MajorVersion = uint8(n)
		return p, err
	case "minor":
		n, err := parseUint(value, 8)
		p.MinorVersion = uint8(n)
		return p, err
	}
	return p, ErrUsage
}

func parseContact(s string) (codec.SensorContact, error) {
	switch strings.ToLower(s) {
	case "detected", "on", "3":
		return codec.SensorContactDetected, nil
	case "not-detected", "lost", "2":
		return codec.SensorContactNotDetected, nil
	case "unsupported", "off", "0":
		return codec.SensorContactUnsupported, nil
	}
	return 0, fmt.Errorf("unknown sensor contact %q", s)
}

func parseTemperatureType(s string) (codec.TemperatureType, error) {
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		t := codec.TemperatureType(n)
		if t < codec.TemperatureTypeArmpit || t > codec.TemperatureTypeTympanum {
			return 0, fmt.Errorf("temperature type must be 1..%d, got %d", codec.TemperatureTypeTympanum, n)
		}
		return t, nil
	}
	for t := codec.TemperatureTypeArmpit; t <= codec.TemperatureTypeTympanum; t++ {
		if strings.EqualFold(t.String(), s) || strings.EqualFold(strings.Fields(t.String())[0], s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown temperature type %q", s)
}

func parseUint(s string, bits int) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %d-bit unsigned value %q", bits, s)
	}
	return n, nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func isOff(s string) bool {
	switch strings.ToLower(s) {
	case "off", "none", "-":
		return true
	}
	return false
}

func usage(kind profile.Kind) error {
	return fmt.Errorf("%w: %s", ErrUsage, SetUsage[kind])
}
