package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Temperature Measurement (0x2A1C) flag bits.
const (
	TemperatureFlagFahrenheit byte = 1 << 0
	TemperatureFlagTimestamp  byte = 1 << 1 // never set by this encoder
	TemperatureFlagType       byte = 1 << 2
)

// TemperatureExponent is the base-10 exponent of every encoded temperature: 10^-1.
const TemperatureExponent byte = 0xFF

// Accepted Celsius range for a thermometer reading.
const (
	MinCelsius = -273.15
	MaxCelsius = 1000.0
)

// TemperatureType is the optional temperature location byte.
type TemperatureType uint8

const (
	TemperatureTypeArmpit TemperatureType = iota + 1
	TemperatureTypeBody
	TemperatureTypeEar
	TemperatureTypeFinger
	TemperatureTypeGastroIntestinal
	TemperatureTypeMouth
	TemperatureTypeRectum
	TemperatureTypeToe
	TemperatureTypeTympanum
)

var temperatureTypeNames = map[TemperatureType]string{
	TemperatureTypeArmpit:           "Armpit",
	TemperatureTypeBody:             "Body",
	TemperatureTypeEar:              "Ear",
	TemperatureTypeFinger:           "Finger",
	TemperatureTypeGastroIntestinal: "Gastro-intestinal Tract",
	TemperatureTypeMouth:            "Mouth",
	TemperatureTypeRectum:           "Rectum",
	TemperatureTypeToe:              "Toe",
	TemperatureTypeTympanum:         "Tympanum",
}

func (t TemperatureType) String() string {
	if name, ok := temperatureTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Reserved (%d)", uint8(t))
}

// CelsiusToFahrenheit converts °C to °F.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// FahrenheitToCelsius converts °F to °C.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

// TemperatureMeasurement is the Temperature Measurement reading. The temperature is
// always held in Celsius; Fahrenheit selects the unit it is reported in.
type TemperatureMeasurement struct {
	Celsius    float64
	Fahrenheit bool
	Type       *TemperatureType
}

// Validate implements Reading.
func (m TemperatureMeasurement) Validate() error {
	if math.IsNaN(m.Celsius) || math.IsInf(m.Celsius, 0) {
		return &RangeError{Field: "temperature", Value: m.Celsius, Min: MinCelsius, Max: MaxCelsius}
	}
	return checkRange("temperature", m.Celsius, MinCelsius, MaxCelsius)
}

// Value returns the temperature in the reported unit.
func (m TemperatureMeasurement) Value() float64 {
	if m.Fahrenheit {
		return CelsiusToFahrenheit(m.Celsius)
	}
	return m.Celsius
}

// Mantissa is the reported value scaled by ten and rounded half away from zero.
// Values beyond the signed 24-bit range wrap when encoded.
func (m TemperatureMeasurement) Mantissa() int32 {
	return int32(math.Round(m.Value() * 10))
}

// Flags computes the flags byte from the current fields.
func (m TemperatureMeasurement) Flags() byte {
	var flags byte
	if m.Fahrenheit {
		flags |= TemperatureFlagFahrenheit
	}
	if m.Type != nil {
		flags |= TemperatureFlagType
	}
	return flags
}

func (m TemperatureMeasurement) unit() string {
	if m.Fahrenheit {
		return "°F"
	}
	return "°C"
}

func (m TemperatureMeasurement) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%.1f %s", float64(m.Mantissa())/10, m.unit())
	if m.Type != nil {
		fmt.Fprintf(&sb, " (%s)", m.Type.String())
	}
	return sb.String()
}

// EncodeTemperatureMeasurement emits the flags byte, the 0xFF exponent, the signed
// 24-bit mantissa high-byte-first and, when set, the temperature type byte.
func EncodeTemperatureMeasurement(m TemperatureMeasurement) []byte {
	mantissa := uint32(m.Mantissa())
	buf := []byte{
		m.Flags(),
		TemperatureExponent,
		byte(mantissa >> 16),
		byte(mantissa >> 8),
		byte(mantissa),
	}
	if m.Type != nil {
		buf = append(buf, byte(*m.Type))
	}
	return buf
}

// ParseTemperatureMeasurement decodes a Temperature Measurement value laid out by
// EncodeTemperatureMeasurement. Any exponent is honoured; timestamps are rejected.
func ParseTemperatureMeasurement(value []byte) (TemperatureMeasurement, error) {
	var m TemperatureMeasurement
	if len(value) < 5 {
		return m, fmt.Errorf("temperature measurement must be at least 5 bytes, got %d", len(value))
	}

	flags := value[0]
	if flags&TemperatureFlagTimestamp != 0 {
		return m, fmt.Errorf("temperature measurement timestamps are not supported")
	}

	exponent := int8(value[1])
	raw := int32(uint32(value[2])<<16 | uint32(value[3])<<8 | uint32(value[4]))
	if raw&0x800000 != 0 {
		raw -= 1 << 24
	}
	reported := float64(raw) * math.Pow10(int(exponent))

	m.Fahrenheit = flags&TemperatureFlagFahrenheit != 0
	if m.Fahrenheit {
		m.Celsius = FahrenheitToCelsius(reported)
	} else {
		m.Celsius = reported
	}

	rest := value[5:]
	if flags&TemperatureFlagType != 0 {
		if len(rest) != 1 {
			return m, fmt.Errorf("temperature measurement type flagged but %d byte(s) left", len(rest))
		}
		t := TemperatureType(rest[0])
		m.Type = &t
	} else if len(rest) != 0 {
		return m, fmt.Errorf("temperature measurement has %d trailing byte(s)", len(rest))
	}
	return m, nil
}

// MeasurementInterval is the Measurement Interval (0x2A21) reading in seconds.
type MeasurementInterval uint16

// Validate implements Reading.
func (i MeasurementInterval) Validate() error {
	return checkRange("measurement interval", float64(i), 1, math.MaxUint16)
}

func (i MeasurementInterval) String() string {
	return fmt.Sprintf("%ds", uint16(i))
}

// EncodeMeasurementInterval emits the interval as 2 bytes high-byte-first.
func EncodeMeasurementInterval(i MeasurementInterval) []byte {
	return binary.BigEndian.AppendUint16(make([]byte, 0, 2), uint16(i))
}

// ParseMeasurementInterval decodes a Measurement Interval value.
func ParseMeasurementInterval(value []byte) (MeasurementInterval, error) {
	if len(value) != 2 {
		return 0, fmt.Errorf("measurement interval value must be 2 bytes, got %d", len(value))
	}
	return MeasurementInterval(binary.BigEndian.Uint16(value)), nil
}
