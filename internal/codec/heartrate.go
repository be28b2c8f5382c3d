package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Heart Rate Measurement (0x2A37) flag bits.
const (
	HeartRateFlagValueUint16    byte = 1 << 0
	HeartRateFlagSensorContact  byte = 0x03 << 1 // two-bit sensor contact status field
	HeartRateFlagEnergyExpended byte = 1 << 3
	HeartRateFlagRRInterval     byte = 1 << 4
)

const heartRateSensorContactShift = 1

// SensorContact is the two-bit sensor contact status carried in the flags byte.
type SensorContact uint8

const (
	SensorContactUnsupported SensorContact = 0
	SensorContactNotDetected SensorContact = 2
	SensorContactDetected    SensorContact = 3
)

func (s SensorContact) String() string {
	switch s {
	case SensorContactNotDetected:
		return "contact not detected"
	case SensorContactDetected:
		return "contact detected"
	default:
		return "contact unsupported"
	}
}

// HeartRateMeasurement is the Heart Rate Measurement reading.
type HeartRateMeasurement struct {
	BPM            uint16
	SensorContact  SensorContact
	EnergyExpended *uint16  // kilojoules, nil when not reported
	RRIntervals    []uint16 // 1/1024 s resolution, empty when not reported
}

// Validate implements Reading.
func (m HeartRateMeasurement) Validate() error {
	return checkRange("sensor contact", float64(m.SensorContact), 0, 3)
}

// Flags computes the flags byte from the current fields. The value format bit is
// derived from BPM and never stored.
func (m HeartRateMeasurement) Flags() byte {
	var flags byte
	if m.BPM > math.MaxUint8 {
		flags |= HeartRateFlagValueUint16
	}
	flags |= (byte(m.SensorContact) << heartRateSensorContactShift) & HeartRateFlagSensorContact
	if m.EnergyExpended != nil {
		flags |= HeartRateFlagEnergyExpended
	}
	if len(m.RRIntervals) > 0 {
		flags |= HeartRateFlagRRInterval
	}
	return flags
}

func (m HeartRateMeasurement) String() string {
	parts := []string{fmt.Sprintf("%d bpm", m.BPM)}
	if m.SensorContact != SensorContactUnsupported {
		parts = append(parts, m.SensorContact.String())
	}
	if m.EnergyExpended != nil {
		parts = append(parts, fmt.Sprintf("%d kJ", *m.EnergyExpended))
	}
	if len(m.RRIntervals) > 0 {
		parts = append(parts, fmt.Sprintf("RR %v", m.RRIntervals))
	}
	return strings.Join(parts, ", ")
}

// EncodeHeartRateMeasurement emits the flags byte followed by the value, one byte
// below 256 and two bytes high-byte-first otherwise, then the optional
// energy-expended and RR-interval fields in the same byte order.
func EncodeHeartRateMeasurement(m HeartRateMeasurement) []byte {
	flags := m.Flags()
	buf := make([]byte, 0, 3+2+2*len(m.RRIntervals))
	buf = append(buf, flags)

	if flags&HeartRateFlagValueUint16 != 0 {
		buf = binary.BigEndian.AppendUint16(buf, m.BPM)
	} else {
		buf = append(buf, byte(m.BPM))
	}

	if m.EnergyExpended != nil {
		buf = binary.BigEndian.AppendUint16(buf, *m.EnergyExpended)
	}
	for _, rr := range m.RRIntervals {
		buf = binary.BigEndian.AppendUint16(buf, rr)
	}
	return buf
}

// ParseHeartRateMeasurement decodes a Heart Rate Measurement value produced by
// EncodeHeartRateMeasurement.
func ParseHeartRateMeasurement(value []byte) (HeartRateMeasurement, error) {
	var m HeartRateMeasurement
	if len(value) < 2 {
		return m, fmt.Errorf("heart rate measurement must be at least 2 bytes, got %d", len(value))
	}

	flags := value[0]
	rest := value[1:]
	m.SensorContact = SensorContact((flags & HeartRateFlagSensorContact) >> heartRateSensorContactShift)

	if flags&HeartRateFlagValueUint16 != 0 {
		if len(rest) < 2 {
			return m, fmt.Errorf("heart rate measurement truncated: 16-bit value flagged but %d byte(s) left", len(rest))
		}
		m.BPM = binary.BigEndian.Uint16(rest)
		rest = rest[2:]
	} else {
		m.BPM = uint16(rest[0])
		rest = rest[1:]
	}

	if flags&HeartRateFlagEnergyExpended != 0 {
		if len(rest) < 2 {
			return m, fmt.Errorf("heart rate measurement truncated: energy expended flagged but %d byte(s) left", len(rest))
		}
		energy := binary.BigEndian.Uint16(rest)
		m.EnergyExpended = &energy
		rest = rest[2:]
	}

	if flags&HeartRateFlagRRInterval != 0 {
		if len(rest) == 0 || len(rest)%2 != 0 {
			return m, fmt.Errorf("heart rate measurement RR intervals must be a non-empty multiple of 2 bytes, got %d", len(rest))
		}
		for ; len(rest) > 0; rest = rest[2:] {
			m.RRIntervals = append(m.RRIntervals, binary.BigEndian.Uint16(rest))
		}
	} else if len(rest) != 0 {
		return m, fmt.Errorf("heart rate measurement has %d trailing byte(s)", len(rest))
	}

	return m, nil
}

// BodySensorLocation is the Body Sensor Location (0x2A38) reading.
type BodySensorLocation uint8

const (
	SensorLocationOther BodySensorLocation = iota
	SensorLocationChest
	SensorLocationWrist
	SensorLocationFinger
	SensorLocationHand
	SensorLocationEarLobe
	SensorLocationFoot
)

var bodySensorLocationNames = []string{"Other", "Chest", "Wrist", "Finger", "Hand", "Ear Lobe", "Foot"}

// Validate implements Reading.
func (l BodySensorLocation) Validate() error {
	return checkRange("body sensor location", float64(l), 0, float64(SensorLocationFoot))
}

func (l BodySensorLocation) String() string {
	if int(l) < len(bodySensorLocationNames) {
		return bodySensorLocationNames[l]
	}
	return fmt.Sprintf("Reserved (%d)", uint8(l))
}

// EncodeBodySensorLocation emits the single location code byte.
func EncodeBodySensorLocation(l BodySensorLocation) []byte {
	return []byte{byte(l)}
}

// ParseBodySensorLocation decodes a Body Sensor Location value.
func ParseBodySensorLocation(value []byte) (BodySensorLocation, error) {
	if len(value) != 1 {
		return 0, fmt.Errorf("body sensor location value must be 1 byte, got %d", len(value))
	}
	return BodySensorLocation(value[0]), nil
}
