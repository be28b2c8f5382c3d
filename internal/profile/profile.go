// Package profile defines the emulated GATT profiles: the attribute table of each
// profile and the readings its characteristics are served from.
//
// Profiles are not safe for concurrent use. The peripheral session that owns a
// profile serializes every call.
package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blemu/internal/codec"
	"github.com/srg/blemu/internal/gatt"
)

// ErrUnknownKind is returned by ParseKind for unrecognized profile names.
var ErrUnknownKind = errors.New("unknown profile")

// ErrReadingMismatch is returned when a reading does not belong to the profile.
var ErrReadingMismatch = errors.New("reading does not belong to profile")

// Kind enumerates the supported profiles.
type Kind int

const (
	KindBattery Kind = iota + 1
	KindHeartRate
	KindThermometer
	KindProximity
)

var kindNames = map[Kind]string{
	KindBattery:     "battery",
	KindHeartRate:   "heart-rate",
	KindThermometer: "thermometer",
	KindProximity:   "proximity",
}

var kindAliases = map[string]Kind{
	"battery":               KindBattery,
	"bas":                   KindBattery,
	"heart-rate":            KindHeartRate,
	"heartrate":             KindHeartRate,
	"hr":                    KindHeartRate,
	"hrm":                   KindHeartRate,
	"thermometer":           KindThermometer,
	"health-thermometer":    KindThermometer,
	"ht":                    KindThermometer,
	"proximity":             KindProximity,
	"exposure-notification": KindProximity,
	"en":                    KindProximity,
}

// Kinds returns every supported kind in display order.
func Kinds() []Kind {
	return []Kind{KindBattery, KindHeartRate, KindThermometer, KindProximity}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ServiceUUID returns the primary service UUID of the kind.
func (k Kind) ServiceUUID() string {
	switch k {
	case KindBattery:
		return gatt.ServiceBattery
	case KindHeartRate:
		return gatt.ServiceHeartRate
	case KindThermometer:
		return gatt.ServiceHealthThermometer
	case KindProximity:
		return gatt.ServiceExposureNotification
	default:
		return ""
	}
}

// ParseKind resolves a profile name or alias, case-insensitively.
func ParseKind(name string) (Kind, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "_", "-")
	if k, ok := kindAliases[key]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Profile is one emulated GATT profile.
type Profile interface {
	Kind() Kind

	// Service returns the attribute table. It is built once and frozen.
	Service() *gatt.Service

	// Reading returns the current reading served from characteristic.
	Reading(characteristic string) (codec.Reading, bool)

	// Value serializes the current reading of characteristic. The bytes are computed
	// fresh on every call.
	Value(characteristic string) ([]byte, bool)

	// Apply validates r and stores it. It returns the normalized UUID of the
	// characteristic the reading is served from.
	Apply(r codec.Reading) (string, error)
}

// Rotator is implemented by profiles whose identifier rotates on a timer.
type Rotator interface {
	Rotate() codec.ProximityIdentifier
}

// Options carries the initial readings for New. Zero fields fall back to the
// package defaults.
type Options struct {
	Battery        *codec.BatteryLevel
	HeartRate      *codec.HeartRateMeasurement
	SensorLocation *codec.BodySensorLocation
	Temperature    *codec.TemperatureMeasurement
	Interval       *codec.MeasurementInterval
	Proximity      *codec.ProximityIdentifier
	TxPower        codec.TxPowerSource
}

// New builds the profile of kind with its initial readings.
func New(kind Kind, opts Options) (Profile, error) {
	switch kind {
	case KindBattery:
		level := DefaultBatteryLevel
		if opts.Battery != nil {
			level = *opts.Battery
		}
		return NewBattery(level)
	case KindHeartRate:
		m := codec.HeartRateMeasurement{BPM: DefaultHeartRate}
		if opts.HeartRate != nil {
			m = *opts.HeartRate
		}
		loc := codec.SensorLocationOther
		if opts.SensorLocation != nil {
			loc = *opts.SensorLocation
		}
		return NewHeartRate(m, loc)
	case KindThermometer:
		m := codec.TemperatureMeasurement{Celsius: DefaultCelsius}
		if opts.Temperature != nil {
			m = *opts.Temperature
		}
		interval := DefaultMeasurementInterval
		if opts.Interval != nil {
			interval = *opts.Interval
		}
		return NewThermometer(m, interval)
	case KindProximity:
		p := codec.NewProximityIdentifier(true)
		if opts.Proximity != nil {
			p = *opts.Proximity
		}
		return NewProximity(p, opts.TxPower)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// base carries the attribute table shared by every profile implementation.
type base struct {
	kind    Kind
	service *gatt.Service
}

func newBase(kind Kind, build func(svc *gatt.Service)) base {
	svc := gatt.NewService(kind.ServiceUUID())
	build(svc)
	svc.Freeze()
	return base{kind: kind, service: svc}
}

func (b *base) Kind() Kind { return b.kind }

func (b *base) Service() *gatt.Service { return b.service }

func validate(r codec.Reading) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return codec.CharacteristicOf(r), nil
}

func mismatch(kind Kind, r codec.Reading) error {
	return fmt.Errorf("%w: %T for %s", ErrReadingMismatch, r, kind)
}
