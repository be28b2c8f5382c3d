package profile

import (
	"github.com/srg/blemu/internal/codec"
	"github.com/srg/blemu/internal/gatt"
)

// Initial readings used when no option overrides them.
const (
	DefaultBatteryLevel        codec.BatteryLevel        = 50
	DefaultHeartRate           uint16                    = 50
	DefaultCelsius                                       = 36.4
	DefaultMeasurementInterval codec.MeasurementInterval = 1
)

const readNotify = gatt.PropRead | gatt.PropNotify

// Battery serves the Battery Service.
type Battery struct {
	base
	level codec.BatteryLevel
}

// NewBattery returns a Battery profile reporting level.
func NewBattery(level codec.BatteryLevel) (*Battery, error) {
	if err := level.Validate(); err != nil {
		return nil, err
	}
	return &Battery{
		base: newBase(KindBattery, func(svc *gatt.Service) {
			svc.AddCharacteristic(gatt.CharacteristicBatteryLevel, readNotify, gatt.PermReadable)
		}),
		level: level,
	}, nil
}

func (p *Battery) Reading(characteristic string) (codec.Reading, bool) {
	if gatt.NormalizeUUID(characteristic) == gatt.CharacteristicBatteryLevel {
		return p.level, true
	}
	return nil, false
}

func (p *Battery) Value(characteristic string) ([]byte, bool) {
	if gatt.NormalizeUUID(characteristic) == gatt.CharacteristicBatteryLevel {
		return codec.EncodeBatteryLevel(p.level), true
	}
	return nil, false
}

func (p *Battery) Apply(r codec.Reading) (string, error) {
	level, ok := r.(codec.BatteryLevel)
	if !ok {
		return "", mismatch(p.kind, r)
	}
	uuid, err := validate(level)
	if err != nil {
		return "", err
	}
	p.level = level
	return uuid, nil
}

// HeartRate serves the Heart Rate Service.
type HeartRate struct {
	base
	measurement codec.HeartRateMeasurement
	location    codec.BodySensorLocation
}

// NewHeartRate returns a HeartRate profile.
func NewHeartRate(m codec.HeartRateMeasurement, location codec.BodySensorLocation) (*HeartRate, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := location.Validate(); err != nil {
		return nil, err
	}
	return &HeartRate{
		base: newBase(KindHeartRate, func(svc *gatt.Service) {
			svc.AddCharacteristic(gatt.CharacteristicHeartRateMeasurement, readNotify, gatt.PermReadable)
			svc.AddCharacteristic(gatt.CharacteristicBodySensorLocation, gatt.PropRead, gatt.PermReadable)
		}),
		measurement: cloneHeartRate(m),
		location:    location,
	}, nil
}

func (p *HeartRate) Reading(characteristic string) (codec.Reading, bool) {
	switch gatt.NormalizeUUID(characteristic) {
	case gatt.CharacteristicHeartRateMeasurement:
		return cloneHeartRate(p.measurement), true
	case gatt.CharacteristicBodySensorLocation:
		return p.location, true
	}
	return nil, false
}

func (p *HeartRate) Value(characteristic string) ([]byte, bool) {
	switch gatt.NormalizeUUID(characteristic) {
	case gatt.CharacteristicHeartRateMeasurement:
		return codec.EncodeHeartRateMeasurement(p.measurement), true
	case gatt.CharacteristicBodySensorLocation:
		return codec.EncodeBodySensorLocation(p.location), true
	}
	return nil, false
}

func (p *HeartRate) Apply(r codec.Reading) (string, error) {
	switch v := r.(type) {
	case codec.HeartRateMeasurement:
		uuid, err := validate(v)
		if err != nil {
			return "", err
		}
		p.measurement = cloneHeartRate(v)
		return uuid, nil
	case codec.BodySensorLocation:
		uuid, err := validate(v)
		if err != nil {
			return "", err
		}
		p.location = v
		return uuid, nil
	default:
		return "", mismatch(p.kind, r)
	}
}

// cloneHeartRate detaches the optional fields so a caller can't mutate stored state.
func cloneHeartRate(m codec.HeartRateMeasurement) codec.HeartRateMeasurement {
	if m.EnergyExpended != nil {
		energy := *m.EnergyExpended
		m.EnergyExpended = &energy
	}
	if m.RRIntervals != nil {
		m.RRIntervals = append([]uint16(nil), m.RRIntervals...)
	}
	return m
}

// Thermometer serves the Health Thermometer Service.
type Thermometer struct {
	base
	measurement codec.TemperatureMeasurement
	interval    codec.MeasurementInterval
}

// NewThermometer returns a Thermometer profile.
func NewThermometer(m codec.TemperatureMeasurement, interval codec.MeasurementInterval) (*Thermometer, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := interval.Validate(); err != nil {
		return nil, err
	}
	return &Thermometer{
		base: newBase(KindThermometer, func(svc *gatt.Service) {
			svc.AddCharacteristic(gatt.CharacteristicTemperatureMeasurement, readNotify, gatt.PermReadable)
			svc.AddCharacteristic(gatt.CharacteristicMeasurementInterval, gatt.PropRead, gatt.PermReadable)
		}),
		measurement: cloneTemperature(m),
		interval:    interval,
	}, nil
}

func (p *Thermometer) Reading(characteristic string) (codec.Reading, bool) {
	switch gatt.NormalizeUUID(characteristic) {
	case gatt.CharacteristicTemperatureMeasurement:
		return cloneTemperature(p.measurement), true
	case gatt.CharacteristicMeasurementInterval:
		return p.interval, true
	}
	return nil, false
}

func (p *Thermometer) Value(characteristic string) ([]byte, bool) {
	switch gatt.NormalizeUUID(characteristic) {
	case gatt.CharacteristicTemperatureMeasurement:
		return codec.EncodeTemperatureMeasurement(p.measurement), true
	case gatt.CharacteristicMeasurementInterval:
		return codec.EncodeMeasurementInterval(p.interval), true
	}
	return nil, false
}

func (p *Thermometer) Apply(r codec.Reading) (string, error) {
	switch v := r.(type) {
	case codec.TemperatureMeasurement:
		uuid, err := validate(v)
		if err != nil {
			return "", err
		}
		p.measurement = cloneTemperature(v)
		return uuid, nil
	case codec.MeasurementInterval:
		uuid, err := validate(v)
		if err != nil {
			return "", err
		}
		p.interval = v
		return uuid, nil
	default:
		return "", mismatch(p.kind, r)
	}
}

func cloneTemperature(m codec.TemperatureMeasurement) codec.TemperatureMeasurement {
	if m.Type != nil {
		t := *m.Type
		m.Type = &t
	}
	return m
}

// Proximity serves the exposure notification service with a rolling identifier.
type Proximity struct {
	base
	identifier codec.ProximityIdentifier
	tx         codec.TxPowerSource
}

// NewProximity returns a Proximity profile. A nil tx draws transmit power from the
// default range.
func NewProximity(p codec.ProximityIdentifier, tx codec.TxPowerSource) (*Proximity, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if tx == nil {
		tx = codec.DefaultTxPower
	}
	return &Proximity{
		base: newBase(KindProximity, func(svc *gatt.Service) {
			svc.AddCharacteristic(gatt.CharacteristicProximityIdentifier, readNotify, gatt.PermReadable)
		}),
		identifier: p,
		tx:         tx,
	}, nil
}

func (p *Proximity) Reading(characteristic string) (codec.Reading, bool) {
	if gatt.NormalizeUUID(characteristic) == gatt.CharacteristicProximityIdentifier {
		return p.identifier, true
	}
	return nil, false
}

// Value draws a fresh transmit power on every call when metadata is enabled.
func (p *Proximity) Value(characteristic string) ([]byte, bool) {
	if gatt.NormalizeUUID(characteristic) == gatt.CharacteristicProximityIdentifier {
		return codec.EncodeProximityIdentifier(p.identifier, p.tx), true
	}
	return nil, false
}

func (p *Proximity) Apply(r codec.Reading) (string, error) {
	id, ok := r.(codec.ProximityIdentifier)
	if !ok {
		return "", mismatch(p.kind, r)
	}
	uuid, err := validate(id)
	if err != nil {
		return "", err
	}
	p.identifier = id
	return uuid, nil
}

// Rotate replaces the identifier bytes, keeping metadata settings.
func (p *Proximity) Rotate() codec.ProximityIdentifier {
	p.identifier.ID = codec.NewRandomIdentifier()
	return p.identifier
}
