package profile_test

import (
	"testing"

	"github.com/srg/blemu/internal/codec"
	"github.com/srg/blemu/internal/gatt"
	"github.com/srg/blemu/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := map[string]profile.Kind{
		"battery":     profile.KindBattery,
		"Heart-Rate":  profile.KindHeartRate,
		"heart_rate":  profile.KindHeartRate,
		"hrm":         profile.KindHeartRate,
		"thermometer": profile.KindThermometer,
		" proximity ": profile.KindProximity,
		"en":          profile.KindProximity,
	}
	for name, want := range tests {
		got, err := profile.ParseKind(name)
		require.NoError(t, err, "%q MUST parse", name)
		assert.Equal(t, want, got, "%q MUST resolve to %s", name, want)
	}

	_, err := profile.ParseKind("glucose")
	assert.ErrorIs(t, err, profile.ErrUnknownKind)
	assert.Equal(t, "Kind(42)", profile.Kind(42).String())
}

func TestNew_AttributeTables(t *testing.T) {
	// GOAL: Verify every profile publishes the expected frozen attribute table
	//
	// TEST SCENARIO: Build each kind with defaults → service UUID and characteristic declarations match

	tests := []struct {
		kind       profile.Kind
		service    string
		readable   []string
		notifiable []string
	}{
		{profile.KindBattery, "180f", []string{"2a19"}, []string{"2a19"}},
		{profile.KindHeartRate, "180d", []string{"2a37", "2a38"}, []string{"2a37"}},
		{profile.KindThermometer, "1809", []string{"2a1c", "2a21"}, []string{"2a1c"}},
		{profile.KindProximity, "fd6f", []string{"fd6f"}, []string{"fd6f"}},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			p, err := profile.New(tt.kind, profile.Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Kind())

			svc := p.Service()
			assert.Equal(t, tt.service, svc.UUID())
			assert.True(t, svc.Frozen(), "service MUST be frozen once built")

			var readable, notifiable []string
			for _, c := range svc.Characteristics() {
				if c.Readable() {
					readable = append(readable, c.UUID())
					value, ok := p.Value(c.UUID())
					assert.True(t, ok, "readable %s MUST have a value producer", c.UUID())
					assert.NotEmpty(t, value)
				}
			}
			for _, c := range svc.Notifiable() {
				notifiable = append(notifiable, c.UUID())
			}
			assert.Equal(t, tt.readable, readable)
			assert.Equal(t, tt.notifiable, notifiable)

			_, ok := p.Value("2a99")
			assert.False(t, ok, "unknown characteristic MUST have no value")
		})
	}
}

func TestHeartRate_ApplyRecomputesValue(t *testing.T) {
	p, err := profile.NewHeartRate(codec.HeartRateMeasurement{BPM: 180}, codec.SensorLocationChest)
	require.NoError(t, err)

	value, _ := p.Value("2a37")
	assert.Equal(t, []byte{0x00, 0xB4}, value)

	uuid, err := p.Apply(codec.HeartRateMeasurement{BPM: 300})
	require.NoError(t, err)
	assert.Equal(t, gatt.CharacteristicHeartRateMeasurement, uuid)

	value, _ = p.Value("2A37")
	assert.Equal(t, []byte{0x01, 0x01, 0x2C}, value, "value MUST be recomputed from the new reading")

	uuid, err = p.Apply(codec.SensorLocationWrist)
	require.NoError(t, err)
	assert.Equal(t, gatt.CharacteristicBodySensorLocation, uuid)
	value, _ = p.Value("2a38")
	assert.Equal(t, []byte{0x02}, value)
}

func TestHeartRate_StoredReadingIsDetached(t *testing.T) {
	rr := []uint16{1024}
	p, err := profile.NewHeartRate(codec.HeartRateMeasurement{BPM: 60, RRIntervals: rr}, codec.SensorLocationOther)
	require.NoError(t, err)

	rr[0] = 1
	value, _ := p.Value("2a37")
	assert.Equal(t, []byte{0x10, 0x3C, 0x04, 0x00}, value, "caller writes MUST NOT leak into stored reading")
}

func TestApply_RejectsInvalidAndForeignReadings(t *testing.T) {
	battery, err := profile.NewBattery(57)
	require.NoError(t, err)

	_, err = battery.Apply(codec.BatteryLevel(101))
	assert.ErrorIs(t, err, codec.ErrOutOfRange)
	value, _ := battery.Value("2a19")
	assert.Equal(t, []byte{57}, value, "rejected reading MUST NOT be stored")

	_, err = battery.Apply(codec.HeartRateMeasurement{BPM: 60})
	assert.ErrorIs(t, err, profile.ErrReadingMismatch)

	_, err = profile.NewBattery(200)
	assert.ErrorIs(t, err, codec.ErrOutOfRange)

	_, err = profile.NewThermometer(codec.TemperatureMeasurement{Celsius: 36.4}, 0)
	assert.ErrorIs(t, err, codec.ErrOutOfRange, "zero interval MUST be rejected")
}

func TestThermometer_Values(t *testing.T) {
	p, err := profile.New(profile.KindThermometer, profile.Options{})
	require.NoError(t, err)

	value, _ := p.Value("2a1c")
	assert.Equal(t, []byte{0x00, 0xFF, 0x00, 0x01, 0x6C}, value)
	value, _ = p.Value("2a21")
	assert.Equal(t, []byte{0x00, 0x01}, value)

	reading, ok := p.Reading("2a1c")
	require.True(t, ok)
	assert.Equal(t, "36.4 °C", reading.String())
}

func TestProximity_RotateAndTxPower(t *testing.T) {
	initial := codec.NewProximityIdentifier(true)
	p, err := profile.NewProximity(initial, codec.FixedTxPower(-77))
	require.NoError(t, err)

	value, _ := p.Value("fd6f")
	require.Len(t, value, 20)
	assert.Equal(t, initial.ID[:], value[:16])
	assert.Equal(t, byte(0x40), value[16])
	assert.Equal(t, int8(-77), int8(value[17]))

	rotated := p.Rotate()
	assert.NotEqual(t, initial.ID, rotated.ID, "rotation MUST draw a new identifier")
	assert.True(t, rotated.Metadata, "rotation MUST keep metadata settings")

	value, _ = p.Value("fd6f")
	assert.Equal(t, rotated.ID[:], value[:16])

	var _ profile.Rotator = p
}
