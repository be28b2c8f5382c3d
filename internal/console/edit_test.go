package console

import (
	"testing"

	"github.com/srg/blemu/internal/codec"
	"github.com/srg/blemu/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupOf(t *testing.T, kind profile.Kind) Lookup {
	t.Helper()
	p, err := profile.New(kind, profile.Options{TxPower: codec.FixedTxPower(-60)})
	require.NoError(t, err)
	return p.Reading
}

func TestEdit(t *testing.T) {
	ear := codec.TemperatureTypeEar
	energy := uint16(12)

	tests := []struct {
		name string
		kind profile.Kind
		args []string
		want codec.Reading
	}{
		{name: "battery bare value", kind: profile.KindBattery, args: []string{"75"}, want: codec.BatteryLevel(75)},
		{name: "battery keyed", kind: profile.KindBattery, args: []string{"level", "0"}, want: codec.BatteryLevel(0)},
		{
			name: "heart rate fields",
			kind: profile.KindHeartRate,
			args: []string{"bpm", "300", "contact", "detected", "energy", "12", "rr", "512,1024"},
			want: codec.HeartRateMeasurement{
				BPM:            300,
				SensorContact:  codec.SensorContactDetected,
				EnergyExpended: &energy,
				RRIntervals:    []uint16{512, 1024},
			},
		},
		{name: "sensor location", kind: profile.KindHeartRate, args: []string{"location", "1"}, want: codec.SensorLocationChest},
		{
			name: "temperature in fahrenheit",
			kind: profile.KindThermometer,
			args: []string{"unit", "f", "temp", "212", "type", "ear"},
			want: codec.TemperatureMeasurement{Celsius: 100, Fahrenheit: true, Type: &ear},
		},
		{name: "temperature bare", kind: profile.KindThermometer, args: []string{"38.5"}, want: codec.TemperatureMeasurement{Celsius: 38.5}},
		{name: "measurement interval", kind: profile.KindThermometer, args: []string{"interval", "30s"}, want: codec.MeasurementInterval(30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Edit(tt.kind, lookupOf(t, tt.kind), tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEdit_Proximity(t *testing.T) {
	got, err := Edit(profile.KindProximity, lookupOf(t, profile.KindProximity), []string{"metadata", "on", "major", "2", "minor", "1"})
	require.NoError(t, err)

	p, ok := got.(codec.ProximityIdentifier)
	require.True(t, ok)
	assert.True(t, p.Metadata)
	assert.Equal(t, byte(0x90), p.VersionByte(), "version bits MUST follow the edited major/minor")
}

func TestEdit_Errors(t *testing.T) {
	tests := []struct {
		name  string
		kind  profile.Kind
		args  []string
		usage bool
		rng   bool
	}{
		{name: "empty", kind: profile.KindBattery, usage: true},
		{name: "odd pairs", kind: profile.KindHeartRate, args: []string{"bpm", "80", "rr"}, usage: true},
		{name: "unknown key", kind: profile.KindThermometer, args: []string{"bpm", "80"}, usage: true},
		{name: "interval combined", kind: profile.KindThermometer, args: []string{"temp", "37", "interval", "5"}, usage: true},
		{name: "battery out of range", kind: profile.KindBattery, args: []string{"101"}, rng: true},
		{name: "below absolute zero", kind: profile.KindThermometer, args: []string{"-300"}, rng: true},
		{name: "zero interval", kind: profile.KindThermometer, args: []string{"interval", "0"}, rng: true},
		{name: "version too high", kind: profile.KindProximity, args: []string{"major", "4"}, rng: true},
		{name: "bad contact", kind: profile.KindHeartRate, args: []string{"contact", "maybe"}},
		{name: "reserved temperature type", kind: profile.KindThermometer, args: []string{"type", "12"}},
		{name: "bad switch", kind: profile.KindProximity, args: []string{"metadata", "sometimes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Edit(tt.kind, lookupOf(t, tt.kind), tt.args)
			require.Error(t, err)
			if tt.usage {
				assert.ErrorIs(t, err, ErrUsage)
			}
			if tt.rng {
				assert.ErrorIs(t, err, codec.ErrOutOfRange)
			}
		})
	}
}

func TestEdit_ClearsOptionalFields(t *testing.T) {
	lookup := lookupOf(t, profile.KindHeartRate)
	withEnergy, err := Edit(profile.KindHeartRate, lookup, []string{"energy", "5", "rr", "100"})
	require.NoError(t, err)

	cleared, err := Edit(profile.KindHeartRate, func(string) (codec.Reading, bool) { return withEnergy, true }, []string{"energy", "off", "rr", "none"})
	require.NoError(t, err)

	m := cleared.(codec.HeartRateMeasurement)
	assert.Nil(t, m.EnergyExpended)
	assert.Empty(t, m.RRIntervals)
}
