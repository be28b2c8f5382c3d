package codec

import "fmt"

// MaxBatteryLevel is the highest percentage a Battery Level may carry.
const MaxBatteryLevel = 100

// BatteryLevel is the Battery Level (0x2A19) reading: a percentage.
type BatteryLevel uint8

// Validate implements Reading.
func (b BatteryLevel) Validate() error {
	return checkRange("battery level", float64(b), 0, MaxBatteryLevel)
}

func (b BatteryLevel) String() string {
	return fmt.Sprintf("%d%%", uint8(b))
}

// EncodeBatteryLevel emits the single unsigned percentage byte. There is no flags byte.
func EncodeBatteryLevel(level BatteryLevel) []byte {
	return []byte{byte(level)}
}

// ParseBatteryLevel decodes a Battery Level value.
func ParseBatteryLevel(value []byte) (BatteryLevel, error) {
	if len(value) != 1 {
		return 0, fmt.Errorf("battery level value must be 1 byte, got %d", len(value))
	}
	return BatteryLevel(value[0]), nil
}
