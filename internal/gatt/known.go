package gatt

// Well-known GATT UUIDs (16-bit short form, normalized without dashes)
const (
	ServiceBattery              = "180f"
	ServiceHeartRate            = "180d"
	ServiceHealthThermometer    = "1809"
	ServiceExposureNotification = "fd6f"

	CharacteristicBatteryLevel           = "2a19"
	CharacteristicHeartRateMeasurement   = "2a37"
	CharacteristicBodySensorLocation     = "2a38"
	CharacteristicTemperatureMeasurement = "2a1c"
	CharacteristicMeasurementInterval    = "2a21"

	// The exposure notification service exposes its rolling identifier
	// under the same 16-bit UUID as the service itself.
	CharacteristicProximityIdentifier = "fd6f"
)

var knownServices = map[string]string{
	ServiceBattery:              "Battery Service",
	ServiceHeartRate:            "Heart Rate",
	ServiceHealthThermometer:    "Health Thermometer",
	ServiceExposureNotification: "Exposure Notification",
}

var knownCharacteristics = map[string]string{
	CharacteristicBatteryLevel:           "Battery Level",
	CharacteristicHeartRateMeasurement:   "Heart Rate Measurement",
	CharacteristicBodySensorLocation:     "Body Sensor Location",
	CharacteristicTemperatureMeasurement: "Temperature Measurement",
	CharacteristicMeasurementInterval:    "Measurement Interval",
	CharacteristicProximityIdentifier:    "Rolling Proximity Identifier",
}

// LookupServiceName returns the human-readable name of a well-known service UUID,
// or an empty string if unknown.
func LookupServiceName(uuid string) string {
	return knownServices[NormalizeUUID(uuid)]
}

// LookupCharacteristicName returns the human-readable name of a well-known
// characteristic UUID, or an empty string if unknown.
func LookupCharacteristicName(uuid string) string {
	return knownCharacteristics[NormalizeUUID(uuid)]
}
