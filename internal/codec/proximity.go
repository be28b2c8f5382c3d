package codec

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

// ProximityIdentifierLen is the length of a rolling proximity identifier.
const ProximityIdentifierLen = 16

const (
	proximityMetadataLen = 4
	maxVersion           = 3 // versions are 2-bit fields
)

// Proximity defaults.
const (
	DefaultMajorVersion uint8 = 1
	DefaultMinorVersion uint8 = 0
	DefaultTxPowerMin   int8  = -90
	DefaultTxPowerMax   int8  = -50
)

// TxPowerSource supplies the transmit power placed in proximity metadata. It is
// consulted once per encode.
type TxPowerSource interface {
	TxPower() int8
}

// UniformTxPower draws a transmit power uniformly from [Min, Max] on every call.
type UniformTxPower struct {
	Min int8
	Max int8
}

// DefaultTxPower draws from [-90, -50] dBm.
var DefaultTxPower TxPowerSource = UniformTxPower{Min: DefaultTxPowerMin, Max: DefaultTxPowerMax}

// TxPower implements TxPowerSource.
func (u UniformTxPower) TxPower() int8 {
	lo, hi := int(u.Min), int(u.Max)
	if hi <= lo {
		return u.Min
	}
	return int8(lo + rand.Intn(hi-lo+1))
}

// FixedTxPower always reports the same transmit power.
type FixedTxPower int8

// TxPower implements TxPowerSource.
func (f FixedTxPower) TxPower() int8 { return int8(f) }

// NewRandomIdentifier returns 16 random identifier bytes.
func NewRandomIdentifier() [ProximityIdentifierLen]byte {
	return uuid.New()
}

// ProximityIdentifier is the rolling proximity identifier reading served by the
// exposure notification characteristic.
type ProximityIdentifier struct {
	ID           [ProximityIdentifierLen]byte
	Metadata     bool
	MajorVersion uint8
	MinorVersion uint8
}

// NewProximityIdentifier returns a freshly drawn identifier with default versions.
func NewProximityIdentifier(metadata bool) ProximityIdentifier {
	return ProximityIdentifier{
		ID:           NewRandomIdentifier(),
		Metadata:     metadata,
		MajorVersion: DefaultMajorVersion,
		MinorVersion: DefaultMinorVersion,
	}
}

// Validate implements Reading.
func (p ProximityIdentifier) Validate() error {
	if err := checkRange("major version", float64(p.MajorVersion), 0, maxVersion); err != nil {
		return err
	}
	return checkRange("minor version", float64(p.MinorVersion), 0, maxVersion)
}

// VersionByte packs the 2-bit versions as (major << 6) + (minor << 4).
func (p ProximityIdentifier) VersionByte() byte {
	return byte(p.MajorVersion<<6) + byte(p.MinorVersion<<4)
}

// Identifier renders the identifier bytes in canonical upper-case UUID form.
func (p ProximityIdentifier) Identifier() string {
	return strings.ToUpper(uuid.UUID(p.ID).String())
}

func (p ProximityIdentifier) String() string {
	if !p.Metadata {
		return p.Identifier()
	}
	return fmt.Sprintf("%s v%d.%d", p.Identifier(), p.MajorVersion, p.MinorVersion)
}

// EncodeProximityIdentifier emits the 16 identifier bytes and, when metadata is
// enabled, the version byte, a transmit power drawn from tx and two reserved zero
// bytes.
func EncodeProximityIdentifier(p ProximityIdentifier, tx TxPowerSource) []byte {
	size := ProximityIdentifierLen
	if p.Metadata {
		size += proximityMetadataLen
	}
	buf := make([]byte, 0, size)
	buf = append(buf, p.ID[:]...)
	if p.Metadata {
		buf = append(buf, p.VersionByte(), byte(tx.TxPower()), 0, 0)
	}
	return buf
}

// ProximityReport is a decoded proximity value, including the transmit power that
// was drawn for it.
type ProximityReport struct {
	ProximityIdentifier
	TxPower int8
}

func (r ProximityReport) String() string {
	if !r.Metadata {
		return r.ProximityIdentifier.String()
	}
	return fmt.Sprintf("%s, tx %d dBm", r.ProximityIdentifier.String(), r.TxPower)
}

// ParseProximityIdentifier decodes a 16 or 20 byte proximity value.
func ParseProximityIdentifier(value []byte) (ProximityReport, error) {
	var r ProximityReport
	switch len(value) {
	case ProximityIdentifierLen:
	case ProximityIdentifierLen + proximityMetadataLen:
		meta := value[ProximityIdentifierLen:]
		r.Metadata = true
		r.MajorVersion = meta[0] >> 6
		r.MinorVersion = (meta[0] >> 4) & maxVersion
		r.TxPower = int8(meta[1])
	default:
		return r, fmt.Errorf("proximity identifier must be %d or %d bytes, got %d",
			ProximityIdentifierLen, ProximityIdentifierLen+proximityMetadataLen, len(value))
	}
	copy(r.ID[:], value[:ProximityIdentifierLen])
	return r, nil
}
