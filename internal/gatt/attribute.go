// Package gatt models the attribute table a peripheral publishes: primary services,
// their characteristics and the properties and permissions each one declares.
//
// UUIDs are carried as normalized strings (see NormalizeUUID). A Service is built
// once per session and frozen when it is handed to the platform adapter; changing a
// profile means removing the old service and adding a new one.
package gatt

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Do not re-order the bit flags below;
// they are organized to match the BLE spec.

// Property is a characteristic property bit set.
type Property uint8

// Characteristic property flags.
const (
	PropRead   Property = 1 << 1 // the characteristic may be read
	PropNotify Property = 1 << 4 // the characteristic supports notifications
)

// Has reports whether all bits of q are set in p.
func (p Property) Has(q Property) bool {
	return p&q == q
}

func (p Property) String() string {
	var names []string
	if p.Has(PropRead) {
		names = append(names, "read")
	}
	if p.Has(PropNotify) {
		names = append(names, "notify")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Permission is an attribute permission bit set.
type Permission uint8

// Attribute permissions. The emulator never requires encryption or authentication.
const (
	PermReadable Permission = 1 << 0
)

// Has reports whether all bits of q are set in p.
func (p Permission) Has(q Permission) bool {
	return p&q == q
}

func (p Permission) String() string {
	if p.Has(PermReadable) {
		return "readable"
	}
	return "none"
}

// Characteristic is a characteristic declaration inside a Service.
type Characteristic struct {
	uuid        string
	properties  Property
	permissions Permission
	service     *Service
}

// UUID returns the normalized characteristic UUID.
func (c *Characteristic) UUID() string { return c.uuid }

// Properties returns the declared property set.
func (c *Characteristic) Properties() Property { return c.properties }

// Permissions returns the declared permission set.
func (c *Characteristic) Permissions() Permission { return c.permissions }

// Service returns the owning service.
func (c *Characteristic) Service() *Service { return c.service }

// Readable reports whether the characteristic accepts read requests.
func (c *Characteristic) Readable() bool {
	return c.properties.Has(PropRead) && c.permissions.Has(PermReadable)
}

// Notifiable reports whether centrals may subscribe to the characteristic.
func (c *Characteristic) Notifiable() bool {
	return c.properties.Has(PropNotify)
}

// KnownName returns the well-known name of the characteristic, if any.
func (c *Characteristic) KnownName() string {
	return LookupCharacteristicName(c.uuid)
}

// Service is a GATT primary service with an ordered sequence of characteristics.
type Service struct {
	uuid   string
	chars  *orderedmap.OrderedMap[string, *Characteristic]
	frozen bool
}

// NewService creates an empty primary service. It panics if uuid is malformed.
func NewService(uuid string) *Service {
	return &Service{
		uuid:  MustNormalizeUUID(uuid),
		chars: orderedmap.New[string, *Characteristic](),
	}
}

// AddCharacteristic declares a characteristic on the service.
// AddCharacteristic panics if the service is frozen, if uuid is malformed or if
// the service already contains a characteristic with the same UUID.
func (s *Service) AddCharacteristic(uuid string, props Property, perms Permission) *Characteristic {
	if s.frozen {
		panic("gatt: service " + s.uuid + " is frozen")
	}
	n := MustNormalizeUUID(uuid)
	if _, exists := s.chars.Get(n); exists {
		panic("gatt: service already contains a characteristic with uuid " + n)
	}

	c := &Characteristic{
		uuid:        n,
		properties:  props,
		permissions: perms,
		service:     s,
	}
	s.chars.Set(n, c)
	return c
}

// UUID returns the normalized service UUID.
func (s *Service) UUID() string { return s.uuid }

// KnownName returns the well-known name of the service, if any.
func (s *Service) KnownName() string {
	return LookupServiceName(s.uuid)
}

// Characteristic looks up a characteristic by UUID in any accepted notation.
func (s *Service) Characteristic(uuid string) (*Characteristic, bool) {
	return s.chars.Get(NormalizeUUID(uuid))
}

// Characteristics returns the characteristics in declaration order.
func (s *Service) Characteristics() []*Characteristic {
	result := make([]*Characteristic, 0, s.chars.Len())
	for pair := s.chars.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// Notifiable returns the notifiable characteristics in declaration order.
func (s *Service) Notifiable() []*Characteristic {
	var result []*Characteristic
	for pair := s.chars.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Notifiable() {
			result = append(result, pair.Value)
		}
	}
	return result
}

// Freeze marks the service immutable. It is called when the service is handed
// to the platform adapter.
func (s *Service) Freeze() { s.frozen = true }

// Frozen reports whether Freeze was called.
func (s *Service) Frozen() bool { return s.frozen }

func (s *Service) String() string {
	if name := s.KnownName(); name != "" {
		return fmt.Sprintf("%s (%s)", name, s.uuid)
	}
	return s.uuid
}
