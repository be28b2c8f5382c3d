package gatt

import (
	"fmt"
	"strings"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID 0000xxxx-0000-1000-8000-00805f9b34fb
// with dashes removed.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format (lowercase, no dashes).
// Handles both standard UUID format (with dashes) and already normalized format (without dashes).
// Also strips 0x prefix and braces if present (e.g., "0x2902" -> "2902").
// For full 128-bit UUIDs in Bluetooth SIG base format (0000xxxx-0000-1000-8000-00805f9b34fb),
// extracts the 16-bit short form (xxxx).
// Returns an empty string when the input is not a 16, 32 or 128-bit UUID.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
	s = strings.ReplaceAll(s, "-", "")

	if !isHex(s) {
		return ""
	}

	switch len(s) {
	case 4:
		return s
	case 8:
		if strings.HasPrefix(s, "0000") {
			return s[4:]
		}
		return s
	case 32:
		if strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
			return s[4:8]
		}
		return s
	default:
		return ""
	}
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
// Invalid entries are dropped.
func NormalizeUUIDs(uuids []string) []string {
	result := make([]string, 0, len(uuids))
	for _, u := range uuids {
		if n := NormalizeUUID(u); n != "" {
			result = append(result, n)
		}
	}
	return result
}

// MustNormalizeUUID is like NormalizeUUID but panics on malformed input.
// Intended for package-level tables.
func MustNormalizeUUID(uuid string) string {
	n := NormalizeUUID(uuid)
	if n == "" {
		panic(fmt.Sprintf("gatt: invalid UUID %q", uuid))
	}
	return n
}

// ExpandUUID returns the dashed 128-bit form of a UUID, inflating 16 and 32-bit
// short forms onto the Bluetooth SIG base.
func ExpandUUID(uuid string) string {
	n := NormalizeUUID(uuid)
	switch len(n) {
	case 4:
		n = "0000" + n + sigBaseSuffix
	case 8:
		n = n + sigBaseSuffix
	case 32:
	default:
		return ""
	}
	return n[0:8] + "-" + n[8:12] + "-" + n[12:16] + "-" + n[16:20] + "-" + n[20:32]
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
