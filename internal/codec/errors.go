package codec

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is matched by every RangeError.
var ErrOutOfRange = errors.New("value out of range")

// RangeError reports a reading field outside its declared numeric range.
type RangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %v out of range [%v, %v]", e.Field, e.Value, e.Min, e.Max)
}

// Is allows errors.Is(err, ErrOutOfRange).
func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

func checkRange(field string, value, lo, hi float64) error {
	if value < lo || value > hi {
		return &RangeError{Field: field, Value: value, Min: lo, Max: hi}
	}
	return nil
}
