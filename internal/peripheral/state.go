package peripheral

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a peripheral session.
type State int

const (
	Idle State = iota
	AddingService
	ServiceAdded
	Advertising
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AddingService:
		return "adding service"
	case ServiceAdded:
		return "service added"
	case Advertising:
		return "advertising"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Published reports whether the service is visible to centrals in this state.
func (s State) Published() bool {
	return s == ServiceAdded || s == Advertising
}

// PrimeMode selects who receives the notification sent on a first-time subscription.
type PrimeMode int

const (
	// PrimeBroadcast pushes the current value to every current subscriber.
	PrimeBroadcast PrimeMode = iota
	// PrimeSubscriber pushes the current value to the new subscriber only.
	PrimeSubscriber
)

func (m PrimeMode) String() string {
	if m == PrimeSubscriber {
		return "subscriber"
	}
	return "broadcast"
}

// ParsePrimeMode accepts "broadcast" (or empty) and "subscriber".
func ParsePrimeMode(s string) (PrimeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "broadcast", "all":
		return PrimeBroadcast, nil
	case "subscriber", "single":
		return PrimeSubscriber, nil
	default:
		return PrimeBroadcast, fmt.Errorf("unknown prime mode %q: want broadcast or subscriber", s)
	}
}
