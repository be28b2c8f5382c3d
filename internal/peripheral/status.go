package peripheral

import (
	"encoding/hex"

	"github.com/srg/blemu/internal/profile"
)

// CharacteristicStatus is the display view of one characteristic.
type CharacteristicStatus struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name,omitempty"`
	Properties  string `json:"properties"`
	Hex         string `json:"hex"`
	Value       string `json:"value"`
	Subscribers int    `json:"subscribers"`
}

// Snapshot is what the server exposes for display.
type Snapshot struct {
	State           State                  `json:"-"`
	StateName       string                 `json:"state"`
	Profile         profile.Kind           `json:"-"`
	ProfileName     string                 `json:"profile"`
	Service         string                 `json:"service"`
	LocalName       string                 `json:"local_name"`
	Ready           bool                   `json:"ready"`
	Subscribers     int                    `json:"subscribers"`
	Characteristics []CharacteristicStatus `json:"characteristics"`
	LastError       error                  `json:"-"`
}

// Status returns a snapshot of the session.
func (s *Server) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Server) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:       s.state,
		StateName:   s.state.String(),
		Profile:     s.profile.Kind(),
		ProfileName: s.profile.Kind().String(),
		Service:     s.service.UUID(),
		LocalName:   s.localName,
		Ready:       s.ready,
		Subscribers: s.registry.Count(),
		LastError:   s.lastErr,
	}

	for _, c := range s.service.Characteristics() {
		cs := CharacteristicStatus{
			UUID:        c.UUID(),
			Name:        c.KnownName(),
			Properties:  c.Properties().String(),
			Subscribers: len(s.registry.SubscribersOf(c.UUID())),
		}
		if value, ok := s.profile.Value(c.UUID()); ok {
			cs.Hex = hex.EncodeToString(value)
		}
		if reading, ok := s.profile.Reading(c.UUID()); ok {
			cs.Value = reading.String()
		}
		snap.Characteristics = append(snap.Characteristics, cs)
	}
	return snap
}
