// Package registry tracks which remote centrals are subscribed to which notifiable
// characteristics.
//
// A Registry is owned by a single peripheral session and is not safe for concurrent
// use; the session serializes every call.
package registry

import (
	"errors"
	"fmt"

	"github.com/srg/blemu/internal/gatt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrUnknownCharacteristic is returned when subscribing to a characteristic that was
// never registered as notifiable.
var ErrUnknownCharacteristic = errors.New("characteristic is not registered for notifications")

// Subscriber is an opaque remote-client handle compared by value.
type Subscriber string

type subscriberSet = orderedmap.OrderedMap[Subscriber, struct{}]

// Registry is the membership set keyed by (characteristic, subscriber).
type Registry struct {
	subs *orderedmap.OrderedMap[string, *subscriberSet]
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{subs: orderedmap.New[string, *subscriberSet]()}
}

// Register declares a notifiable characteristic. Registering twice keeps existing
// subscribers.
func (r *Registry) Register(characteristic string) {
	key := gatt.NormalizeUUID(characteristic)
	if _, ok := r.subs.Get(key); ok {
		return
	}
	r.subs.Set(key, orderedmap.New[Subscriber, struct{}]())
}

// Registered reports whether the characteristic key is known.
func (r *Registry) Registered(characteristic string) bool {
	_, ok := r.subs.Get(gatt.NormalizeUUID(characteristic))
	return ok
}

// Characteristics returns the registered keys in registration order.
func (r *Registry) Characteristics() []string {
	keys := make([]string, 0, r.subs.Len())
	for pair := r.subs.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Subscribe adds subscriber to characteristic. first is true only when the pair was
// not present before.
func (r *Registry) Subscribe(characteristic string, subscriber Subscriber) (first bool, err error) {
	set, ok := r.subs.Get(gatt.NormalizeUUID(characteristic))
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownCharacteristic, characteristic)
	}
	if _, present := set.Get(subscriber); present {
		return false, nil
	}
	set.Set(subscriber, struct{}{})
	return true, nil
}

// Unsubscribe removes subscriber from characteristic and reports whether it was
// subscribed. Unknown keys and absent subscribers are a no-op.
func (r *Registry) Unsubscribe(characteristic string, subscriber Subscriber) bool {
	set, ok := r.subs.Get(gatt.NormalizeUUID(characteristic))
	if !ok {
		return false
	}
	_, present := set.Delete(subscriber)
	return present
}

// Clear drops every subscriber of characteristic; the key stays registered.
func (r *Registry) Clear(characteristic string) {
	key := gatt.NormalizeUUID(characteristic)
	if _, ok := r.subs.Get(key); ok {
		r.subs.Set(key, orderedmap.New[Subscriber, struct{}]())
	}
}

// ClearAll drops every subscriber of every characteristic.
func (r *Registry) ClearAll() {
	for pair := r.subs.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value = orderedmap.New[Subscriber, struct{}]()
	}
}

// Reset forgets every registered characteristic.
func (r *Registry) Reset() {
	r.subs = orderedmap.New[string, *subscriberSet]()
}

// SubscribersOf returns a snapshot of the current subscribers of characteristic.
// The returned slice is never shared with the registry.
func (r *Registry) SubscribersOf(characteristic string) []Subscriber {
	set, ok := r.subs.Get(gatt.NormalizeUUID(characteristic))
	if !ok {
		return nil
	}
	out := make([]Subscriber, 0, set.Len())
	for pair := set.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Count returns the number of distinct subscribers across all characteristics.
func (r *Registry) Count() int {
	seen := make(map[Subscriber]struct{})
	for pair := r.subs.Oldest(); pair != nil; pair = pair.Next() {
		for s := pair.Value.Oldest(); s != nil; s = s.Next() {
			seen[s.Key] = struct{}{}
		}
	}
	return len(seen)
}
