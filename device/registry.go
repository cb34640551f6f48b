// Package device owns the device-to-pin registry and the controller that
// arbitrates every on/off request against the shared pin driver.
package device

import (
	"sort"
	"strings"
)

// Registry is the immutable device name to pin number mapping, built once
// at startup. Changing it requires a restart.
type Registry struct {
	pins map[string]int
}

func NewRegistry(pins map[string]int) *Registry {
	m := make(map[string]int, len(pins))
	for name, pin := range pins {
		m[strings.ToLower(name)] = pin
	}
	return &Registry{pins: m}
}

// Pin returns the pin number for a device and whether the device exists.
func (r *Registry) Pin(name string) (int, bool) {
	pin, ok := r.pins[strings.ToLower(name)]
	return pin, ok
}

// Has reports whether a device is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.pins[strings.ToLower(name)]
	return ok
}

// Names returns the registered device names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.pins))
	for name := range r.pins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	return len(r.pins)
}
