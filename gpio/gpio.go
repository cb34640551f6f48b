// Package gpio abstracts the digital output pins that relay boards hang off.
// The hardware backend drives real Raspberry Pi pins through periph.io, the
// emulation backend keeps pin levels in memory for running off-hardware, and
// the recorder backend captures every call for tests.
package gpio

import "fmt"

// Mode declares how a pin is used. Relays only ever need outputs.
type Mode string

const ModeOutput Mode = "out"

// Driver is the capability set shared by all pin backends.
type Driver interface {
	// Configure declares a pin. Safe to call more than once per pin.
	Configure(pin int, mode Mode) error

	// Write drives a configured pin high (true) or low (false).
	Write(pin int, level bool) error

	// Release clears all pin state. Safe to call more than once.
	Release() error
}

// UnconfiguredPinError is returned by the emulation and recorder backends
// when a pin is written before it is configured.
type UnconfiguredPinError struct {
	Pin int
}

func (e *UnconfiguredPinError) Error() string {
	return fmt.Sprintf("pin %d has not been configured", e.Pin)
}
