package gpio

import "sync"

// Emulation keeps pin levels in memory so the daemon can run on machines
// without GPIO hardware. Unlike the hardware backend it is strict: writing
// to a pin that was never configured is a programmer error.
type Emulation struct {
	mu     sync.Mutex
	modes  map[int]Mode
	levels map[int]bool
}

func NewEmulation() *Emulation {
	return &Emulation{
		modes:  map[int]Mode{},
		levels: map[int]bool{},
	}
}

func (e *Emulation) Configure(pin int, mode Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.modes[pin] = mode
	if _, ok := e.levels[pin]; !ok {
		e.levels[pin] = false
	}
	return nil
}

func (e *Emulation) Write(pin int, level bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.modes[pin]; !ok {
		return &UnconfiguredPinError{Pin: pin}
	}
	e.levels[pin] = level
	return nil
}

// Level reports the current level of a pin. Unconfigured pins read low.
func (e *Emulation) Level(pin int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.levels[pin]
}

func (e *Emulation) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.modes = map[int]Mode{}
	e.levels = map[int]bool{}
	return nil
}
