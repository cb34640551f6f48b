package gpio

import "sync"

// ConfigureCall is one recorded Configure invocation.
type ConfigureCall struct {
	Pin  int
	Mode Mode
}

// WriteCall is one recorded Write invocation.
type WriteCall struct {
	Pin   int
	Level bool
}

// Recorder is a test backend that remembers every call made to it.
type Recorder struct {
	mu             sync.Mutex
	ConfigureCalls []ConfigureCall
	WriteCalls     []WriteCall
	Released       bool

	modes  map[int]Mode
	levels map[int]bool
}

func NewRecorder() *Recorder {
	return &Recorder{
		modes:  map[int]Mode{},
		levels: map[int]bool{},
	}
}

func (r *Recorder) Configure(pin int, mode Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ConfigureCalls = append(r.ConfigureCalls, ConfigureCall{Pin: pin, Mode: mode})
	r.modes[pin] = mode
	if _, ok := r.levels[pin]; !ok {
		r.levels[pin] = false
	}
	return nil
}

func (r *Recorder) Write(pin int, level bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modes[pin]; !ok {
		return &UnconfiguredPinError{Pin: pin}
	}
	r.WriteCalls = append(r.WriteCalls, WriteCall{Pin: pin, Level: level})
	r.levels[pin] = level
	return nil
}

// Level reports the current level of a pin.
func (r *Recorder) Level(pin int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[pin]
}

// Writes returns a copy of the recorded writes.
func (r *Recorder) Writes() []WriteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	writes := make([]WriteCall, len(r.WriteCalls))
	copy(writes, r.WriteCalls)
	return writes
}

func (r *Recorder) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Released = true
	r.modes = map[int]Mode{}
	r.levels = map[int]bool{}
	return nil
}
