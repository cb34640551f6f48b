/*
relaybot - chat-driven relay control for Raspberry Pi GPIO devices
Copyright (C) 2024, The Waterbot Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package gpio

import (
	"fmt"

	"github.com/sirupsen/logrus"
	periphgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Hardware drives the Raspberry Pi pins through periph.io. Construction
// fails if the periph host drivers can't be initialized, so a daemon on
// real hardware never starts half-configured.
type Hardware struct {
	log  *logrus.Logger
	pins map[int]periphgpio.PinIO
}

func NewHardware(log *logrus.Logger) (*Hardware, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %v", err)
	}
	return &Hardware{
		log:  log,
		pins: map[int]periphgpio.PinIO{},
	}, nil
}

func (h *Hardware) Configure(pin int, mode Mode) error {
	if _, ok := h.pins[pin]; ok {
		return nil
	}
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if p == nil {
		// Pin registration can be flaky just after boot. Re-run host
		// detection once before giving up.
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("failed to re-initialize periph: %v", err)
		}
		p = gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
		if p == nil {
			return fmt.Errorf("failed to find pin GPIO%d", pin)
		}
	}
	if err := p.Out(periphgpio.Low); err != nil {
		return fmt.Errorf("failed to set pin GPIO%d low: %v", pin, err)
	}
	h.pins[pin] = p
	return nil
}

func (h *Hardware) Write(pin int, level bool) error {
	p, ok := h.pins[pin]
	if !ok {
		// Configure on first write rather than failing. The emulation
		// and recorder backends don't copy this, it is a hardware-only
		// resilience fallback.
		h.log.Warnf("Pin %d written before being configured, configuring as output", pin)
		if err := h.Configure(pin, ModeOutput); err != nil {
			return err
		}
		p = h.pins[pin]
	}
	l := periphgpio.Low
	if level {
		l = periphgpio.High
	}
	return p.Out(l)
}

func (h *Hardware) Release() error {
	for pin, p := range h.pins {
		if err := p.Out(periphgpio.Low); err != nil {
			h.log.Errorf("Failed to set pin GPIO%d low during release: %v", pin, err)
		}
	}
	h.pins = map[int]periphgpio.PinIO{}
	return nil
}
