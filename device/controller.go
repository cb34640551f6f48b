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

package device

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waterbot-project/relaybot/gpio"
)

// Controller owns the on/off state of every registered device. One mutex
// guards the status map, the pending timers and every pin write, so a
// manual command can never race a timer callback into leaving the status
// map inconsistent with the actual pin level.
type Controller struct {
	log      *logrus.Logger
	driver   gpio.Driver
	registry *Registry

	mu     sync.Mutex
	status map[string]bool
	timers map[string]*time.Timer
}

// NewController configures every registered pin as an output and drives it
// low. A configuration or write failure here is fatal, the process should
// not start with half the devices set up.
func NewController(log *logrus.Logger, driver gpio.Driver, registry *Registry) (*Controller, error) {
	c := &Controller{
		log:      log,
		driver:   driver,
		registry: registry,
		status:   map[string]bool{},
		timers:   map[string]*time.Timer{},
	}
	for _, name := range registry.Names() {
		pin, _ := registry.Pin(name)
		if err := driver.Configure(pin, gpio.ModeOutput); err != nil {
			return nil, err
		}
		if err := driver.Write(pin, false); err != nil {
			return nil, err
		}
		c.status[name] = false
		c.timers[name] = nil
	}
	log.Infof("Set up %d devices", registry.Len())
	return c, nil
}

// TurnOn turns a device on. A timeout greater than zero schedules an
// automatic TurnOff after that delay; any previously pending timer for the
// device is cancelled first. Returns false for an unknown device, with no
// pin write.
func (c *Controller) TurnOn(device string, timeout time.Duration) bool {
	return c.set(device, true, timeout)
}

// TurnOff turns a device off. A timeout greater than zero schedules an
// automatic TurnOn after that delay ("off for N, then resume").
func (c *Controller) TurnOff(device string, timeout time.Duration) bool {
	return c.set(device, false, timeout)
}

func (c *Controller) set(device string, on bool, timeout time.Duration) bool {
	device = strings.ToLower(device)
	pin, ok := c.registry.Pin(device)
	if !ok {
		c.log.Warnf("Unknown device: %s", device)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Pending timers are cancel-then-replace, never left to fire alongside
	// a new one.
	if t := c.timers[device]; t != nil {
		t.Stop()
		c.timers[device] = nil
	}

	if err := c.driver.Write(pin, on); err != nil {
		c.log.Errorf("Failed to write pin %d for device '%s': %v", pin, device, err)
		return false
	}
	c.status[device] = on

	if timeout > 0 {
		c.timers[device] = time.AfterFunc(timeout, func() {
			c.set(device, !on, 0)
		})
		if on {
			c.log.Infof("Device '%s' will turn off after %s", device, timeout)
		} else {
			c.log.Infof("Device '%s' will turn on after %s", device, timeout)
		}
	}
	return true
}

// Status returns a snapshot of every device's on/off state.
func (c *Controller) Status() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := make(map[string]bool, len(c.status))
	for device, on := range c.status {
		status[device] = on
	}
	return status
}

// TurnAllOn turns every registered device on. It never aborts midway, the
// result is true only if every device succeeded.
func (c *Controller) TurnAllOn(timeout time.Duration) bool {
	ok := true
	for _, device := range c.registry.Names() {
		if !c.TurnOn(device, timeout) {
			ok = false
		}
	}
	return ok
}

// TurnAllOff turns every registered device off.
func (c *Controller) TurnAllOff(timeout time.Duration) bool {
	ok := true
	for _, device := range c.registry.Names() {
		if !c.TurnOff(device, timeout) {
			ok = false
		}
	}
	return ok
}

// Cleanup cancels every pending timer, forces all statuses off and releases
// the pin driver. Idempotent, so it is safe from a signal handler path that
// may run while a normal shutdown is already in progress.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	for device, t := range c.timers {
		if t != nil {
			t.Stop()
			c.timers[device] = nil
		}
	}
	for device := range c.status {
		c.status[device] = false
	}
	c.mu.Unlock()

	if err := c.driver.Release(); err != nil {
		c.log.Errorf("Failed to release pin driver: %v", err)
	}
	c.log.Info("GPIO resources cleaned up")
}
