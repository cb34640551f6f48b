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

// Package schedule persists the daily device schedules and runs them.
package schedule

import (
	"encoding/json"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/waterbot-project/relaybot/device"
)

const (
	ActionOn  = "on"
	ActionOff = "off"

	scheduleEnvPrefix = "SCHEDULE_"
)

var timeFormat = regexp.MustCompile(`^\d{2}:\d{2}$`)

// ValidAction reports whether action is one of the two schedulable actions.
func ValidAction(action string) bool {
	return action == ActionOn || action == ActionOff
}

// ValidTime reports whether t is a 24-hour HH:MM time.
func ValidTime(t string) bool {
	if !timeFormat.MatchString(t) {
		return false
	}
	hour, _ := strconv.Atoi(t[:2])
	minute, _ := strconv.Atoi(t[3:])
	return hour <= 23 && minute <= 59
}

// Store is the persisted schedule table, device -> action -> sorted HH:MM
// times, written to a JSON file after every successful mutation. The
// in-memory copy is the source of truth; a failed write leaves the change
// applied but not durable and is reported through the boolean result.
type Store struct {
	log      *logrus.Logger
	registry *device.Registry
	path     string

	mu      sync.Mutex
	entries map[string]map[string][]string
}

// NewStore loads the schedule table. The JSON file wins when it parses
// cleanly; a missing or corrupt file falls back to SCHEDULE_<DEVICE>_<ACTION>
// environment declarations. Ending up empty is valid.
func NewStore(log *logrus.Logger, registry *device.Registry, path string) *Store {
	s := &Store{
		log:      log,
		registry: registry,
		path:     path,
		entries:  map[string]map[string][]string{},
	}
	s.load()
	return s
}

func (s *Store) load() {
	b, err := os.ReadFile(s.path)
	if err == nil {
		var entries map[string]map[string][]string
		if err := json.Unmarshal(b, &entries); err == nil {
			s.adopt(entries)
			return
		}
		s.log.Warnf("Could not parse schedule file %s: %v", s.path, err)
	} else if !os.IsNotExist(err) {
		s.log.Warnf("Could not read schedule file %s: %v", s.path, err)
	}
	s.loadFromEnv()
}

// adopt normalizes a parsed schedule file into the table. The file may have
// been hand-edited or written by another tool, so nothing about it is
// trusted: device and action keys are lowercased, unknown actions and
// malformed times are dropped with a warning, and each time list is deduped
// and re-sorted so Remove's binary search stays valid. Entries for devices
// no longer in the registry are kept; they are stale but still removable.
func (s *Store) adopt(entries map[string]map[string][]string) {
	for deviceName, actions := range entries {
		deviceName = strings.ToLower(deviceName)
		for action, times := range actions {
			action = strings.ToLower(action)
			if !ValidAction(action) {
				s.log.Warnf("Dropping schedules with unknown action %q for device %q", action, deviceName)
				continue
			}
			for _, timeStr := range times {
				if !ValidTime(timeStr) {
					s.log.Warnf("Dropping malformed schedule time %q for %s %s", timeStr, deviceName, action)
					continue
				}
				s.insert(deviceName, action, timeStr)
			}
		}
	}
}

// loadFromEnv seeds the table from SCHEDULE_<DEVICE>_<ACTION>=HH:MM[,HH:MM...]
// declarations. Malformed tokens are dropped with a warning, never fatal.
func (s *Store) loadFromEnv() {
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, scheduleEnvPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, scheduleEnvPrefix)
		i := strings.LastIndex(rest, "_")
		if i < 1 {
			s.log.Warnf("Ignoring malformed schedule declaration %s", key)
			continue
		}
		deviceName := strings.ToLower(rest[:i])
		action := strings.ToLower(rest[i+1:])
		if !ValidAction(action) {
			s.log.Warnf("Ignoring schedule declaration %s: unknown action %q", key, action)
			continue
		}
		if !s.registry.Has(deviceName) {
			s.log.Warnf("Ignoring schedule declaration %s: unknown device %q", key, deviceName)
			continue
		}
		for _, token := range strings.Split(value, ",") {
			token = strings.TrimSpace(token)
			if !ValidTime(token) {
				s.log.Warnf("Dropping malformed schedule time %q from %s", token, key)
				continue
			}
			s.insert(deviceName, action, token)
		}
	}
}

// insert adds a time to the device/action set if absent and keeps the set
// sorted. Caller holds the lock or is still single-threaded in load.
func (s *Store) insert(deviceName, action, timeStr string) bool {
	actions, ok := s.entries[deviceName]
	if !ok {
		actions = map[string][]string{}
		s.entries[deviceName] = actions
	}
	for _, existing := range actions[action] {
		if existing == timeStr {
			return false
		}
	}
	actions[action] = append(actions[action], timeStr)
	sort.Strings(actions[action])
	return true
}

// Add inserts a schedule entry and persists the table. Validation failures
// return false without mutating anything; adding an already present triple
// is a no-op success.
func (s *Store) Add(deviceName, action, timeStr string) bool {
	deviceName = strings.ToLower(deviceName)
	if !s.registry.Has(deviceName) {
		s.log.Warnf("Cannot add schedule for unknown device: %s", deviceName)
		return false
	}
	if !ValidAction(action) || !ValidTime(timeStr) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.insert(deviceName, action, timeStr) {
		return true
	}
	return s.save()
}

// Remove deletes a schedule entry and persists the table. Returns false if
// the exact triple is not present. Action and device nodes left empty are
// pruned so no empty nodes persist.
func (s *Store) Remove(deviceName, action, timeStr string) bool {
	deviceName = strings.ToLower(deviceName)

	s.mu.Lock()
	defer s.mu.Unlock()

	times, ok := s.entries[deviceName][action]
	if !ok {
		return false
	}
	i := sort.SearchStrings(times, timeStr)
	if i >= len(times) || times[i] != timeStr {
		return false
	}

	s.entries[deviceName][action] = append(times[:i], times[i+1:]...)
	if len(s.entries[deviceName][action]) == 0 {
		delete(s.entries[deviceName], action)
	}
	if len(s.entries[deviceName]) == 0 {
		delete(s.entries, deviceName)
	}
	return s.save()
}

// Schedules returns a copy of one device's action map. Unknown or
// schedule-less devices get an empty map, not an error.
func (s *Store) Schedules(deviceName string) map[string][]string {
	deviceName = strings.ToLower(deviceName)

	s.mu.Lock()
	defer s.mu.Unlock()
	return copyActions(s.entries[deviceName])
}

// All returns a copy of the full schedule table.
func (s *Store) All() map[string]map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make(map[string]map[string][]string, len(s.entries))
	for deviceName, actions := range s.entries {
		all[deviceName] = copyActions(actions)
	}
	return all
}

func copyActions(actions map[string][]string) map[string][]string {
	out := make(map[string][]string, len(actions))
	for action, times := range actions {
		out[action] = append([]string(nil), times...)
	}
	return out
}

func (s *Store) save() bool {
	b, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		s.log.Errorf("Failed to encode schedules: %v", err)
		return false
	}
	if err := os.WriteFile(s.path, b, 0644); err != nil {
		s.log.Errorf("Failed to save schedules to %s: %v", s.path, err)
		return false
	}
	return true
}
