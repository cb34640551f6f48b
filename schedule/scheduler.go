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

package schedule

import (
	"container/heap"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// stopTimeout bounds how long Stop waits for the worker to exit.
const stopTimeout = 5 * time.Second

// DeviceSwitcher is what the scheduler needs from the device controller.
type DeviceSwitcher interface {
	TurnOn(device string, timeout time.Duration) bool
	TurnOff(device string, timeout time.Duration) bool
}

// Notifier receives fire-and-forget events after a scheduled action ran.
// Delivery is best effort; errors are logged and never affect scheduling.
type Notifier interface {
	Notify(device, action string, success bool) error
}

// NextRun describes one live job's next fire time, for display.
type NextRun struct {
	Device  string    `json:"device"`
	Action  string    `json:"action"`
	Time    string    `json:"time"`
	NextRun time.Time `json:"next_run"`
}

// job is the live instantiation of one schedule entry. Jobs are owned
// exclusively by the scheduler and never persisted.
type job struct {
	device  string
	action  string
	timeStr string
	next    time.Time
	index   int
}

// jobHeap orders jobs by next fire time.
type jobHeap []*job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].next.Before(h[j].next) }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *jobHeap) Push(x interface{}) { j := x.(*job); j.index = len(*h); *h = append(*h, j) }
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}

// Scheduler turns the schedule store into live daily jobs and fires them
// from a single background worker. The worker sleeps until the earliest
// deadline instead of polling on a fixed tick, so dynamic add/remove wakes
// it to recompute.
type Scheduler struct {
	log     *logrus.Logger
	store   *Store
	devices DeviceSwitcher
	sink    Notifier // may be nil
	enabled bool

	// now is replaceable in tests.
	now func() time.Time

	mu      sync.Mutex
	jobs    jobHeap
	running bool
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// NewScheduler builds a scheduler over the given store and controller. A
// nil sink is valid, the core behaves identically without one.
func NewScheduler(log *logrus.Logger, store *Store, devices DeviceSwitcher, sink Notifier, enabled bool) *Scheduler {
	return &Scheduler{
		log:     log,
		store:   store,
		devices: devices,
		sink:    sink,
		enabled: enabled,
		now:     time.Now,
		wake:    make(chan struct{}, 1),
	}
}

// Setup rebuilds the live job set from the store. With scheduling disabled
// the job set stays empty, which is valid and expected.
func (s *Scheduler) Setup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setupLocked()
}

func (s *Scheduler) setupLocked() {
	s.jobs = nil
	if !s.enabled {
		s.log.Info("Scheduling is disabled")
		return
	}
	for deviceName, actions := range s.store.All() {
		for action, times := range actions {
			for _, timeStr := range times {
				s.addJobLocked(deviceName, action, timeStr)
			}
		}
	}
	s.log.Infof("Set up %d scheduled tasks", len(s.jobs))
}

func (s *Scheduler) addJobLocked(deviceName, action, timeStr string) {
	for _, j := range s.jobs {
		if j.device == deviceName && j.action == action && j.timeStr == timeStr {
			return
		}
	}
	now := s.now()
	next, ok := nextOccurrence(now, timeStr)
	if !ok {
		s.log.Errorf("Invalid time format: %s", timeStr)
		return
	}
	if next.Sub(now) > 23*time.Hour {
		s.log.Infof("Schedule %s %s at %s has already passed today, will start from tomorrow",
			deviceName, action, timeStr)
	}
	heap.Push(&s.jobs, &job{
		device:  deviceName,
		action:  action,
		timeStr: timeStr,
		next:    next,
	})
	s.log.Debugf("Scheduled %s for device '%s' at %s", action, deviceName, timeStr)
}

// nextOccurrence returns the next wall-clock occurrence of an HH:MM time
// strictly after now.
func nextOccurrence(now time.Time, timeStr string) (time.Time, bool) {
	if !ValidTime(timeStr) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("15:04", timeStr, now.Location())
	if err != nil {
		return time.Time{}, false
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next, true
}

// Add persists a new schedule entry and, only if persistence succeeded,
// registers the matching live job. The live job set is always a subset of
// what is persisted, never ahead of it.
func (s *Scheduler) Add(deviceName, action, timeStr string) bool {
	deviceName = strings.ToLower(deviceName)
	if !s.store.Add(deviceName, action, timeStr) {
		return false
	}
	s.mu.Lock()
	if s.enabled {
		s.addJobLocked(deviceName, action, timeStr)
	}
	s.mu.Unlock()
	s.wakeWorker()
	s.log.Infof("Added schedule: %s %s at %s", deviceName, action, timeStr)
	return true
}

// Remove cancels any matching live job, then removes the entry from the
// store. The store result is returned regardless of whether a live job
// existed, so stale entries can still be removed.
func (s *Scheduler) Remove(deviceName, action, timeStr string) bool {
	deviceName = strings.ToLower(deviceName)
	s.mu.Lock()
	for i, j := range s.jobs {
		if j.device == deviceName && j.action == action && j.timeStr == timeStr {
			heap.Remove(&s.jobs, i)
			s.log.Infof("Removed scheduled job: %s %s at %s", deviceName, action, timeStr)
			break
		}
	}
	s.mu.Unlock()
	s.wakeWorker()
	return s.store.Remove(deviceName, action, timeStr)
}

// NextRuns lists every live job sorted ascending by next fire time.
func (s *Scheduler) NextRuns() []NextRun {
	s.mu.Lock()
	runs := make([]NextRun, 0, len(s.jobs))
	for _, j := range s.jobs {
		runs = append(runs, NextRun{
			Device:  j.device,
			Action:  j.action,
			Time:    j.timeStr,
			NextRun: j.next,
		})
	}
	s.mu.Unlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].NextRun.Before(runs[j].NextRun) })
	return runs
}

// runPending fires every job due at now and reschedules each for the next
// day. Jobs fire in deadline order; a notification failure on one never
// stops the rest.
func (s *Scheduler) runPending(now time.Time) {
	s.mu.Lock()
	var due []*job
	for len(s.jobs) > 0 && !s.jobs[0].next.After(now) {
		j := heap.Pop(&s.jobs).(*job)
		for !j.next.After(now) {
			j.next = j.next.Add(24 * time.Hour)
		}
		heap.Push(&s.jobs, j)
		due = append(due, j)
	}
	s.mu.Unlock()

	for _, j := range due {
		s.fire(j)
	}
}

func (s *Scheduler) fire(j *job) {
	s.log.Infof("Executing scheduled %s for device '%s' at %s", j.action, j.device, j.timeStr)

	var ok bool
	switch j.action {
	case ActionOn:
		ok = s.devices.TurnOn(j.device, 0)
	case ActionOff:
		ok = s.devices.TurnOff(j.device, 0)
	default:
		s.log.Errorf("Unknown action: %s", j.action)
		return
	}

	if ok {
		s.log.Infof("Successfully executed scheduled %s for device '%s'", j.action, j.device)
	} else {
		s.log.Errorf("Failed to execute scheduled %s for device '%s'", j.action, j.device)
	}
	s.notify(j.device, j.action, ok)
}

func (s *Scheduler) notify(deviceName, action string, success bool) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Notify(deviceName, action, success); err != nil {
		s.log.Errorf("Failed to send schedule notification: %v", err)
	}
}

// Start builds the job set and launches the worker. It warns and does
// nothing when already running, and does nothing when scheduling is
// administratively disabled.
func (s *Scheduler) Start() {
	if !s.enabled {
		s.log.Info("Scheduling is disabled, not starting scheduler")
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("Scheduler is already running")
		return
	}
	s.setupLocked()
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go s.run(stop, done)
	s.log.Info("Device scheduler started")
}

func (s *Scheduler) run(stop <-chan struct{}, done chan<- struct{}) {
	s.log.Debug("Scheduler worker started")
	defer close(done)
	defer s.log.Debug("Scheduler worker stopped")

	for {
		s.runPending(s.now())

		// Sleep until the earliest deadline, or until a mutation wakes
		// the worker to recompute.
		s.mu.Lock()
		var wait <-chan time.Time
		if len(s.jobs) > 0 {
			wait = time.After(s.jobs[0].next.Sub(s.now()))
		}
		s.mu.Unlock()

		select {
		case <-stop:
			return
		case <-s.wake:
		case <-wait:
		}
	}
}

func (s *Scheduler) wakeWorker() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop signals the worker, waits a bounded time for it to exit and clears
// the live job set. Safe to call when never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.log.Warn("Scheduler is not running")
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(stopTimeout):
		s.log.Warn("Timed out waiting for scheduler worker to exit")
	}

	s.mu.Lock()
	s.jobs = nil
	s.mu.Unlock()
	s.log.Info("Device scheduler stopped")
}
