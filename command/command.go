// Package command defines the normalized contract external collaborators
// (chat bots, assistants) use to drive the device core. Free-text parsing
// happens on the collaborator's side; by the time a Command reaches this
// package its kind is a closed enum, decoded exactly once at the boundary.
package command

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/waterbot-project/relaybot/device"
	"github.com/waterbot-project/relaybot/schedule"
)

// Kind is the closed set of operations the core accepts.
type Kind int

const (
	KindStatus Kind = iota
	KindDeviceOn
	KindDeviceOff
	KindAllOn
	KindAllOff
	KindScheduleAdd
	KindScheduleRemove
	KindGetSchedules
	KindNextRuns
)

// ErrUnknownDevice marks requests naming a device that is not registered.
// Collaborators can distinguish it from a generic failure with errors.Is.
var ErrUnknownDevice = errors.New("unknown device")

// Command is one normalized request into the core.
type Command struct {
	Kind    Kind
	Device  string
	Action  string
	Time    string
	Timeout time.Duration
}

// Result carries the outcome of a command. Only the fields relevant to the
// command's kind are set.
type Result struct {
	OK        bool
	Status    map[string]bool
	Schedules map[string]map[string][]string
	NextRuns  []schedule.NextRun
}

// Handler executes commands against the controller, store and scheduler.
type Handler struct {
	registry   *device.Registry
	controller *device.Controller
	store      *schedule.Store
	scheduler  *schedule.Scheduler
}

func NewHandler(registry *device.Registry, controller *device.Controller, store *schedule.Store, scheduler *schedule.Scheduler) *Handler {
	return &Handler{
		registry:   registry,
		controller: controller,
		store:      store,
		scheduler:  scheduler,
	}
}

// Execute runs one command. Device-addressed commands fail with
// ErrUnknownDevice before touching any state; everything else reports
// success through Result.OK.
func (h *Handler) Execute(cmd Command) (Result, error) {
	switch cmd.Kind {
	case KindStatus:
		return Result{OK: true, Status: h.controller.Status()}, nil

	case KindDeviceOn:
		if !h.registry.Has(cmd.Device) {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownDevice, cmd.Device)
		}
		return Result{OK: h.controller.TurnOn(cmd.Device, cmd.Timeout)}, nil

	case KindDeviceOff:
		if !h.registry.Has(cmd.Device) {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownDevice, cmd.Device)
		}
		return Result{OK: h.controller.TurnOff(cmd.Device, cmd.Timeout)}, nil

	case KindAllOn:
		return Result{OK: h.controller.TurnAllOn(cmd.Timeout)}, nil

	case KindAllOff:
		return Result{OK: h.controller.TurnAllOff(cmd.Timeout)}, nil

	case KindScheduleAdd:
		if !h.registry.Has(cmd.Device) {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownDevice, cmd.Device)
		}
		return Result{OK: h.scheduler.Add(cmd.Device, cmd.Action, cmd.Time)}, nil

	case KindScheduleRemove:
		if !h.registry.Has(cmd.Device) {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownDevice, cmd.Device)
		}
		return Result{OK: h.scheduler.Remove(cmd.Device, cmd.Action, cmd.Time)}, nil

	case KindGetSchedules:
		if cmd.Device != "" {
			// Key with the store's normalized name so a filtered view
			// matches the all-devices view.
			name := strings.ToLower(cmd.Device)
			return Result{
				OK:        true,
				Schedules: map[string]map[string][]string{name: h.store.Schedules(name)},
			}, nil
		}
		return Result{OK: true, Schedules: h.store.All()}, nil

	case KindNextRuns:
		return Result{OK: true, NextRuns: h.scheduler.NextRuns()}, nil

	default:
		return Result{}, fmt.Errorf("unknown command kind: %d", cmd.Kind)
	}
}
