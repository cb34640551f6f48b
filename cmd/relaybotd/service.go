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

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/waterbot-project/relaybot/command"
)

const (
	dbusName = "org.waterbot.RelayController"
	dbusPath = "/org/waterbot/RelayController"
)

// service exposes the normalized command contract on the system bus. Chat
// transports and assistants are separate processes that call these methods
// and subscribe to the ScheduleFired signal.
type service struct {
	handler *command.Handler
}

func startService(conn *dbus.Conn, handler *command.Handler) error {
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		handler: handler,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// Status returns the on/off state of every registered device.
func (s service) Status() (map[string]bool, *dbus.Error) {
	res, err := s.handler.Execute(command.Command{Kind: command.KindStatus})
	if err != nil {
		return nil, makeDbusError(".Status", err)
	}
	return res.Status, nil
}

// DeviceOn turns a device on. A timeoutSeconds greater than zero turns it
// back off after that many seconds.
func (s service) DeviceOn(name string, timeoutSeconds int) (bool, *dbus.Error) {
	res, err := s.handler.Execute(command.Command{
		Kind:    command.KindDeviceOn,
		Device:  name,
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	})
	if err != nil {
		return false, makeDbusError(".DeviceOn", err)
	}
	return res.OK, nil
}

// DeviceOff turns a device off. A timeoutSeconds greater than zero turns it
// back on after that many seconds.
func (s service) DeviceOff(name string, timeoutSeconds int) (bool, *dbus.Error) {
	res, err := s.handler.Execute(command.Command{
		Kind:    command.KindDeviceOff,
		Device:  name,
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	})
	if err != nil {
		return false, makeDbusError(".DeviceOff", err)
	}
	return res.OK, nil
}

// AllOn turns every registered device on.
func (s service) AllOn(timeoutSeconds int) (bool, *dbus.Error) {
	res, err := s.handler.Execute(command.Command{
		Kind:    command.KindAllOn,
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	})
	if err != nil {
		return false, makeDbusError(".AllOn", err)
	}
	return res.OK, nil
}

// AllOff turns every registered device off.
func (s service) AllOff(timeoutSeconds int) (bool, *dbus.Error) {
	res, err := s.handler.Execute(command.Command{
		Kind:    command.KindAllOff,
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	})
	if err != nil {
		return false, makeDbusError(".AllOff", err)
	}
	return res.OK, nil
}

// ScheduleAdd adds a daily schedule entry, action "on" or "off" at HH:MM.
func (s service) ScheduleAdd(name, action, timeStr string) (bool, *dbus.Error) {
	res, err := s.handler.Execute(command.Command{
		Kind:   command.KindScheduleAdd,
		Device: name,
		Action: action,
		Time:   timeStr,
	})
	if err != nil {
		return false, makeDbusError(".ScheduleAdd", err)
	}
	return res.OK, nil
}

// ScheduleRemove removes a daily schedule entry.
func (s service) ScheduleRemove(name, action, timeStr string) (bool, *dbus.Error) {
	res, err := s.handler.Execute(command.Command{
		Kind:   command.KindScheduleRemove,
		Device: name,
		Action: action,
		Time:   timeStr,
	})
	if err != nil {
		return false, makeDbusError(".ScheduleRemove", err)
	}
	return res.OK, nil
}

// GetSchedules returns the schedule table as JSON, filtered to one device
// when name is not empty.
func (s service) GetSchedules(name string) (string, *dbus.Error) {
	res, err := s.handler.Execute(command.Command{
		Kind:   command.KindGetSchedules,
		Device: name,
	})
	if err != nil {
		return "", makeDbusError(".GetSchedules", err)
	}
	b, err := json.Marshal(res.Schedules)
	if err != nil {
		return "", makeDbusError(".GetSchedules", err)
	}
	return string(b), nil
}

// NextRuns lists live jobs sorted by their next fire time.
func (s service) NextRuns() ([]string, *dbus.Error) {
	res, err := s.handler.Execute(command.Command{Kind: command.KindNextRuns})
	if err != nil {
		return nil, makeDbusError(".NextRuns", err)
	}
	runs := make([]string, 0, len(res.NextRuns))
	for _, r := range res.NextRuns {
		runs = append(runs, fmt.Sprintf("%s %s at %s, next run %s",
			r.Device, r.Action, r.Time, r.NextRun.Format("2006-01-02 15:04:05")))
	}
	return runs, nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + name,
		Body: []interface{}{err.Error()},
	}
}

// dbusNotifier pushes schedule-execution events out as dbus signals.
// Delivery is best effort; the scheduler logs and drops any error.
type dbusNotifier struct {
	conn *dbus.Conn
}

func (n *dbusNotifier) Notify(device, action string, success bool) error {
	return n.conn.Emit(dbusPath, dbusName+".ScheduleFired", device, action, success)
}
