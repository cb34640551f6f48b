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
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/godbus/dbus"
	"github.com/sirupsen/logrus"

	"github.com/waterbot-project/relaybot/command"
	"github.com/waterbot-project/relaybot/config"
	"github.com/waterbot-project/relaybot/device"
	"github.com/waterbot-project/relaybot/gpio"
	"github.com/waterbot-project/relaybot/schedule"
)

var version = "<not set>"
var log = logrus.New()

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to the config file"`
	LogLevel   string `arg:"-l,--loglevel" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	args := Args{}
	arg.MustParse(&args)
	return args
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

// customFormatter defines a new logrus formatter.
type customFormatter struct{}

// Format builds the log message string from the log entry.
func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	log.SetFormatter(new(customFormatter))
	args := procArgs()
	setLogLevel(args.LogLevel)

	log.Infof("Running version: %s", version)

	conf, err := config.Load(log, args.ConfigFile)
	if err != nil {
		return err
	}
	if err := conf.Validate(); err != nil {
		return err
	}

	var driver gpio.Driver
	if conf.IsEmulation() {
		driver = gpio.NewEmulation()
		log.Info("GPIO initialized in emulation mode")
	} else {
		driver, err = gpio.NewHardware(log)
		if err != nil {
			return err
		}
		log.Info("GPIO initialized in hardware mode")
	}

	registry := device.NewRegistry(conf.Devices)
	controller, err := device.NewController(log, driver, registry)
	if err != nil {
		return err
	}
	store := schedule.NewStore(log, registry, conf.ScheduleFile)

	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	sink := &dbusNotifier{conn: conn}

	scheduler := schedule.NewScheduler(log, store, controller, sink, conf.EnableScheduling)
	handler := command.NewHandler(registry, controller, store, scheduler)

	if err := startService(conn, handler); err != nil {
		return err
	}
	scheduler.Start()

	// The scheduler loop is stopped before controller cleanup so a fired
	// job can't race the driver release. The Once makes the signal path
	// safe to hit while a normal shutdown is already in progress.
	var shutdownOnce sync.Once
	shutdown := func() {
		shutdownOnce.Do(func() {
			scheduler.Stop()
			controller.Cleanup()
		})
	}
	defer shutdown()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	sig := <-sigs
	log.Infof("Received signal %v, shutting down", sig)
	shutdown()
	return nil
}
