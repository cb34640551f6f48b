// Package config loads the daemon configuration: an optional YAML file read
// through viper, a .env overlay, and DEVICE_<NAME>=<pin> environment
// declarations for the device registry.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const deviceEnvPrefix = "DEVICE_"

type Config struct {
	// Mode selects the pin driver backend, "rpi" or "emulation".
	Mode string

	// DefaultTimeout is the duration collaborators apply when a command
	// asks for a timed action without giving one.
	DefaultTimeout time.Duration

	EnableScheduling bool
	ScheduleFile     string

	// Devices maps lowercased device names to GPIO pin numbers.
	Devices map[string]int
}

func (c *Config) IsEmulation() bool {
	return c.Mode != "rpi"
}

// Load reads the configuration. A missing config file or .env is fine;
// invalid device pin values are skipped with a warning rather than failing.
func Load(log *logrus.Logger, path string) (*Config, error) {
	// Overlay .env before reading anything from the environment. Existing
	// variables win over the file.
	if _, err := os.Stat(".env"); err == nil {
		if err := gotenv.Load(); err != nil {
			log.Warnf("Could not load .env: %v", err)
		}
	}

	v := viper.New()
	v.SetDefault("mode", "emulation")
	v.SetDefault("default-timeout", 60) // minutes
	v.SetDefault("enable-scheduling", false)
	v.SetDefault("schedule-file", "schedules.json")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, err
			}
			log.Warnf("Config file %s not found, using defaults", path)
		}
	}

	v.BindEnv("mode", "OPERATION_MODE")
	v.BindEnv("default-timeout", "DEFAULT_TIMEOUT")
	v.BindEnv("enable-scheduling", "ENABLE_SCHEDULING")
	v.BindEnv("schedule-file", "SCHEDULE_CONFIG_FILE")

	conf := &Config{
		Mode:             strings.ToLower(v.GetString("mode")),
		DefaultTimeout:   time.Duration(v.GetInt("default-timeout")) * time.Minute,
		EnableScheduling: v.GetBool("enable-scheduling"),
		ScheduleFile:     v.GetString("schedule-file"),
		Devices:          map[string]int{},
	}

	for name, value := range v.GetStringMapString("devices") {
		addDevice(log, conf.Devices, name, value)
	}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, deviceEnvPrefix) {
			continue
		}
		addDevice(log, conf.Devices, strings.TrimPrefix(key, deviceEnvPrefix), value)
	}

	return conf, nil
}

func addDevice(log *logrus.Logger, devices map[string]int, name, value string) {
	pin, err := strconv.Atoi(value)
	if err != nil || pin <= 0 {
		log.Warnf("Invalid GPIO pin value for device %s: %s", name, value)
		return
	}
	devices[strings.ToLower(name)] = pin
}

// Validate checks the loaded configuration is usable. An empty device
// registry means there is nothing to control, which is fatal at startup.
func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return errors.New("no device to GPIO pin mappings configured")
	}
	return nil
}
