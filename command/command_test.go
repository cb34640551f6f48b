package command

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waterbot-project/relaybot/device"
	"github.com/waterbot-project/relaybot/gpio"
	"github.com/waterbot-project/relaybot/schedule"
)

func newTestHandler(t *testing.T) (*Handler, *gpio.Emulation) {
	log := logrus.New()
	driver := gpio.NewEmulation()
	registry := device.NewRegistry(map[string]int{"pump": 17, "light": 18})
	controller, err := device.NewController(log, driver, registry)
	require.NoError(t, err)

	store := schedule.NewStore(log, registry, filepath.Join(t.TempDir(), "schedules.json"))
	scheduler := schedule.NewScheduler(log, store, controller, nil, true)
	return NewHandler(registry, controller, store, scheduler), driver
}

func TestStatusCommand(t *testing.T) {
	h, _ := newTestHandler(t)

	res, err := h.Execute(Command{Kind: KindStatus})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, map[string]bool{"pump": false, "light": false}, res.Status)
}

func TestDeviceOnAndOff(t *testing.T) {
	h, driver := newTestHandler(t)

	res, err := h.Execute(Command{Kind: KindDeviceOn, Device: "pump"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, driver.Level(17))

	res, err = h.Execute(Command{Kind: KindDeviceOff, Device: "pump"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, driver.Level(17))
}

func TestDeviceOnWithTimeout(t *testing.T) {
	h, driver := newTestHandler(t)

	res, err := h.Execute(Command{Kind: KindDeviceOn, Device: "pump", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, res.OK)

	time.Sleep(200 * time.Millisecond)
	assert.False(t, driver.Level(17))
}

func TestUnknownDeviceError(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, kind := range []Kind{KindDeviceOn, KindDeviceOff, KindScheduleAdd, KindScheduleRemove} {
		_, err := h.Execute(Command{Kind: kind, Device: "heater", Action: "on", Time: "08:00"})
		assert.True(t, errors.Is(err, ErrUnknownDevice), "kind %d should report unknown device", kind)
	}
}

func TestAllOnAllOff(t *testing.T) {
	h, driver := newTestHandler(t)

	res, err := h.Execute(Command{Kind: KindAllOn})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, driver.Level(17))
	assert.True(t, driver.Level(18))

	res, err = h.Execute(Command{Kind: KindAllOff})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, driver.Level(17))
	assert.False(t, driver.Level(18))
}

func TestScheduleCommands(t *testing.T) {
	h, _ := newTestHandler(t)

	res, err := h.Execute(Command{Kind: KindScheduleAdd, Device: "pump", Action: "on", Time: "08:00"})
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = h.Execute(Command{Kind: KindGetSchedules, Device: "pump"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"on": {"08:00"}}, res.Schedules["pump"])

	res, err = h.Execute(Command{Kind: KindNextRuns})
	require.NoError(t, err)
	require.Len(t, res.NextRuns, 1)
	assert.Equal(t, "pump", res.NextRuns[0].Device)

	res, err = h.Execute(Command{Kind: KindScheduleRemove, Device: "pump", Action: "on", Time: "08:00"})
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = h.Execute(Command{Kind: KindGetSchedules})
	require.NoError(t, err)
	assert.Empty(t, res.Schedules)
}

func TestScheduleAddMalformedTime(t *testing.T) {
	h, _ := newTestHandler(t)

	res, err := h.Execute(Command{Kind: KindScheduleAdd, Device: "pump", Action: "on", Time: "8:00"})
	require.NoError(t, err)
	assert.False(t, res.OK)
}

func TestGetSchedulesKeyIsCaseNormalized(t *testing.T) {
	h, _ := newTestHandler(t)

	res, err := h.Execute(Command{Kind: KindScheduleAdd, Device: "pump", Action: "on", Time: "08:00"})
	require.NoError(t, err)
	require.True(t, res.OK)

	res, err = h.Execute(Command{Kind: KindGetSchedules, Device: "PUMP"})
	require.NoError(t, err)
	assert.NotContains(t, res.Schedules, "PUMP")
	assert.Equal(t, map[string][]string{"on": {"08:00"}}, res.Schedules["pump"])
}

func TestGetSchedulesForUnknownDeviceIsEmpty(t *testing.T) {
	h, _ := newTestHandler(t)

	res, err := h.Execute(Command{Kind: KindGetSchedules, Device: "heater"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Empty(t, res.Schedules["heater"])
}

func TestUnknownKind(t *testing.T) {
	h, _ := newTestHandler(t)

	_, err := h.Execute(Command{Kind: Kind(99)})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownDevice))
}
