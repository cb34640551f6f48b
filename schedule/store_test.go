package schedule

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waterbot-project/relaybot/device"
)

func testRegistry() *device.Registry {
	return device.NewRegistry(map[string]int{"pump": 17, "light": 18})
}

func newTestStore(t *testing.T) (*Store, string) {
	path := filepath.Join(t.TempDir(), "schedules.json")
	return NewStore(logrus.New(), testRegistry(), path), path
}

func TestValidTime(t *testing.T) {
	assert.True(t, ValidTime("00:00"))
	assert.True(t, ValidTime("08:00"))
	assert.True(t, ValidTime("23:59"))
	assert.False(t, ValidTime("8:00"))
	assert.False(t, ValidTime("24:00"))
	assert.False(t, ValidTime("12:60"))
	assert.False(t, ValidTime("noon"))
	assert.False(t, ValidTime("08:00:00"))
}

func TestAddAndGet(t *testing.T) {
	store, _ := newTestStore(t)

	assert.True(t, store.Add("pump", "on", "08:00"))
	assert.Equal(t, map[string][]string{"on": {"08:00"}}, store.Schedules("pump"))

	// Malformed time leaves the store unchanged.
	assert.False(t, store.Add("pump", "on", "8:00"))
	assert.Equal(t, map[string][]string{"on": {"08:00"}}, store.Schedules("pump"))
}

func TestAddValidation(t *testing.T) {
	store, path := newTestStore(t)

	assert.False(t, store.Add("heater", "on", "08:00"), "unknown device")
	assert.False(t, store.Add("pump", "toggle", "08:00"), "invalid action")
	assert.False(t, store.Add("pump", "on", "25:00"), "hour out of range")

	assert.Empty(t, store.All())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nothing should have been persisted")
}

func TestAddIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)

	assert.True(t, store.Add("pump", "on", "08:00"))
	assert.True(t, store.Add("pump", "on", "08:00"))
	assert.Equal(t, []string{"08:00"}, store.Schedules("pump")["on"])
}

func TestTimesStaySorted(t *testing.T) {
	store, _ := newTestStore(t)

	require.True(t, store.Add("pump", "on", "18:30"))
	require.True(t, store.Add("pump", "on", "06:15"))
	require.True(t, store.Add("pump", "on", "12:00"))
	assert.Equal(t, []string{"06:15", "12:00", "18:30"}, store.Schedules("pump")["on"])
}

func TestRoundTripThroughDisk(t *testing.T) {
	store, path := newTestStore(t)

	require.True(t, store.Add("pump", "on", "08:00"))
	require.True(t, store.Add("pump", "off", "20:00"))
	require.True(t, store.Add("light", "on", "18:00"))

	reloaded := NewStore(logrus.New(), testRegistry(), path)
	assert.Equal(t, store.All(), reloaded.All())
}

func TestRemove(t *testing.T) {
	store, _ := newTestStore(t)

	require.True(t, store.Add("pump", "on", "08:00"))
	require.True(t, store.Add("pump", "on", "12:00"))

	assert.True(t, store.Remove("pump", "on", "08:00"))
	assert.Equal(t, []string{"12:00"}, store.Schedules("pump")["on"])
}

func TestRemoveMissingTripleLeavesStoreUnchanged(t *testing.T) {
	store, _ := newTestStore(t)
	require.True(t, store.Add("pump", "on", "08:00"))

	assert.False(t, store.Remove("pump", "on", "09:00"))
	assert.False(t, store.Remove("pump", "off", "08:00"))
	assert.False(t, store.Remove("light", "on", "08:00"))
	assert.Equal(t, map[string][]string{"on": {"08:00"}}, store.Schedules("pump"))
}

func TestRemoveLastEntryPrunesDevice(t *testing.T) {
	store, _ := newTestStore(t)
	require.True(t, store.Add("pump", "on", "08:00"))

	assert.True(t, store.Remove("pump", "on", "08:00"))
	assert.Empty(t, store.All())
	assert.Empty(t, store.Schedules("pump"))
}

func TestUnknownDeviceSchedulesAreEmptyNotError(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Empty(t, store.Schedules("heater"))
}

func TestLoadNormalizesHandEditedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.json")
	contents := `{"Pump": {"ON": ["20:00", "08:00", "08:00", "8:30"], "blink": ["09:00"]}}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	store := NewStore(logrus.New(), testRegistry(), path)

	// Keys lowercased, unknown action and malformed time dropped, times
	// deduped and re-sorted.
	assert.Equal(t, map[string][]string{"on": {"08:00", "20:00"}}, store.Schedules("pump"))

	// A triple that the file listed out of order must still be removable.
	assert.True(t, store.Remove("pump", "on", "08:00"))
	assert.Equal(t, []string{"20:00"}, store.Schedules("pump")["on"])
}

func TestStaleDeviceEntriesSurviveLoadAndAreRemovable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.json")
	contents := `{"heater": {"on": ["06:00"]}}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	// "heater" is not registered any more but its persisted entry must
	// still load and be removable.
	store := NewStore(logrus.New(), testRegistry(), path)
	assert.Equal(t, []string{"06:00"}, store.Schedules("heater")["on"])
	assert.True(t, store.Remove("heater", "on", "06:00"))
	assert.Empty(t, store.All())
}

func TestCorruptFileFallsBackToEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	t.Setenv("SCHEDULE_PUMP_ON", "08:00,8:30,23:59")
	t.Setenv("SCHEDULE_PUMP_OFF", "20:00")
	t.Setenv("SCHEDULE_HEATER_ON", "09:00")

	store := NewStore(logrus.New(), testRegistry(), path)
	assert.Equal(t, map[string][]string{
		"on":  {"08:00", "23:59"},
		"off": {"20:00"},
	}, store.Schedules("pump"))
	assert.Empty(t, store.Schedules("heater"), "env declarations for unknown devices are dropped")
}

func TestMissingFileWithNoEnvIsEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Empty(t, store.All())
}

func TestStoreReturnsCopies(t *testing.T) {
	store, _ := newTestStore(t)
	require.True(t, store.Add("pump", "on", "08:00"))

	schedules := store.Schedules("pump")
	schedules["on"][0] = "09:00"
	assert.Equal(t, []string{"08:00"}, store.Schedules("pump")["on"])

	all := store.All()
	delete(all, "pump")
	assert.NotEmpty(t, store.All())
}
