package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmulationWriteAfterConfigure(t *testing.T) {
	e := NewEmulation()
	require.NoError(t, e.Configure(17, ModeOutput))
	assert.False(t, e.Level(17))

	require.NoError(t, e.Write(17, true))
	assert.True(t, e.Level(17))

	require.NoError(t, e.Write(17, false))
	assert.False(t, e.Level(17))
}

func TestEmulationWriteBeforeConfigure(t *testing.T) {
	e := NewEmulation()
	err := e.Write(17, true)
	require.Error(t, err)

	var unconfigured *UnconfiguredPinError
	require.True(t, errors.As(err, &unconfigured))
	assert.Equal(t, 17, unconfigured.Pin)
}

func TestEmulationConfigureIsIdempotent(t *testing.T) {
	e := NewEmulation()
	require.NoError(t, e.Configure(17, ModeOutput))
	require.NoError(t, e.Write(17, true))

	// Reconfiguring must not reset the level.
	require.NoError(t, e.Configure(17, ModeOutput))
	assert.True(t, e.Level(17))
}

func TestEmulationRelease(t *testing.T) {
	e := NewEmulation()
	require.NoError(t, e.Configure(17, ModeOutput))
	require.NoError(t, e.Write(17, true))

	require.NoError(t, e.Release())
	require.NoError(t, e.Release())

	assert.False(t, e.Level(17))
	err := e.Write(17, true)
	assert.Error(t, err)
}

func TestRecorderRecordsCalls(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Configure(17, ModeOutput))
	require.NoError(t, r.Configure(18, ModeOutput))
	require.NoError(t, r.Write(17, true))
	require.NoError(t, r.Write(17, false))

	assert.Equal(t, []ConfigureCall{{17, ModeOutput}, {18, ModeOutput}}, r.ConfigureCalls)
	assert.Equal(t, []WriteCall{{17, true}, {17, false}}, r.Writes())
	assert.False(t, r.Level(17))
	assert.False(t, r.Level(18))
}

func TestRecorderEnforcesConfigureBeforeWrite(t *testing.T) {
	r := NewRecorder()
	err := r.Write(4, true)
	var unconfigured *UnconfiguredPinError
	require.True(t, errors.As(err, &unconfigured))
	assert.Empty(t, r.Writes())
}

func TestRecorderRelease(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Configure(17, ModeOutput))
	require.NoError(t, r.Release())
	assert.True(t, r.Released)
	require.NoError(t, r.Release())
}
