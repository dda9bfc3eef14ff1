package rsihost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetLifecycle forces the package singleton back to Uninitialized
// between tests, since Init/Start/Stop/Cleanup operate on a process-wide
// instance. Not exported; tests in this package only.
func resetLifecycle(t *testing.T) {
	t.Helper()
	require.NoError(t, Cleanup())
	t.Cleanup(func() { _ = Cleanup() })
}

func TestLifecycleRejectsOperationsBeforeInit(t *testing.T) {
	resetLifecycle(t)

	assert.Equal(t, InitFailed, SetCallbacks(Callbacks{}))
	assert.Equal(t, NotRunning, SetCartesianCorrection(CartesianCorrection{}))
	assert.Equal(t, InitFailed, Start())
}

func TestLifecycleRejectsDoubleInit(t *testing.T) {
	resetLifecycle(t)
	require.NoError(t, Init(DefaultConfig()))
	assert.Equal(t, AlreadyRunning, Init(DefaultConfig()))
}

func TestLifecycleHappyPathTransitions(t *testing.T) {
	resetLifecycle(t)
	cfg := DefaultConfig()
	cfg.LocalIP = "127.0.0.1"
	cfg.LocalPort = freeUDPPort(t)

	require.NoError(t, Init(cfg))
	assert.Equal(t, Initialized, State())
	assert.NotEmpty(t, InstanceID())

	require.NoError(t, Start())
	assert.Equal(t, Running, State())
	assert.Equal(t, AlreadyRunning, Start())

	require.NoError(t, Stop())
	assert.Equal(t, Initialized, State())
	assert.Equal(t, NotRunning, Stop())

	require.NoError(t, Cleanup())
	assert.Equal(t, Uninitialized, State())
	assert.Empty(t, InstanceID())
}

func TestLifecycleRestartReusesConfigWithoutReInit(t *testing.T) {
	resetLifecycle(t)
	cfg := DefaultConfig()
	cfg.LocalIP = "127.0.0.1"
	cfg.LocalPort = freeUDPPort(t)
	require.NoError(t, Init(cfg))

	require.NoError(t, Start())
	require.NoError(t, Stop())
	require.NoError(t, Start())
	require.NoError(t, Stop())
}

func TestLifecycleGettersBeforeAnyPacket(t *testing.T) {
	resetLifecycle(t)
	cfg := DefaultConfig()
	cfg.LocalIP = "127.0.0.1"
	cfg.LocalPort = freeUDPPort(t)
	require.NoError(t, Init(cfg))

	_, ok := GetCartesianPosition()
	assert.False(t, ok)
	_, ok = GetJointPosition()
	assert.False(t, ok)

	stats := GetStatistics()
	assert.Equal(t, minResponseSentinel, stats.MinResponseTimeMs)
}

func TestLifecycleEndToEndThroughPublicAPI(t *testing.T) {
	resetLifecycle(t)
	cfg := DefaultConfig()
	cfg.LocalIP = "127.0.0.1"
	cfg.LocalPort = freeUDPPort(t)
	require.NoError(t, Init(cfg))
	require.NoError(t, Start())

	require.NoError(t, SetCartesianCorrection(CartesianCorrection{X: 2.5}))

	conn := sendDatagram(t, cfg.LocalPort, rsiDatagram(99))
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, maxDatagramBytes)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), `X="2.5000"`)
	assert.Contains(t, string(buf[:n]), "<IPOC>99</IPOC>")

	pos, ok := GetCartesianPosition()
	require.True(t, ok)
	assert.Equal(t, uint64(99), pos.IPOC)
}
