package rsihost

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestEngine constructs (but does not start) an engine on an ephemeral
// loopback port, so callers can install callbacks before the I/O goroutine
// begins reading e.callbacks.
func newTestEngine(t *testing.T, cfg Config) (*engine, uint16) {
	t.Helper()
	cfg.LocalIP = "127.0.0.1"
	if cfg.LocalPort == 0 {
		cfg.LocalPort = freeUDPPort(t)
	}
	e := newEngine(cfg.withDefaults())
	return e, cfg.LocalPort
}

// startTestEngine binds an engine on an ephemeral loopback port and returns
// it started, along with the port, cleaning up at test end.
func startTestEngine(t *testing.T, cfg Config) (*engine, uint16) {
	t.Helper()
	e, port := newTestEngine(t, cfg)
	require.NoError(t, e.start())
	t.Cleanup(e.stop)
	return e, port
}

func freeUDPPort(t *testing.T) uint16 {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer conn.Close()
	return uint16(conn.LocalAddr().(*net.UDPAddr).Port)
}

func sendDatagram(t *testing.T, port uint16, payload string) *net.UDPConn {
	t.Helper()
	raddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: int(port)}
	conn, err := net.DialUDP("udp4", nil, raddr)
	require.NoError(t, err)
	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)
	return conn
}

func rsiDatagram(ipoc uint64) string {
	return `<Rob TYpe="KUKA">` +
		`<RIst X="1.0" Y="2.0" Z="3.0" A="4.0" B="5.0" C="6.0" />` +
		`<AIPos A1="1.0" A2="2.0" A3="3.0" A4="4.0" A5="5.0" A6="6.0" />` +
		`<IPOC>` + strconv.FormatUint(ipoc, 10) + `</IPOC></Rob>`
}

func TestEngineHappyPathRespondsWithEchoedIPOC(t *testing.T) {
	e, port := startTestEngine(t, Config{})
	conn := sendDatagram(t, port, rsiDatagram(7))
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, maxDatagramBytes)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "<IPOC>7</IPOC>")

	pos := e.state.snapshotCartesian()
	assert.Equal(t, 1.0, pos.X)
	assert.Equal(t, uint64(7), pos.IPOC)
}

func TestEngineMalformedDatagramInvokesCallback(t *testing.T) {
	e, port := newTestEngine(t, Config{})

	var gotSummary string
	done := make(chan struct{})
	e.callbacks.OnMalformedPacket = func(summary string) {
		gotSummary = summary
		close(done)
	}
	require.NoError(t, e.start())
	t.Cleanup(e.stop)

	conn := sendDatagram(t, port, "not-xml-at-all")
	defer conn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for malformed-packet callback")
	}
	assert.NotEmpty(t, gotSummary)
	assert.Equal(t, uint64(0), e.state.snapshotStatistics().PacketsReceived)
}

func TestEngineConnectionCallbacksFire(t *testing.T) {
	e, port := newTestEngine(t, Config{})

	madeCh := make(chan struct{}, 1)
	e.callbacks.OnConnectionMade = func() {
		select {
		case madeCh <- struct{}{}:
		default:
		}
	}
	require.NoError(t, e.start())
	t.Cleanup(e.stop)

	conn := sendDatagram(t, port, rsiDatagram(1))
	defer conn.Close()

	select {
	case <-madeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection-made callback")
	}
	assert.True(t, e.state.isConnected())
}

func TestEngineCartesianCorrectionAppliesToNextResponse(t *testing.T) {
	e, port := startTestEngine(t, Config{})
	e.state.setCorrection(CartesianCorrection{X: 9.5})

	conn := sendDatagram(t, port, rsiDatagram(1))
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, maxDatagramBytes)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), `X="9.5000"`)
}

func TestEngineWatchdogFiresConnectionLost(t *testing.T) {
	e, port := newTestEngine(t, Config{TimeoutMs: 20})

	lostCh := make(chan struct{}, 1)
	e.callbacks.OnConnectionLost = func() {
		select {
		case lostCh <- struct{}{}:
		default:
		}
	}
	require.NoError(t, e.start())
	t.Cleanup(e.stop)

	conn := sendDatagram(t, port, rsiDatagram(1))
	defer conn.Close()
	time.Sleep(10 * time.Millisecond) // let the happy-path packet land first

	select {
	case <-lostCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection-lost callback")
	}
	assert.False(t, e.state.isConnected())
	assert.Equal(t, uint64(1), e.state.snapshotStatistics().ConnectionLostCount)
}
