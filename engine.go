package rsihost

import (
	"net"
	"runtime"
	"time"
)

// Callbacks is the set of optional hooks the engine invokes from its I/O
// goroutine. Every field may be nil; a nil callback is simply skipped. Since
// these run on the real-time thread, implementations must return quickly —
// the engine does not enforce a budget on callback execution, but a slow
// callback directly steals from the 4 ms cycle.
type Callbacks struct {
	OnCartesianUpdate func(CartesianPosition)
	OnJointUpdate     func(JointPosition)
	OnConnectionLost  func()
	OnConnectionMade  func()
	OnMalformedPacket func(summary string)
}

// engine is the hot-loop owner: one transport, one stateStore, one
// goroutine. It is embedded in the package-level singleton created by
// lifecycle.go; nothing here is exported.
type engine struct {
	cfg       Config
	transport *transport
	state     *stateStore
	callbacks Callbacks

	// broadcaster, telemetry, and tracer are optional downstream consumers
	// (internal/broadcast, internal/statsdb, internal/tracecap); each is
	// nil unless the corresponding Config field enabled it. Narrow,
	// purpose-specific interfaces so engine.go never imports any of their
	// concrete types and a disabled sink costs one nil check.
	broadcaster eventSink
	telemetry   telemetrySink
	tracer      traceSink

	stopCh    chan struct{}
	stoppedCh chan struct{}

	lastTelemetryAt time.Time
}

// telemetryInterval bounds how often the Telemetry Sink receives a
// statistics snapshot: once per second, not once per datagram. The Event
// Broadcaster has no such limit since its subscribers expect per-cycle
// fan-out.
const telemetryInterval = time.Second

// eventSink receives connection transitions and periodic statistics for
// fan-out to external subscribers (internal/broadcast).
type eventSink interface {
	onConnectionChange(connected bool)
	onStatistics(Statistics)
	connected() bool
	close()
}

// telemetrySink persists periodic statistics snapshots (internal/statsdb).
type telemetrySink interface {
	onStatistics(Statistics)
	connected() bool
	close()
}

// traceSink records a bounded history of Cartesian samples
// (internal/tracecap).
type traceSink interface {
	onCartesian(CartesianPosition)
}

func newEngine(cfg Config) *engine {
	return &engine{
		cfg:       cfg,
		state:     newStateStore(),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// start binds the transport and spawns the I/O goroutine. Returns
// SocketFailed if the bind fails; the caller (lifecycle.go) is responsible
// for not calling start twice.
func (e *engine) start() error {
	t, err := openTransport(e.cfg.LocalIP, e.cfg.LocalPort, e.cfg.Verbose)
	if err != nil {
		return err
	}
	e.transport = t
	e.stopCh = make(chan struct{})
	e.stoppedCh = make(chan struct{})
	go e.run()
	return nil
}

// stopJoinTimeout bounds how long stop waits for the I/O goroutine to
// observe stopCh and exit before giving up on the join and closing the
// transport anyway. The 500µs receive poll means the goroutine ordinarily
// notices within a cycle or two; this is a backstop, not the common case.
const stopJoinTimeout = time.Second

// stop signals the I/O goroutine to exit and waits up to stopJoinTimeout
// for it to do so, then closes the transport regardless. Safe to call only
// once per start.
func (e *engine) stop() {
	close(e.stopCh)
	select {
	case <-e.stoppedCh:
	case <-time.After(stopJoinTimeout):
		if e.cfg.Verbose {
			logf("stop: I/O goroutine did not exit within %s", stopJoinTimeout)
		}
	}
	if e.transport != nil {
		_ = e.transport.close()
	}
}

// closeSinks releases any optional downstream consumers. Safe to call even
// if none were configured.
func (e *engine) closeSinks() {
	if e.broadcaster != nil {
		e.broadcaster.close()
	}
	if e.telemetry != nil {
		e.telemetry.close()
	}
}

// run is the hot loop: each iteration waits at most recvPollInterval for a
// datagram (the socket read is the one point where this goroutine is
// parked), then yields cooperatively rather than sleeping. The receive is
// therefore a short bounded wait, not a zero-wait poll. The watchdog check
// piggybacks on every iteration rather than running on a separate ticker,
// keeping everything on one thread.
func (e *engine) run() {
	defer close(e.stoppedCh)

	if e.cfg.RealtimePriority > 0 {
		if err := elevateThreadPriority(e.cfg.RealtimePriority); err != nil && e.cfg.Verbose {
			logf("thread priority elevation failed: %v", err)
		}
	} else {
		runtime.LockOSThread()
	}

	buf := make([]byte, maxDatagramBytes)
	watchdogInterval := time.Duration(e.cfg.TimeoutMs) * time.Millisecond

	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		start := time.Now()
		n, peer, ok, err := e.transport.receive(buf)
		if err != nil {
			if e.cfg.Verbose {
				logf("transport receive error: %v", err)
			}
			runtime.Gosched()
			continue
		}
		if !ok {
			e.checkWatchdog(watchdogInterval)
			runtime.Gosched()
			continue
		}

		e.handleDatagram(buf[:n], peer, start)
		e.checkWatchdog(watchdogInterval)
		runtime.Gosched()
	}
}

// handleDatagram is one full cycle: extract IPOC, parse whichever pose
// fragments are present, update state, invoke the data callbacks, then
// format and send the response and record timing statistics — callbacks
// run before sendto, not after, so their time is included in
// processingMs and a slow callback is reflected in the stat it would
// otherwise hide from. A datagram that fails IPOC extraction is dropped
// and never counted in packets_received.
func (e *engine) handleDatagram(datagram []byte, peer *net.UDPAddr, start time.Time) {
	raw, ipoc, ok := extractIPOC(string(datagram))
	if !ok {
		if e.callbacks.OnMalformedPacket != nil {
			e.callbacks.OnMalformedPacket(dumpMalformed(string(datagram)))
		}
		return
	}

	if e.state.markConnected() {
		e.fanOutConnection(true)
		if e.callbacks.OnConnectionMade != nil {
			e.callbacks.OnConnectionMade()
		}
	}

	cart, cartOK := parseCartesian(string(datagram))
	jnt, jntOK := parseJoints(string(datagram))

	correction, cartParsed, jntParsed := e.state.applyDatagram(ipoc, nowMicros(), cart, cartOK, jnt, jntOK)

	if cartParsed && jntParsed {
		if e.callbacks.OnCartesianUpdate != nil {
			e.callbacks.OnCartesianUpdate(e.state.snapshotCartesian())
		}
		if e.callbacks.OnJointUpdate != nil {
			e.callbacks.OnJointUpdate(e.state.snapshotJoints())
		}
	}

	response := formatResponse(correction, raw)
	if sendErr := e.transport.send(peer, []byte(response)); sendErr != nil && e.cfg.Verbose {
		logf("send error: %v", sendErr)
	}

	processingMs := float64(time.Since(start).Microseconds()) / 1000.0
	late := e.state.recordSend(processingMs)
	if late && e.cfg.Verbose {
		logf("late response: %.3fms (ipoc=%s)", processingMs, raw)
	}

	e.fanOut(cartParsed)
}

// fanOut feeds the optional sinks (broadcast/telemetry/trace) with the
// latest snapshots, best-effort: a sink is never allowed to block the loop,
// since each sink's own Publish/Record call is responsible for its own
// non-blocking behavior (internal/unboundedchan, bounded channels, etc.).
// The Event Broadcaster gets a statistics event every cycle; the Telemetry
// Sink is throttled to telemetryInterval since its backing store is not
// meant to take a write per datagram.
func (e *engine) fanOut(cartParsed bool) {
	if e.broadcaster == nil && e.telemetry == nil && e.tracer == nil {
		return
	}
	if cartParsed && e.tracer != nil {
		e.tracer.onCartesian(e.state.snapshotCartesian())
	}
	stats := e.state.snapshotStatistics()
	if e.broadcaster != nil {
		e.broadcaster.onStatistics(stats)
	}
	if e.telemetry != nil {
		if now := time.Now(); now.Sub(e.lastTelemetryAt) >= telemetryInterval {
			e.lastTelemetryAt = now
			e.telemetry.onStatistics(stats)
		}
	}
	e.state.setSinkStatus(e.broadcasterConnected(), e.telemetryConnected())
}

func (e *engine) broadcasterConnected() bool {
	return e.broadcaster != nil && e.broadcaster.connected()
}

func (e *engine) telemetryConnected() bool {
	return e.telemetry != nil && e.telemetry.connected()
}

// fanOutConnection notifies the broadcaster of a connection-state
// transition; the telemetry and trace sinks don't model connection state.
func (e *engine) fanOutConnection(connected bool) {
	if e.broadcaster != nil {
		e.broadcaster.onConnectionChange(connected)
	}
}

// checkWatchdog fires the connection-lost callback once, on the first
// iteration after more than cfg.TimeoutMs has elapsed since the last
// successfully extracted datagram. A zero timeout disables the watchdog
// entirely.
func (e *engine) checkWatchdog(interval time.Duration) {
	if interval <= 0 {
		return
	}
	if !e.state.isConnected() {
		return
	}
	lastPacket := e.state.lastPacketTimestampUs()
	if lastPacket == 0 {
		return
	}
	elapsed := time.Duration(nowMicros()-lastPacket) * time.Microsecond
	if elapsed <= interval {
		return
	}
	if e.state.markDisconnected() {
		e.fanOutConnection(false)
		if e.callbacks.OnConnectionLost != nil {
			e.callbacks.OnConnectionLost()
		}
	}
}
