package rsihost

import "sync"

// CartesianPosition is the latest Cartesian pose received from the robot.
type CartesianPosition struct {
	X, Y, Z     float64 // mm
	A, B, C     float64 // degrees
	TimestampUs uint64
	IPOC        uint64
}

// JointPosition is the latest joint-axis pose received from the robot.
type JointPosition struct {
	Axis        [6]float64 // degrees, A1..A6
	TimestampUs uint64
	IPOC        uint64
}

// CartesianCorrection is the next delta to superimpose on the robot's
// trajectory. It is not cleared on read: the same correction is resent on
// every outbound datagram until SetCartesianCorrection overwrites it.
type CartesianCorrection struct {
	X, Y, Z float64 // mm
	A, B, C float64 // degrees
}

// Statistics is a rolling snapshot of I/O-engine counters and timings.
type Statistics struct {
	PacketsReceived       uint64
	PacketsSent           uint64
	AvgResponseTimeMs     float64
	MinResponseTimeMs     float64
	MaxResponseTimeMs     float64
	LateResponses         uint64
	ConnectionLostCount   uint64
	IsConnected           bool
	LastPacketTimestampUs uint64

	// BroadcasterConnected and TelemetryConnected are diagnostic-only; they
	// report whether the optional Event Broadcaster / Telemetry Sink
	// currently have a live downstream connection. Neither participates in
	// the core invariants of the pose/joint/stats data model.
	BroadcasterConnected bool
	TelemetryConnected   bool
}

// minResponseSentinel seeds MinResponseTimeMs so the first real observation
// always replaces it, matching the reference implementation's 9999.0 seed.
const minResponseSentinel = 9999.0

// stateStore is the single critical section guarding the latest pose, joint
// pose, pending correction, and statistics. The peer address to reply to is
// not stored here; the engine passes it straight from receive to send.
// Every public accessor acquires the lock, copies out, and releases; the
// I/O engine's per-datagram pose update (applyDatagram, which also stamps
// LastPacketTimestampUs) is likewise one critical section, and the timing
// counters are updated in a second one (recordSend) after the response is
// sent. A single mutex, not a reader/writer split, is the minimum correct
// design here: every access is short (a plain struct copy).
type stateStore struct {
	mu sync.Mutex

	cartesian  CartesianPosition
	joints     JointPosition
	correction CartesianCorrection
	stats      Statistics
}

func newStateStore() *stateStore {
	s := &stateStore{}
	s.stats.MinResponseTimeMs = minResponseSentinel
	return s
}

// snapshotCartesian returns a copy of the latest Cartesian pose.
func (s *stateStore) snapshotCartesian() CartesianPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartesian
}

// snapshotJoints returns a copy of the latest joint pose.
func (s *stateStore) snapshotJoints() JointPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joints
}

// snapshotStatistics returns a copy of the statistics aggregate.
func (s *stateStore) snapshotStatistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// setCorrection replaces the pending correction. It is not cleared on read.
func (s *stateStore) setCorrection(c CartesianCorrection) {
	s.mu.Lock()
	s.correction = c
	s.mu.Unlock()
}

// applyDatagram is the single critical section the I/O engine enters once
// per successfully-IPOC-extracted inbound datagram. It updates whichever of
// cartesian/joints parsed, imprints the shared IPOC and timestamp, and
// returns a snapshot of the pending correction for the caller to use when
// formatting the response.
func (s *stateStore) applyDatagram(ipoc uint64, tsUs uint64, cart cartesianFields, cartOK bool, jnt jointFields, jntOK bool) (correction CartesianCorrection, cartesianParsed, jointsParsed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cartOK {
		s.cartesian = CartesianPosition{
			X: cart.X, Y: cart.Y, Z: cart.Z,
			A: cart.A, B: cart.B, C: cart.C,
			TimestampUs: tsUs,
			IPOC:        ipoc,
		}
	}
	if jntOK {
		s.joints = JointPosition{
			Axis:        jnt.Axis,
			TimestampUs: tsUs,
			IPOC:        ipoc,
		}
	}
	s.stats.LastPacketTimestampUs = tsUs
	return s.correction, cartOK, jntOK
}

// recordSend updates packets_received/sent and the timing statistics for one
// completed engine iteration. processingMs is the wall time spent between
// the start of the iteration and the point the response was handed to the
// transport (or, if extraction failed before that point, callers should not
// call recordSend at all — packets_received only counts IPOC-extracted
// datagrams). PacketsSent counts every attempted response, regardless of
// whether the underlying sendto succeeded, matching the original's
// unconditional increment once a response was formatted. AvgResponseTimeMs
// is a lifetime cumulative mean, updated incrementally in constant time and
// memory rather than over a trailing window, pairing it with the lifetime
// min/max tracked alongside it.
func (s *stateStore) recordSend(processingMs float64) (late bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.PacketsReceived++
	s.stats.PacketsSent++

	n := float64(s.stats.PacketsReceived)
	s.stats.AvgResponseTimeMs += (processingMs - s.stats.AvgResponseTimeMs) / n

	if processingMs < s.stats.MinResponseTimeMs {
		s.stats.MinResponseTimeMs = processingMs
	}
	if processingMs > s.stats.MaxResponseTimeMs {
		s.stats.MaxResponseTimeMs = processingMs
	}
	if processingMs > float64(lateResponseLimit.Milliseconds()) {
		s.stats.LateResponses++
		late = true
	}
	return late
}

// markConnected sets is_connected true. Returns true if this was a
// true transition (i.e. the caller should fire the connection callback).
func (s *stateStore) markConnected() (transitioned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats.IsConnected {
		return false
	}
	s.stats.IsConnected = true
	return true
}

// markDisconnected sets is_connected false and bumps connection_lost_count.
// Returns true if this was a true transition.
func (s *stateStore) markDisconnected() (transitioned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stats.IsConnected {
		return false
	}
	s.stats.IsConnected = false
	s.stats.ConnectionLostCount++
	return true
}

// lastPacketTimestampUs returns the timestamp used by the watchdog check,
// without taking a full Statistics copy.
func (s *stateStore) lastPacketTimestampUs() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.LastPacketTimestampUs
}

func (s *stateStore) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.IsConnected
}

func (s *stateStore) setSinkStatus(broadcasterConnected, telemetryConnected bool) {
	s.mu.Lock()
	s.stats.BroadcasterConnected = broadcasterConnected
	s.stats.TelemetryConnected = telemetryConnected
	s.mu.Unlock()
}
