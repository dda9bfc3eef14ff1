package rsihost

import "time"

// processStart anchors nowMicros to the monotonic clock reading Go attaches
// to every time.Time. Deriving timestamps as an offset from this anchor
// (rather than time.Now().UnixNano() directly) means a wall-clock step —
// NTP correction, a stepped system clock — cannot perturb the watchdog's
// elapsed-time calculation or make last_packet_timestamp_us run backwards.
var processStart = time.Now()

// nowMicros returns a monotonic microsecond timestamp, used to stamp
// received datagrams and to detect a watchdog timeout. It is anchored to
// process start and advances strictly with time.Since, so two calls always
// compare correctly regardless of wall-clock adjustments during the run.
func nowMicros() uint64 {
	return uint64(time.Since(processStart).Microseconds())
}
