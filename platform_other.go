//go:build !linux

package rsihost

import "runtime"

// elevateThreadPriority is a no-op outside Linux: SCHED_FIFO has no
// portable equivalent, and other platforms' real-time scheduling classes
// are out of scope. The goroutine is still pinned to its OS thread so the
// hot loop at least avoids being moved mid-cycle.
func elevateThreadPriority(priority int) error {
	runtime.LockOSThread()
	return nil
}
