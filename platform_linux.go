//go:build linux

package rsihost

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// elevateThreadPriority locks the calling goroutine to its current OS
// thread and requests the SCHED_FIFO real-time scheduling policy at the
// given priority. Must be called from the goroutine that will run the I/O
// loop, before entering it. Failure (most commonly EPERM, lacking
// CAP_SYS_NICE) is non-fatal: the engine falls back to the default
// scheduling policy and Verbose logging reports it.
func elevateThreadPriority(priority int) error {
	runtime.LockOSThread()
	param := &unix.SchedParam{Priority: int32(priority)}
	if err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, param); err != nil {
		return fmt.Errorf("SCHED_FIFO: %w", err)
	}
	return nil
}
