// Package sysinfo reads kernel socket-buffer ceilings so the transport
// layer can report when a requested SO_RCVBUF/SO_SNDBUF size was silently
// clamped by the kernel rather than honored.
package sysinfo

import (
	"strconv"
	"strings"

	"github.com/lorenzosaino/go-sysctl"
)

const (
	rmemMaxKey = "net.core.rmem_max"
	wmemMaxKey = "net.core.wmem_max"
)

// SocketBufferCeilings reports the kernel's net.core.rmem_max and
// net.core.wmem_max values in bytes. On platforms without a /proc/sys
// sysctl tree (non-Linux), or if either key is unreadable, err is non-nil
// and callers should treat the ceiling as unknown rather than fail.
func SocketBufferCeilings() (rmemMax, wmemMax int, err error) {
	rmem, err := sysctl.Get(rmemMaxKey)
	if err != nil {
		return 0, 0, err
	}
	wmem, err := sysctl.Get(wmemMaxKey)
	if err != nil {
		return 0, 0, err
	}
	rmemMax, err = strconv.Atoi(strings.TrimSpace(rmem))
	if err != nil {
		return 0, 0, err
	}
	wmemMax, err = strconv.Atoi(strings.TrimSpace(wmem))
	if err != nil {
		return 0, 0, err
	}
	return rmemMax, wmemMax, nil
}
