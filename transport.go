package rsihost

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kuka-rsi/rsihost/internal/sysinfo"
)

// socketBufferBytes is the SO_RCVBUF/SO_SNDBUF size requested on the
// underlying socket. The kernel may cap this below net.core.rmem_max /
// wmem_max; internal/sysinfo reports the effective ceiling for diagnostics.
const socketBufferBytes = 1 << 20 // 1 MiB

// recvPollInterval bounds how long a single transport.receive call blocks
// waiting for a datagram before returning so the caller's loop can check for
// shutdown and run the watchdog. It is far smaller than the RSI cycle time.
const recvPollInterval = 500 * time.Microsecond

// transport owns the bound UDP socket. It is not goroutine-safe for
// concurrent receive calls; the I/O engine owns exactly one goroutine that
// calls receive.
type transport struct {
	conn *net.UDPConn
}

// openTransport binds a non-blocking UDP socket at ip:port with enlarged
// kernel buffers and SO_REUSEADDR set, so a restarted engine can rebind
// immediately after a crash without waiting out TIME_WAIT. When verbose is
// set, it also checks the kernel's socket buffer ceilings and logs a warning
// if socketBufferBytes was silently clamped below what was requested.
func openTransport(ip string, port uint16, verbose bool) (*transport, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: int(port)}
	if addr.IP == nil {
		return nil, fmt.Errorf("%w: invalid local address %q", InvalidParam, ip)
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					sockErr = fmt.Errorf("SO_REUSEADDR: %w", err)
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, socketBufferBytes); err != nil && verbose {
					logf("SO_RCVBUF: %v", err)
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, socketBufferBytes); err != nil && verbose {
					logf("SO_SNDBUF: %v", err)
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", SocketFailed, err)
	}
	conn := pc.(*net.UDPConn)

	if verbose {
		if rmemMax, wmemMax, err := sysinfo.SocketBufferCeilings(); err == nil {
			if rmemMax < socketBufferBytes || wmemMax < socketBufferBytes {
				logf("requested %d-byte socket buffers exceed kernel ceilings (rmem_max=%d, wmem_max=%d); the kernel may have clamped them",
					socketBufferBytes, rmemMax, wmemMax)
			}
		}
	}

	return &transport{conn: conn}, nil
}

// receive waits up to recvPollInterval for a datagram. ok is false on a
// read-deadline timeout, which is the expected, non-error "nothing arrived
// this tick" outcome the engine loop polls for. Any other error is returned.
func (t *transport) receive(buf []byte) (n int, peer *net.UDPAddr, ok bool, err error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(recvPollInterval)); err != nil {
		return 0, nil, false, err
	}
	n, peer, err = t.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, is := err.(net.Error); is && ne.Timeout() {
			return 0, nil, false, nil
		}
		return 0, nil, false, err
	}
	return n, peer, true, nil
}

// send writes a response datagram to peer.
func (t *transport) send(peer *net.UDPAddr, payload []byte) error {
	_, err := t.conn.WriteToUDP(payload, peer)
	return err
}

func (t *transport) close() error {
	return t.conn.Close()
}
