//go:build darwin

package lan

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// platformControl sets SO_REUSEADDR/SO_REUSEPORT, adapted from the
// teacher's internal/transport/socket_darwin.go.
func platformControl(_, _ string, c syscall.RawConn) error {
	var setErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
			setErr = e
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
			setErr = e
		}
	})
	if err != nil {
		return err
	}
	return setErr
}
