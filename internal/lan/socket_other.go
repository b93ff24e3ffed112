//go:build !linux && !darwin

package lan

import "syscall"

// platformControl is a no-op on platforms without a reuse-port tuning path
// (e.g. Windows, where SO_REUSEPORT has no equivalent worth reproducing for
// this daemon — see socket_linux.go/socket_darwin.go for the tuned paths).
func platformControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
