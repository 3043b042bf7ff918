//go:build unix

package statuslistener

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddrControl lets multiple listeners coexist on the status broadcast
// port, the way the teacher's platform-specific log/config helpers
// (ingest/log/kernel_linux.go, ingest/config/setingesteruuid_windows.go)
// split behavior per OS rather than papering over it with the standard
// library alone.
func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
