//go:build !unix

package broadcaster

import "syscall"

// broadcastControl is a no-op on platforms where we don't bother setting
// SO_BROADCAST explicitly.
func broadcastControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
