//go:build !unix

package statuslistener

import "syscall"

// reuseAddrControl is a no-op on platforms where we don't bother setting
// SO_REUSEADDR (the standard library's default binding behavior is fine
// there).
func reuseAddrControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
