//go:build linux

package network

import (
	"net"
	"syscall"
)

// ReuseAddrListenConfig returns a ListenConfig with SO_REUSEADDR set, so the
// sink and the status API can rebind right after a restart.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var opErr error
			if err := c.Control(func(fd uintptr) {
				opErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return opErr
		},
	}
}
