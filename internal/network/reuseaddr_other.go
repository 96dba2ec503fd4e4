//go:build !linux && !windows

package network

import "net"

// ReuseAddrListenConfig returns a plain ListenConfig on platforms where the
// bridge does not tune socket options.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
