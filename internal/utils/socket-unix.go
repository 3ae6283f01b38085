//go:build !windows

package utils

import (
	"errors"
	"syscall"
)

const socketBufferSize = 1024 * 1024

// setSocketOptions disables Nagle and widens the kernel buffers for
// connections that stream large ranges.
func setSocketOptions(fd uintptr) error {
	return errors.Join(
		syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1),
		syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, socketBufferSize),
		syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_SNDBUF, socketBufferSize),
	)
}
