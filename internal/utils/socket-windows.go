//go:build windows

package utils

import (
	"errors"
	"syscall"
)

const socketBufferSize = 1024 * 1024

func setSocketOptions(fd uintptr) error {
	h := syscall.Handle(fd)
	return errors.Join(
		syscall.SetsockoptInt(h, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1),
		syscall.SetsockoptInt(h, syscall.SOL_SOCKET, syscall.SO_RCVBUF, socketBufferSize),
		syscall.SetsockoptInt(h, syscall.SOL_SOCKET, syscall.SO_SNDBUF, socketBufferSize),
	)
}
