//go:build linux

package native

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// dscpEF класс Expedited Forwarding для голосового трафика
const dscpEF = 46

// controlSocket настраивает UDP сокет до bind: разрешает повторное
// использование адреса и поднимает приоритет голосового трафика.
// Ошибки приоритета не критичны (контейнеры без CAP_NET_ADMIN).
func controlSocket(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			sockErr = err
			return
		}
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_PRIORITY, 6)
		if network == "udp4" || network == "udp" {
			_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, dscpEF<<2)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
