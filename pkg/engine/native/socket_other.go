//go:build !linux

package native

import "syscall"

// controlSocket вне Linux оставляет сокет с настройками по умолчанию
func controlSocket(network, address string, c syscall.RawConn) error {
	return nil
}
