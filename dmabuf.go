//go:build !headless

package main

import "golang.org/x/sys/unix"

// closeDMABUF closes a dmabuf file descriptor handed back by the
// compositor once its plane has been imported (or the capture was
// cancelled before import).
func closeDMABUF(handle uintptr) error {
	if handle == 0 {
		return nil
	}
	return unix.Close(int(handle))
}
