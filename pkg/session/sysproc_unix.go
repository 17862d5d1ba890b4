//go:build !windows
// +build !windows

package session

import "syscall"

// detachedProcAttr puts the console host in its own process group so a
// terminal interrupt aimed at us does not also close the console window.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
