//go:build !windows

package process

import "syscall"

type groupSignaler struct{}

func (groupSignaler) SignalGroup(pid int, sig Signal) error {
	s := syscall.SIGTERM
	if sig == SignalKill {
		s = syscall.SIGKILL
	}
	return syscall.Kill(-pid, s)
}
