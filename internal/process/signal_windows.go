//go:build windows

package process

import (
	"os/exec"
	"strconv"
)

type groupSignaler struct{}

// SignalGroup uses taskkill with /T to reach the whole tree. Without /F,
// taskkill sends WM_CLOSE, the closest Windows equivalent of SIGTERM.
func (groupSignaler) SignalGroup(pid int, sig Signal) error {
	args := []string{"/T", "/PID", strconv.Itoa(pid)}
	if sig == SignalKill {
		args = append([]string{"/F"}, args...)
	}
	// #nosec G204
	return exec.Command("taskkill", args...).Run()
}
