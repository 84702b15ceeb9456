//go:build !windows

package process

import (
	"bytes"
	"os"
	"strconv"
	"syscall"
)

// gone reports whether pid no longer runs. Zombies count as gone since
// reaping a reparented child is up to init.
func gone(pid int) bool {
	if syscall.Kill(pid, 0) != nil {
		return true
	}
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
