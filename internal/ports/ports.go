// Package ports lists listening TCP sockets and terminates the processes
// holding them.
package ports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	gnet "github.com/shirou/gopsutil/v4/net"
	gproc "github.com/shirou/gopsutil/v4/process"
)

// DefaultGracePeriod separates the graceful and forceful termination of port holders.
const DefaultGracePeriod = 500 * time.Millisecond

// ErrInspect wraps failures of the underlying connection table query.
var ErrInspect = errors.New("Failed to inspect network connections")

// Port is one listening socket and the process that owns it.
type Port struct {
	Port        uint32 `json:"port"`
	PID         int32  `json:"pid"`
	ProcessName string `json:"processName"`
	State       string `json:"state"`
	Protocol    string `json:"protocol"`
}

// Inspector queries the OS connection table. The function fields are
// replaced in tests.
type Inspector struct {
	grace  time.Duration
	logger *slog.Logger

	connections func(ctx context.Context) ([]gnet.ConnectionStat, error)
	processName func(ctx context.Context, pid int32) (string, error)
	terminate   func(ctx context.Context, pid int32) error
	kill        func(ctx context.Context, pid int32) error
	sleep       func(time.Duration)
	self        int32
}

func New(grace time.Duration, logger *slog.Logger) *Inspector {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{
		grace:  grace,
		logger: logger.With("component", "ports"),
		connections: func(ctx context.Context) ([]gnet.ConnectionStat, error) {
			return gnet.ConnectionsWithContext(ctx, "tcp")
		},
		processName: func(ctx context.Context, pid int32) (string, error) {
			p, err := gproc.NewProcessWithContext(ctx, pid)
			if err != nil {
				return "", err
			}
			return p.NameWithContext(ctx)
		},
		terminate: func(ctx context.Context, pid int32) error {
			p, err := gproc.NewProcessWithContext(ctx, pid)
			if err != nil {
				return err
			}
			return p.TerminateWithContext(ctx)
		},
		kill: func(ctx context.Context, pid int32) error {
			p, err := gproc.NewProcessWithContext(ctx, pid)
			if err != nil {
				return err
			}
			return p.KillWithContext(ctx)
		},
		sleep: time.Sleep,
		self:  int32(os.Getpid()),
	}
}

// List returns listening TCP ports sorted by port then pid. A port bound on
// several addresses by the same process is reported once.
func (i *Inspector) List(ctx context.Context) ([]Port, error) {
	conns, err := i.connections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInspect, err)
	}
	type key struct {
		port uint32
		pid  int32
	}
	seen := make(map[key]bool)
	names := make(map[int32]string)
	var out []Port
	for _, c := range conns {
		if c.Status != "LISTEN" {
			continue
		}
		k := key{c.Laddr.Port, c.Pid}
		if seen[k] {
			continue
		}
		seen[k] = true
		name, ok := names[c.Pid]
		if !ok && c.Pid > 0 {
			if n, err := i.processName(ctx, c.Pid); err == nil {
				name = n
			}
			names[c.Pid] = name
		}
		out = append(out, Port{Port: c.Laddr.Port, PID: c.Pid, ProcessName: name, State: "LISTEN", Protocol: "TCP"})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Port != out[b].Port {
			return out[a].Port < out[b].Port
		}
		return out[a].PID < out[b].PID
	})
	return out, nil
}

// Holders returns the pids owning a TCP socket whose local port is port.
func (i *Inspector) Holders(ctx context.Context, port uint32) ([]int32, error) {
	conns, err := i.connections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInspect, err)
	}
	seen := make(map[int32]bool)
	var pids []int32
	for _, c := range conns {
		if c.Laddr.Port != port || c.Pid <= 0 || seen[c.Pid] {
			continue
		}
		seen[c.Pid] = true
		pids = append(pids, c.Pid)
	}
	sort.Slice(pids, func(a, b int) bool { return pids[a] < pids[b] })
	return pids, nil
}

// Kill terminates every process holding port: graceful termination, the
// grace period, then a forceful kill. The daemon's own pid is never
// signalled. It returns the pids that were signalled.
func (i *Inspector) Kill(ctx context.Context, port uint32) ([]int32, error) {
	pids, err := i.Holders(ctx, port)
	if err != nil {
		return nil, err
	}
	targets := pids[:0]
	for _, pid := range pids {
		if pid == i.self {
			i.logger.Warn("refusing to kill own process", "port", port, "pid", pid)
			continue
		}
		targets = append(targets, pid)
	}
	if len(targets) == 0 {
		return nil, nil
	}
	for _, pid := range targets {
		if err := i.terminate(ctx, pid); err != nil {
			i.logger.Debug("terminate failed", "port", port, "pid", pid, "error", err)
		}
	}
	i.sleep(i.grace)
	for _, pid := range targets {
		if err := i.kill(ctx, pid); err != nil {
			i.logger.Debug("kill failed", "port", port, "pid", pid, "error", err)
		}
	}
	i.logger.Info("port holders killed", "port", port, "pids", targets)
	return targets, nil
}
