package process

// Signal is the platform-neutral termination request sent to a process group.
type Signal int

const (
	// SignalTerminate asks the group to shut down (SIGTERM, taskkill /T).
	SignalTerminate Signal = iota
	// SignalKill forcibly ends the group (SIGKILL, taskkill /F /T).
	SignalKill
)

func (s Signal) String() string {
	switch s {
	case SignalTerminate:
		return "terminate"
	case SignalKill:
		return "kill"
	}
	return "unknown"
}

// Signaler delivers a Signal to the process group led by pid.
type Signaler interface {
	SignalGroup(pid int, sig Signal) error
}

// SignalerFunc adapts a function to Signaler.
type SignalerFunc func(pid int, sig Signal) error

func (f SignalerFunc) SignalGroup(pid int, sig Signal) error { return f(pid, sig) }

// DefaultSignaler returns the implementation for the running platform.
func DefaultSignaler() Signaler { return groupSignaler{} }
