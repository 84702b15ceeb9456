package registry

import "sync"

// Registry maps caller-chosen session ids to the OS pid of the process
// spawned for them. It is safe for concurrent use; the lock is held only
// for the map operation itself.
type Registry struct {
	mu    sync.Mutex
	procs map[string]int
}

func New() *Registry {
	return &Registry{procs: make(map[string]int)}
}

// Put records pid for session, replacing any previous mapping.
// The previous occupant, if any, is not signalled.
func (r *Registry) Put(session string, pid int) {
	r.mu.Lock()
	r.procs[session] = pid
	r.mu.Unlock()
}

// Get returns the pid recorded for session.
func (r *Registry) Get(session string) (int, bool) {
	r.mu.Lock()
	pid, ok := r.procs[session]
	r.mu.Unlock()
	return pid, ok
}

// Take removes session and returns the pid it pointed at.
func (r *Registry) Take(session string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid, ok := r.procs[session]
	if ok {
		delete(r.procs, session)
	}
	return pid, ok
}

// RemoveIf removes session only while it still maps to pid. It reports
// whether an entry was removed. Used on natural exit so that a later
// spawn reusing the id keeps its mapping.
func (r *Registry) RemoveIf(session string, pid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.procs[session]; ok && cur == pid {
		delete(r.procs, session)
		return true
	}
	return false
}

// Sessions returns a snapshot of the registered session ids.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.procs))
	for s := range r.procs {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	n := len(r.procs)
	r.mu.Unlock()
	return n
}
