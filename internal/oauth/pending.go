package oauth

import (
	"sync"
	"time"
)

type pendingFlow struct {
	provider  Provider
	verifier  string
	createdAt time.Time
}

// pendingTable maps state tokens to in-flight flows. take consumes an entry
// atomically, so a state token can complete at most one exchange.
type pendingTable struct {
	mu    sync.Mutex
	flows map[string]pendingFlow
}

func newPendingTable() *pendingTable {
	return &pendingTable{flows: make(map[string]pendingFlow)}
}

func (t *pendingTable) put(state string, f pendingFlow) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flows[state] = f
	return len(t.flows)
}

func (t *pendingTable) take(state string) (pendingFlow, bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.flows[state]
	if ok {
		delete(t.flows, state)
	}
	return f, ok, len(t.flows)
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}
