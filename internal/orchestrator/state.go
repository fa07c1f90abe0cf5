package orchestrator

import "sync"

// State is the orchestrator's lifecycle state.
type State string

// Orchestrator states.
const (
	StateStopped         State = "stopped"
	StateStarting        State = "starting"
	StateIdle            State = "idle"
	StateWorking         State = "working"
	StateQuietHours      State = "quiet_hours"
	StateBudgetExhausted State = "budget_exhausted"
	StateStopping        State = "stopping"
)

// IsValid checks if the state value is valid.
func (s State) IsValid() bool {
	switch s {
	case StateStopped, StateStarting, StateIdle, StateWorking,
		StateQuietHours, StateBudgetExhausted, StateStopping:
		return true
	}
	return false
}

// ItemLock tracks which work items the orchestrator currently holds. The
// syncer consults it to skip items mid-execution, so the two never mutate
// the same row concurrently.
type ItemLock struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewItemLock creates an empty lock set.
func NewItemLock() *ItemLock {
	return &ItemLock{held: make(map[string]bool)}
}

// Lock marks an item as held.
func (l *ItemLock) Lock(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[id] = true
}

// Unlock releases an item.
func (l *ItemLock) Unlock(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, id)
}

// IsLocked reports whether an item is held.
func (l *ItemLock) IsLocked(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[id]
}
