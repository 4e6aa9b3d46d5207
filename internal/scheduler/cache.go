package scheduler

import (
	"sync"
	"time"
)

// JobState is the cached outcome of a job's most recent run
type JobState struct {
	Summary   interface{}
	Err       error
	UpdatedAt time.Time
	TTL       time.Duration
}

// IsStale returns true if the state is older than its TTL
func (s *JobState) IsStale(now time.Time) bool {
	return now.Sub(s.UpdatedAt) > s.TTL
}

// StateCache is a thread-safe cache of per-job run states. The readiness
// endpoint reads it to report whether the cycles are keeping up.
type StateCache struct {
	mu     sync.RWMutex
	states map[string]*JobState
}

// NewStateCache creates an empty cache
func NewStateCache() *StateCache {
	return &StateCache{states: make(map[string]*JobState)}
}

// Get retrieves the cached state for a job
func (c *StateCache) Get(job string) (*JobState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, exists := c.states[job]
	return state, exists
}

// Set stores a job's run state
func (c *StateCache) Set(job string, state *JobState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.states[job] = state
}

// GetAll returns a snapshot of every job state
func (c *StateCache) GetAll() map[string]*JobState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]*JobState, len(c.states))
	for k, v := range c.states {
		snapshot[k] = v
	}
	return snapshot
}
