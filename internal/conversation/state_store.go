package conversation

import (
	"context"
	"sync"
	"time"
)

// DefaultStateTTL is how long an untouched dialog survives
const DefaultStateTTL = 30 * time.Minute

// StateStore keeps at most one State per user
type StateStore interface {
	// Get returns the user's state; ok is false when there is none
	Get(ctx context.Context, userID int64) (state *State, ok bool, err error)
	Put(ctx context.Context, state *State) error
	Delete(ctx context.Context, userID int64) error
}

// Sweeper is implemented by stores that need explicit expiry
type Sweeper interface {
	Sweep(now time.Time) int
}

// MemoryStateStore keeps dialogs in process memory
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[int64]*State
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryStateStore creates a store whose states expire after ttl of inactivity
func NewMemoryStateStore(ttl time.Duration, now func() time.Time) *MemoryStateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStateStore{
		states: make(map[int64]*State),
		ttl:    ttl,
		now:    now,
	}
}

func (s *MemoryStateStore) Get(ctx context.Context, userID int64) (*State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[userID]
	if !ok {
		return nil, false, nil
	}
	if s.expired(state, s.now()) {
		delete(s.states, userID)
		return nil, false, nil
	}
	return state.Clone(), true, nil
}

func (s *MemoryStateStore) Put(ctx context.Context, state *State) error {
	c := state.Clone()
	c.UpdatedAt = s.now()

	s.mu.Lock()
	s.states[state.UserID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStateStore) Delete(ctx context.Context, userID int64) error {
	s.mu.Lock()
	delete(s.states, userID)
	s.mu.Unlock()
	return nil
}

// Sweep drops expired states and returns how many were removed
func (s *MemoryStateStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, state := range s.states {
		if s.expired(state, now) {
			delete(s.states, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored states, expired ones included
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *MemoryStateStore) expired(state *State, now time.Time) bool {
	return now.Sub(state.UpdatedAt) > s.ttl
}
