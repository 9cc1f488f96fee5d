package stakes

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory stake store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	stakes map[string]*Stake
}

// NewMemoryStore creates an empty in-memory stake store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stakes: make(map[string]*Stake)}
}

func (s *MemoryStore) Create(_ context.Context, st *Stake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.stakes[st.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stakes[id]
	if !ok {
		return nil, ErrStakeNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) GetByEscrowParty(_ context.Context, escrowID int64, party string) (*Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Prefer the posted stake when a party staked, settled, and staked again.
	var last *Stake
	for _, st := range s.stakes {
		if st.EscrowID != escrowID || st.Party != party {
			continue
		}
		if st.Status == StatusPosted {
			cp := *st
			return &cp, nil
		}
		if last == nil || st.CreatedAt.After(last.CreatedAt) {
			last = st
		}
	}
	if last == nil {
		return nil, ErrStakeNotFound
	}
	cp := *last
	return &cp, nil
}

func (s *MemoryStore) Settle(_ context.Context, id, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stakes[id]
	if !ok {
		return ErrStakeNotFound
	}
	if st.Status != StatusPosted {
		return ErrStakeSettled
	}
	st.Status = status
	st.SettledAt = &at
	return nil
}

func (s *MemoryStore) ListByEscrow(_ context.Context, escrowID int64) ([]*Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Stake
	for _, st := range s.stakes {
		if st.EscrowID == escrowID {
			cp := *st
			out = append(out, &cp)
		}
	}
	return out, nil
}
