package escrow

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory escrow store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	escrows map[int64]*Escrow
	nextID  int64
}

// NewMemoryStore creates an empty in-memory escrow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{escrows: make(map[int64]*Escrow)}
}

func (s *MemoryStore) Create(_ context.Context, e *Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.escrows[e.ID] = e.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.escrows[id]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return e.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, e *Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.escrows[e.ID]; !ok {
		return ErrEscrowNotFound
	}
	s.escrows[e.ID] = e.Clone()
	return nil
}

func (s *MemoryStore) ListByParty(_ context.Context, addr string, limit int) ([]*Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Escrow
	for _, e := range s.escrows {
		if e.BuyerAddr == addr || e.SellerAddr == addr {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListExpired(_ context.Context, before time.Time, limit int) ([]*Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Escrow
	for _, e := range s.escrows {
		if e.Status == StatusActive && !e.ExpiresAt().After(before) {
			out = append(out, e.Clone())
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
