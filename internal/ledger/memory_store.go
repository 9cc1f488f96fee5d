package ledger

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/cinchpay/cinch/internal/amount"
	"github.com/cinchpay/cinch/internal/idgen"
)

// MemoryStore is an in-memory ledger store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]*big.Int
	entries  []*Entry
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[string]*big.Int)}
}

func (s *MemoryStore) GetBalance(_ context.Context, account string) (*Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bal, ok := s.balances[account]
	if !ok {
		bal = big.NewInt(0)
	}
	return &Balance{
		Account:   account,
		Available: amount.Format(bal),
		UpdatedAt: time.Now(),
	}, nil
}

func (s *MemoryStore) Credit(_ context.Context, account, amt, reference string) error {
	v, ok := amount.Parse(amt)
	if !ok {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.balances[account]
	if !ok {
		cur = big.NewInt(0)
	}
	s.balances[account] = new(big.Int).Add(cur, v)
	s.entries = append(s.entries, &Entry{
		ID:        idgen.WithPrefix("ent_"),
		Account:   account,
		Type:      "credit",
		Amount:    amt,
		Reference: reference,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *MemoryStore) Move(_ context.Context, from, to, amt, reference string) error {
	v, ok := amount.Parse(amt)
	if !ok {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fromBal, ok := s.balances[from]
	if !ok || fromBal.Cmp(v) < 0 {
		return ErrInsufficientBalance
	}
	toBal, ok := s.balances[to]
	if !ok {
		toBal = big.NewInt(0)
	}
	s.balances[from] = new(big.Int).Sub(fromBal, v)
	s.balances[to] = new(big.Int).Add(toBal, v)

	now := time.Now()
	s.entries = append(s.entries,
		&Entry{
			ID:           idgen.WithPrefix("ent_"),
			Account:      from,
			Type:         "transfer_out",
			Amount:       amt,
			Counterparty: to,
			Reference:    reference,
			CreatedAt:    now,
		},
		&Entry{
			ID:           idgen.WithPrefix("ent_"),
			Account:      to,
			Type:         "transfer_in",
			Amount:       amt,
			Counterparty: from,
			Reference:    reference,
			CreatedAt:    now,
		},
	)
	return nil
}

func (s *MemoryStore) GetHistory(_ context.Context, account string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	// Newest first.
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].Account == account {
			e := *s.entries[i]
			out = append(out, &e)
		}
	}
	return out, nil
}
