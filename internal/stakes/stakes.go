// Package stakes manages the dispute stakes parties post when opening or
// voting in a dispute. A stake is pulled into engine custody when posted and
// settles exactly once: refunded to its poster or forfeited to the treasury.
package stakes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cinchpay/cinch/internal/idgen"
	"github.com/cinchpay/cinch/internal/metrics"
	"github.com/cinchpay/cinch/internal/registry"
	"github.com/cinchpay/cinch/internal/token"
)

var (
	// ErrStakeNotFound is returned when a stake does not exist.
	ErrStakeNotFound = errors.New("stakes: stake not found")
	// ErrStakeSettled is returned on a second settlement attempt.
	ErrStakeSettled = errors.New("stakes: stake already settled")
	// ErrAlreadyStaked is returned when a party already holds a posted stake
	// on the same escrow.
	ErrAlreadyStaked = errors.New("stakes: party already staked on escrow")
)

// Stake statuses.
const (
	StatusPosted    = "posted"
	StatusRefunded  = "refunded"
	StatusForfeited = "forfeited"
)

// Stake is a posted dispute stake.
type Stake struct {
	ID        string     `json:"id"`
	EscrowID  int64      `json:"escrowId"`
	Party     string     `json:"party"`
	Amount    string     `json:"amount"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	SettledAt *time.Time `json:"settledAt,omitempty"`
}

// Store persists stakes.
type Store interface {
	Create(ctx context.Context, s *Stake) error
	Get(ctx context.Context, id string) (*Stake, error)
	GetByEscrowParty(ctx context.Context, escrowID int64, party string) (*Stake, error)
	// Settle marks a posted stake with the given terminal status. Returns
	// ErrStakeSettled if the stake is no longer posted.
	Settle(ctx context.Context, id, status string, at time.Time) error
	ListByEscrow(ctx context.Context, escrowID int64) ([]*Stake, error)
}

// Ledger moves stake funds and records their lifecycle.
type Ledger struct {
	store    Store
	token    token.Fungible
	registry registry.Registry
	nowFn    func() time.Time
}

// NewLedger creates a stake ledger.
func NewLedger(store Store, tok token.Fungible, reg registry.Registry) *Ledger {
	return &Ledger{store: store, token: tok, registry: reg, nowFn: time.Now}
}

// WithNowFunc overrides the clock. Tests only.
func (l *Ledger) WithNowFunc(fn func() time.Time) *Ledger {
	l.nowFn = fn
	return l
}

// Deposit pulls amt from party into custody and records a posted stake. The
// pull happens first; if recording fails the funds are returned.
func (l *Ledger) Deposit(ctx context.Context, escrowID int64, party, amt string) (*Stake, error) {
	party = strings.ToLower(party)
	if existing, err := l.store.GetByEscrowParty(ctx, escrowID, party); err == nil && existing.Status == StatusPosted {
		return nil, ErrAlreadyStaked
	}

	reference := fmt.Sprintf("stake:escrow:%d", escrowID)
	if err := l.token.TransferFrom(ctx, party, amt, reference); err != nil {
		return nil, err
	}

	s := &Stake{
		ID:        idgen.WithPrefix("stk_"),
		EscrowID:  escrowID,
		Party:     party,
		Amount:    amt,
		Status:    StatusPosted,
		CreatedAt: l.nowFn(),
	}
	if err := l.store.Create(ctx, s); err != nil {
		if rerr := l.token.Transfer(ctx, party, amt, reference+":revert"); rerr != nil {
			return nil, fmt.Errorf("record stake: %v (stake refund also failed: %w)", err, rerr)
		}
		return nil, fmt.Errorf("record stake: %w", err)
	}
	return s, nil
}

// Refund returns a posted stake to its poster.
func (l *Ledger) Refund(ctx context.Context, id string) error {
	return l.settle(ctx, id, StatusRefunded)
}

// Forfeit sends a posted stake to the treasury.
func (l *Ledger) Forfeit(ctx context.Context, id string) error {
	return l.settle(ctx, id, StatusForfeited)
}

func (l *Ledger) settle(ctx context.Context, id, status string) error {
	s, err := l.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.Status != StatusPosted {
		return ErrStakeSettled
	}

	recipient := s.Party
	if status == StatusForfeited {
		treasury, err := l.registry.Treasury(ctx)
		if err != nil {
			return fmt.Errorf("resolve treasury: %w", err)
		}
		recipient = treasury
	}

	// Mark settled before moving funds so a crashed payout never allows a
	// second settlement of the same stake.
	if err := l.store.Settle(ctx, id, status, l.nowFn()); err != nil {
		return err
	}
	reference := fmt.Sprintf("stake:%s:%s", status, s.ID)
	if err := l.token.Transfer(ctx, recipient, s.Amount, reference); err != nil {
		return fmt.Errorf("stake payout: %w", err)
	}

	switch status {
	case StatusRefunded:
		metrics.StakesRefundedTotal.Inc()
	case StatusForfeited:
		metrics.StakesForfeitedTotal.Inc()
	}
	return nil
}

// Posted returns the posted stake a party holds on an escrow, if any.
func (l *Ledger) Posted(ctx context.Context, escrowID int64, party string) (*Stake, error) {
	s, err := l.store.GetByEscrowParty(ctx, escrowID, strings.ToLower(party))
	if err != nil {
		return nil, err
	}
	if s.Status != StatusPosted {
		return nil, ErrStakeNotFound
	}
	return s, nil
}

// ListByEscrow returns all stakes recorded against an escrow.
func (l *Ledger) ListByEscrow(ctx context.Context, escrowID int64) ([]*Stake, error) {
	return l.store.ListByEscrow(ctx, escrowID)
}
