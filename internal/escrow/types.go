// Package escrow implements the escrow lifecycle engine.
//
// Flow:
//  1. Buyer creates an escrow → payment pulled into custody, record Active
//  2. Buyer releases → funds paid to seller (Resolved)
//  3. Seller refunds → funds returned to buyer (Refunded)
//  4. Either party commits a dispute vote → record Disputed (see dispute)
//  5. Deadline passes with no action → buyer refunded (Expired)
package escrow

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/cinchpay/cinch/internal/payment"
)

var (
	ErrEscrowNotFound  = errors.New("escrow not found")
	ErrAlreadyResolved = errors.New("escrow already resolved")
	ErrInvalidStatus   = errors.New("invalid escrow status for this operation")
	ErrInvalidAddress  = errors.New("invalid party address")
	ErrSameParty       = errors.New("buyer and seller cannot be the same address")
	ErrInvalidDuration = errors.New("escrow duration out of range")
	ErrInvalidAmount   = errors.New("invalid amount")
)

// Status represents the state of an escrow. Transitions are one-directional
// and terminal states are permanent.
type Status string

const (
	StatusActive   Status = "active"   // Created, funds in custody
	StatusDisputed Status = "disputed" // A party opened a dispute
	StatusResolved Status = "resolved" // Funds paid to seller
	StatusRefunded Status = "refunded" // Funds returned to buyer
	StatusExpired  Status = "expired"  // Deadline passed, buyer refunded
)

// Terminal outcomes recorded on settled escrows.
const (
	OutcomeReleased = "released"
	OutcomeRefunded = "refunded"
	OutcomeExpired  = "expired"
)

const (
	// MinDuration and MaxDuration bound the escrow deadline.
	MinDuration = time.Hour
	MaxDuration = 720 * time.Hour // 30 days

	// DefaultDuration applies when a request omits the duration.
	DefaultDuration = 72 * time.Hour

	// ArbitratorDelay is how long after a dispute opens before the
	// arbitrator may force a direction.
	ArbitratorDelay = 24 * time.Hour

	// RevealWindow is how long parties have to reveal committed votes.
	RevealWindow = 24 * time.Hour

	// DisputeStakeBasis is the dispute stake in basis points of the escrow
	// amount (10 = 0.1%).
	DisputeStakeBasis = 10
)

// Escrow is a single escrow record.
type Escrow struct {
	ID             int64           `json:"id"`
	BuyerAddr      string          `json:"buyerAddr"`
	SellerAddr     string          `json:"sellerAddr"`
	Payment        payment.Payment `json:"payment"`
	ArbitratorAddr string          `json:"arbitratorAddr"`
	Status         Status          `json:"status"`
	Duration       time.Duration   `json:"-"`

	DisputedAt     *time.Time        `json:"disputedAt,omitempty"`
	RevealDeadline *time.Time        `json:"revealDeadline,omitempty"`
	Commits        map[string]string `json:"commits,omitempty"` // party -> commit hash
	Votes          map[string]bool   `json:"votes,omitempty"`   // party -> vote (true = release)
	DisputeStake   string            `json:"disputeStake,omitempty"`

	Outcome    string     `json:"outcome,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// IsTerminal returns true if the escrow is in a final state.
func (e *Escrow) IsTerminal() bool {
	switch e.Status {
	case StatusResolved, StatusRefunded, StatusExpired:
		return true
	}
	return false
}

// ExpiresAt is the deadline after which an Active escrow refunds the buyer.
func (e *Escrow) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.Duration)
}

// IsParty reports whether addr is the buyer or the seller.
func (e *Escrow) IsParty(addr string) bool {
	a := strings.ToLower(addr)
	return a == e.BuyerAddr || a == e.SellerAddr
}

// Counterparty returns the other party, or "" if addr is not a party.
func (e *Escrow) Counterparty(addr string) string {
	switch strings.ToLower(addr) {
	case e.BuyerAddr:
		return e.SellerAddr
	case e.SellerAddr:
		return e.BuyerAddr
	}
	return ""
}

// Clone returns a deep copy.
func (e *Escrow) Clone() *Escrow {
	cp := *e
	if e.Commits != nil {
		cp.Commits = make(map[string]string, len(e.Commits))
		for k, v := range e.Commits {
			cp.Commits[k] = v
		}
	}
	if e.Votes != nil {
		cp.Votes = make(map[string]bool, len(e.Votes))
		for k, v := range e.Votes {
			cp.Votes[k] = v
		}
	}
	if e.DisputedAt != nil {
		t := *e.DisputedAt
		cp.DisputedAt = &t
	}
	if e.RevealDeadline != nil {
		t := *e.RevealDeadline
		cp.RevealDeadline = &t
	}
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

// MarshalJSON adds the derived deadline fields to the serialized record.
func (e *Escrow) MarshalJSON() ([]byte, error) {
	type alias Escrow
	return json.Marshal(struct {
		*alias
		Duration  string    `json:"duration"`
		ExpiresAt time.Time `json:"expiresAt"`
	}{
		alias:     (*alias)(e),
		Duration:  e.Duration.String(),
		ExpiresAt: e.ExpiresAt(),
	})
}
