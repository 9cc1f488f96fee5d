package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cinchpay/cinch/internal/access"
	"github.com/cinchpay/cinch/internal/amount"
	"github.com/cinchpay/cinch/internal/events"
	"github.com/cinchpay/cinch/internal/metrics"
	"github.com/cinchpay/cinch/internal/payment"
	"github.com/cinchpay/cinch/internal/traces"
	"github.com/cinchpay/cinch/internal/validation"
)

// Store persists escrow data. Create assigns the next sequential ID.
type Store interface {
	Create(ctx context.Context, escrow *Escrow) error
	Get(ctx context.Context, id int64) (*Escrow, error)
	Update(ctx context.Context, escrow *Escrow) error
	ListByParty(ctx context.Context, addr string, limit int) ([]*Escrow, error)
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*Escrow, error)
}

// CreateRequest contains the parameters for creating a plain escrow.
type CreateRequest struct {
	BuyerAddr      string `json:"buyerAddr" binding:"required"`
	SellerAddr     string `json:"sellerAddr" binding:"required"`
	Amount         string `json:"amount" binding:"required"`
	Handle         string `json:"handle"`
	Duration       string `json:"duration"` // Duration string, e.g. "24h"
	ArbitratorAddr string `json:"arbitratorAddr"`
	ApprovalID     string `json:"approvalId"`
}

// CreatePrivateRequest contains the parameters for a confidential escrow.
type CreatePrivateRequest struct {
	BuyerAddr      string `json:"buyerAddr" binding:"required"`
	SellerAddr     string `json:"sellerAddr" binding:"required"`
	Handle         string `json:"handle" binding:"required"`
	Amount         string `json:"amount"`
	Duration       string `json:"duration"`
	ArbitratorAddr string `json:"arbitratorAddr"`
}

// Service implements the escrow lifecycle.
type Service struct {
	store             Store
	payments          *payment.Adapter
	guard             *access.Guard
	emitter           events.Emitter
	logger            *slog.Logger
	defaultArbitrator string
	nowFn             func() time.Time
	locks             sync.Map // per-escrow ID locks to prevent race conditions
}

// NewService creates a new escrow service.
func NewService(store Store, payments *payment.Adapter, guard *access.Guard) *Service {
	return &Service{
		store:    store,
		payments: payments,
		guard:    guard,
		emitter:  events.NopEmitter{},
		logger:   slog.Default(),
		nowFn:    time.Now,
	}
}

// WithEmitter sets the event emitter.
func (s *Service) WithEmitter(e events.Emitter) *Service {
	s.emitter = e
	return s
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// WithDefaultArbitrator sets the arbitrator assigned when a request names none.
func (s *Service) WithDefaultArbitrator(addr string) *Service {
	s.defaultArbitrator = strings.ToLower(addr)
	return s
}

// WithNowFunc overrides the clock. Tests only.
func (s *Service) WithNowFunc(fn func() time.Time) *Service {
	s.nowFn = fn
	return s
}

// escrowLock returns a mutex for the given escrow ID.
// This prevents concurrent state transitions (e.g. release + expiry racing).
func (s *Service) escrowLock(id int64) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Create creates a plain escrow and pulls the buyer's funds into custody.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Create")
	defer span.End()

	if req.Handle != "" {
		return nil, payment.ErrCannotMixPrivacyModes
	}
	if !amount.IsPositive(req.Amount) {
		return nil, ErrInvalidAmount
	}
	if err := s.guard.CheckTransferLimit(ctx, req.Amount, req.ApprovalID); err != nil {
		return nil, err
	}

	e, err := s.create(ctx, req.BuyerAddr, req.SellerAddr, req.ArbitratorAddr, req.Duration, payment.Plain(req.Amount))
	if err != nil {
		return nil, err
	}

	metrics.EscrowsCreatedTotal.WithLabelValues(string(payment.KindPlain)).Inc()
	s.emitter.Emit(ctx, events.EscrowCreated(e.ID, e.BuyerAddr, e.SellerAddr, e.Payment.Amount))
	s.logger.InfoContext(ctx, "escrow created",
		"escrow_id", e.ID, "buyer", e.BuyerAddr, "seller", e.SellerAddr, "amount", e.Payment.Amount)
	return e, nil
}

// CreatePrivate creates a confidential escrow around an encrypted handle.
func (s *Service) CreatePrivate(ctx context.Context, req CreatePrivateRequest) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.CreatePrivate")
	defer span.End()

	if req.Amount != "" {
		return nil, payment.ErrCannotMixPrivacyModes
	}
	if req.Handle == "" {
		return nil, payment.ErrCannotMixPrivacyModes
	}
	if !s.payments.PrivacyAvailable(ctx) {
		return nil, payment.ErrPrivacyNotAvailable
	}

	e, err := s.create(ctx, req.BuyerAddr, req.SellerAddr, req.ArbitratorAddr, req.Duration, payment.Confidential(req.Handle))
	if err != nil {
		return nil, err
	}

	metrics.EscrowsCreatedTotal.WithLabelValues(string(payment.KindConfidential)).Inc()
	s.emitter.Emit(ctx, events.PrivateEscrowCreated(e.ID, e.BuyerAddr, e.SellerAddr))
	s.logger.InfoContext(ctx, "private escrow created",
		"escrow_id", e.ID, "buyer", e.BuyerAddr, "seller", e.SellerAddr)
	return e, nil
}

func (s *Service) create(ctx context.Context, buyer, seller, arbitrator, duration string, p payment.Payment) (*Escrow, error) {
	buyer = validation.SanitizeAddress(buyer)
	seller = validation.SanitizeAddress(seller)
	if !validation.IsValidAddress(buyer) || validation.IsZeroAddress(buyer) ||
		!validation.IsValidAddress(seller) || validation.IsZeroAddress(seller) {
		return nil, ErrInvalidAddress
	}
	if buyer == seller {
		return nil, ErrSameParty
	}

	arb := s.defaultArbitrator
	if arbitrator != "" {
		arb = validation.SanitizeAddress(arbitrator)
		if !validation.IsValidAddress(arb) || validation.IsZeroAddress(arb) {
			return nil, ErrInvalidAddress
		}
	}

	d := DefaultDuration
	if duration != "" {
		parsed, err := time.ParseDuration(duration)
		if err != nil {
			return nil, ErrInvalidDuration
		}
		d = parsed
	}
	if d < MinDuration || d > MaxDuration {
		return nil, ErrInvalidDuration
	}

	now := s.nowFn()
	e := &Escrow{
		BuyerAddr:      buyer,
		SellerAddr:     seller,
		Payment:        p,
		ArbitratorAddr: arb,
		Status:         StatusActive,
		Duration:       d,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Pull funds into custody before the record exists. A failed pull means
	// no escrow; a failed record creation pays the funds back.
	reference := fmt.Sprintf("escrow:create:%s", buyer)
	if err := s.payments.Pull(ctx, buyer, p, reference); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, e); err != nil {
		if perr := s.payments.Payout(ctx, buyer, p, reference+":revert"); perr != nil {
			s.logger.ErrorContext(ctx, "CRITICAL: escrow record failed and pull could not be reverted",
				"buyer", buyer, "error", err, "revert_error", perr)
		}
		return nil, fmt.Errorf("failed to create escrow record: %w", err)
	}
	return e, nil
}

// Release pays the escrowed funds to the seller. Buyer only.
func (s *Service) Release(ctx context.Context, id int64, callerAddr string) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Release")
	defer span.End()

	mu := s.escrowLock(id)
	mu.Lock()
	defer mu.Unlock()

	e, err := s.getFresh(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireParty(callerAddr, e.BuyerAddr); err != nil {
		return nil, err
	}
	if e.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if e.Status != StatusActive {
		return nil, ErrInvalidStatus
	}
	return s.settle(ctx, e, StatusResolved, OutcomeReleased, e.SellerAddr)
}

// RefundBuyer returns the escrowed funds to the buyer. Seller only.
func (s *Service) RefundBuyer(ctx context.Context, id int64, callerAddr string) (*Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.RefundBuyer")
	defer span.End()

	mu := s.escrowLock(id)
	mu.Lock()
	defer mu.Unlock()

	e, err := s.getFresh(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireParty(callerAddr, e.SellerAddr); err != nil {
		return nil, err
	}
	if e.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if e.Status != StatusActive {
		return nil, ErrInvalidStatus
	}
	return s.settle(ctx, e, StatusRefunded, OutcomeRefunded, e.BuyerAddr)
}

// settle persists the terminal status before paying out, so a re-entrant
// call observes the tombstone and fails ErrAlreadyResolved. A failed payout
// reverts the transition.
func (s *Service) settle(ctx context.Context, e *Escrow, status Status, outcome, recipient string) (*Escrow, error) {
	prevStatus := e.Status
	now := s.nowFn()
	e.Status = status
	e.Outcome = outcome
	e.ResolvedAt = &now
	e.UpdatedAt = now
	if err := s.store.Update(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to update escrow: %w", err)
	}

	reference := fmt.Sprintf("escrow:%d:%s", e.ID, outcome)
	if err := s.payments.Payout(ctx, recipient, e.Payment, reference); err != nil {
		e.Status = prevStatus
		e.Outcome = ""
		e.ResolvedAt = nil
		e.UpdatedAt = s.nowFn()
		if uerr := s.store.Update(ctx, e); uerr != nil {
			s.logger.ErrorContext(ctx, "CRITICAL: escrow payout failed and status could not be reverted",
				"escrow_id", e.ID, "recipient", recipient, "payout_error", err, "revert_error", uerr)
		}
		return nil, fmt.Errorf("failed to pay out escrow: %w", err)
	}

	metrics.EscrowsResolvedTotal.WithLabelValues(outcome).Inc()
	metrics.EscrowDuration.Observe(now.Sub(e.CreatedAt).Seconds())
	if e.Payment.IsConfidential() {
		s.emitter.Emit(ctx, events.PrivateEscrowResolved(e.ID, outcome))
	} else {
		s.emitter.Emit(ctx, events.EscrowResolved(e.ID, outcome))
	}
	s.logger.InfoContext(ctx, "escrow settled",
		"escrow_id", e.ID, "outcome", outcome, "recipient", recipient)
	return e, nil
}

// Mutate runs fn against the current record under the escrow's lock and
// persists the result. Expiry is applied before fn runs, so fn never sees a
// stale Active record past its deadline.
func (s *Service) Mutate(ctx context.Context, id int64, fn func(*Escrow) error) (*Escrow, error) {
	mu := s.escrowLock(id)
	mu.Lock()
	defer mu.Unlock()

	e, err := s.getFresh(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(e); err != nil {
		return nil, err
	}
	e.UpdatedAt = s.nowFn()
	if err := s.store.Update(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to update escrow: %w", err)
	}
	return e, nil
}

// getFresh loads the record and applies lazy expiry. Caller holds the lock.
func (s *Service) getFresh(ctx context.Context, id int64) (*Escrow, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.expireIfDue(ctx, e)
}

// expireIfDue resolves an Active escrow past its deadline to Expired with
// the buyer refunded. Disputed escrows never expire; the dispute clock
// takes over.
func (s *Service) expireIfDue(ctx context.Context, e *Escrow) (*Escrow, error) {
	if e.Status != StatusActive || s.nowFn().Before(e.ExpiresAt()) {
		return e, nil
	}
	settled, err := s.settle(ctx, e, StatusExpired, OutcomeExpired, e.BuyerAddr)
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// Get returns an escrow by ID, expiring it first if due.
func (s *Service) Get(ctx context.Context, id int64) (*Escrow, error) {
	mu := s.escrowLock(id)
	mu.Lock()
	defer mu.Unlock()
	return s.getFresh(ctx, id)
}

// Outcome returns the final outcome of a settled escrow. settled is false
// for escrows still in flight.
func (s *Service) Outcome(ctx context.Context, id int64) (outcome string, settled bool, err error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	if !e.IsTerminal() {
		return "", false, nil
	}
	return e.Outcome, true, nil
}

// ListByParty returns escrows involving an address (as buyer or seller).
func (s *Service) ListByParty(ctx context.Context, addr string, limit int) ([]*Escrow, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByParty(ctx, strings.ToLower(addr), limit)
}

// SweepExpired expires Active escrows past their deadline. Returns how many
// were expired. Called by the background timer; expiry is also applied
// lazily on every read.
func (s *Service) SweepExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	due, err := s.store.ListExpired(ctx, s.nowFn(), limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, e := range due {
		mu := s.escrowLock(e.ID)
		mu.Lock()
		fresh, err := s.getFresh(ctx, e.ID)
		mu.Unlock()
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to expire escrow",
				"escrow_id", e.ID, "error", err)
			continue
		}
		if fresh.Status == StatusExpired {
			expired++
		}
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expired stale escrows", "count", expired)
	}
	return expired, nil
}
