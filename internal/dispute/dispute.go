// Package dispute implements commit-reveal dispute resolution for escrows.
//
// Plain escrows vote in two phases: each party commits a hash of its vote,
// then reveals the vote and salt before the reveal deadline. Confidential
// escrows vote directly; the confidentiality guarantee covers the amount,
// not the vote. Opposing votes leave the dispute to the arbitrator, who may
// force a direction once the arbitration delay has passed.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cinchpay/cinch/internal/access"
	"github.com/cinchpay/cinch/internal/amount"
	"github.com/cinchpay/cinch/internal/escrow"
	"github.com/cinchpay/cinch/internal/events"
	"github.com/cinchpay/cinch/internal/metrics"
	"github.com/cinchpay/cinch/internal/payment"
	"github.com/cinchpay/cinch/internal/stakes"
	"github.com/cinchpay/cinch/internal/traces"
	"github.com/cinchpay/cinch/internal/validation"
)

var (
	// ErrDisputeWindowClosed is returned for commits or reveals after the
	// reveal deadline, or dispute entry on a settled escrow.
	ErrDisputeWindowClosed = errors.New("dispute window closed")
	// ErrRevealWindowOpen is returned when Settle is called before the
	// reveal deadline.
	ErrRevealWindowOpen = errors.New("reveal window still open")
	// ErrAlreadyCommitted is returned when a party commits or votes twice.
	ErrAlreadyCommitted = errors.New("party already committed")
	// ErrNoCommit is returned when a party reveals without a commit.
	ErrNoCommit = errors.New("no commit to reveal")
	// ErrRevealMismatch is returned when the revealed vote and salt do not
	// hash to the stored commitment.
	ErrRevealMismatch = errors.New("reveal does not match commitment")
	// ErrWrongMode is returned when a plain-mode operation is applied to a
	// confidential escrow or vice versa.
	ErrWrongMode = errors.New("operation not available for this payment mode")
	// ErrArbitrationNotReady is returned when the arbitrator acts before
	// the arbitration delay has passed.
	ErrArbitrationNotReady = errors.New("arbitration delay has not passed")
	// ErrAwaitingArbitrator is returned when Settle finds opposing votes.
	ErrAwaitingArbitrator = errors.New("tied votes await the arbitrator")
	// ErrInvalidCommit is returned for malformed commitment hashes.
	ErrInvalidCommit = errors.New("commit must be a 32-byte hex hash")
	// ErrInvalidOutcome is returned for an unknown arbitrator direction.
	ErrInvalidOutcome = errors.New("outcome must be released or refunded")
)

// Resolution paths recorded in metrics.
const (
	pathVotes      = "votes"
	pathDeadline   = "deadline"
	pathArbitrator = "arbitrator"
)

// Service implements dispute resolution on top of the escrow lifecycle.
type Service struct {
	escrows           *escrow.Service
	payments          *payment.Adapter
	stakes            *stakes.Ledger
	guard             *access.Guard
	emitter           events.Emitter
	logger            *slog.Logger
	confidentialStake string
	nowFn             func() time.Time
}

// NewService creates a dispute service.
func NewService(escrows *escrow.Service, payments *payment.Adapter, stakeLedger *stakes.Ledger, guard *access.Guard) *Service {
	return &Service{
		escrows:  escrows,
		payments: payments,
		stakes:   stakeLedger,
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

// WithConfidentialStake sets the flat stake for confidential disputes. The
// hidden amount cannot parameterize the stake, so it is a fixed plain-token
// amount.
func (s *Service) WithConfidentialStake(amt string) *Service {
	s.confidentialStake = amt
	return s
}

// WithNowFunc overrides the clock. Tests only.
func (s *Service) WithNowFunc(fn func() time.Time) *Service {
	s.nowFn = fn
	return s
}

// Commit records a party's vote commitment on a plain escrow. The first
// commit opens the dispute and posts the committer's stake; the counterparty
// may commit independently until the reveal deadline.
func (s *Service) Commit(ctx context.Context, id int64, callerAddr, commitHex string) (*escrow.Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Commit", traces.EscrowID(id))
	defer span.End()

	commitHex = normalizeCommit(commitHex)
	if len(commitHex) != 66 || !validation.IsValidHex(commitHex[2:]) {
		return nil, ErrInvalidCommit
	}

	e, err := s.escrows.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Payment.IsConfidential() {
		return nil, ErrWrongMode
	}
	if err := s.guard.RequireParty(callerAddr, e.BuyerAddr, e.SellerAddr); err != nil {
		return nil, err
	}
	if err := s.checkDisputeOpen(e); err != nil {
		return nil, err
	}
	caller := strings.ToLower(callerAddr)
	if _, ok := e.Commits[caller]; ok {
		return nil, ErrAlreadyCommitted
	}

	// Stake: 0.1% of the escrow amount, minimum one smallest unit.
	stakeAmt, ok := amount.BasisShare(e.Payment.Amount, escrow.DisputeStakeBasis)
	if !ok {
		return nil, escrow.ErrInvalidAmount
	}

	// Pull the stake before touching escrow state; refunded if the state
	// change loses a race.
	stake, err := s.stakes.Deposit(ctx, id, caller, stakeAmt)
	if err != nil {
		return nil, err
	}

	firstCommit := false
	updated, err := s.escrows.Mutate(ctx, id, func(e *escrow.Escrow) error {
		if err := s.checkDisputeOpen(e); err != nil {
			return err
		}
		if _, ok := e.Commits[caller]; ok {
			return ErrAlreadyCommitted
		}
		if e.Status == escrow.StatusActive {
			firstCommit = true
			now := s.nowFn()
			deadline := now.Add(escrow.RevealWindow)
			e.Status = escrow.StatusDisputed
			e.DisputedAt = &now
			e.RevealDeadline = &deadline
			e.DisputeStake = stakeAmt
		}
		if e.Commits == nil {
			e.Commits = make(map[string]string)
		}
		e.Commits[caller] = commitHex
		return nil
	})
	if err != nil {
		if rerr := s.stakes.Refund(ctx, stake.ID); rerr != nil {
			s.logger.ErrorContext(ctx, "failed to refund stake after rejected commit",
				"escrow_id", id, "stake_id", stake.ID, "error", rerr)
		}
		return nil, err
	}

	if firstCommit {
		metrics.DisputesOpenedTotal.WithLabelValues(string(payment.KindPlain)).Inc()
		s.logger.InfoContext(ctx, "dispute opened",
			"escrow_id", id, "party", caller, "awaiting", updated.Counterparty(caller))
	}
	return updated, nil
}

// Reveal opens a committed vote. The vote and salt must hash to the stored
// commitment. Matching votes from both parties settle the dispute at once.
func (s *Service) Reveal(ctx context.Context, id int64, callerAddr string, vote bool, salt string) (*escrow.Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Reveal", traces.EscrowID(id))
	defer span.End()

	caller := strings.ToLower(callerAddr)
	updated, err := s.escrows.Mutate(ctx, id, func(e *escrow.Escrow) error {
		if e.IsTerminal() {
			return escrow.ErrAlreadyResolved
		}
		if e.Status != escrow.StatusDisputed {
			return escrow.ErrInvalidStatus
		}
		if e.Payment.IsConfidential() {
			return ErrWrongMode
		}
		if e.RevealDeadline != nil && !s.nowFn().Before(*e.RevealDeadline) {
			return ErrDisputeWindowClosed
		}
		commit, ok := e.Commits[caller]
		if !ok {
			if !e.IsParty(caller) {
				return access.ErrNotAuthorized
			}
			return ErrNoCommit
		}
		if _, revealed := e.Votes[caller]; revealed {
			return ErrAlreadyCommitted
		}

		expected, err := CommitHash(vote, salt)
		if err != nil {
			return err
		}
		if expected != commit {
			return ErrRevealMismatch
		}
		if e.Votes == nil {
			e.Votes = make(map[string]bool)
		}
		e.Votes[caller] = vote
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Both parties revealed and agree: settle without waiting for the
	// deadline. Opposing votes stay open for the arbitrator.
	if buyerVote, sellerVote, both := partyVotes(updated); both && buyerVote == sellerVote {
		return s.settleDispute(ctx, id, buyerVote, pathVotes)
	}
	return updated, nil
}

// VotePrivate casts a direct vote on a confidential escrow. The first vote
// raises the dispute and posts the configured flat stake.
func (s *Service) VotePrivate(ctx context.Context, id int64, callerAddr string, vote bool) (*escrow.Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.VotePrivate", traces.EscrowID(id))
	defer span.End()

	e, err := s.escrows.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.Payment.IsConfidential() {
		return nil, ErrWrongMode
	}
	if err := s.guard.RequireParty(callerAddr, e.BuyerAddr, e.SellerAddr); err != nil {
		return nil, err
	}
	if err := s.checkDisputeOpen(e); err != nil {
		return nil, err
	}
	caller := strings.ToLower(callerAddr)
	if _, ok := e.Votes[caller]; ok {
		return nil, ErrAlreadyCommitted
	}

	stake, err := s.stakes.Deposit(ctx, id, caller, s.confidentialStake)
	if err != nil {
		return nil, err
	}

	firstVote := false
	updated, err := s.escrows.Mutate(ctx, id, func(e *escrow.Escrow) error {
		if err := s.checkDisputeOpen(e); err != nil {
			return err
		}
		if _, ok := e.Votes[caller]; ok {
			return ErrAlreadyCommitted
		}
		if e.Status == escrow.StatusActive {
			firstVote = true
			now := s.nowFn()
			deadline := now.Add(escrow.RevealWindow)
			e.Status = escrow.StatusDisputed
			e.DisputedAt = &now
			e.RevealDeadline = &deadline
			e.DisputeStake = s.confidentialStake
		}
		if e.Votes == nil {
			e.Votes = make(map[string]bool)
		}
		e.Votes[caller] = vote
		return nil
	})
	if err != nil {
		if rerr := s.stakes.Refund(ctx, stake.ID); rerr != nil {
			s.logger.ErrorContext(ctx, "failed to refund stake after rejected vote",
				"escrow_id", id, "stake_id", stake.ID, "error", rerr)
		}
		return nil, err
	}

	if firstVote {
		metrics.DisputesOpenedTotal.WithLabelValues(string(payment.KindConfidential)).Inc()
		s.emitter.Emit(ctx, events.PrivateDisputeRaised(id, caller))
		s.logger.InfoContext(ctx, "private dispute opened", "escrow_id", id, "party", caller)
	}

	if buyerVote, sellerVote, both := partyVotes(updated); both && buyerVote == sellerVote {
		return s.settleDispute(ctx, id, buyerVote, pathVotes)
	}
	return updated, nil
}

// Settle resolves a dispute after the reveal deadline. Anyone may call it.
// Unrevealed commits forfeit their poster's stake. Direction: unanimous or
// single revealed vote wins; no votes refunds the buyer; opposing votes
// refuse and wait for the arbitrator.
func (s *Service) Settle(ctx context.Context, id int64) (*escrow.Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Settle", traces.EscrowID(id))
	defer span.End()

	e, err := s.escrows.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.IsTerminal() {
		return nil, escrow.ErrAlreadyResolved
	}
	if e.Status != escrow.StatusDisputed {
		return nil, escrow.ErrInvalidStatus
	}
	if e.RevealDeadline != nil && s.nowFn().Before(*e.RevealDeadline) {
		return nil, ErrRevealWindowOpen
	}

	buyerVote, hasBuyer := e.Votes[e.BuyerAddr]
	sellerVote, hasSeller := e.Votes[e.SellerAddr]
	var release bool
	switch {
	case hasBuyer && hasSeller && buyerVote != sellerVote:
		return nil, ErrAwaitingArbitrator
	case hasBuyer:
		release = buyerVote
	case hasSeller:
		release = sellerVote
	default:
		// Nobody revealed. Mirror the expiry policy and refund the buyer.
		release = false
	}
	return s.settleDispute(ctx, id, release, pathDeadline)
}

// ArbitratorResolve forces a direction. Assigned arbitrator only, and only
// after the arbitration delay.
func (s *Service) ArbitratorResolve(ctx context.Context, id int64, callerAddr, outcome string) (*escrow.Escrow, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.ArbitratorResolve", traces.EscrowID(id), traces.Outcome(outcome))
	defer span.End()

	var release bool
	switch outcome {
	case escrow.OutcomeReleased:
		release = true
	case escrow.OutcomeRefunded:
		release = false
	default:
		return nil, ErrInvalidOutcome
	}

	e, err := s.escrows.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireParty(callerAddr, e.ArbitratorAddr); err != nil {
		return nil, err
	}
	if e.IsTerminal() {
		return nil, escrow.ErrAlreadyResolved
	}
	if e.Status != escrow.StatusDisputed {
		return nil, escrow.ErrInvalidStatus
	}
	if e.DisputedAt == nil || s.nowFn().Before(e.DisputedAt.Add(escrow.ArbitratorDelay)) {
		return nil, ErrArbitrationNotReady
	}
	return s.settleDispute(ctx, id, release, pathArbitrator)
}

// checkDisputeOpen verifies a dispute can be entered or joined.
func (s *Service) checkDisputeOpen(e *escrow.Escrow) error {
	if e.IsTerminal() {
		return escrow.ErrAlreadyResolved
	}
	switch e.Status {
	case escrow.StatusActive:
		return nil
	case escrow.StatusDisputed:
		if e.RevealDeadline != nil && !s.nowFn().Before(*e.RevealDeadline) {
			return ErrDisputeWindowClosed
		}
		return nil
	default:
		return escrow.ErrInvalidStatus
	}
}

// settleDispute writes the terminal status, pays out, and settles stakes.
// The status write precedes the payout so re-entrant calls observe the
// tombstone; a failed payout reverts the transition.
func (s *Service) settleDispute(ctx context.Context, id int64, release bool, path string) (*escrow.Escrow, error) {
	outcome := escrow.OutcomeRefunded
	if release {
		outcome = escrow.OutcomeReleased
	}

	updated, err := s.escrows.Mutate(ctx, id, func(e *escrow.Escrow) error {
		if e.IsTerminal() {
			return escrow.ErrAlreadyResolved
		}
		if e.Status != escrow.StatusDisputed {
			return escrow.ErrInvalidStatus
		}
		now := s.nowFn()
		if release {
			e.Status = escrow.StatusResolved
		} else {
			e.Status = escrow.StatusRefunded
		}
		e.Outcome = outcome
		e.ResolvedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	recipient := updated.BuyerAddr
	if release {
		recipient = updated.SellerAddr
	}
	reference := fmt.Sprintf("escrow:%d:dispute:%s", id, outcome)
	if err := s.payments.Payout(ctx, recipient, updated.Payment, reference); err != nil {
		if _, merr := s.escrows.Mutate(ctx, id, func(e *escrow.Escrow) error {
			e.Status = escrow.StatusDisputed
			e.Outcome = ""
			e.ResolvedAt = nil
			return nil
		}); merr != nil {
			s.logger.ErrorContext(ctx, "CRITICAL: dispute payout failed and status could not be reverted",
				"escrow_id", id, "recipient", recipient, "payout_error", err, "revert_error", merr)
		}
		return nil, fmt.Errorf("failed to pay out dispute: %w", err)
	}

	s.settleStakes(ctx, updated, release)

	metrics.DisputesResolvedTotal.WithLabelValues(path).Inc()
	metrics.EscrowsResolvedTotal.WithLabelValues(outcome).Inc()
	metrics.EscrowDuration.Observe(s.nowFn().Sub(updated.CreatedAt).Seconds())
	if updated.Payment.IsConfidential() {
		s.emitter.Emit(ctx, events.PrivateEscrowResolved(id, outcome))
	} else {
		s.emitter.Emit(ctx, events.EscrowResolved(id, outcome))
	}
	s.logger.InfoContext(ctx, "dispute settled",
		"escrow_id", id, "outcome", outcome, "path", path)
	return updated, nil
}

// settleStakes refunds stakes of parties whose revealed vote matched the
// outcome and forfeits the rest, including unrevealed commits. Exactly-once
// is enforced by the stake ledger; failures are logged, never retried here.
func (s *Service) settleStakes(ctx context.Context, e *escrow.Escrow, release bool) {
	posted, err := s.stakes.ListByEscrow(ctx, e.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list stakes for settlement",
			"escrow_id", e.ID, "error", err)
		return
	}
	for _, st := range posted {
		if st.Status != stakes.StatusPosted {
			continue
		}
		vote, revealed := e.Votes[st.Party]
		var serr error
		if revealed && vote == release {
			serr = s.stakes.Refund(ctx, st.ID)
		} else {
			serr = s.stakes.Forfeit(ctx, st.ID)
		}
		if serr != nil {
			s.logger.ErrorContext(ctx, "failed to settle stake",
				"escrow_id", e.ID, "stake_id", st.ID, "error", serr)
		}
	}
}

// partyVotes returns both parties' votes and whether both have voted.
func partyVotes(e *escrow.Escrow) (buyerVote, sellerVote, both bool) {
	buyerVote, hasBuyer := e.Votes[e.BuyerAddr]
	sellerVote, hasSeller := e.Votes[e.SellerAddr]
	return buyerVote, sellerVote, hasBuyer && hasSeller
}
