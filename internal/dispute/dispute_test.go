package dispute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cinchpay/cinch/internal/access"
	"github.com/cinchpay/cinch/internal/escrow"
	"github.com/cinchpay/cinch/internal/events"
	"github.com/cinchpay/cinch/internal/ledger"
	"github.com/cinchpay/cinch/internal/payment"
	"github.com/cinchpay/cinch/internal/registry"
	"github.com/cinchpay/cinch/internal/stakes"
	"github.com/cinchpay/cinch/internal/token"
)

const (
	vault      = "0x00000000000000000000000000000000000c1c40"
	treasury   = "0x00000000000000000000000000000000000f33e5"
	buyer      = "0xaaaa111111111111111111111111111111111111"
	seller     = "0xbbbb111111111111111111111111111111111111"
	arbitrator = "0xcccc111111111111111111111111111111111111"
	stranger   = "0xdddd111111111111111111111111111111111111"

	buyerSalt  = "0xdeadbeef01"
	sellerSalt = "0xfeedface02"
)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e events.Event) {
	r.events = append(r.events, e)
}

type testEnv struct {
	escrows *escrow.Service
	svc     *Service
	ledger  *ledger.Ledger
	bridge  *token.MemoryBridge
	emitter *recordingEmitter
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		ledger:  ledger.New(ledger.NewMemoryStore()),
		bridge:  token.NewMemoryBridge(true),
		emitter: &recordingEmitter{},
		now:     time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	nowFn := func() time.Time { return env.now }
	tok := token.NewLedgerToken(env.ledger, vault)
	adapter := payment.NewAdapter(tok, env.bridge)
	guard := access.NewGuard("", nil)
	stakeLedger := stakes.NewLedger(stakes.NewMemoryStore(), tok, registry.NewStatic(treasury, arbitrator)).
		WithNowFunc(nowFn)
	env.escrows = escrow.NewService(escrow.NewMemoryStore(), adapter, guard).
		WithEmitter(env.emitter).
		WithDefaultArbitrator(arbitrator).
		WithNowFunc(nowFn)
	env.svc = NewService(env.escrows, adapter, stakeLedger, guard).
		WithEmitter(env.emitter).
		WithConfidentialStake("1.000000").
		WithNowFunc(nowFn)
	return env
}

func (env *testEnv) fund(t *testing.T, addr, amt string) {
	t.Helper()
	if err := env.ledger.Credit(context.Background(), addr, amt, "seed"); err != nil {
		t.Fatalf("fund %s: %v", addr, err)
	}
}

func (env *testEnv) balance(t *testing.T, addr string) string {
	t.Helper()
	bal, err := env.ledger.Balance(context.Background(), addr)
	if err != nil {
		t.Fatalf("balance %s: %v", addr, err)
	}
	return bal.Available
}

// createEscrow creates a funded plain escrow of 4.000000 (dispute stake
// 0.004000 at 0.1%).
func (env *testEnv) createEscrow(t *testing.T) *escrow.Escrow {
	t.Helper()
	env.fund(t, buyer, "10.000000")
	env.fund(t, seller, "10.000000")
	e, err := env.escrows.Create(context.Background(), escrow.CreateRequest{
		BuyerAddr:  buyer,
		SellerAddr: seller,
		Amount:     "4.000000",
		Duration:   "168h",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return e
}

func (env *testEnv) createPrivateEscrow(t *testing.T) *escrow.Escrow {
	t.Helper()
	env.fund(t, buyer, "10.000000")
	env.fund(t, seller, "10.000000")
	handle := env.bridge.Issue(buyer)
	e, err := env.escrows.CreatePrivate(context.Background(), escrow.CreatePrivateRequest{
		BuyerAddr:  buyer,
		SellerAddr: seller,
		Handle:     handle,
		Duration:   "168h",
	})
	if err != nil {
		t.Fatalf("CreatePrivate: %v", err)
	}
	return e
}

func mustCommitHash(t *testing.T, vote bool, salt string) string {
	t.Helper()
	h, err := CommitHash(vote, salt)
	if err != nil {
		t.Fatalf("CommitHash: %v", err)
	}
	return h
}

func TestCommitHash(t *testing.T) {
	release := mustCommitHash(t, true, buyerSalt)
	refund := mustCommitHash(t, false, buyerSalt)
	if release == refund {
		t.Error("opposite votes must not collide")
	}
	if again := mustCommitHash(t, true, buyerSalt); again != release {
		t.Error("CommitHash must be deterministic")
	}
	if len(release) != 66 {
		t.Errorf("hash length = %d, want 66", len(release))
	}
	if _, err := CommitHash(true, "not-hex"); !errors.Is(err, ErrBadSalt) {
		t.Errorf("bad salt = %v, want ErrBadSalt", err)
	}
}

func TestCommitOpensDispute(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	ctx := context.Background()

	got, err := env.svc.Commit(ctx, e.ID, buyer, mustCommitHash(t, false, buyerSalt))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got.Status != escrow.StatusDisputed {
		t.Errorf("Status = %q, want disputed", got.Status)
	}
	if got.RevealDeadline == nil || !got.RevealDeadline.Equal(env.now.Add(escrow.RevealWindow)) {
		t.Errorf("RevealDeadline = %v", got.RevealDeadline)
	}
	if got.DisputeStake != "0.004000" {
		t.Errorf("DisputeStake = %q, want 0.004000", got.DisputeStake)
	}
	// Stake pulled from the committer.
	if bal := env.balance(t, buyer); bal != "5.996000" {
		t.Errorf("buyer balance = %q, want 5.996000", bal)
	}
}

func TestCommitGuards(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	ctx := context.Background()
	commit := mustCommitHash(t, true, buyerSalt)

	if _, err := env.svc.Commit(ctx, e.ID, stranger, commit); !errors.Is(err, access.ErrNotAuthorized) {
		t.Errorf("stranger commit = %v, want ErrNotAuthorized", err)
	}
	if _, err := env.svc.Commit(ctx, e.ID, buyer, "0x1234"); !errors.Is(err, ErrInvalidCommit) {
		t.Errorf("short commit = %v, want ErrInvalidCommit", err)
	}

	// Right length but not hex: rejected before any stake moves, since a
	// stored non-hex commitment could never be revealed.
	nonHex := "0x" + "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"
	if _, err := env.svc.Commit(ctx, e.ID, buyer, nonHex); !errors.Is(err, ErrInvalidCommit) {
		t.Errorf("non-hex commit = %v, want ErrInvalidCommit", err)
	}
	if got := env.balance(t, buyer); got != "6.000000" {
		t.Errorf("buyer balance after rejected commit = %q, want 6.000000", got)
	}

	if _, err := env.svc.Commit(ctx, e.ID, buyer, commit); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := env.svc.Commit(ctx, e.ID, buyer, commit); !errors.Is(err, ErrAlreadyCommitted) {
		t.Errorf("double commit = %v, want ErrAlreadyCommitted", err)
	}

	// Counterparty may still commit until the deadline.
	env.now = env.now.Add(escrow.RevealWindow - time.Minute)
	if _, err := env.svc.Commit(ctx, e.ID, seller, mustCommitHash(t, true, sellerSalt)); err != nil {
		t.Errorf("seller commit within window: %v", err)
	}
}

func TestCommitAfterDeadlineClosed(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	ctx := context.Background()

	env.svc.Commit(ctx, e.ID, buyer, mustCommitHash(t, false, buyerSalt))
	env.now = env.now.Add(escrow.RevealWindow)

	_, err := env.svc.Commit(ctx, e.ID, seller, mustCommitHash(t, true, sellerSalt))
	if !errors.Is(err, ErrDisputeWindowClosed) {
		t.Errorf("late commit = %v, want ErrDisputeWindowClosed", err)
	}
	// The rejected commit's stake was returned.
	if bal := env.balance(t, seller); bal != "10.000000" {
		t.Errorf("seller balance = %q, want 10.000000", bal)
	}
}

func TestCommitOnSettledEscrow(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	ctx := context.Background()

	env.escrows.Release(ctx, e.ID, buyer)
	_, err := env.svc.Commit(ctx, e.ID, buyer, mustCommitHash(t, false, buyerSalt))
	if !errors.Is(err, escrow.ErrAlreadyResolved) {
		t.Errorf("commit on settled escrow = %v, want ErrAlreadyResolved", err)
	}
}

func TestCommitOnConfidentialEscrow(t *testing.T) {
	env := newTestEnv(t)
	e := env.createPrivateEscrow(t)
	_, err := env.svc.Commit(context.Background(), e.ID, buyer, mustCommitHash(t, false, buyerSalt))
	if !errors.Is(err, ErrWrongMode) {
		t.Errorf("commit on confidential escrow = %v, want ErrWrongMode", err)
	}
}

func TestStakeHasFloorOfOneUnit(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, buyer, "1.000000")
	ctx := context.Background()
	e, err := env.escrows.Create(ctx, escrow.CreateRequest{
		BuyerAddr: buyer, SellerAddr: seller, Amount: "0.000100", Duration: "24h",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := env.svc.Commit(ctx, e.ID, buyer, mustCommitHash(t, false, buyerSalt))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got.DisputeStake != "0.000001" {
		t.Errorf("DisputeStake = %q, want floor 0.000001", got.DisputeStake)
	}
}

func TestRevealMismatch(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	ctx := context.Background()

	env.svc.Commit(ctx, e.ID, buyer, mustCommitHash(t, false, buyerSalt))

	// Wrong vote.
	if _, err := env.svc.Reveal(ctx, e.ID, buyer, true, buyerSalt); !errors.Is(err, ErrRevealMismatch) {
		t.Errorf("wrong vote = %v, want ErrRevealMismatch", err)
	}
	// Wrong salt.
	if _, err := env.svc.Reveal(ctx, e.ID, buyer, false, sellerSalt); !errors.Is(err, ErrRevealMismatch) {
		t.Errorf("wrong salt = %v, want ErrRevealMismatch", err)
	}
	// Matching reveal still works afterwards.
	got, err := env.svc.Reveal(ctx, e.ID, buyer, false, buyerSalt)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if v, ok := got.Votes[buyer]; !ok || v {
		t.Errorf("Votes[buyer] = %v, %v, want false recorded", v, ok)
	}
}

func TestRevealWithoutCommit(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	ctx := context.Background()

	env.svc.Commit(ctx, e.ID, buyer, mustCommitHash(t, false, buyerSalt))
	if _, err := env.svc.Reveal(ctx, e.ID, seller, true, sellerSalt); !errors.Is(err, ErrNoCommit) {
		t.Errorf("reveal without commit = %v, want ErrNoCommit", err)
	}
	if _, err := env.svc.Reveal(ctx, e.ID, stranger, true, sellerSalt); !errors.Is(err, access.ErrNotAuthorized) {
		t.Errorf("reveal by stranger = %v, want ErrNotAuthorized", err)
	}
}

func TestRevealAfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	ctx := context.Background()

	env.svc.Commit(ctx, e.ID, buyer, mustCommitHash(t, false, buyerSalt))
	env.now = env.now.Add(escrow.RevealWindow + time.Minute)

	if _, err := env.svc.Reveal(ctx, e.ID, buyer, false, buyerSalt); !errors.Is(err, ErrDisputeWindowClosed) {
		t.Errorf("late reveal = %v, want ErrDisputeWindowClosed", err)
	}
}

func TestAgreementSettlesImmediately(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	ctx := context.Background()

	env.svc.Commit(ctx, e.ID, buyer, mustCommitHash(t, true, buyerSalt))
	env.svc.Commit(ctx, e.ID, seller, mustCommitHash(t, true, sellerSalt))
	env.svc.Reveal(ctx, e.ID, buyer, true, buyerSalt)
	got, err := env.svc.Reveal(ctx, e.ID, seller, true, sellerSalt)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if got.Status != escrow.StatusResolved || got.Outcome != escrow.OutcomeReleased {
		t.Errorf("status/outcome = %q/%q, want resolved/released", got.Status, got.Outcome)
	}

	// Escrow paid to seller, both stakes refunded: buyer is down exactly the
	// escrow amount and the seller is up by it.
	if bal := env.balance(t, buyer); bal != "6.000000" {
		t.Errorf("buyer balance = %q, want 6.000000", bal)
	}
	if bal := env.balance(t, seller); bal != "14.000000" {
		t.Errorf("seller balance = %q, want 14.000000", bal)
	}
	if bal := env.balance(t, vault); bal != "0.000000" {
		t.Errorf("vault balance = %q, want 0.000000", bal)
	}
	if bal := env.balance(t, treasury); bal != "0.000000" {
		t.Errorf("treasury balance = %q, want 0.000000", bal)
	}
}

func TestOpposingVotesAwaitArbitrator(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	ctx := context.Background()

	env.svc.Commit(ctx, e.ID, buyer, mustCommitHash(t, false, buyerSalt))
	env.svc.Commit(ctx, e.ID, seller, mustCommitHash(t, true, sellerSalt))
	env.svc.Reveal(ctx, e.ID, buyer, false, buyerSalt)
	got, err := env.svc.Reveal(ctx, e.ID, seller, true, sellerSalt)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if got.Status != escrow.StatusDisputed {
		t.Errorf("Status = %q, want disputed on a tie", got.Status)
	}

	env.now = env.now.Add(escrow.RevealWindow + time.Minute)
	if _, err := env.svc.Settle(ctx, e.ID); !errors.Is(err, ErrAwaitingArbitrator) {
		t.Errorf("Settle on tie = %v, want ErrAwaitingArbitrator", err)
	}
}

func TestArbitratorDelayGate(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	ctx := context.Background()

	env.svc.Commit(ctx, e.ID, buyer, mustCommitHash(t, false, buyerSalt))
	env.svc.Reveal(ctx, e.ID, buyer, false, buyerSalt)

	env.now = env.now.Add(escrow.ArbitratorDelay - time.Minute)
	if _, err := env.svc.ArbitratorResolve(ctx, e.ID, arbitrator, escrow.OutcomeReleased); !errors.Is(err, ErrArbitrationNotReady) {
		t.Errorf("early arbitration = %v, want ErrArbitrationNotReady", err)
	}
	if _, err := env.svc.ArbitratorResolve(ctx, e.ID, buyer, escrow.OutcomeReleased); !errors.Is(err, access.ErrNotAuthorized) {
		t.Errorf("arbitration by party = %v, want ErrNotAuthorized", err)
	}
	if _, err := env.svc.ArbitratorResolve(ctx, e.ID, arbitrator, "split"); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("bad outcome = %v, want ErrInvalidOutcome", err)
	}
}

func TestArbitratorBreaksTie(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	ctx := context.Background()

	env.svc.Commit(ctx, e.ID, buyer, mustCommitHash(t, false, buyerSalt))
	env.svc.Commit(ctx, e.ID, seller, mustCommitHash(t, true, sellerSalt))
	env.svc.Reveal(ctx, e.ID, buyer, false, buyerSalt)
	env.svc.Reveal(ctx, e.ID, seller, true, sellerSalt)

	env.now = env.now.Add(escrow.ArbitratorDelay + time.Minute)
	got, err := env.svc.ArbitratorResolve(ctx, e.ID, arbitrator, escrow.OutcomeReleased)
	if err != nil {
		t.Fatalf("ArbitratorResolve: %v", err)
	}
	if got.Status != escrow.StatusResolved {
		t.Errorf("Status = %q, want resolved", got.Status)
	}

	// Seller voted with the outcome: stake back plus the escrow amount.
	// Buyer voted against: stake forfeited to the treasury.
	if bal := env.balance(t, seller); bal != "14.000000" {
		t.Errorf("seller balance = %q, want 14.000000", bal)
	}
	if bal := env.balance(t, buyer); bal != "5.996000" {
		t.Errorf("buyer balance = %q, want 5.996000", bal)
	}
	if bal := env.balance(t, treasury); bal != "0.004000" {
		t.Errorf("treasury balance = %q, want 0.004000", bal)
	}

	// A second resolution attempt hits the tombstone.
	if _, err := env.svc.ArbitratorResolve(ctx, e.ID, arbitrator, escrow.OutcomeRefunded); !errors.Is(err, escrow.ErrAlreadyResolved) {
		t.Errorf("second resolve = %v, want ErrAlreadyResolved", err)
	}
}

func TestSettleSingleRevealWins(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	ctx := context.Background()

	env.svc.Commit(ctx, e.ID, buyer, mustCommitHash(t, false, buyerSalt))
	env.svc.Commit(ctx, e.ID, seller, mustCommitHash(t, true, sellerSalt))
	env.svc.Reveal(ctx, e.ID, buyer, false, buyerSalt)
	// Seller never reveals.

	if _, err := env.svc.Settle(ctx, e.ID); !errors.Is(err, ErrRevealWindowOpen) {
		t.Errorf("early Settle = %v, want ErrRevealWindowOpen", err)
	}

	env.now = env.now.Add(escrow.RevealWindow + time.Minute)
	got, err := env.svc.Settle(ctx, e.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if got.Status != escrow.StatusRefunded || got.Outcome != escrow.OutcomeRefunded {
		t.Errorf("status/outcome = %q/%q, want refunded/refunded", got.Status, got.Outcome)
	}

	// Buyer: amount refunded, stake refunded. Seller: unrevealed commit
	// forfeits the stake.
	if bal := env.balance(t, buyer); bal != "10.000000" {
		t.Errorf("buyer balance = %q, want 10.000000", bal)
	}
	if bal := env.balance(t, seller); bal != "9.996000" {
		t.Errorf("seller balance = %q, want 9.996000", bal)
	}
	if bal := env.balance(t, treasury); bal != "0.004000" {
		t.Errorf("treasury balance = %q, want 0.004000", bal)
	}
}

func TestSettleNoRevealsRefundsBuyer(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	ctx := context.Background()

	env.svc.Commit(ctx, e.ID, buyer, mustCommitHash(t, false, buyerSalt))
	env.svc.Commit(ctx, e.ID, seller, mustCommitHash(t, true, sellerSalt))

	env.now = env.now.Add(escrow.RevealWindow + time.Minute)
	got, err := env.svc.Settle(ctx, e.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if got.Outcome != escrow.OutcomeRefunded {
		t.Errorf("Outcome = %q, want refunded", got.Outcome)
	}
	// Both unrevealed stakes forfeited.
	if bal := env.balance(t, treasury); bal != "0.008000" {
		t.Errorf("treasury balance = %q, want 0.008000", bal)
	}
	if bal := env.balance(t, buyer); bal != "9.996000" {
		t.Errorf("buyer balance = %q, want 9.996000", bal)
	}
}

func TestSettleOnActiveEscrow(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	if _, err := env.svc.Settle(context.Background(), e.ID); !errors.Is(err, escrow.ErrInvalidStatus) {
		t.Errorf("Settle without dispute = %v, want ErrInvalidStatus", err)
	}
}

func TestVotePrivate(t *testing.T) {
	env := newTestEnv(t)
	e := env.createPrivateEscrow(t)
	ctx := context.Background()

	got, err := env.svc.VotePrivate(ctx, e.ID, buyer, false)
	if err != nil {
		t.Fatalf("VotePrivate: %v", err)
	}
	if got.Status != escrow.StatusDisputed {
		t.Errorf("Status = %q, want disputed", got.Status)
	}
	// Flat configured stake in the plain token.
	if got.DisputeStake != "1.000000" {
		t.Errorf("DisputeStake = %q, want 1.000000", got.DisputeStake)
	}
	if bal := env.balance(t, buyer); bal != "9.000000" {
		t.Errorf("buyer balance = %q, want 9.000000", bal)
	}

	var raised bool
	for _, ev := range env.emitter.events {
		if ev.Type == events.TypePrivateDisputeRaised {
			raised = true
			if _, leak := ev.Attributes["amount"]; leak {
				t.Error("PrivateDisputeRaised must not carry an amount")
			}
		}
	}
	if !raised {
		t.Error("PrivateDisputeRaised not emitted")
	}

	if _, err := env.svc.VotePrivate(ctx, e.ID, buyer, true); !errors.Is(err, ErrAlreadyCommitted) {
		t.Errorf("double vote = %v, want ErrAlreadyCommitted", err)
	}
}

func TestVotePrivateOnPlainEscrow(t *testing.T) {
	env := newTestEnv(t)
	e := env.createEscrow(t)
	if _, err := env.svc.VotePrivate(context.Background(), e.ID, buyer, true); !errors.Is(err, ErrWrongMode) {
		t.Errorf("VotePrivate on plain escrow = %v, want ErrWrongMode", err)
	}
}

func TestVotePrivateAgreementSettles(t *testing.T) {
	env := newTestEnv(t)
	e := env.createPrivateEscrow(t)
	ctx := context.Background()

	env.svc.VotePrivate(ctx, e.ID, buyer, true)
	got, err := env.svc.VotePrivate(ctx, e.ID, seller, true)
	if err != nil {
		t.Fatalf("VotePrivate: %v", err)
	}
	if got.Status != escrow.StatusResolved || got.Outcome != escrow.OutcomeReleased {
		t.Errorf("status/outcome = %q/%q, want resolved/released", got.Status, got.Outcome)
	}

	// Handle went to the seller; both flat stakes came back.
	if bal := env.balance(t, buyer); bal != "10.000000" {
		t.Errorf("buyer balance = %q, want 10.000000", bal)
	}
	if bal := env.balance(t, seller); bal != "10.000000" {
		t.Errorf("seller balance = %q, want 10.000000", bal)
	}

	var resolved bool
	for _, ev := range env.emitter.events {
		if ev.Type == events.TypePrivateEscrowResolved {
			resolved = true
		}
		if ev.Type == events.TypeEscrowResolved {
			t.Error("confidential settlement must not emit the plain resolved event")
		}
	}
	if !resolved {
		t.Error("PrivateEscrowResolved not emitted")
	}
}

func TestVotePrivateTieGoesToArbitrator(t *testing.T) {
	env := newTestEnv(t)
	e := env.createPrivateEscrow(t)
	ctx := context.Background()

	env.svc.VotePrivate(ctx, e.ID, buyer, false)
	env.svc.VotePrivate(ctx, e.ID, seller, true)

	env.now = env.now.Add(escrow.ArbitratorDelay + time.Minute)
	got, err := env.svc.ArbitratorResolve(ctx, e.ID, arbitrator, escrow.OutcomeRefunded)
	if err != nil {
		t.Fatalf("ArbitratorResolve: %v", err)
	}
	if got.Status != escrow.StatusRefunded {
		t.Errorf("Status = %q, want refunded", got.Status)
	}
	// Buyer voted with the outcome: stake back. Seller forfeited.
	if bal := env.balance(t, buyer); bal != "10.000000" {
		t.Errorf("buyer balance = %q, want 10.000000", bal)
	}
	if bal := env.balance(t, seller); bal != "9.000000" {
		t.Errorf("seller balance = %q, want 9.000000", bal)
	}
	if bal := env.balance(t, treasury); bal != "1.000000" {
		t.Errorf("treasury balance = %q, want 1.000000", bal)
	}
}
