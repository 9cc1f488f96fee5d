package escrow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cinchpay/cinch/internal/payment"
)

// PostgresStore is a PostgreSQL-backed escrow store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates an escrow store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const escrowColumns = `
	id, buyer_addr, seller_addr, payment_kind, amount, handle,
	arbitrator_addr, status, duration_seconds, disputed_at, reveal_deadline,
	commits, votes, dispute_stake, outcome, resolved_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, e *Escrow) error {
	commits, votes, err := marshalTallies(e)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO escrows (
			buyer_addr, seller_addr, payment_kind, amount, handle,
			arbitrator_addr, status, duration_seconds, disputed_at, reveal_deadline,
			commits, votes, dispute_stake, outcome, resolved_at, created_at, updated_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8,
			$9, $10, $11, $12, NULLIF($13, ''), NULLIF($14, ''), $15, $16, $17)
		RETURNING id
	`,
		e.BuyerAddr, e.SellerAddr, string(e.Payment.Kind), e.Payment.Amount, e.Payment.Handle,
		e.ArbitratorAddr, string(e.Status), int64(e.Duration/time.Second),
		e.DisputedAt, e.RevealDeadline, commits, votes,
		e.DisputeStake, e.Outcome, e.ResolvedAt, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert escrow: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*Escrow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id)
	e, err := scanEscrow(row)
	if err == sql.ErrNoRows {
		return nil, ErrEscrowNotFound
	}
	return e, err
}

func (s *PostgresStore) Update(ctx context.Context, e *Escrow) error {
	commits, votes, err := marshalTallies(e)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE escrows SET
			status = $2, disputed_at = $3, reveal_deadline = $4,
			commits = $5, votes = $6, dispute_stake = NULLIF($7, ''),
			outcome = NULLIF($8, ''), resolved_at = $9, updated_at = $10
		WHERE id = $1
	`, e.ID, string(e.Status), e.DisputedAt, e.RevealDeadline,
		commits, votes, e.DisputeStake, e.Outcome, e.ResolvedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update escrow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update escrow: %w", err)
	}
	if n == 0 {
		return ErrEscrowNotFound
	}
	return nil
}

func (s *PostgresStore) ListByParty(ctx context.Context, addr string, limit int) ([]*Escrow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+escrowColumns+` FROM escrows
		WHERE buyer_addr = $1 OR seller_addr = $1
		ORDER BY id DESC LIMIT $2
	`, addr, limit)
	if err != nil {
		return nil, fmt.Errorf("query escrows: %w", err)
	}
	defer rows.Close()
	return collectEscrows(rows)
}

func (s *PostgresStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]*Escrow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+escrowColumns+` FROM escrows
		WHERE status = 'active'
		  AND created_at + duration_seconds * INTERVAL '1 second' <= $1
		ORDER BY id LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query expired escrows: %w", err)
	}
	defer rows.Close()
	return collectEscrows(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscrow(row rowScanner) (*Escrow, error) {
	e := &Escrow{}
	var (
		kind, status                          string
		amount, handle, disputeStake, outcome sql.NullString
		arbitrator                            sql.NullString
		durationSeconds                       int64
		disputedAt, revealDeadline, resolved  sql.NullTime
		commits, votes                        []byte
	)
	err := row.Scan(
		&e.ID, &e.BuyerAddr, &e.SellerAddr, &kind, &amount, &handle,
		&arbitrator, &status, &durationSeconds, &disputedAt, &revealDeadline,
		&commits, &votes, &disputeStake, &outcome, &resolved, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan escrow: %w", err)
	}

	e.Payment = payment.Payment{Kind: payment.Kind(kind), Amount: amount.String, Handle: handle.String}
	e.ArbitratorAddr = arbitrator.String
	e.Status = Status(status)
	e.Duration = time.Duration(durationSeconds) * time.Second
	e.DisputeStake = disputeStake.String
	e.Outcome = outcome.String
	if disputedAt.Valid {
		e.DisputedAt = &disputedAt.Time
	}
	if revealDeadline.Valid {
		e.RevealDeadline = &revealDeadline.Time
	}
	if resolved.Valid {
		e.ResolvedAt = &resolved.Time
	}
	if len(commits) > 0 {
		if err := json.Unmarshal(commits, &e.Commits); err != nil {
			return nil, fmt.Errorf("decode commits: %w", err)
		}
	}
	if len(votes) > 0 {
		if err := json.Unmarshal(votes, &e.Votes); err != nil {
			return nil, fmt.Errorf("decode votes: %w", err)
		}
	}
	return e, nil
}

func collectEscrows(rows *sql.Rows) ([]*Escrow, error) {
	var out []*Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalTallies(e *Escrow) (commits, votes []byte, err error) {
	commits, err = json.Marshal(orEmptyCommits(e.Commits))
	if err != nil {
		return nil, nil, fmt.Errorf("encode commits: %w", err)
	}
	votes, err = json.Marshal(orEmptyVotes(e.Votes))
	if err != nil {
		return nil, nil, fmt.Errorf("encode votes: %w", err)
	}
	return commits, votes, nil
}

func orEmptyCommits(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyVotes(m map[string]bool) map[string]bool {
	if m == nil {
		return map[string]bool{}
	}
	return m
}
