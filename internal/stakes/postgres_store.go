package stakes

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore is a PostgreSQL-backed stake store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a stake store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, st *Stake) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispute_stakes (id, escrow_id, party, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, st.ID, st.EscrowID, st.Party, st.Amount, st.Status, st.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert stake: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Stake, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, escrow_id, party, amount, status, created_at, settled_at
		FROM dispute_stakes WHERE id = $1
	`, id))
}

func (s *PostgresStore) GetByEscrowParty(ctx context.Context, escrowID int64, party string) (*Stake, error) {
	// Posted stakes win over settled history for the same party.
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, escrow_id, party, amount, status, created_at, settled_at
		FROM dispute_stakes
		WHERE escrow_id = $1 AND party = $2
		ORDER BY (status = 'posted') DESC, created_at DESC
		LIMIT 1
	`, escrowID, party))
}

func (s *PostgresStore) Settle(ctx context.Context, id, status string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE dispute_stakes SET status = $2, settled_at = $3
		WHERE id = $1 AND status = 'posted'
	`, id, status, at)
	if err != nil {
		return fmt.Errorf("settle stake: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle stake: %w", err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrStakeSettled
	}
	return nil
}

func (s *PostgresStore) ListByEscrow(ctx context.Context, escrowID int64) ([]*Stake, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, escrow_id, party, amount, status, created_at, settled_at
		FROM dispute_stakes WHERE escrow_id = $1 ORDER BY created_at
	`, escrowID)
	if err != nil {
		return nil, fmt.Errorf("query stakes: %w", err)
	}
	defer rows.Close()

	var out []*Stake
	for rows.Next() {
		st, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row *sql.Row) (*Stake, error) {
	st, err := s.scanRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrStakeNotFound
	}
	return st, err
}

func (s *PostgresStore) scanRow(row rowScanner) (*Stake, error) {
	st := &Stake{}
	var settledAt sql.NullTime
	if err := row.Scan(&st.ID, &st.EscrowID, &st.Party, &st.Amount, &st.Status, &st.CreatedAt, &settledAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan stake: %w", err)
	}
	if settledAt.Valid {
		st.SettledAt = &settledAt.Time
	}
	return st, nil
}
