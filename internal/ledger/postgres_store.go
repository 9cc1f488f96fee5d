package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/cinchpay/cinch/internal/amount"
	"github.com/cinchpay/cinch/internal/idgen"
)

// PostgresStore is a PostgreSQL-backed ledger store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a ledger store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetBalance(ctx context.Context, account string) (*Balance, error) {
	var available string
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT available, updated_at FROM ledger_accounts WHERE account = $1
	`, account).Scan(&available, &updatedAt)
	if err == sql.ErrNoRows {
		return &Balance{Account: account, Available: "0.000000", UpdatedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query balance: %w", err)
	}
	return &Balance{Account: account, Available: available, UpdatedAt: updatedAt}, nil
}

func (s *PostgresStore) Credit(ctx context.Context, account, amt, reference string) error {
	v, ok := amount.Parse(amt)
	if !ok {
		return ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cur, err := lockBalance(ctx, tx, account)
	if err != nil {
		return err
	}
	if err := writeBalance(ctx, tx, account, new(big.Int).Add(cur, v)); err != nil {
		return err
	}
	if err := insertEntry(ctx, tx, &Entry{
		ID:        idgen.WithPrefix("ent_"),
		Account:   account,
		Type:      "credit",
		Amount:    amt,
		Reference: reference,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Move(ctx context.Context, from, to, amt, reference string) error {
	v, ok := amount.Parse(amt)
	if !ok {
		return ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Lock rows in a fixed order to avoid deadlocks between concurrent moves.
	first, second := from, to
	if second < first {
		first, second = second, first
	}
	balances := make(map[string]*big.Int, 2)
	for _, account := range []string{first, second} {
		bal, err := lockBalance(ctx, tx, account)
		if err != nil {
			return err
		}
		balances[account] = bal
	}

	if balances[from].Cmp(v) < 0 {
		return ErrInsufficientBalance
	}
	if err := writeBalance(ctx, tx, from, new(big.Int).Sub(balances[from], v)); err != nil {
		return err
	}
	if err := writeBalance(ctx, tx, to, new(big.Int).Add(balances[to], v)); err != nil {
		return err
	}

	entries := []*Entry{
		{ID: idgen.WithPrefix("ent_"), Account: from, Type: "transfer_out", Amount: amt, Counterparty: to, Reference: reference},
		{ID: idgen.WithPrefix("ent_"), Account: to, Type: "transfer_in", Amount: amt, Counterparty: from, Reference: reference},
	}
	for _, e := range entries {
		if err := insertEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetHistory(ctx context.Context, account string, limit int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account, type, amount, COALESCE(counterparty, ''), COALESCE(reference, ''), created_at
		FROM ledger_entries
		WHERE account = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.Account, &e.Type, &e.Amount, &e.Counterparty, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// lockBalance reads an account balance under FOR UPDATE, inserting a zero row
// for accounts not seen before.
func lockBalance(ctx context.Context, tx *sql.Tx, account string) (*big.Int, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_accounts (account, available, updated_at)
		VALUES ($1, 0, NOW())
		ON CONFLICT (account) DO NOTHING
	`, account); err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	var available string
	err := tx.QueryRowContext(ctx, `
		SELECT available FROM ledger_accounts WHERE account = $1 FOR UPDATE
	`, account).Scan(&available)
	if err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	v, ok := amount.Parse(available)
	if !ok {
		return nil, fmt.Errorf("corrupt balance for %s: %q", account, available)
	}
	return v, nil
}

func writeBalance(ctx context.Context, tx *sql.Tx, account string, v *big.Int) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE ledger_accounts SET available = $2, updated_at = NOW() WHERE account = $1
	`, account, amount.Format(v)); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e *Entry) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account, type, amount, counterparty, reference, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NOW())
	`, e.ID, e.Account, e.Type, e.Amount, e.Counterparty, e.Reference); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}
