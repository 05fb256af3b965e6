// internal/database/ledger.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/jason-s-yu/njuka/internal/ledger"
	"github.com/jason-s-yu/njuka/internal/models"
)

// Ledger stores wallets and the transaction log in Postgres.
// Debits are a single conditional UPDATE, so concurrent charges never overdraw.
type Ledger struct {
	pool *pgxpool.Pool
}

var _ ledger.Ledger = (*Ledger)(nil)

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) Balance(ctx context.Context, userID string) (float64, error) {
	var bal float64
	err := l.pool.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&bal)
	if isNoRows(err) {
		return 0, apperr.NotFound("account %s not found", userID)
	}
	if err != nil {
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return bal, nil
}

func (l *Ledger) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	amount = ledger.Round2(amount)
	q := `
		UPDATE wallets
		SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance
	`
	var bal float64
	err := l.pool.QueryRow(ctx, q, userID, amount).Scan(&bal)
	if isNoRows(err) {
		// either no wallet or not enough in it
		current, balErr := l.Balance(ctx, userID)
		if balErr != nil {
			return 0, balErr
		}
		return current, apperr.InsufficientFunds("insufficient balance for %s", userID)
	}
	if err != nil {
		return 0, fmt.Errorf("debit wallet: %w", err)
	}
	return bal, nil
}

func (l *Ledger) Credit(ctx context.Context, userID string, amount float64, create bool) (float64, error) {
	amount = ledger.Round2(amount)
	q := `
		UPDATE wallets
		SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING balance
	`
	if create {
		q = `
			INSERT INTO wallets (user_id, balance)
			VALUES ($1, $2)
			ON CONFLICT (user_id)
			DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
			RETURNING balance
		`
	}

	var bal float64
	err := l.pool.QueryRow(ctx, q, userID, amount).Scan(&bal)
	if isNoRows(err) {
		return 0, apperr.NotFound("account %s not found", userID)
	}
	if err != nil {
		return 0, fmt.Errorf("credit wallet: %w", err)
	}
	return bal, nil
}

func (l *Ledger) Record(ctx context.Context, tx models.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	q := `
		INSERT INTO transactions (id, user_id, type, amount, game_id, lobby_id, reference, description, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9)
	`
	err := pgx.BeginTxFunc(ctx, l.pool, pgx.TxOptions{}, func(t pgx.Tx) error {
		_, execErr := t.Exec(ctx, q,
			tx.ID, tx.UserID, string(tx.Type), ledger.Round2(tx.Amount),
			tx.GameID, tx.LobbyID, tx.Reference, tx.Description, tx.CreatedAt,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}
