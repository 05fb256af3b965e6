// internal/database/payments.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/jason-s-yu/njuka/internal/models"
)

// PaymentStore persists gateway payments keyed by reference.
type PaymentStore struct {
	pool *pgxpool.Pool
}

func NewPaymentStore(pool *pgxpool.Pool) *PaymentStore {
	return &PaymentStore{pool: pool}
}

const paymentColumns = `reference, user_id, kind, method, amount, currency,
	COALESCE(account_number, ''), status, COALESCE(gateway_id, ''), created_at, completed_at`

func scanPayment(row interface{ Scan(...any) error }) (models.Payment, error) {
	var p models.Payment
	var kind, status string
	err := row.Scan(
		&p.Reference, &p.UserID, &kind, &p.Method, &p.Amount, &p.Currency,
		&p.AccountNo, &status, &p.GatewayID, &p.CreatedAt, &p.CompletedAt,
	)
	p.Kind = models.PaymentKind(kind)
	p.Status = models.PaymentStatus(status)
	return p, err
}

// Create inserts a new pending payment. A duplicate reference is a conflict.
func (s *PaymentStore) Create(ctx context.Context, p models.Payment) error {
	q := `
		INSERT INTO payments (reference, user_id, kind, method, amount, currency, account_number, status, gateway_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), $10)
		ON CONFLICT (reference) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, q,
		p.Reference, p.UserID, string(p.Kind), p.Method, p.Amount, p.Currency,
		p.AccountNo, string(p.Status), p.GatewayID, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("payment %s already exists", p.Reference)
	}
	return nil
}

// Get loads a payment by reference.
func (s *PaymentStore) Get(ctx context.Context, reference string) (models.Payment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference)
	p, err := scanPayment(row)
	if isNoRows(err) {
		return models.Payment{}, apperr.NotFound("payment %s not found", reference)
	}
	if err != nil {
		return models.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	return p, nil
}

// Complete moves a pending payment to a terminal status. Only the first caller for a
// reference gets transitioned=true; later callers see the stored payment unchanged.
func (s *PaymentStore) Complete(ctx context.Context, reference string, status models.PaymentStatus, gatewayID string, at time.Time) (models.Payment, bool, error) {
	q := `
		UPDATE payments
		SET status = $2, gateway_id = COALESCE(NULLIF($3, ''), gateway_id), completed_at = $4
		WHERE reference = $1 AND status = 'pending'
		RETURNING ` + paymentColumns
	p, err := scanPayment(s.pool.QueryRow(ctx, q, reference, string(status), gatewayID, at))
	if isNoRows(err) {
		existing, getErr := s.Get(ctx, reference)
		if getErr != nil {
			return models.Payment{}, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return models.Payment{}, false, fmt.Errorf("complete payment: %w", err)
	}
	return p, true, nil
}
