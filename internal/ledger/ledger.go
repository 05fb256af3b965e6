// internal/ledger/ledger.go
package ledger

import (
	"context"
	"math"

	"github.com/jason-s-yu/njuka/internal/models"
)

// Ledger is the balance store every wager, payout and payment goes through.
// Debit and Credit must be atomic read-then-conditionally-write operations.
type Ledger interface {
	// Balance returns the current balance, or a NotFound error for an unknown account.
	Balance(ctx context.Context, userID string) (float64, error)

	// Debit subtracts amount only if the balance covers it, returning the new balance.
	// It fails with InsufficientFunds otherwise.
	Debit(ctx context.Context, userID string, amount float64) (float64, error)

	// Credit adds amount and returns the new balance. A missing account is created
	// when create is true, otherwise Credit fails with NotFound.
	Credit(ctx context.Context, userID string, amount float64, create bool) (float64, error)

	// Record appends a transaction to the log.
	Record(ctx context.Context, tx models.Transaction) error
}

// Round2 rounds an amount to two decimal places.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
