// internal/models/transaction.go
package models

import "time"

// TransactionType names a financial event recorded in the ledger's transaction log.
type TransactionType string

const (
	TxEntryFee     TransactionType = "entry_fee"
	TxWinnings     TransactionType = "game_winnings"
	TxHouseCut     TransactionType = "house_cut"
	TxHouseForfeit TransactionType = "house_forfeit"
	TxRefund       TransactionType = "lobby_refund"
	TxDeposit      TransactionType = "deposit"
	TxWithdrawal   TransactionType = "withdrawal"
)

// Transaction is an append-only ledger record.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Type        TransactionType `json:"type"`
	Amount      float64         `json:"amount"`
	GameID      string          `json:"game_id,omitempty"`
	LobbyID     string          `json:"lobby_id,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
