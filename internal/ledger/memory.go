// internal/ledger/memory.go
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/jason-s-yu/njuka/internal/models"
)

// Memory is a process-local Ledger for development and tests.
type Memory struct {
	mu           sync.Mutex
	balances     map[string]float64
	transactions []models.Transaction
	failures     map[string]error
	seed         float64
}

// NewMemory returns an empty ledger. When seed > 0, unknown accounts are opened
// with that balance on first access.
func NewMemory(seed float64) *Memory {
	return &Memory{
		balances: make(map[string]float64),
		failures: make(map[string]error),
		seed:     seed,
	}
}

// SetBalance opens or overwrites an account.
func (m *Memory) SetBalance(userID string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = Round2(amount)
}

// FailFor makes every balance operation on userID return err until cleared with nil.
func (m *Memory) FailFor(userID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, userID)
		return
	}
	m.failures[userID] = err
}

// Transactions returns a copy of the transaction log.
func (m *Memory) Transactions() []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Transaction, len(m.transactions))
	copy(out, m.transactions)
	return out
}

func (m *Memory) Balance(_ context.Context, userID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, err := m.accountUnsafe(userID)
	if err != nil {
		return 0, err
	}
	return bal, nil
}

func (m *Memory) Debit(_ context.Context, userID string, amount float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, err := m.accountUnsafe(userID)
	if err != nil {
		return 0, err
	}
	if bal < amount {
		return bal, apperr.InsufficientFunds("insufficient balance for %s", userID)
	}
	m.balances[userID] = Round2(bal - amount)
	return m.balances[userID], nil
}

func (m *Memory) Credit(_ context.Context, userID string, amount float64, create bool) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[userID]; err != nil {
		return 0, err
	}
	bal, ok := m.balances[userID]
	if !ok && m.seed <= 0 && !create {
		return 0, apperr.NotFound("account %s not found", userID)
	}
	if !ok && m.seed > 0 {
		bal = m.seed
	}
	m.balances[userID] = Round2(bal + amount)
	return m.balances[userID], nil
}

func (m *Memory) Record(_ context.Context, tx models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	m.transactions = append(m.transactions, tx)
	return nil
}

// accountUnsafe resolves an account balance. Assumes lock is held.
func (m *Memory) accountUnsafe(userID string) (float64, error) {
	if err := m.failures[userID]; err != nil {
		return 0, err
	}
	bal, ok := m.balances[userID]
	if ok {
		return bal, nil
	}
	if m.seed > 0 {
		m.balances[userID] = m.seed
		return m.seed, nil
	}
	return 0, apperr.NotFound("account %s not found", userID)
}
