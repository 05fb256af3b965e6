// internal/payments/store.go
package payments

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/jason-s-yu/njuka/internal/models"
)

// Store keeps pending payments until the gateway reports their outcome.
type Store interface {
	Create(ctx context.Context, p models.Payment) error
	Get(ctx context.Context, reference string) (models.Payment, error)
	// Complete moves a pending payment to status. transitioned is true only for the
	// call that performed the move.
	Complete(ctx context.Context, reference string, status models.PaymentStatus, gatewayID string, at time.Time) (p models.Payment, transitioned bool, err error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.Mutex
	payments map[string]models.Payment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payments: make(map[string]models.Payment)}
}

func (s *MemoryStore) Create(_ context.Context, p models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.Reference]; ok {
		return apperr.Conflict("payment %s already exists", p.Reference)
	}
	s.payments[p.Reference] = p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, reference string) (models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok {
		return models.Payment{}, apperr.NotFound("payment %s not found", reference)
	}
	return p, nil
}

func (s *MemoryStore) Complete(_ context.Context, reference string, status models.PaymentStatus, gatewayID string, at time.Time) (models.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[reference]
	if !ok {
		return models.Payment{}, false, apperr.NotFound("payment %s not found", reference)
	}
	if p.Status != models.PaymentPending {
		return p, false, nil
	}
	p.Status = status
	if gatewayID != "" {
		p.GatewayID = gatewayID
	}
	p.CompletedAt = &at
	s.payments[reference] = p
	return p, true, nil
}
