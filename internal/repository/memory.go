package repository

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harmancioglue/chatpay-engine/internal/domain"
)

// InMemoryPaymentStore mirrors the Postgres store's semantics, including the
// reference uniqueness guarantee and compare-and-swap status updates. Used in
// tests and local development.
type InMemoryPaymentStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*domain.Payment
	byRef    map[string]uuid.UUID
}

func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		payments: make(map[uuid.UUID]*domain.Payment),
		byRef:    make(map[string]uuid.UUID),
	}
}

func (s *InMemoryPaymentStore) Create(payment *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byRef[payment.Reference]; exists {
		return domain.ErrDuplicateReference
	}

	clone := *payment
	s.payments[payment.ID] = &clone
	s.byRef[payment.Reference] = payment.ID
	return nil
}

func (s *InMemoryPaymentStore) GetByID(id uuid.UUID) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(p *domain.Payment) bool { return p.ID == id })
}

func (s *InMemoryPaymentStore) GetByReference(reference string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(p *domain.Payment) bool { return p.Reference == reference })
}

func (s *InMemoryPaymentStore) GetByTransactionID(transactionID string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(p *domain.Payment) bool {
		return p.TransactionID != "" && p.TransactionID == transactionID
	})
}

func (s *InMemoryPaymentStore) GetByOrderID(orderID uuid.UUID) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(p *domain.Payment) bool { return p.OrderID == orderID })
}

func (s *InMemoryPaymentStore) GetPendingByOrderID(orderID uuid.UUID) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(p *domain.Payment) bool {
		return p.OrderID == orderID && p.Status == domain.PaymentStatusPending
	})
}

func (s *InMemoryPaymentStore) ReferenceExists(reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.byRef[reference]
	return exists, nil
}

func (s *InMemoryPaymentStore) UpdateStatusIf(id uuid.UUID, from, to domain.PaymentStatus, update domain.StatusUpdate) (*domain.Payment, error) {
	if !domain.CanTransition(from, to) {
		return nil, domain.ErrInvalidState
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.Status != from {
		return nil, domain.ErrStaleState
	}

	payment.Status = to
	if update.TransactionID != "" {
		payment.TransactionID = update.TransactionID
	}
	if update.FailureReason != "" {
		payment.FailureReason = update.FailureReason
	}
	if update.VerifiedAt != nil {
		payment.VerifiedAt = update.VerifiedAt
	}
	payment.UpdatedAt = time.Now()

	clone := *payment
	return &clone, nil
}

func (s *InMemoryPaymentStore) find(match func(*domain.Payment) bool) (*domain.Payment, error) {
	var newest *domain.Payment
	for _, p := range s.payments {
		if match(p) && (newest == nil || p.CreatedAt.After(newest.CreatedAt)) {
			newest = p
		}
	}
	if newest == nil {
		return nil, domain.ErrPaymentNotFound
	}
	clone := *newest
	return &clone, nil
}

// InMemoryOrderStore is a fixed set of orders for tests and local runs.
type InMemoryOrderStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.OrderWithItems
}

func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{orders: make(map[uuid.UUID]*domain.OrderWithItems)}
}

func (s *InMemoryOrderStore) Put(order *domain.OrderWithItems) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
}

func (s *InMemoryOrderStore) GetByID(id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	clone := order.Order
	return &clone, nil
}

func (s *InMemoryOrderStore) GetByIDWithItems(id uuid.UUID) (*domain.OrderWithItems, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	clone := *order
	return &clone, nil
}
