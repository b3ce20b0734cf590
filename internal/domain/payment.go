package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusVerified PaymentStatus = "verified"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCash         PaymentMethod = "cash"
)

type Payment struct {
	ID            uuid.UUID       `json:"id"`
	OrderID       uuid.UUID       `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
	Reference     string          `json:"reference"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Status        PaymentStatus   `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	VerifiedAt    *time.Time      `json:"verified_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func NewPayment(orderID uuid.UUID, amount decimal.Decimal, method PaymentMethod, reference string) *Payment {
	now := time.Now()
	return &Payment{
		ID:        uuid.New(),
		OrderID:   orderID,
		Amount:    amount,
		Method:    method,
		Reference: reference,
		Status:    PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsFinal reports whether the payment has reached a state that verification
// must not touch again.
func (p *Payment) IsFinal() bool {
	return p.Status != PaymentStatusPending
}

// CanTransition encodes the lifecycle state machine: pending may become
// verified or failed, verified may become refunded, failed and refunded are
// terminal.
func CanTransition(from, to PaymentStatus) bool {
	switch from {
	case PaymentStatusPending:
		return to == PaymentStatusVerified || to == PaymentStatusFailed
	case PaymentStatusVerified:
		return to == PaymentStatusRefunded
	default:
		return false
	}
}

// PaymentStore is the narrow persistence surface the lifecycle manager needs.
// Status mutations are compare-and-swap on the expected prior status; a store
// must return ErrStaleState when the precondition no longer holds.
type PaymentStore interface {
	Create(payment *Payment) error
	GetByID(id uuid.UUID) (*Payment, error)
	GetByReference(reference string) (*Payment, error)
	GetByTransactionID(transactionID string) (*Payment, error)
	GetByOrderID(orderID uuid.UUID) (*Payment, error)
	GetPendingByOrderID(orderID uuid.UUID) (*Payment, error)
	ReferenceExists(reference string) (bool, error)
	UpdateStatusIf(id uuid.UUID, from, to PaymentStatus, update StatusUpdate) (*Payment, error)
}

// StatusUpdate carries the optional fields written together with a status
// transition.
type StatusUpdate struct {
	TransactionID string
	FailureReason string
	VerifiedAt    *time.Time
}
