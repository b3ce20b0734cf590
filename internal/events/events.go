package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harmancioglue/chatpay-engine/internal/domain"
)

type PaymentEventType string

const (
	// Published by this engine.
	PaymentVerifiedEvent  PaymentEventType = "payment.verified"
	PaymentFailedEvent    PaymentEventType = "payment.failed"
	PaymentRefundedEvent  PaymentEventType = "payment.refunded"
	ReceiptGeneratedEvent PaymentEventType = "receipt.generated"

	// Consumed from the conversational front-end.
	EvidenceSubmittedEvent PaymentEventType = "payment.evidence.submitted"
	MessageSendEvent       PaymentEventType = "message.send"
)

type PaymentEvent struct {
	ID            uuid.UUID        `json:"id"`
	OrderID       uuid.UUID        `json:"order_id"`
	EventType     PaymentEventType `json:"event_type"`
	Payload       interface{}      `json:"payload"`
	Timestamp     time.Time        `json:"timestamp"`
	Service       string           `json:"service"`
	CorrelationID uuid.UUID        `json:"correlation_id"`
}

type PaymentVerifiedPayload struct {
	Payment    domain.Payment            `json:"payment"`
	Result     domain.VerificationResult `json:"result"`
	VerifiedAt time.Time                 `json:"verified_at"`
}

type PaymentFailedPayload struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	OrderID   uuid.UUID       `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

type PaymentRefundedPayload struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	OrderID   uuid.UUID       `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
}

type ReceiptGeneratedPayload struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	ReceiptNumber string    `json:"receipt_number"`
	ArtifactPath  string    `json:"artifact_path"`
}

// EvidenceSubmittedPayload is what the chat gateway sends when a customer
// uploads a bank receipt image.
type EvidenceSubmittedPayload struct {
	OrderID       uuid.UUID `json:"order_id"`
	PaymentID     uuid.UUID `json:"payment_id,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	ImageBase64   string    `json:"image_base64,omitempty"`
}

// OutboundMessagePayload is a chat message the front-end asked us to deliver
// with retries.
type OutboundMessagePayload struct {
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
}
