package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harmancioglue/chatpay-engine/internal/domain"
)

type IssueInstructionsRequest struct {
	Method string `json:"method"`
}

type CreatePaymentRequest struct {
	OrderID       uuid.UUID `json:"order_id"`
	Method        string    `json:"method"`
	TransactionID string    `json:"transaction_id,omitempty"`
}

type VerifyPaymentRequest struct {
	PaymentID     uuid.UUID        `json:"payment_id,omitempty"`
	OrderID       uuid.UUID        `json:"order_id,omitempty"`
	Reference     string           `json:"reference,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	ImageBase64   string           `json:"image_base64,omitempty"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type PaymentResponse struct {
	ID            uuid.UUID       `json:"id"`
	OrderID       uuid.UUID       `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Reference     string          `json:"reference"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Status        string          `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	VerifiedAt    *time.Time      `json:"verified_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toPaymentResponse(payment *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            payment.ID,
		OrderID:       payment.OrderID,
		Amount:        payment.Amount,
		Method:        string(payment.Method),
		Reference:     payment.Reference,
		TransactionID: payment.TransactionID,
		Status:        string(payment.Status),
		FailureReason: payment.FailureReason,
		VerifiedAt:    payment.VerifiedAt,
		CreatedAt:     payment.CreatedAt,
		UpdatedAt:     payment.UpdatedAt,
	}
}
