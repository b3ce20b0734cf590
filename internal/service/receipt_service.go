package service

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/harmancioglue/chatpay-engine/internal/config"
	"github.com/harmancioglue/chatpay-engine/internal/domain"
	"github.com/harmancioglue/chatpay-engine/internal/events"
	"github.com/harmancioglue/chatpay-engine/internal/receipt"
)

// ReceiptService builds receipt values for verified payments, hands them to
// the renderer and records the payment-to-receipt association durably.
type ReceiptService struct {
	payments  domain.PaymentStore
	orders    domain.OrderStore
	index     receipt.Index
	renderer  receipt.Renderer
	publisher EventPublisher
	business  config.BusinessConfig
}

func NewReceiptService(
	payments domain.PaymentStore,
	orders domain.OrderStore,
	index receipt.Index,
	renderer receipt.Renderer,
	publisher EventPublisher,
	business config.BusinessConfig,
) *ReceiptService {
	return &ReceiptService{
		payments:  payments,
		orders:    orders,
		index:     index,
		renderer:  renderer,
		publisher: publisher,
		business:  business,
	}
}

// Generate renders a receipt for a verified payment. Idempotent under
// at-least-once job delivery: an existing record for the payment is returned
// unchanged.
func (s *ReceiptService) Generate(paymentID uuid.UUID) (*receipt.Record, error) {
	if existing, err := s.index.GetByPaymentID(paymentID); err == nil && existing != nil {
		return existing, nil
	}

	payment, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusVerified {
		return nil, fmt.Errorf("%w: receipt requires a verified payment, got %s",
			domain.ErrInvalidState, payment.Status)
	}

	order, err := s.orders.GetByIDWithItems(payment.OrderID)
	if err != nil {
		return nil, err
	}

	verifiedAt := payment.CreatedAt
	if payment.VerifiedAt != nil {
		verifiedAt = *payment.VerifiedAt
	}

	value := receipt.Receipt{
		Number:       receipt.NewNumber(),
		PaymentID:    payment.ID,
		OrderID:      order.ID,
		BusinessName: s.business.Name,
		CustomerName: order.CustomerName,
		Items:        order.Items,
		Amount:       payment.Amount,
		Currency:     s.business.Currency,
		Method:       payment.Method,
		Reference:    payment.Reference,
		VerifiedAt:   verifiedAt,
		GeneratedAt:  time.Now(),
	}

	artifactPath, err := s.renderer.Render(value)
	if err != nil {
		return nil, fmt.Errorf("receipt render: %w", err)
	}

	record := receipt.Record{
		PaymentID:    payment.ID,
		Number:       value.Number,
		ArtifactPath: artifactPath,
		CreatedAt:    value.GeneratedAt,
	}
	if err := s.index.Save(record); err != nil {
		return nil, fmt.Errorf("receipt index save: %w", err)
	}

	log.Printf("Receipt %s generated for payment %s", record.Number, payment.ID)

	s.publishReceiptGenerated(payment, record)

	return &record, nil
}

func (s *ReceiptService) GetByPaymentID(paymentID uuid.UUID) (*receipt.Record, error) {
	return s.index.GetByPaymentID(paymentID)
}

func (s *ReceiptService) publishReceiptGenerated(payment *domain.Payment, record receipt.Record) {
	if s.publisher == nil {
		return
	}

	event := events.PaymentEvent{
		ID:            uuid.New(),
		OrderID:       payment.OrderID,
		EventType:     events.ReceiptGeneratedEvent,
		Service:       serviceName,
		CorrelationID: uuid.New(),
		Payload: events.ReceiptGeneratedPayload{
			PaymentID:     payment.ID,
			ReceiptNumber: record.Number,
			ArtifactPath:  record.ArtifactPath,
		},
	}

	if err := s.publisher.PublishPaymentEvent(event); err != nil {
		log.Printf("Event publish error (%s): %v", events.ReceiptGeneratedEvent, err)
	}
}
