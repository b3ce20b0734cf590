package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harmancioglue/chatpay-engine/internal/config"
	"github.com/harmancioglue/chatpay-engine/internal/domain"
	"github.com/harmancioglue/chatpay-engine/internal/events"
	"github.com/harmancioglue/chatpay-engine/internal/ocr"
	"github.com/harmancioglue/chatpay-engine/internal/reference"
	"github.com/harmancioglue/chatpay-engine/internal/verification"
)

const serviceName = "payment-engine"

// EventPublisher is the outbound messaging surface. Nil-safe from the
// service's point of view: a missing publisher only skips notifications.
type EventPublisher interface {
	PublishPaymentEvent(event events.PaymentEvent) error
}

// PaymentService owns the payment lifecycle: instruction issuance, creation,
// verification and the terminal transitions. All state mutations go through
// compare-and-swap updates on the expected prior status.
type PaymentService struct {
	payments  domain.PaymentStore
	orders    domain.OrderStore
	refs      *reference.Generator
	extractor *ocr.Extractor
	publisher EventPublisher

	business config.BusinessConfig
	settings config.PaymentConfig
	provider string
}

func NewPaymentService(
	payments domain.PaymentStore,
	orders domain.OrderStore,
	refs *reference.Generator,
	extractor *ocr.Extractor,
	publisher EventPublisher,
	business config.BusinessConfig,
	settings config.PaymentConfig,
	ocrProvider string,
) *PaymentService {
	return &PaymentService{
		payments:  payments,
		orders:    orders,
		refs:      refs,
		extractor: extractor,
		publisher: publisher,
		business:  business,
		settings:  settings,
		provider:  ocrProvider,
	}
}

// PaymentInstructions is what the conversational layer forwards to the
// customer. Never persisted: a payment row is created lazily on the first
// verification attempt or an explicit create call.
type PaymentInstructions struct {
	OrderID   uuid.UUID            `json:"order_id"`
	Method    domain.PaymentMethod `json:"method"`
	Reference string               `json:"reference"`
	Amount    decimal.Decimal      `json:"amount"`
	Currency  string               `json:"currency"`
	ExpiresAt time.Time            `json:"expires_at"`

	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	Note          string `json:"note,omitempty"`
}

// IssueInstructions allocates a reference and returns method-specific payment
// instructions for a payable order.
func (s *PaymentService) IssueInstructions(orderID uuid.UUID, method domain.PaymentMethod) (*PaymentInstructions, error) {
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsPayable() {
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrOrderNotPayable, orderID, order.Status)
	}

	ref, err := s.refs.Generate(orderID)
	if err != nil {
		return nil, err
	}

	instructions := &PaymentInstructions{
		OrderID:   orderID,
		Method:    method,
		Reference: ref,
		Amount:    order.Total,
		Currency:  s.business.Currency,
		ExpiresAt: time.Now().Add(s.settings.InstructionTTL),
	}

	switch method {
	case domain.PaymentMethodBankTransfer, domain.PaymentMethodMobileMoney:
		instructions.BankName = s.business.BankName
		instructions.AccountNumber = s.business.AccountNumber
		instructions.AccountName = s.business.AccountName
		instructions.Note = fmt.Sprintf("Include reference %s in the transfer narration", ref)
	case domain.PaymentMethodCard:
		instructions.RedirectURL = fmt.Sprintf("%s/%s", s.settings.CardRedirectBaseURL, ref)
	default:
		instructions.Note = fmt.Sprintf("Quote reference %s when paying", ref)
	}

	return instructions, nil
}

// CreatePayment records a pending payment for the order. Idempotent with
// respect to a still-pending payment on the same order: an existing one is
// returned unchanged.
func (s *PaymentService) CreatePayment(orderID uuid.UUID, method domain.PaymentMethod, transactionID string) (*domain.Payment, error) {
	if existing, err := s.payments.GetPendingByOrderID(orderID); err == nil && existing != nil {
		return existing, nil
	}

	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}

	// The generator's existence pre-check is a fast path; the store's unique
	// index is authoritative. A duplicate insert gets a fresh reference.
	for attempt := 0; attempt < 3; attempt++ {
		ref, err := s.refs.Generate(orderID)
		if err != nil {
			return nil, err
		}

		payment := domain.NewPayment(orderID, order.Total, method, ref)
		payment.TransactionID = transactionID

		err = s.payments.Create(payment)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, domain.ErrDuplicateReference) {
			return nil, err
		}
		log.Printf("Duplicate reference on insert, regenerating: %s", ref)
	}

	return nil, domain.ErrReferenceExhausted
}

// VerifyRequest identifies the payment by id, reference or external
// transaction id (first match, in that order) and carries the evidence.
// An order id lets the engine create the payment lazily when evidence
// arrives before any explicit create call.
type VerifyRequest struct {
	PaymentID     uuid.UUID        `json:"payment_id,omitempty"`
	OrderID       uuid.UUID        `json:"order_id,omitempty"`
	Reference     string           `json:"reference,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Image         []byte           `json:"-"`
}

// VerifyOutcome is always structured: rejections carry the reason so the
// conversational layer can render it, and never arrive as errors.
type VerifyOutcome struct {
	Verified bool                       `json:"verified"`
	Payment  *domain.Payment            `json:"payment,omitempty"`
	Result   *domain.VerificationResult `json:"result,omitempty"`
	Message  string                     `json:"message"`
}

// Verify resolves the payment, checks eligibility, runs the evidence through
// extraction and the verification engine, and applies the verdict as a
// compare-and-swap transition. Returned errors are transient (extraction,
// storage) and retryable; business rejections come back in the outcome.
func (s *PaymentService) Verify(ctx context.Context, req VerifyRequest) (*VerifyOutcome, error) {
	payment, err := s.resolvePayment(req)
	if errors.Is(err, domain.ErrPaymentNotFound) && req.OrderID != uuid.Nil {
		payment, err = s.createFromEvidence(req)
	}
	if err != nil {
		return nil, err
	}

	if payment.IsFinal() {
		return &VerifyOutcome{
			Payment: payment,
			Message: fmt.Sprintf("payment is already %s", payment.Status),
		}, nil
	}

	if req.Amount != nil && !req.Amount.Equal(payment.Amount) {
		return &VerifyOutcome{
			Payment: payment,
			Message: fmt.Sprintf("%v: claimed %s, expected %s", domain.ErrAmountMismatch,
				req.Amount.StringFixed(2), payment.Amount.StringFixed(2)),
		}, nil
	}

	var result *domain.VerificationResult

	switch {
	case len(req.Image) > 0:
		extracted, err := s.extractor.Extract(ctx, req.Image, s.provider)
		if err != nil {
			return nil, err
		}

		r := verification.Verify(extracted.Text, s.expectedFor(payment))
		result = &r

		if !r.Verified {
			return &VerifyOutcome{
				Payment: payment,
				Result:  result,
				Message: "receipt could not be verified",
			}, nil
		}

	case req.Amount != nil:
		// Gateway-confirmed path: external transaction id plus a matching
		// amount, no image to inspect.

	default:
		return &VerifyOutcome{
			Payment: payment,
			Message: "no payment evidence supplied",
		}, nil
	}

	now := time.Now()
	updated, err := s.payments.UpdateStatusIf(payment.ID, domain.PaymentStatusPending, domain.PaymentStatusVerified, domain.StatusUpdate{
		TransactionID: req.TransactionID,
		VerifiedAt:    &now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrStaleState) {
			// A concurrent attempt won the transition.
			return &VerifyOutcome{
				Payment: payment,
				Result:  result,
				Message: "payment was verified by a concurrent attempt",
			}, nil
		}
		return nil, err
	}

	s.publishVerified(updated, result, now)

	return &VerifyOutcome{
		Verified: true,
		Payment:  updated,
		Result:   result,
		Message:  "payment verified",
	}, nil
}

// MarkFailed moves a pending payment to its terminal failed state.
func (s *PaymentService) MarkFailed(id uuid.UUID, reason string) (*domain.Payment, error) {
	payment, err := s.payments.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(payment.Status, domain.PaymentStatusFailed) {
		return nil, fmt.Errorf("%w: cannot fail a %s payment", domain.ErrInvalidState, payment.Status)
	}

	updated, err := s.payments.UpdateStatusIf(id, domain.PaymentStatusPending, domain.PaymentStatusFailed, domain.StatusUpdate{
		FailureReason: reason,
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.PaymentFailedEvent, updated.OrderID, events.PaymentFailedPayload{
		PaymentID: updated.ID,
		OrderID:   updated.OrderID,
		Amount:    updated.Amount,
		Reason:    reason,
	})

	return updated, nil
}

// Refund moves a verified payment to its terminal refunded state. Refunds
// are defined only against verified payments.
func (s *PaymentService) Refund(id uuid.UUID, reason string) (*domain.Payment, error) {
	payment, err := s.payments.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(payment.Status, domain.PaymentStatusRefunded) {
		return nil, fmt.Errorf("%w: cannot refund a %s payment", domain.ErrInvalidState, payment.Status)
	}

	updated, err := s.payments.UpdateStatusIf(id, domain.PaymentStatusVerified, domain.PaymentStatusRefunded, domain.StatusUpdate{
		FailureReason: reason,
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.PaymentRefundedEvent, updated.OrderID, events.PaymentRefundedPayload{
		PaymentID: updated.ID,
		OrderID:   updated.OrderID,
		Amount:    updated.Amount,
		Reason:    reason,
	})

	return updated, nil
}

func (s *PaymentService) GetPayment(id uuid.UUID) (*domain.Payment, error) {
	return s.payments.GetByID(id)
}

func (s *PaymentService) GetPaymentByOrderID(orderID uuid.UUID) (*domain.Payment, error) {
	return s.payments.GetByOrderID(orderID)
}

// resolvePayment falls through to the next identifier only on a clean miss.
// Any other store error is transient and propagates for the retry policy.
func (s *PaymentService) resolvePayment(req VerifyRequest) (*domain.Payment, error) {
	if req.PaymentID != uuid.Nil {
		payment, err := s.payments.GetByID(req.PaymentID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, err
		}
	}
	if req.Reference != "" {
		payment, err := s.payments.GetByReference(req.Reference)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, err
		}
	}
	if req.TransactionID != "" {
		payment, err := s.payments.GetByTransactionID(req.TransactionID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrPaymentNotFound
}

// createFromEvidence records the payment row the first evidence submission
// implies. The reference issued with the instructions is kept so the receipt
// text can be matched against it; without one the generator allocates a fresh
// reference through CreatePayment.
func (s *PaymentService) createFromEvidence(req VerifyRequest) (*domain.Payment, error) {
	if req.Reference == "" {
		return s.CreatePayment(req.OrderID, domain.PaymentMethodBankTransfer, req.TransactionID)
	}

	order, err := s.orders.GetByID(req.OrderID)
	if err != nil {
		return nil, err
	}

	payment := domain.NewPayment(req.OrderID, order.Total, domain.PaymentMethodBankTransfer, req.Reference)
	payment.TransactionID = req.TransactionID

	err = s.payments.Create(payment)
	if errors.Is(err, domain.ErrDuplicateReference) {
		// A concurrent submission for the same reference created the row.
		return s.payments.GetByReference(req.Reference)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("Payment %s created lazily from evidence for order %s", payment.ID, req.OrderID)
	return payment, nil
}

func (s *PaymentService) expectedFor(payment *domain.Payment) domain.ExpectedPayment {
	return domain.ExpectedPayment{
		Reference:     payment.Reference,
		Amount:        payment.Amount,
		AccountNumber: s.business.AccountNumber,
		BankName:      s.business.BankName,
	}
}

func (s *PaymentService) publishVerified(payment *domain.Payment, result *domain.VerificationResult, verifiedAt time.Time) {
	payload := events.PaymentVerifiedPayload{
		Payment:    *payment,
		VerifiedAt: verifiedAt,
	}
	if result != nil {
		payload.Result = *result
	}
	s.publishEvent(events.PaymentVerifiedEvent, payment.OrderID, payload)
}

func (s *PaymentService) publishEvent(eventType events.PaymentEventType, orderID uuid.UUID, payload interface{}) {
	if s.publisher == nil {
		return
	}

	event := events.PaymentEvent{
		ID:            uuid.New(),
		OrderID:       orderID,
		EventType:     eventType,
		Service:       serviceName,
		CorrelationID: uuid.New(),
		Payload:       payload,
	}

	if err := s.publisher.PublishPaymentEvent(event); err != nil {
		log.Printf("Event publish error (%s): %v", eventType, err)
	}
}
