package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/harmancioglue/chatpay-engine/internal/config"
	"github.com/harmancioglue/chatpay-engine/internal/domain"
	"github.com/harmancioglue/chatpay-engine/internal/events"
	"github.com/harmancioglue/chatpay-engine/internal/ocr"
	"github.com/harmancioglue/chatpay-engine/internal/reference"
	"github.com/harmancioglue/chatpay-engine/internal/repository"
)

type scriptedProvider struct {
	mu   sync.Mutex
	text string
	err  error
}

func (p *scriptedProvider) Name() string { return "tesseract" }

func (p *scriptedProvider) Recognize(context.Context, []byte) (ocr.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return ocr.Result{}, p.err
	}
	return ocr.Result{Text: p.text, Confidence: 80}, nil
}

func (p *scriptedProvider) set(text string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.text = text
	p.err = err
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.PaymentEvent
}

func (c *capturingPublisher) PublishPaymentEvent(event events.PaymentEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturingPublisher) types() []events.PaymentEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.PaymentEventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventType
	}
	return out
}

type fixture struct {
	svc       *PaymentService
	payments  *repository.InMemoryPaymentStore
	orders    *repository.InMemoryOrderStore
	provider  *scriptedProvider
	publisher *capturingPublisher
	orderID   uuid.UUID
}

func businessConfig() config.BusinessConfig {
	return config.BusinessConfig{
		Name:          "Demo Store",
		BankName:      "First Bank",
		AccountNumber: "1234567890",
		AccountName:   "Demo Store Ltd",
		Currency:      "NGN",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	payments := repository.NewInMemoryPaymentStore()
	orders := repository.NewInMemoryOrderStore()
	provider := &scriptedProvider{}
	publisher := &capturingPublisher{}

	orderID := uuid.New()
	orders.Put(&domain.OrderWithItems{
		Order: domain.Order{
			ID:           orderID,
			CustomerID:   uuid.New(),
			CustomerName: "Ada Obi",
			Total:        decimal.NewFromInt(5000),
			Status:       domain.OrderStatusConfirmed,
			CreatedAt:    time.Now(),
		},
		Items: []domain.OrderItem{
			{ProductName: "Sneakers", Quantity: 1, UnitPrice: decimal.NewFromInt(5000)},
		},
	})

	svc := NewPaymentService(
		payments,
		orders,
		reference.NewGenerator(payments),
		ocr.NewExtractor(nil, provider),
		publisher,
		businessConfig(),
		config.PaymentConfig{
			InstructionTTL:      30 * time.Minute,
			CardRedirectBaseURL: "https://pay.example.com/checkout",
		},
		"tesseract",
	)

	return &fixture{
		svc:       svc,
		payments:  payments,
		orders:    orders,
		provider:  provider,
		publisher: publisher,
		orderID:   orderID,
	}
}

func successfulReceiptText(payment *domain.Payment) string {
	return fmt.Sprintf(
		"TRANSFER SUCCESSFUL\nAmount: %s\nReference: %s\nBeneficiary Account: 1234567890",
		payment.Amount.StringFixed(2), payment.Reference,
	)
}

func TestIssueInstructions_BankTransfer(t *testing.T) {
	f := newFixture(t)

	before := time.Now()
	instructions, err := f.svc.IssueInstructions(f.orderID, domain.PaymentMethodBankTransfer)
	require.NoError(t, err)

	require.Equal(t, f.orderID, instructions.OrderID)
	require.True(t, instructions.Amount.Equal(decimal.NewFromInt(5000)))
	require.Equal(t, "NGN", instructions.Currency)
	require.Equal(t, "First Bank", instructions.BankName)
	require.Equal(t, "1234567890", instructions.AccountNumber)
	require.Contains(t, instructions.Note, instructions.Reference)
	require.WithinDuration(t, before.Add(30*time.Minute), instructions.ExpiresAt, 5*time.Second)
}

func TestIssueInstructions_CardGetsRedirect(t *testing.T) {
	f := newFixture(t)

	instructions, err := f.svc.IssueInstructions(f.orderID, domain.PaymentMethodCard)
	require.NoError(t, err)
	require.Contains(t, instructions.RedirectURL, instructions.Reference)
	require.Empty(t, instructions.AccountNumber)
}

func TestIssueInstructions_UnpayableOrder(t *testing.T) {
	f := newFixture(t)

	cancelled := uuid.New()
	f.orders.Put(&domain.OrderWithItems{Order: domain.Order{
		ID:     cancelled,
		Total:  decimal.NewFromInt(100),
		Status: domain.OrderStatusCancelled,
	}})

	_, err := f.svc.IssueInstructions(cancelled, domain.PaymentMethodBankTransfer)
	require.ErrorIs(t, err, domain.ErrOrderNotPayable)
}

func TestIssueInstructions_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.IssueInstructions(uuid.New(), domain.PaymentMethodBankTransfer)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCreatePayment_IdempotentWhilePending(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)

	second, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Reference, second.Reference)
}

func TestVerify_HappyPathWithImage(t *testing.T) {
	f := newFixture(t)

	payment, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)

	f.provider.set(successfulReceiptText(payment), nil)

	outcome, err := f.svc.Verify(context.Background(), VerifyRequest{
		Reference: payment.Reference,
		Image:     []byte("receipt-image"),
	})
	require.NoError(t, err)

	require.True(t, outcome.Verified)
	require.Equal(t, domain.PaymentStatusVerified, outcome.Payment.Status)
	require.NotNil(t, outcome.Payment.VerifiedAt)
	require.NotNil(t, outcome.Result)
	require.GreaterOrEqual(t, outcome.Result.Confidence, 70)

	require.Equal(t, []events.PaymentEventType{events.PaymentVerifiedEvent}, f.publisher.types())
}

func TestVerify_SecondAttemptRejectedWithoutMutation(t *testing.T) {
	f := newFixture(t)

	payment, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)

	f.provider.set(successfulReceiptText(payment), nil)

	first, err := f.svc.Verify(context.Background(), VerifyRequest{PaymentID: payment.ID, Image: []byte("img")})
	require.NoError(t, err)
	require.True(t, first.Verified)

	verifiedAt := first.Payment.VerifiedAt

	second, err := f.svc.Verify(context.Background(), VerifyRequest{PaymentID: payment.ID, Image: []byte("img")})
	require.NoError(t, err)
	require.False(t, second.Verified)
	require.Contains(t, second.Message, "already verified")

	stored, err := f.svc.GetPayment(payment.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusVerified, stored.Status)
	require.Equal(t, verifiedAt.Unix(), stored.VerifiedAt.Unix())
}

func TestVerify_RejectedVerdictLeavesPaymentPending(t *testing.T) {
	f := newFixture(t)

	payment, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)

	f.provider.set("TRANSFER SUCCESSFUL Reference: WRONG-REFERENCE-123 Amount: 5000.00", nil)

	outcome, err := f.svc.Verify(context.Background(), VerifyRequest{PaymentID: payment.ID, Image: []byte("img")})
	require.NoError(t, err)
	require.False(t, outcome.Verified)
	require.NotNil(t, outcome.Result)
	require.NotEmpty(t, outcome.Result.Details.Issues)

	stored, err := f.svc.GetPayment(payment.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, stored.Status)
}

func TestVerify_AmountMismatchRejected(t *testing.T) {
	f := newFixture(t)

	payment, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)

	wrong := decimal.NewFromInt(4000)
	outcome, err := f.svc.Verify(context.Background(), VerifyRequest{
		PaymentID: payment.ID,
		Amount:    &wrong,
	})
	require.NoError(t, err)
	require.False(t, outcome.Verified)
	require.Contains(t, outcome.Message, domain.ErrAmountMismatch.Error())
}

func TestVerify_GatewayConfirmedPathWithoutImage(t *testing.T) {
	f := newFixture(t)

	payment, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)

	amount := payment.Amount
	outcome, err := f.svc.Verify(context.Background(), VerifyRequest{
		TransactionID: "TXN_12345",
		Reference:     payment.Reference,
		Amount:        &amount,
	})
	require.NoError(t, err)
	require.True(t, outcome.Verified)
	require.Equal(t, "TXN_12345", outcome.Payment.TransactionID)
}

func TestVerify_ResolvesByTransactionID(t *testing.T) {
	f := newFixture(t)

	payment, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "TXN_999")
	require.NoError(t, err)

	f.provider.set(successfulReceiptText(payment), nil)

	outcome, err := f.svc.Verify(context.Background(), VerifyRequest{
		TransactionID: "TXN_999",
		Image:         []byte("img"),
	})
	require.NoError(t, err)
	require.True(t, outcome.Verified)
	require.Equal(t, payment.ID, outcome.Payment.ID)
}

func TestVerify_CreatesPaymentLazilyFromInstructions(t *testing.T) {
	f := newFixture(t)

	instructions, err := f.svc.IssueInstructions(f.orderID, domain.PaymentMethodBankTransfer)
	require.NoError(t, err)

	// No explicit create call between instructions and evidence.
	f.provider.set(fmt.Sprintf(
		"TRANSFER SUCCESSFUL\nAmount: %s\nReference: %s\nBeneficiary Account: 1234567890",
		instructions.Amount.StringFixed(2), instructions.Reference,
	), nil)

	outcome, err := f.svc.Verify(context.Background(), VerifyRequest{
		OrderID:   f.orderID,
		Reference: instructions.Reference,
		Image:     []byte("receipt-image"),
	})
	require.NoError(t, err)
	require.True(t, outcome.Verified)
	require.Equal(t, instructions.Reference, outcome.Payment.Reference)
	require.Equal(t, domain.PaymentStatusVerified, outcome.Payment.Status)

	stored, err := f.payments.GetByReference(instructions.Reference)
	require.NoError(t, err)
	require.Equal(t, f.orderID, stored.OrderID)
	require.True(t, stored.Amount.Equal(decimal.NewFromInt(5000)))
}

func TestVerify_LazyCreationWithoutReferenceGeneratesOne(t *testing.T) {
	f := newFixture(t)

	amount := decimal.NewFromInt(5000)
	outcome, err := f.svc.Verify(context.Background(), VerifyRequest{
		OrderID:       f.orderID,
		TransactionID: "TXN_GW_1",
		Amount:        &amount,
	})
	require.NoError(t, err)
	require.True(t, outcome.Verified)
	require.NotEmpty(t, outcome.Payment.Reference)
	require.Equal(t, "TXN_GW_1", outcome.Payment.TransactionID)
}

type failingLookupStore struct {
	*repository.InMemoryPaymentStore
	refErr error
}

func (s *failingLookupStore) GetByReference(reference string) (*domain.Payment, error) {
	if s.refErr != nil {
		return nil, s.refErr
	}
	return s.InMemoryPaymentStore.GetByReference(reference)
}

func TestVerify_TransientLookupErrorPropagates(t *testing.T) {
	f := newFixture(t)

	outage := errors.New("connection refused")
	store := &failingLookupStore{InMemoryPaymentStore: f.payments, refErr: outage}

	svc := NewPaymentService(
		store,
		f.orders,
		reference.NewGenerator(store),
		ocr.NewExtractor(nil, f.provider),
		f.publisher,
		businessConfig(),
		config.PaymentConfig{InstructionTTL: 30 * time.Minute},
		"tesseract",
	)

	_, err := svc.Verify(context.Background(), VerifyRequest{Reference: "PAY-ANY"})
	require.ErrorIs(t, err, outage)
	require.NotErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestUpdateStatusIf_RejectsIllegalTransition(t *testing.T) {
	f := newFixture(t)

	payment, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)

	_, err = f.payments.UpdateStatusIf(payment.ID,
		domain.PaymentStatusPending, domain.PaymentStatusRefunded, domain.StatusUpdate{})
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestVerify_UnknownPayment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Verify(context.Background(), VerifyRequest{Reference: "PAY-NOPE"})
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestVerify_NoEvidenceSupplied(t *testing.T) {
	f := newFixture(t)

	payment, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)

	outcome, err := f.svc.Verify(context.Background(), VerifyRequest{PaymentID: payment.ID})
	require.NoError(t, err)
	require.False(t, outcome.Verified)
	require.Contains(t, outcome.Message, "no payment evidence")
}

func TestVerify_ExtractionFailureIsRetryable(t *testing.T) {
	f := newFixture(t)

	payment, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)

	f.provider.set("", errors.New("ocr service down"))

	_, err = f.svc.Verify(context.Background(), VerifyRequest{PaymentID: payment.ID, Image: []byte("img")})
	require.ErrorIs(t, err, domain.ErrExtractionFailed)

	stored, err := f.svc.GetPayment(payment.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, stored.Status)
}

func TestMarkFailed_TerminalTransition(t *testing.T) {
	f := newFixture(t)

	payment, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)

	failed, err := f.svc.MarkFailed(payment.ID, "customer abandoned transfer")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusFailed, failed.Status)
	require.Equal(t, "customer abandoned transfer", failed.FailureReason)

	_, err = f.svc.MarkFailed(payment.ID, "again")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestMarkFailed_UnknownPayment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.MarkFailed(uuid.New(), "whatever")
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestRefund_OnlyVerifiedPayments(t *testing.T) {
	f := newFixture(t)

	payment, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)

	// pending -> refunded is disallowed
	_, err = f.svc.Refund(payment.ID, "changed mind")
	require.ErrorIs(t, err, domain.ErrInvalidState)

	f.provider.set(successfulReceiptText(payment), nil)
	outcome, err := f.svc.Verify(context.Background(), VerifyRequest{PaymentID: payment.ID, Image: []byte("img")})
	require.NoError(t, err)
	require.True(t, outcome.Verified)

	refunded, err := f.svc.Refund(payment.ID, "order cancelled")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusRefunded, refunded.Status)

	// refunded is terminal
	_, err = f.svc.Refund(payment.ID, "twice")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestVerify_ConcurrentAttemptsOnlyOneWins(t *testing.T) {
	f := newFixture(t)

	payment, err := f.svc.CreatePayment(f.orderID, domain.PaymentMethodBankTransfer, "")
	require.NoError(t, err)

	f.provider.set(successfulReceiptText(payment), nil)

	const n = 8
	outcomes := make(chan *VerifyOutcome, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.svc.Verify(context.Background(), VerifyRequest{
				PaymentID: payment.ID,
				Image:     []byte("img"),
			})
			require.NoError(t, err)
			outcomes <- outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	verified := 0
	for outcome := range outcomes {
		if outcome.Verified {
			verified++
		}
	}
	require.Equal(t, 1, verified)
}
