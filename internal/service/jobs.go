package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/harmancioglue/chatpay-engine/internal/gateway"
	"github.com/harmancioglue/chatpay-engine/internal/queue"
)

// OutboundMessage is the message-retry queue payload.
type OutboundMessage struct {
	Recipient string
	Body      string
}

// RegisterQueues wires the three engine queues into the orchestrator with
// their retry policies, and chains receipt generation off successful
// verifications.
func RegisterQueues(
	o *queue.Orchestrator,
	payments *PaymentService,
	receipts *ReceiptService,
	sender gateway.MessageSender,
) error {
	err := o.Register(queue.PaymentVerification, queue.Config{
		MaxAttempts: 5,
		Backoff:     queue.Backoff{Kind: queue.BackoffExponential, Base: 5 * time.Second},
		Workers:     4,
	}, func(ctx context.Context, payload any, attempt int) (any, error) {
		req, ok := payload.(VerifyRequest)
		if !ok {
			return nil, fmt.Errorf("unexpected verification payload %T", payload)
		}
		return payments.Verify(ctx, req)
	})
	if err != nil {
		return err
	}

	err = o.Register(queue.ReceiptGeneration, queue.Config{
		MaxAttempts: 3,
		Backoff:     queue.Backoff{Kind: queue.BackoffExponential, Base: 1 * time.Second},
		Workers:     2,
	}, func(_ context.Context, payload any, _ int) (any, error) {
		paymentID, ok := payload.(uuid.UUID)
		if !ok {
			return nil, fmt.Errorf("unexpected receipt payload %T", payload)
		}
		return receipts.Generate(paymentID)
	})
	if err != nil {
		return err
	}

	err = o.Register(queue.MessageRetry, queue.Config{
		MaxAttempts: 3,
		Backoff:     queue.Backoff{Kind: queue.BackoffExponential, Base: 2 * time.Second},
		Workers:     4,
	}, func(ctx context.Context, payload any, _ int) (any, error) {
		msg, ok := payload.(OutboundMessage)
		if !ok {
			return nil, fmt.Errorf("unexpected message payload %T", payload)
		}
		return nil, sender.Send(ctx, msg.Recipient, msg.Body)
	})
	if err != nil {
		return err
	}

	// Chaining is explicit and one-directional: verification never waits on
	// receipt generation.
	o.OnSuccess(queue.PaymentVerification, func(job *queue.Job, result any) {
		outcome, ok := result.(*VerifyOutcome)
		if !ok || !outcome.Verified || outcome.Payment == nil {
			return
		}
		if _, err := o.Enqueue(queue.ReceiptGeneration, outcome.Payment.ID); err != nil {
			log.Printf("Receipt job enqueue error for payment %s: %v", outcome.Payment.ID, err)
		}
	})

	o.OnFailure(queue.PaymentVerification, func(job *queue.Job, err error) {
		log.Printf("ALERT: verification job %s permanently failed: %v", job.ID, err)
	})

	o.OnFailure(queue.ReceiptGeneration, func(job *queue.Job, err error) {
		log.Printf("ALERT: receipt job %s permanently failed: %v", job.ID, err)
	})

	o.OnFailure(queue.MessageRetry, func(job *queue.Job, err error) {
		log.Printf("ALERT: message delivery job %s permanently failed: %v", job.ID, err)
	})

	return nil
}
