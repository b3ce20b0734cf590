package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"

	"github.com/harmancioglue/chatpay-engine/internal/events"
	"github.com/harmancioglue/chatpay-engine/internal/messaging"
	"github.com/harmancioglue/chatpay-engine/internal/queue"
	"github.com/harmancioglue/chatpay-engine/internal/service"
)

// HandlePaymentEvent routes commands from the conversational front-end into
// the job orchestrator. The broker delivery is acked once the job is queued;
// retries from there on are the orchestrator's business.
func (h *PaymentHandler) HandlePaymentEvent(event events.PaymentEvent) error {
	log.Printf("Payment engine event received: %s from %s", event.EventType, event.Service)

	switch event.EventType {
	case events.EvidenceSubmittedEvent:
		return h.handleEvidenceSubmitted(event)
	case events.MessageSendEvent:
		return h.handleMessageSend(event)
	default:
		log.Printf("Unhandled event type: %s", event.EventType)
		return nil
	}
}

func (h *PaymentHandler) handleEvidenceSubmitted(event events.PaymentEvent) error {
	var payload events.EvidenceSubmittedPayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		return fmt.Errorf("evidence payload decode error: %v", err)
	}

	var image []byte
	if payload.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(payload.ImageBase64)
		if err != nil {
			return fmt.Errorf("evidence image decode error: %v", err)
		}
		image = decoded
	}

	_, err := h.orchestrator.Enqueue(queue.PaymentVerification, service.VerifyRequest{
		PaymentID:     payload.PaymentID,
		OrderID:       payload.OrderID,
		Reference:     payload.Reference,
		TransactionID: payload.TransactionID,
		Image:         image,
	})
	return err
}

func (h *PaymentHandler) handleMessageSend(event events.PaymentEvent) error {
	var payload events.OutboundMessagePayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		return fmt.Errorf("message payload decode error: %v", err)
	}

	_, err := h.orchestrator.Enqueue(queue.MessageRetry, service.OutboundMessage{
		Recipient: payload.Recipient,
		Body:      payload.Body,
	})
	return err
}

// decodePayload round-trips the loosely-typed event payload into its concrete
// struct.
func decodePayload(payload interface{}, target interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func (h *PaymentHandler) StartConsuming(consumer *messaging.Consumer) error {
	routingKeys := []string{
		"commerce.chat-gateway.payment.evidence.submitted",
		"commerce.chat-gateway.message.send",
	}

	return consumer.ConsumeEvents(routingKeys, h.HandlePaymentEvent)
}
