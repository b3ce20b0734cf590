package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/harmancioglue/chatpay-engine/internal/domain"
	"github.com/harmancioglue/chatpay-engine/internal/httpx"
	"github.com/harmancioglue/chatpay-engine/internal/queue"
	"github.com/harmancioglue/chatpay-engine/internal/service"
)

type PaymentHandler struct {
	payments     *service.PaymentService
	receipts     *service.ReceiptService
	orchestrator *queue.Orchestrator
}

func NewPaymentHandler(
	payments *service.PaymentService,
	receipts *service.ReceiptService,
	orchestrator *queue.Orchestrator,
) *PaymentHandler {
	return &PaymentHandler{
		payments:     payments,
		receipts:     receipts,
		orchestrator: orchestrator,
	}
}

func (h *PaymentHandler) HealthCheck(c *fiber.Ctx) error {
	return httpx.SuccessResponse(c, "Payment engine is healthy", map[string]interface{}{
		"service": "payment-engine",
		"status":  "healthy",
	})
}

func (h *PaymentHandler) IssueInstructions(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("order_id"))
	if err != nil {
		return httpx.BadRequestResponse(c, "Invalid order ID", map[string]interface{}{
			"order_id": c.Params("order_id"),
		})
	}

	var req IssueInstructionsRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", nil)
	}
	if req.Method == "" {
		req.Method = string(domain.PaymentMethodBankTransfer)
	}

	instructions, err := h.payments.IssueInstructions(orderID, domain.PaymentMethod(req.Method))
	if err != nil {
		return h.respondError(c, err)
	}

	return httpx.SuccessResponse(c, "Payment instructions issued", instructions)
}

func (h *PaymentHandler) CreatePayment(c *fiber.Ctx) error {
	var req CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", nil)
	}
	if req.OrderID == uuid.Nil {
		return httpx.BadRequestResponse(c, "order_id is required", nil)
	}

	payment, err := h.payments.CreatePayment(req.OrderID, domain.PaymentMethod(req.Method), req.TransactionID)
	if err != nil {
		return h.respondError(c, err)
	}

	return httpx.SuccessResponse(c, "Payment record ready", toPaymentResponse(payment))
}

// SubmitVerification enqueues an asynchronous verification job and returns
// immediately. The verdict reaches the caller through the published events.
func (h *PaymentHandler) SubmitVerification(c *fiber.Ctx) error {
	var req VerifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", nil)
	}
	if req.PaymentID == uuid.Nil && req.Reference == "" && req.TransactionID == "" {
		return httpx.BadRequestResponse(c, "One of payment_id, reference or transaction_id is required", nil)
	}

	var image []byte
	if req.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			return httpx.BadRequestResponse(c, "image_base64 is not valid base64", nil)
		}
		image = decoded
	}

	jobID, err := h.orchestrator.Enqueue(queue.PaymentVerification, service.VerifyRequest{
		PaymentID:     req.PaymentID,
		OrderID:       req.OrderID,
		Reference:     req.Reference,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Image:         image,
	})
	if err != nil {
		return httpx.InternalServerErrorResponse(c, "Could not enqueue verification", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return httpx.AcceptedResponse(c, "Verification queued", map[string]interface{}{
		"job_id": jobID,
	})
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httpx.BadRequestResponse(c, "Invalid payment ID", nil)
	}

	payment, err := h.payments.GetPayment(id)
	if err != nil {
		return h.respondError(c, err)
	}

	return httpx.SuccessResponse(c, "Payment retrieved", toPaymentResponse(payment))
}

func (h *PaymentHandler) GetPaymentByOrderID(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("order_id"))
	if err != nil {
		return httpx.BadRequestResponse(c, "Invalid order ID", nil)
	}

	payment, err := h.payments.GetPaymentByOrderID(orderID)
	if err != nil {
		return h.respondError(c, err)
	}

	return httpx.SuccessResponse(c, "Payment retrieved", toPaymentResponse(payment))
}

func (h *PaymentHandler) MarkFailed(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httpx.BadRequestResponse(c, "Invalid payment ID", nil)
	}

	var req ReasonRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", nil)
	}

	payment, err := h.payments.MarkFailed(id, req.Reason)
	if err != nil {
		return h.respondError(c, err)
	}

	return httpx.SuccessResponse(c, "Payment marked as failed", toPaymentResponse(payment))
}

func (h *PaymentHandler) Refund(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httpx.BadRequestResponse(c, "Invalid payment ID", nil)
	}

	var req ReasonRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequestResponse(c, "Invalid request body", nil)
	}

	payment, err := h.payments.Refund(id, req.Reason)
	if err != nil {
		return h.respondError(c, err)
	}

	return httpx.SuccessResponse(c, "Payment refunded", toPaymentResponse(payment))
}

func (h *PaymentHandler) GetReceipt(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httpx.BadRequestResponse(c, "Invalid payment ID", nil)
	}

	record, err := h.receipts.GetByPaymentID(id)
	if err != nil {
		return h.respondError(c, err)
	}
	if record == nil {
		return httpx.NotFoundResponse(c, "No receipt generated for this payment yet")
	}

	return httpx.SuccessResponse(c, "Receipt retrieved", record)
}

func (h *PaymentHandler) QueueStats(c *fiber.Ctx) error {
	return httpx.SuccessResponse(c, "Queue statistics", h.orchestrator.Stats())
}

func (h *PaymentHandler) respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrPaymentNotFound):
		return httpx.NotFoundResponse(c, err.Error())
	case errors.Is(err, domain.ErrOrderNotPayable),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrStaleState):
		return httpx.ConflictResponse(c, err.Error(), nil)
	case errors.Is(err, domain.ErrReferenceExhausted):
		return httpx.InternalServerErrorResponse(c, err.Error(), nil)
	default:
		return httpx.InternalServerErrorResponse(c, "Unexpected error", map[string]interface{}{
			"error": fmt.Sprintf("%v", err),
		})
	}
}
