package domain

import "errors"

var (
	// ErrOrderNotFound and ErrPaymentNotFound surface to the caller and are
	// never retried.
	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrOrderNotPayable means instructions were requested for an order that
	// is not in a payable state.
	ErrOrderNotPayable = errors.New("order is not in a payable state")

	// ErrInvalidState means the payment is not eligible for the requested
	// transition.
	ErrInvalidState = errors.New("payment is not eligible for this transition")

	// ErrStaleState means a compare-and-swap status update matched zero rows:
	// a concurrent operation won the transition.
	ErrStaleState = errors.New("payment status changed concurrently")

	// ErrDuplicateReference means the unique index rejected an insert: another
	// payment claimed the reference between the generator's pre-check and the
	// write.
	ErrDuplicateReference = errors.New("payment reference already exists")

	// ErrReferenceExhausted means the generator could not find a unique
	// reference within its attempt bound. Fatal for the calling operation.
	ErrReferenceExhausted = errors.New("could not generate a unique payment reference")

	// ErrExtractionFailed wraps OCR provider errors. Retryable at the job
	// orchestrator level.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrAmountMismatch means a caller-asserted amount disagrees with the
	// recorded payment amount.
	ErrAmountMismatch = errors.New("amount does not match payment record")
)
