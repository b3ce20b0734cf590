package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/harmancioglue/chatpay-engine/internal/domain"
)

// PaymentRepository is the Postgres-backed payment store. The unique index
// on payments.reference is the authoritative uniqueness guarantee; the
// generator's pre-check only narrows the window.
type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, order_id, amount, method, reference, transaction_id,
	status, failure_reason, verified_at, created_at, updated_at`

func (r *PaymentRepository) Create(payment *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, order_id, amount, method, reference, transaction_id,
			status, failure_reason, verified_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(
		query,
		payment.ID,
		payment.OrderID,
		payment.Amount,
		payment.Method,
		payment.Reference,
		nullString(payment.TransactionID),
		payment.Status,
		nullString(payment.FailureReason),
		payment.VerifiedAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" &&
			strings.Contains(pqErr.Constraint, "reference") {
			return domain.ErrDuplicateReference
		}
		return fmt.Errorf("payment create error: %v", err)
	}

	return nil
}

func (r *PaymentRepository) GetByID(id uuid.UUID) (*domain.Payment, error) {
	return r.getOne("WHERE id = $1", id)
}

func (r *PaymentRepository) GetByReference(reference string) (*domain.Payment, error) {
	return r.getOne("WHERE reference = $1", reference)
}

func (r *PaymentRepository) GetByTransactionID(transactionID string) (*domain.Payment, error) {
	return r.getOne("WHERE transaction_id = $1", transactionID)
}

func (r *PaymentRepository) GetByOrderID(orderID uuid.UUID) (*domain.Payment, error) {
	return r.getOne("WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1", orderID)
}

func (r *PaymentRepository) GetPendingByOrderID(orderID uuid.UUID) (*domain.Payment, error) {
	return r.getOne("WHERE order_id = $1 AND status = 'pending' ORDER BY created_at DESC LIMIT 1", orderID)
}

func (r *PaymentRepository) ReferenceExists(reference string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM payments WHERE reference = $1)", reference,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("reference existence check error: %v", err)
	}
	return exists, nil
}

// UpdateStatusIf performs the compare-and-swap transition: a single UPDATE
// conditioned on the expected prior status. Zero rows affected means a
// concurrent operation changed the row first.
func (r *PaymentRepository) UpdateStatusIf(id uuid.UUID, from, to domain.PaymentStatus, update domain.StatusUpdate) (*domain.Payment, error) {
	if !domain.CanTransition(from, to) {
		return nil, domain.ErrInvalidState
	}

	query := `
		UPDATE payments
		SET status = $3,
			transaction_id = COALESCE(NULLIF($4, ''), transaction_id),
			failure_reason = COALESCE(NULLIF($5, ''), failure_reason),
			verified_at = COALESCE($6, verified_at),
			updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.Exec(query, id, from, to,
		update.TransactionID, update.FailureReason, update.VerifiedAt)
	if err != nil {
		return nil, fmt.Errorf("payment status update error: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		if _, err := r.GetByID(id); err != nil {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, domain.ErrStaleState
	}

	return r.GetByID(id)
}

func (r *PaymentRepository) getOne(where string, arg interface{}) (*domain.Payment, error) {
	query := "SELECT" + paymentColumns + " FROM payments " + where

	payment := &domain.Payment{}
	var transactionID, failureReason sql.NullString
	var verifiedAt sql.NullTime

	err := r.db.QueryRow(query, arg).Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.Amount,
		&payment.Method,
		&payment.Reference,
		&transactionID,
		&payment.Status,
		&failureReason,
		&verifiedAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment query error: %v", err)
	}

	if transactionID.Valid {
		payment.TransactionID = transactionID.String
	}
	if failureReason.Valid {
		payment.FailureReason = failureReason.String
	}
	if verifiedAt.Valid {
		payment.VerifiedAt = &verifiedAt.Time
	}

	return payment, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
