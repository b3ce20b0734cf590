package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/harmancioglue/chatpay-engine/internal/receipt"
)

// SQLiteReceiptIndex persists the payment-to-receipt association in a local
// sqlite file so restarts do not lose it.
type SQLiteReceiptIndex struct {
	db *sql.DB
}

func NewSQLiteReceiptIndex(path string) (*SQLiteReceiptIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("receipt index open error: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS receipts (
		payment_id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		artifact_path TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("receipt index schema error: %v", err)
	}

	return &SQLiteReceiptIndex{db: db}, nil
}

// Save is idempotent: an existing record for the payment wins because jobs
// may run more than once.
func (x *SQLiteReceiptIndex) Save(record receipt.Record) error {
	_, err := x.db.Exec(`
		INSERT INTO receipts (payment_id, number, artifact_path, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (payment_id) DO NOTHING
	`, record.PaymentID.String(), record.Number, record.ArtifactPath, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("receipt index save error: %v", err)
	}
	return nil
}

// GetByPaymentID returns nil without error when no receipt exists yet.
func (x *SQLiteReceiptIndex) GetByPaymentID(paymentID uuid.UUID) (*receipt.Record, error) {
	record := &receipt.Record{}
	var rawID string

	err := x.db.QueryRow(`
		SELECT payment_id, number, artifact_path, created_at
		FROM receipts
		WHERE payment_id = $1
	`, paymentID.String()).Scan(&rawID, &record.Number, &record.ArtifactPath, &record.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("receipt index query error: %v", err)
	}

	record.PaymentID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("receipt index corrupt payment id %q: %v", rawID, err)
	}

	return record, nil
}

func (x *SQLiteReceiptIndex) Close() error {
	return x.db.Close()
}
