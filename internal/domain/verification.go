package domain

import "github.com/shopspring/decimal"

// ExpectedPayment is the read-only projection a receipt is verified against.
// Derived from the payment record and business configuration, never persisted.
type ExpectedPayment struct {
	Reference     string
	Amount        decimal.Decimal
	AccountNumber string
	BankName      string
}

// VerificationDetails records which checks matched, the raw extracted text
// and one human-readable line per failed check.
type VerificationDetails struct {
	ReferenceFound   bool     `json:"reference_found"`
	AmountFound      bool     `json:"amount_found"`
	AccountFound     bool     `json:"account_found"`
	SuccessIndicator bool     `json:"success_indicator"`
	ExtractedText    string   `json:"extracted_text"`
	Issues           []string `json:"issues"`
}

// VerificationResult is produced fresh per attempt and never mutated after
// construction.
type VerificationResult struct {
	Verified   bool                `json:"verified"`
	Confidence int                 `json:"confidence"`
	Details    VerificationDetails `json:"details"`
}
