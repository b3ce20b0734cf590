package receipt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harmancioglue/chatpay-engine/internal/domain"
)

// Receipt is the fully-populated value object handed to a renderer.
type Receipt struct {
	Number       string               `json:"number"`
	PaymentID    uuid.UUID            `json:"payment_id"`
	OrderID      uuid.UUID            `json:"order_id"`
	BusinessName string               `json:"business_name"`
	CustomerName string               `json:"customer_name"`
	Items        []domain.OrderItem   `json:"items"`
	Amount       decimal.Decimal      `json:"amount"`
	Currency     string               `json:"currency"`
	Method       domain.PaymentMethod `json:"method"`
	Reference    string               `json:"reference"`
	VerifiedAt   time.Time            `json:"verified_at"`
	GeneratedAt  time.Time            `json:"generated_at"`
}

// Record is the persisted payment-to-receipt association.
type Record struct {
	PaymentID    uuid.UUID `json:"payment_id"`
	Number       string    `json:"number"`
	ArtifactPath string    `json:"artifact_path"`
	CreatedAt    time.Time `json:"created_at"`
}

// Index keeps the payment-to-receipt mapping across restarts.
type Index interface {
	Save(record Record) error
	GetByPaymentID(paymentID uuid.UUID) (*Record, error)
}

// Renderer produces a persisted artifact from a receipt value. The real
// document pipeline lives outside this engine.
type Renderer interface {
	Render(receipt Receipt) (artifactPath string, err error)
}

// NewNumber allocates a human-legible receipt number.
func NewNumber() string {
	return fmt.Sprintf("RCP-%d-%s", time.Now().Unix(),
		strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6]))
}

// TextRenderer writes a plain-text artifact to a directory. Wiring-level
// stand-in for the external document renderer.
type TextRenderer struct {
	Dir string
}

func (r TextRenderer) Render(receipt Receipt) (string, error) {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", fmt.Errorf("receipt dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", receipt.BusinessName)
	fmt.Fprintf(&b, "Receipt %s\n", receipt.Number)
	fmt.Fprintf(&b, "Customer: %s\n", receipt.CustomerName)
	fmt.Fprintf(&b, "Order: %s\n\n", receipt.OrderID)
	for _, item := range receipt.Items {
		fmt.Fprintf(&b, "%dx %s @ %s\n", item.Quantity, item.ProductName, item.UnitPrice.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal: %s %s\n", receipt.Currency, receipt.Amount.StringFixed(2))
	fmt.Fprintf(&b, "Paid via %s, reference %s\n", receipt.Method, receipt.Reference)
	fmt.Fprintf(&b, "Verified at %s\n", receipt.VerifiedAt.Format(time.RFC3339))

	path := filepath.Join(r.Dir, receipt.Number+".txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("receipt write: %w", err)
	}
	return path, nil
}
