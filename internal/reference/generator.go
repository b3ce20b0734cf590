package reference

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harmancioglue/chatpay-engine/internal/domain"
)

// maxAttempts bounds collision re-rolls. Repeated collisions signal a broken
// uniqueness index rather than bad luck, so exhaustion is fatal for the
// calling operation.
const maxAttempts = 5

const (
	prefix          = "PAY"
	orderSuffixLen  = 4
	randomSuffixLen = 6
)

// ExistenceChecker is the read-only slice of the payment store the generator
// needs.
type ExistenceChecker interface {
	ReferenceExists(reference string) (bool, error)
}

type Generator struct {
	store ExistenceChecker
}

func NewGenerator(store ExistenceChecker) *Generator {
	return &Generator{store: store}
}

// Generate produces a human-legible payment reference that is unique at the
// time of the check. The pre-check is a fast path only: the store's unique
// index on reference remains authoritative at insert time.
func (g *Generator) Generate(orderID uuid.UUID) (string, error) {
	orderPart := orderSuffix(orderID)
	timePart := timeToken()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := fmt.Sprintf("%s-%s-%s-%s", prefix, orderPart, timePart, randomSuffix())

		exists, err := g.store.ReferenceExists(candidate)
		if err != nil {
			return "", fmt.Errorf("reference existence check: %w", err)
		}
		if !exists {
			return candidate, nil
		}

		log.Printf("Reference collision (attempt %d/%d): %s", attempt+1, maxAttempts, candidate)
	}

	return "", domain.ErrReferenceExhausted
}

// orderSuffix keeps the tail of the order id that customers can read back
// over chat.
func orderSuffix(orderID uuid.UUID) string {
	normalized := strings.ToUpper(strings.ReplaceAll(orderID.String(), "-", ""))
	if len(normalized) <= orderSuffixLen {
		return normalized
	}
	return normalized[len(normalized)-orderSuffixLen:]
}

func timeToken() string {
	return strings.ToUpper(strconv.FormatInt(time.Now().Unix(), 36))
}

// randomSuffix re-rolls on every collision. Derived from a fresh UUID the
// same way gateway references are built.
func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:randomSuffixLen])
}
