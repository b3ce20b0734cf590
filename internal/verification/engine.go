package verification

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/harmancioglue/chatpay-engine/internal/domain"
)

// Confidence weights. Reference and amount are load-bearing: the verdict
// requires both regardless of the total score.
const (
	referenceWeight = 40
	amountWeight    = 30
	accountWeight   = 20
	successWeight   = 10
	failurePenalty  = 50

	verifiedThreshold = 70
)

var successPhrases = []string{
	"transfer successful",
	"transaction successful",
	"payment successful",
	"successful",
	"completed",
	"credited",
	"payment received",
	"approved",
}

var failurePhrases = []string{
	"failed",
	"declined",
	"insufficient funds",
	"insufficient balance",
	"reversed",
	"cancelled",
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Three pattern families for amounts OCR may have mangled: currency
	// prefixed, explicit two-decimal, thousands grouped integer.
	currencyAmountRe = regexp.MustCompile(`(?:₦|ngn)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	decimalAmountRe  = regexp.MustCompile(`([0-9][0-9,]*\.[0-9]{2})`)
	groupedAmountRe  = regexp.MustCompile(`([0-9]{1,3}(?:,[0-9]{3})+)`)
)

// Verify matches extracted receipt text against the expected payment facts.
// Pure function of its inputs: same text and expectation always produce the
// same result.
func Verify(extractedText string, expected domain.ExpectedPayment) domain.VerificationResult {
	if strings.TrimSpace(extractedText) == "" {
		return domain.VerificationResult{
			Verified:   false,
			Confidence: 0,
			Details: domain.VerificationDetails{
				ExtractedText: extractedText,
				Issues:        []string{"no text could be extracted from the receipt image"},
			},
		}
	}

	text := normalize(extractedText)

	referenceFound := matchReference(text, expected.Reference)
	amountFound := matchAmount(text, expected.Amount)
	accountFound := expected.AccountNumber != "" &&
		strings.Contains(text, strings.TrimSpace(expected.AccountNumber))

	successFound := containsAny(text, successPhrases)
	failureFound := containsAny(text, failurePhrases)

	confidence := 0
	if referenceFound {
		confidence += referenceWeight
	}
	if amountFound {
		confidence += amountWeight
	}
	if accountFound {
		confidence += accountWeight
	}
	if successFound {
		confidence += successWeight
	}
	if failureFound {
		confidence -= failurePenalty
	}
	if confidence < 0 {
		confidence = 0
	}

	var issues []string
	if !referenceFound {
		issues = append(issues, fmt.Sprintf("reference %s not found in receipt", expected.Reference))
	}
	if !amountFound {
		issues = append(issues, fmt.Sprintf("amount %s not found in receipt", expected.Amount.StringFixed(2)))
	}
	if expected.AccountNumber != "" && !accountFound {
		issues = append(issues, "account number not found in receipt")
	}
	if !successFound {
		issues = append(issues, "no success indicator found in receipt")
	}
	if failureFound {
		issues = append(issues, "receipt contains a failure indicator")
	}

	verified := confidence >= verifiedThreshold && !failureFound && referenceFound && amountFound

	return domain.VerificationResult{
		Verified:   verified,
		Confidence: confidence,
		Details: domain.VerificationDetails{
			ReferenceFound:   referenceFound,
			AmountFound:      amountFound,
			AccountFound:     accountFound,
			SuccessIndicator: successFound,
			ExtractedText:    extractedText,
			Issues:           issues,
		},
	}
}

func normalize(text string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(text), " ")
}

// matchReference accepts an exact match with hyphens and spaces stripped, or
// the first 8 characters of the expected reference as a substring. The prefix
// tolerance covers OCR character loss at the tail of long references.
func matchReference(text, reference string) bool {
	expected := stripSeparators(strings.ToLower(reference))
	if expected == "" {
		return false
	}

	haystack := stripSeparators(text)
	if strings.Contains(haystack, expected) {
		return true
	}

	if len(expected) >= 8 && strings.Contains(haystack, expected[:8]) {
		return true
	}

	return false
}

func stripSeparators(s string) string {
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}

// matchAmount first looks for the literal plain, two-decimal and
// thousands-grouped renderings of the expected amount, then scans the three
// pattern families and accepts any captured number within one unit of the
// expected amount. OCR commonly misreads a trailing digit.
func matchAmount(text string, amount decimal.Decimal) bool {
	candidates := []string{
		amount.String(),
		amount.StringFixed(2),
		groupThousands(amount),
	}
	for _, candidate := range candidates {
		if strings.Contains(text, candidate) {
			return true
		}
	}

	tolerance := decimal.NewFromInt(1)
	for _, re := range []*regexp.Regexp{currencyAmountRe, decimalAmountRe, groupedAmountRe} {
		for _, match := range re.FindAllStringSubmatch(text, -1) {
			captured, err := decimal.NewFromString(strings.ReplaceAll(match[1], ",", ""))
			if err != nil {
				continue
			}
			if captured.Sub(amount).Abs().LessThanOrEqual(tolerance) {
				return true
			}
		}
	}

	return false
}

func groupThousands(amount decimal.Decimal) string {
	s := amount.String()
	intPart, fracPart, hasFrac := strings.Cut(s, ".")

	var negative bool
	if strings.HasPrefix(intPart, "-") {
		negative = true
		intPart = intPart[1:]
	}

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	grouped := strings.Join(groups, ",")
	if negative {
		grouped = "-" + grouped
	}
	if hasFrac {
		grouped += "." + fracPart
	}
	return grouped
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
