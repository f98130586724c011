package girocode

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"gitlab.com/tozd/go/errors"
)

// ErrInvalidPayment is returned when a payment cannot be encoded as an EPC QR code
var ErrInvalidPayment = errors.Base("invalid payment")

const (
	maxNameLength    = 70
	maxTextLength    = 140
	maxPayloadLength = 331
)

var (
	bicPattern = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)

	minAmount = decimal.RequireFromString("0.01")
	maxAmount = decimal.RequireFromString("999999999.99")
)

// Payment is a SEPA credit transfer encoded into a GiroCode. BIC may be
// empty for transfers within the EEA.
type Payment struct {
	Name   string
	IBAN   string
	BIC    string
	Amount decimal.Decimal
	Text   string
}

// Payload returns the EPC069-12 version 002 payload, UTF-8 encoded
func (p Payment) Payload() (string, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", errors.Errorf("%w: recipient name must have 1 to %d characters", ErrInvalidPayment, maxNameLength)
	}
	if utf8.RuneCountInString(p.Text) > maxTextLength {
		return "", errors.Errorf("%w: remittance text longer than %d characters", ErrInvalidPayment, maxTextLength)
	}
	bic := strings.ToUpper(strings.TrimSpace(p.BIC))
	if bic != "" && !bicPattern.MatchString(bic) {
		return "", errors.Errorf("%w: BIC %q", ErrInvalidPayment, p.BIC)
	}
	iban, err := CompactIBAN(p.IBAN)
	if err != nil {
		return "", err
	}
	amount := p.Amount.Round(2)
	if amount.LessThan(minAmount) || amount.GreaterThan(maxAmount) {
		return "", errors.Errorf("%w: amount %s out of range", ErrInvalidPayment, p.Amount)
	}

	lines := []string{
		"BCD",
		"002",
		"1", // UTF-8
		"SCT",
		bic,
		name,
		iban,
		"EUR" + amount.StringFixed(2),
		"", // purpose
		"", // structured creditor reference
		p.Text,
	}
	payload := strings.TrimRight(strings.Join(lines, "\n"), "\n")
	if len(payload) > maxPayloadLength {
		return "", errors.Errorf("%w: payload exceeds %d bytes", ErrInvalidPayment, maxPayloadLength)
	}
	return payload, nil
}

// FormatText fills the remittance text template: {reference} is the buyer
// reference and {invoice} the invoice number
func FormatText(format string, inv *Invoice) string {
	return strings.NewReplacer(
		"{reference}", inv.BuyerReference,
		"{invoice}", inv.InvoiceNumber,
	).Replace(format)
}
