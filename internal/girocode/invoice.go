package girocode

import (
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gitlab.com/tozd/go/errors"
)

// ErrMalformedInvoice is returned when the invoice XML lacks a required element
var ErrMalformedInvoice = errors.Base("malformed invoice")

// Invoice is the payment metadata read from a UN/CEFACT Cross Industry
// Invoice (ZUGFeRD / Factur-X / XRechnung CII)
type Invoice struct {
	BuyerReference string
	InvoiceNumber  string
	Amount         decimal.Decimal
	Currency       string
}

// element names match regardless of namespace prefix (rsm:, ram:)
type crossIndustryInvoice struct {
	XMLName     xml.Name     `xml:"CrossIndustryInvoice"`
	Transaction *transaction `xml:"SupplyChainTradeTransaction"`
}

type transaction struct {
	Agreement  *agreement  `xml:"ApplicableHeaderTradeAgreement"`
	Settlement *settlement `xml:"ApplicableHeaderTradeSettlement"`
}

type agreement struct {
	BuyerReference *string `xml:"BuyerReference"`
}

type settlement struct {
	PaymentReference *string    `xml:"PaymentReference"`
	Summation        *summation `xml:"SpecifiedTradeSettlementHeaderMonetarySummation"`
}

type summation struct {
	GrandTotalAmount *string `xml:"GrandTotalAmount"`
	TaxTotalAmount   *struct {
		CurrencyID string `xml:"currencyID,attr"`
	} `xml:"TaxTotalAmount"`
}

// ReadInvoiceFile parses the invoice at path
func ReadInvoiceFile(path string) (*Invoice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("opening invoice: %w", err)
	}
	defer f.Close()
	return ParseInvoice(f)
}

// ParseInvoice extracts buyer reference, invoice number, grand total and currency
func ParseInvoice(r io.Reader) (*Invoice, error) {
	var doc crossIndustryInvoice
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Errorf("%w: %v", ErrMalformedInvoice, err)
	}

	tx := doc.Transaction
	if tx == nil {
		return nil, missing("SupplyChainTradeTransaction")
	}
	if tx.Agreement == nil {
		return nil, missing("ApplicableHeaderTradeAgreement")
	}
	if tx.Settlement == nil {
		return nil, missing("ApplicableHeaderTradeSettlement")
	}
	sum := tx.Settlement.Summation
	if sum == nil {
		return nil, missing("SpecifiedTradeSettlementHeaderMonetarySummation")
	}

	buyerRef, ok := text(tx.Agreement.BuyerReference)
	if !ok {
		return nil, missing("BuyerReference")
	}
	invoiceNumber, ok := text(tx.Settlement.PaymentReference)
	if !ok {
		return nil, missing("PaymentReference")
	}
	total, ok := text(sum.GrandTotalAmount)
	if !ok {
		return nil, missing("GrandTotalAmount")
	}
	if sum.TaxTotalAmount == nil || strings.TrimSpace(sum.TaxTotalAmount.CurrencyID) == "" {
		return nil, missing("TaxTotalAmount@currencyID")
	}

	amount, err := decimal.NewFromString(total)
	if err != nil {
		return nil, errors.Errorf("%w: GrandTotalAmount %q: %v", ErrMalformedInvoice, total, err)
	}

	return &Invoice{
		BuyerReference: buyerRef,
		InvoiceNumber:  invoiceNumber,
		Amount:         amount,
		Currency:       strings.TrimSpace(sum.TaxTotalAmount.CurrencyID),
	}, nil
}

func text(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	v := strings.TrimSpace(*s)
	return v, v != ""
}

func missing(element string) error {
	return errors.Errorf("%w: missing %s", ErrMalformedInvoice, element)
}
