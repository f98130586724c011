package girocode

import (
	"strings"

	"gitlab.com/tozd/go/errors"
)

// ErrInvalidIBAN is returned for an IBAN with a bad country, length or checksum
var ErrInvalidIBAN = errors.Base("invalid IBAN")

// IBAN lengths for the SEPA scheme countries
var ibanLengths = map[string]int{
	"AD": 24, "AT": 20, "BE": 16, "BG": 22, "CH": 21, "CY": 28, "CZ": 24,
	"DE": 22, "DK": 18, "EE": 20, "ES": 24, "FI": 18, "FR": 27, "GB": 22,
	"GI": 23, "GR": 27, "HR": 21, "HU": 28, "IE": 22, "IS": 26, "IT": 27,
	"LI": 21, "LT": 20, "LU": 20, "LV": 21, "MC": 27, "MT": 31, "NL": 18,
	"NO": 15, "PL": 28, "PT": 25, "RO": 24, "SE": 24, "SI": 19, "SK": 24,
	"SM": 27, "VA": 22,
}

// CompactIBAN validates iban and returns it without spaces, upper-cased
func CompactIBAN(iban string) (string, error) {
	compact := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
	if len(compact) < 5 {
		return "", errors.Errorf("%w: %q is too short", ErrInvalidIBAN, iban)
	}

	want, ok := ibanLengths[compact[:2]]
	if !ok {
		return "", errors.Errorf("%w: unsupported country %q", ErrInvalidIBAN, compact[:2])
	}
	if len(compact) != want {
		return "", errors.Errorf("%w: %s IBAN must have %d characters, got %d", ErrInvalidIBAN, compact[:2], want, len(compact))
	}

	// ISO 7064 MOD 97-10 over the rearranged IBAN, letters as 10..35
	rearranged := compact[4:] + compact[:4]
	remainder := 0
	for _, c := range rearranged {
		switch {
		case c >= '0' && c <= '9':
			remainder = (remainder*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			remainder = (remainder*100 + int(c-'A') + 10) % 97
		default:
			return "", errors.Errorf("%w: unexpected character %q", ErrInvalidIBAN, c)
		}
	}
	if remainder != 1 {
		return "", errors.Errorf("%w: checksum mismatch", ErrInvalidIBAN)
	}
	return compact, nil
}
