// Package phone normalises customer phone numbers so that the same person
// typed two ways resolves to one customer record.
package phone

import (
	"errors"
	"strings"

	"github.com/ttacon/libphonenumber"
)

var ErrInvalid = errors.New("invalid phone number")

// Normalize parses raw in the given default region and returns it in E.164
// form. An empty input returns an empty string and no error.
func Normalize(raw string, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	p, err := libphonenumber.Parse(raw, strings.ToUpper(region))
	if err != nil {
		return "", ErrInvalid
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", ErrInvalid
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

// Key is the customer lookup key for raw: its E.164 form when it parses as a
// valid number for region, otherwise the trimmed input as typed.
func Key(raw string, region string) string {
	normalized, err := Normalize(raw, region)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return normalized
}
