package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nimasrn/congregation-messenger/internal/model"
)

const (
	DefaultCountryCode     = "233"
	DefaultCanonicalLength = 12
	trunkPrefix            = '0'
)

var ErrInvalidNumber = errors.New("no valid phone number")

// Normalizer canonicalizes numbers for a single country plan.
type Normalizer struct {
	countryCode     string
	canonicalLength int
}

func NewNormalizer(countryCode string, canonicalLength int) (*Normalizer, error) {
	if countryCode == "" || strings.Trim(countryCode, "0123456789") != "" {
		return nil, fmt.Errorf("country code %q must be digits", countryCode)
	}
	if canonicalLength <= len(countryCode)+1 {
		return nil, fmt.Errorf("canonical length %d too short for country code %q", canonicalLength, countryCode)
	}
	return &Normalizer{countryCode: countryCode, canonicalLength: canonicalLength}, nil
}

// Default uses the Ghana plan: 233 + 9 digit subscriber number.
func Default() *Normalizer {
	return &Normalizer{countryCode: DefaultCountryCode, canonicalLength: DefaultCanonicalLength}
}

func (n *Normalizer) domesticLength() int {
	return n.canonicalLength - len(n.countryCode) + 1
}

func (n *Normalizer) subscriberLength() int {
	return n.domesticLength() - 1
}

// Normalize strips every non digit and accepts exactly three shapes:
// full international, trunk-prefixed domestic and bare subscriber number.
// Anything else returns ErrInvalidNumber.
func (n *Normalizer) Normalize(raw string) (model.PhoneNumber, error) {
	digits := stripNonDigits(raw)

	switch {
	case strings.HasPrefix(digits, n.countryCode) && len(digits) == n.canonicalLength:
		return model.PhoneNumber(digits), nil
	case len(digits) == n.domesticLength() && digits[0] == trunkPrefix:
		return model.PhoneNumber(n.countryCode + digits[1:]), nil
	case len(digits) == n.subscriberLength():
		return model.PhoneNumber(n.countryCode + digits), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
}

// Valid reports whether raw normalizes.
func (n *Normalizer) Valid(raw string) bool {
	_, err := n.Normalize(raw)
	return err == nil
}

func Normalize(raw string) (model.PhoneNumber, error) {
	return Default().Normalize(raw)
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
