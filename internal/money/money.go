// Package money is the exact base-10 arithmetic used for every price,
// quantity and balance computation. Addition, subtraction, multiplication
// and comparison are the exact decimal.Decimal methods. Operations that can
// produce unbounded digits (division, rounding) truncate toward zero.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

// DivisionPlaces is the number of fractional digits kept by Div.
const DivisionPlaces = 36

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
	two  = decimal.NewFromInt(2)
)

// Parse reads a decimal string such as "0.5", "-12", "1e-8".
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, &domain.ValidationError{Field: "decimal", Reason: "empty value"}
	}
	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Zero, &domain.ValidationError{Field: "decimal", Reason: "non-finite value " + s}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &domain.ValidationError{Field: "decimal", Reason: err.Error()}
	}
	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ParsePositive is Parse plus a > 0 check, reported against field.
func ParsePositive(field, s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return d, &domain.ValidationError{Field: field, Reason: ve.Reason}
	}
	if !d.IsPositive() {
		return d, &domain.ValidationError{Field: field, Reason: "must be positive"}
	}
	return d, nil
}

// Div returns a / b truncated toward zero at DivisionPlaces.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, &domain.ValidationError{Field: "divisor", Reason: "division by zero"}
	}
	q, _ := a.QuoRem(b, DivisionPlaces)
	return q, nil
}

// Round truncates v toward zero at places fractional digits.
func Round(v decimal.Decimal, places int32) decimal.Decimal {
	return v.Truncate(places)
}

func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Mid is the arithmetic mean of a and b.
func Mid(a, b decimal.Decimal) (decimal.Decimal, error) {
	return Div(a.Add(b), two)
}

// Fee is volume × rate. Rates are exact decimals so no rounding is applied.
func Fee(volume, rate decimal.Decimal) decimal.Decimal {
	return volume.Mul(rate)
}
