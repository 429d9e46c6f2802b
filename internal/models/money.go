package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "tourbook/internal/errors"
)

// Amount is a monetary value in minor units (kobo, cents). JSON carries major units.
type Amount int64

// maxMajor is the largest whole part whose minor-unit value fits in an int64.
const maxMajor = (math.MaxInt64 - 99) / 100

func NewAmountFromMajor(major int64) Amount {
	return Amount(major * 100)
}

// ParseAmount parses "100", "100.5" or "100.50" into minor units.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && (len(frac) == 0 || len(frac) > 2) {
		return 0, fmt.Errorf("invalid amount: %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || major < 0 {
		return 0, fmt.Errorf("invalid amount: %q", s)
	}
	if major > maxMajor {
		return 0, fmt.Errorf("amount out of range: %q", s)
	}
	minor, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || minor < 0 {
		return 0, fmt.Errorf("invalid amount: %q", s)
	}

	v := major*100 + minor
	if neg {
		v = -v
	}
	return Amount(v), nil
}

func (a Amount) Minor() int64 {
	return int64(a)
}

func (a Amount) String() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts both numbers and numeric strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	if str == "null" {
		return nil
	}
	v, err := ParseAmount(str)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, err, "Invalid amount")
	}
	*a = v
	return nil
}
