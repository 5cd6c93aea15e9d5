// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package intutil

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// IntsPerINT is the number of base units (ints) in one INT.
	IntsPerINT = 1e6

	// maxDecimals is the number of decimal places an INT amount string
	// may carry.
	maxDecimals = 6
)

// ErrInvalidAmount is returned when an amount string cannot be parsed or a
// floating point amount is out of range.
var ErrInvalidAmount = errors.New("invalid INT amount")

// Amount represents the base INT monetary unit (colloquially referred to as
// an `int').  A single Amount is equal to 1e-6 of an INT.
type Amount int64

// NewAmount creates an Amount from a floating point value representing some
// value in INT.
func NewAmount(f float64) (Amount, error) {
	// The amount is only valid if it is not a floating point number that
	// cannot be represented, such as NaN or +-Inf.
	a := f * IntsPerINT
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0, ErrInvalidAmount
	}

	// Depending on the sign, add or subtract 0.5 and rely on integer
	// truncation to correctly round the value up or down.
	if a < 0 {
		a = a - 0.5
	} else {
		a = a + 0.5
	}
	return Amount(a), nil
}

// ToINT converts the amount to a floating point value representing an
// amount of INT.
func (a Amount) ToINT() float64 {
	return float64(a) / IntsPerINT
}

// String formats the amount with six decimal places and the INT unit label,
// such as "1.234567 INT".
func (a Amount) String() string {
	return a.decimalString() + " INT"
}

// decimalString formats the amount with six decimal places and no unit
// label.
func (a Amount) decimalString() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%06d", sign, v/IntsPerINT, v%IntsPerINT)
}

// ParseAmount parses an amount string into an Amount.  A string without a
// decimal point is interpreted as a count of base units (ints), while a
// string with a decimal point is interpreted as INT with at most six decimal
// places, so "1.5" parses to 1500000 and "1500000" parses to the same value.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return 0, ErrInvalidAmount
	}

	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		// No decimal point, the value counts base units.
		ints, err := strconv.ParseInt(s, 10, 64)
		if err != nil || ints < 0 {
			return 0, ErrInvalidAmount
		}
		return Amount(ints), nil
	}

	intPart := s[:dot]
	fracPart := s[dot+1:]
	if intPart == "" || fracPart == "" || len(fracPart) > maxDecimals {
		return 0, ErrInvalidAmount
	}

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || whole < 0 {
		return 0, ErrInvalidAmount
	}
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil || frac < 0 {
		return 0, ErrInvalidAmount
	}
	for i := len(fracPart); i < maxDecimals; i++ {
		frac *= 10
	}

	if whole > (math.MaxInt64-frac)/IntsPerINT {
		return 0, ErrInvalidAmount
	}
	return Amount(whole*IntsPerINT + frac), nil
}
