// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package intutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNewAmount tests conversion from floating point INT values.
func TestNewAmount(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		want    Amount
		wantErr bool
	}{{
		name:  "zero",
		value: 0,
		want:  0,
	}, {
		name:  "one INT",
		value: 1,
		want:  1e6,
	}, {
		name:  "fractional",
		value: 1.234567,
		want:  1234567,
	}, {
		name:  "rounds up",
		value: 0.0000015,
		want:  2,
	}, {
		name:  "negative rounds away from zero",
		value: -0.0000015,
		want:  -2,
	}, {
		name:  "negative INT",
		value: -2.5,
		want:  -2500000,
	}, {
		name:    "NaN",
		value:   math.NaN(),
		wantErr: true,
	}, {
		name:    "positive infinity",
		value:   math.Inf(1),
		wantErr: true,
	}, {
		name:    "negative infinity",
		value:   math.Inf(-1),
		wantErr: true,
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := NewAmount(test.value)
			if test.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, got)
		})
	}
}

// TestAmountString tests the fixed six decimal place formatting.
func TestAmountString(t *testing.T) {
	tests := []struct {
		amount Amount
		want   string
	}{
		{0, "0.000000 INT"},
		{1, "0.000001 INT"},
		{1e6, "1.000000 INT"},
		{1234567, "1.234567 INT"},
		{-1500000, "-1.500000 INT"},
		{2500000000000, "2500000.000000 INT"},
	}

	for _, test := range tests {
		require.Equal(t, test.want, test.amount.String())
	}
}

// TestAmountToINT tests conversion back to floating point.
func TestAmountToINT(t *testing.T) {
	require.Equal(t, 1.5, Amount(1500000).ToINT())
	require.Equal(t, -0.000001, Amount(-1).ToINT())
	require.Equal(t, 0.0, Amount(0).ToINT())
}

// TestParseAmount tests parsing of both base unit and decimal INT strings.
func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Amount
		wantErr bool
	}{{
		name:  "base units",
		input: "1500000",
		want:  1500000,
	}, {
		name:  "zero",
		input: "0",
		want:  0,
	}, {
		name:  "decimal",
		input: "1.5",
		want:  1500000,
	}, {
		name:  "all six decimals",
		input: "1.234567",
		want:  1234567,
	}, {
		name:  "smallest unit",
		input: "0.000001",
		want:  1,
	}, {
		name:    "empty",
		input:   "",
		wantErr: true,
	}, {
		name:    "too many decimals",
		input:   "1.2345678",
		wantErr: true,
	}, {
		name:    "missing whole part",
		input:   ".5",
		wantErr: true,
	}, {
		name:    "missing fractional part",
		input:   "1.",
		wantErr: true,
	}, {
		name:    "lone dot",
		input:   ".",
		wantErr: true,
	}, {
		name:    "negative",
		input:   "-1",
		wantErr: true,
	}, {
		name:    "negative decimal",
		input:   "-1.5",
		wantErr: true,
	}, {
		name:    "not a number",
		input:   "abc",
		wantErr: true,
	}, {
		name:    "scientific notation",
		input:   "1.5e3",
		wantErr: true,
	}, {
		name:    "overflow",
		input:   "9223372036855.0",
		wantErr: true,
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ParseAmount(test.input)
			if test.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, got)
		})
	}
}

// TestParseAmountRoundTrip tests that formatted amounts parse back to the
// same value.
func TestParseAmountRoundTrip(t *testing.T) {
	for _, amount := range []Amount{0, 1, 999999, 1e6, 1234567, 5e12} {
		parsed, err := ParseAmount(amount.decimalString())
		require.NoError(t, err)
		require.Equal(t, amount, parsed)
	}
}
