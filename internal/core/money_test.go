package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.5", true},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"0.001", "", false},
		{"abc", "", false},
		{"1e3", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFormatCurrency(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"0", "$0.00"},
		{"35", "$35.00"},
		{"12.5", "$12.50"},
		{"-5", "-$5.00"},
		{"1234.5", "$1,234.50"},
		{"0.005", "$0.01"},
		{"-1234567.891", "-$1,234,567.89"},
		{"90071992547409.93", "$90,071,992,547,409.93"},
		{"123456789012345678901.10", "$123,456,789,012,345,678,901.10"},
	}
	for _, tc := range cases {
		if got := FormatCurrency(decimal.RequireFromString(tc.in)); got != tc.out {
			t.Fatalf("FormatCurrency(%s) = %q, want %q", tc.in, got, tc.out)
		}
	}
}
