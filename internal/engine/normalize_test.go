package engine

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"plain number", "1234.56", 1234.56, true},
		{"dollar sign and commas", "$1,234,567.89", 1234567.89, true},
		{"percent sign", "12.5%", 12.5, true},
		{"interior spaces", "1 234.50", 1234.50, true},
		{"accounting parens", "(42.00)", -42.00, true},
		{"parens with symbols", "($1,500)", -1500.00, true},
		{"rounds to cents", "10.006", 10.01, true},
		{"blank is zero", "", 0, true},
		{"whitespace is zero", "   ", 0, true},
		{"nil is zero", nil, 0, true},
		{"float passthrough", 99.999, 100.00, true},
		{"int passthrough", 7, 7.00, true},
		{"words fail", "twelve", 0, false},
		{"symbols only fail", "$", 0, false},
		{"bool fails", true, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseAmount(tc.in)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("ParseAmount(%#v) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestIsBlank(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, true},
		{"empty string", "", true},
		{"whitespace", "  \t", true},
		{"zero string", "0", false},
		{"zero number", 0.0, false},
		{"false", false, false},
		{"empty slice", []any{}, true},
		{"populated slice", []any{"x"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsBlank(tc.in); got != tc.want {
				t.Fatalf("IsBlank(%#v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
