package extract

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     string
		negative bool
		suffix   string
		wantErr  bool
	}{
		{name: "plain", raw: "1500.50", want: "1500.5"},
		{name: "thousands separators", raw: "1,23,456.78", want: "123456.78"},
		{name: "rupee symbol", raw: "₹1,000.00", want: "1000"},
		{name: "dollar symbol", raw: "$42.99", want: "42.99"},
		{name: "cr suffix", raw: "1999.00 CR", want: "1999", suffix: "CR"},
		{name: "dr suffix", raw: "500.00 DR", want: "500", suffix: "DR"},
		{name: "lowercase suffix", raw: "250.00 cr", want: "250", suffix: "CR"},
		{name: "parentheses", raw: "(500.00)", want: "500", negative: true},
		{name: "currency inside parentheses", raw: "₹(500.00)", want: "500", negative: true},
		{name: "leading minus", raw: "-75.25", want: "75.25", negative: true},
		{name: "leading plus", raw: "+75.25", want: "75.25"},
		{name: "negative with symbol", raw: "-₹300.00", want: "300", negative: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "whitespace only", raw: "   ", wantErr: true},
		{name: "no digits", raw: "₹", wantErr: true},
		{name: "garbage", raw: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) = %v, want error", tt.raw, got.Amount)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q): %v", tt.raw, err)
			}
			want := decimal.RequireFromString(tt.want)
			if !got.Amount.Equal(want) {
				t.Errorf("Amount = %s, want %s", got.Amount, want)
			}
			if got.Negative != tt.negative {
				t.Errorf("Negative = %v, want %v", got.Negative, tt.negative)
			}
			if got.Suffix != tt.suffix {
				t.Errorf("Suffix = %q, want %q", got.Suffix, tt.suffix)
			}
			if got.Amount.IsNegative() {
				t.Errorf("Amount %s is signed; magnitude must stay positive", got.Amount)
			}
		})
	}
}
