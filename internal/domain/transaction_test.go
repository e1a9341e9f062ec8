package domain

import "testing"

func TestContentHash(t *testing.T) {
	base := ContentHash("2024-01-15", 1999.00, "AMAZON.COM*123")

	if got := ContentHash("2024-01-15", 1999.00, "  amazon.com*123  "); got != base {
		t.Error("hash is sensitive to description case/whitespace")
	}
	if got := ContentHash("2024-01-15", 1999.004, "AMAZON.COM*123"); got != base {
		t.Error("hash is sensitive to sub-cent noise")
	}
	if got := ContentHash("2024-01-16", 1999.00, "AMAZON.COM*123"); got == base {
		t.Error("different dates collide")
	}
	if got := ContentHash("2024-01-15", 1998.00, "AMAZON.COM*123"); got == base {
		t.Error("different amounts collide")
	}
	if len(base) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(base))
	}
}

func TestPeriod(t *testing.T) {
	txs := []RawTransaction{
		{Date: "2024-01-20"},
		{Date: "2024-01-05"},
		{Date: "garbage"},
		{Date: "2024-02-01"},
	}
	start, end := Period(txs)
	if start != "2024-01-05" || end != "2024-02-01" {
		t.Errorf("Period = %s..%s, want 2024-01-05..2024-02-01", start, end)
	}

	if start, end := Period(nil); start != "" || end != "" {
		t.Errorf("Period(nil) = %s..%s, want empty", start, end)
	}
	if start, end := Period([]RawTransaction{{Date: "not a date"}}); start != "" || end != "" {
		t.Errorf("unparsable dates produced period %s..%s", start, end)
	}
}
