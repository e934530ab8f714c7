package common

import "testing"

func TestInferCategory(t *testing.T) {
	tests := []struct {
		ticker string
		want   string
	}{
		{"KXNBAGAME-25JUN15LALBOS", "Sports"},
		{"KXMVESPORTS-25JUN15", "Sports"},
		{"KXMVEMENTIONS-25", "Mentions"},
		{"KXMVEMENT-25", "Entertainment"},
		{"KXBTC-25JUN30", "Crypto"},
		{"KXINX-25JUN30", "Financials"},
		{"KXSOMETHINGELSE", CategoryUnknown},
		{"", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.ticker, func(t *testing.T) {
			if got := InferCategory(tt.ticker); got != tt.want {
				t.Errorf("InferCategory(%q) = %q; want %q", tt.ticker, got, tt.want)
			}
		})
	}
}

func TestSideConversions(t *testing.T) {
	if SideYes.Opposite() != SideNo || SideNo.Opposite() != SideYes {
		t.Error("Opposite() must flip sides")
	}
	if SideYes.String() != "yes" || SideNo.String() != "no" {
		t.Error("unexpected side names")
	}
}
