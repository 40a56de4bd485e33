package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestItemPower(t *testing.T) {
	tests := []struct {
		wattage  string
		quantity int
		expected string
	}{
		{"10", 5, "50"},
		{"12.5", 4, "50"},
		{"0.1", 3, "0.3"},
		{"250", 0, "0"},
	}

	for _, tt := range tests {
		item := Item{Wattage: decimal.RequireFromString(tt.wattage), Quantity: tt.quantity}
		got := item.Power()
		if !got.Equal(decimal.RequireFromString(tt.expected)) {
			t.Errorf("Power(%s x %d) = %s, want %s", tt.wattage, tt.quantity, got, tt.expected)
		}
	}
}

func TestItemTotal(t *testing.T) {
	item := Item{Quantity: 3, ArchivedQuantity: 4}
	if item.Total() != 7 {
		t.Errorf("expected total 7, got %d", item.Total())
	}
}

func TestCheckWattageSize(t *testing.T) {
	tests := []struct {
		wattage string
		wantErr bool
	}{
		{"10", false},
		{"10.5", false},
		{"1.5e3", false},
		{"0.000001", false},
		{"999999999999999999", false},
		{"1e12", false},
		{"1e13", true},
		{"1e200000", true},
		{"1e-2000000", true},
		{"0.0000001", true},
		{"1234567890123456789", true},
	}

	for _, tt := range tests {
		err := CheckWattageSize(decimal.RequireFromString(tt.wattage))
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckWattageSize(%s) error = %v, wantErr %v", tt.wattage, err, tt.wantErr)
		}
	}
}
