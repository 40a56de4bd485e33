package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Item is a tracked piece of power-consuming equipment. Its units are split
// between an active bucket (Quantity) and an archived bucket (ArchivedQuantity).
type Item struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Wattage          decimal.Decimal `json:"wattage"`
	Quantity         int             `json:"quantity"`
	ArchivedQuantity int             `json:"archived_quantity"`
	Model            string          `json:"item_model,omitempty"`
	OwnerID          int64           `json:"owner_id"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Derived fields (not stored on the item row).
	OfficeID   int64           `json:"office_id"`
	TotalPower decimal.Decimal `json:"total_power"`
	Images     []string        `json:"images"`
}

// Power returns wattage multiplied by the active quantity.
func (i *Item) Power() decimal.Decimal {
	return i.Wattage.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total returns every unit of the item, active and archived.
func (i *Item) Total() int {
	return i.Quantity + i.ArchivedQuantity
}

// Wattage bounds. A wattage may carry at most MaxWattageDigits significant
// digits, at most MaxWattageScale of them after the decimal point, and its
// exponent may not exceed MaxWattageExponent.
const (
	MaxWattageDigits   = 18
	MaxWattageScale    = 6
	MaxWattageExponent = 12
)

// CheckWattageSize rejects wattages whose textual form would be unbounded.
// It only inspects the coefficient and exponent, never expanding the value.
func CheckWattageSize(w decimal.Decimal) error {
	if exp := w.Exponent(); exp < -MaxWattageScale || exp > MaxWattageExponent {
		return fmt.Errorf("wattage exponent %d out of range", exp)
	}
	if n := w.NumDigits(); n > MaxWattageDigits {
		return fmt.Errorf("wattage has %d digits, at most %d allowed", n, MaxWattageDigits)
	}
	return nil
}

// MaxImages is the most image attachments accepted in a single request.
const MaxImages = 10
