package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/erazemk/porabnik/internal/model"
)

// seedUser creates an office with one manager and returns the user.
func seedUser(t *testing.T, database *sql.DB, office, username string) *model.User {
	t.Helper()
	ctx := context.Background()

	o, err := CreateOffice(ctx, database, office)
	if err != nil {
		t.Fatalf("CreateOffice: %v", err)
	}
	u, err := CreateUser(ctx, database, username, "hash", model.RoleManager, o.ID)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func fields(name, wattage string, quantity int, modelName string) ItemFields {
	return ItemFields{
		Name:     name,
		Wattage:  decimal.RequireFromString(wattage),
		Quantity: quantity,
		Model:    modelName,
	}
}
