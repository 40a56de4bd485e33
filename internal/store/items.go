package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erazemk/porabnik/internal/db"
	"github.com/erazemk/porabnik/internal/model"
)

// ItemFields are the user-editable scalar columns of an item.
type ItemFields struct {
	Name     string
	Wattage  decimal.Decimal
	Quantity int
	Model    string
}

// ItemFilter narrows ListItems. OfficeID is mandatory.
type ItemFilter struct {
	OfficeID     int64
	Search       string
	Model        string
	ShowArchived bool
}

const itemColumns = `i.id, i.name, i.wattage, i.quantity, i.archived_quantity, i.model,
	i.owner_id, u.office_id, i.created_at, i.updated_at`

// CreateItem inserts a new item owned by ownerID with nothing archived.
func CreateItem(ctx context.Context, q Querier, ownerID int64, f ItemFields) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO items (name, wattage, quantity, archived_quantity, model, owner_id)
		 VALUES (?, ?, ?, 0, ?, ?)`,
		f.Name, f.Wattage.String(), f.Quantity, nullString(f.Model), ownerID,
	)
	if err != nil {
		return 0, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting item id: %w", err)
	}
	return id, nil
}

// GetItem returns an item by ID together with its owner's office.
// Images are not loaded.
func GetItem(ctx context.Context, q Querier, id int64) (*model.Item, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+itemColumns+`
		 FROM items i
		 JOIN users u ON u.id = i.owner_id
		 WHERE i.id = ?`, id,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns the items of one office. Items with no active units are
// left out unless f.ShowArchived is set.
func ListItems(ctx context.Context, q Querier, f ItemFilter) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + `
	          FROM items i
	          JOIN users u ON u.id = i.owner_id
	          WHERE u.office_id = ?`
	args := []any{f.OfficeID}

	if !f.ShowArchived {
		query += ` AND i.quantity > 0`
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := likePattern(s)
		query += ` AND (fold(i.name) LIKE ? ESCAPE '\' OR fold(COALESCE(i.model, '')) LIKE ? ESCAPE '\')`
		args = append(args, p, p)
	}
	if m := strings.TrimSpace(f.Model); m != "" {
		query += ` AND fold(COALESCE(i.model, '')) LIKE ? ESCAPE '\'`
		args = append(args, likePattern(m))
	}
	query += ` ORDER BY i.created_at DESC, i.id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateItem overwrites an item's scalar fields. The archived quantity is
// left alone.
func UpdateItem(ctx context.Context, q Querier, id int64, f ItemFields) error {
	result, err := q.ExecContext(ctx,
		`UPDATE items SET name = ?, wattage = ?, quantity = ?, model = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		f.Name, f.Wattage.String(), f.Quantity, nullString(f.Model), id,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("updating item: %w", err)
	} else if n != 1 {
		return fmt.Errorf("updating item: %d rows affected", n)
	}
	return nil
}

// MoveToArchive moves delta units from the active to the archived bucket.
// A negative delta moves units back. The range is re-checked by the UPDATE
// itself, so the move is applied only if neither bucket would go negative;
// the returned bool reports whether it was.
func MoveToArchive(ctx context.Context, q Querier, id int64, delta int) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE items
		 SET quantity = quantity - ?, archived_quantity = archived_quantity + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND quantity - ? >= 0 AND archived_quantity + ? >= 0`,
		delta, delta, id, delta, delta,
	)
	if err != nil {
		return false, fmt.Errorf("moving quantity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("moving quantity: %w", err)
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var modelName sql.NullString
	if err := row.Scan(&item.ID, &item.Name, &item.Wattage, &item.Quantity, &item.ArchivedQuantity,
		&modelName, &item.OwnerID, &item.OfficeID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.Model = modelName.String
	item.TotalPower = item.Power()
	return item, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// likePattern builds a substring pattern for a fold()ed column, escaping LIKE
// wildcards in the user's input.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(db.Fold(s)) + "%"
}
