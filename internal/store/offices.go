package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/porabnik/internal/model"
)

// CreateOffice creates a new office.
func CreateOffice(ctx context.Context, q Querier, name string) (*model.Office, error) {
	result, err := q.ExecContext(ctx, `INSERT INTO offices (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("creating office: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting office id: %w", err)
	}

	return GetOffice(ctx, q, id)
}

// GetOffice returns an office by ID.
func GetOffice(ctx context.Context, q Querier, id int64) (*model.Office, error) {
	o := &model.Office{}
	err := q.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM offices WHERE id = ?`, id,
	).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting office: %w", err)
	}
	return o, nil
}

// GetOfficeByName returns the office with the given name.
func GetOfficeByName(ctx context.Context, q Querier, name string) (*model.Office, error) {
	o := &model.Office{}
	err := q.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM offices WHERE name = ?`, name,
	).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting office by name: %w", err)
	}
	return o, nil
}

// ListOffices returns all offices ordered by name.
func ListOffices(ctx context.Context, q Querier) ([]model.Office, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, created_at FROM offices ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing offices: %w", err)
	}
	defer rows.Close()

	var offices []model.Office
	for rows.Next() {
		var o model.Office
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning office: %w", err)
		}
		offices = append(offices, o)
	}
	return offices, rows.Err()
}
