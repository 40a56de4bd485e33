package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/porabnik/internal/model"
)

const userColumns = `id, username, password_hash, role, office_id, created_at, deleted_at`

// CreateUser creates a new user in the given office.
func CreateUser(ctx context.Context, q Querier, username, passwordHash, role string, officeID int64) (*model.User, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role, office_id) VALUES (?, ?, ?, ?)`,
		username, passwordHash, role, officeID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, q, id)
}

// GetUser returns a user by ID, including soft-deleted users.
func GetUser(ctx context.Context, q Querier, id int64) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the active user with the given username.
func GetUserByUsername(ctx context.Context, q Querier, username string) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users of an office.
func ListUsers(ctx context.Context, q Querier, officeID int64) ([]model.User, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL AND office_id = ? ORDER BY id`,
		officeID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// MoveUser reassigns a user to another office. The items the user owns move
// with them.
func MoveUser(ctx context.Context, q Querier, id, officeID int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET office_id = ? WHERE id = ? AND deleted_at IS NULL`,
		officeID, id,
	)
	if err != nil {
		return fmt.Errorf("moving user: %w", err)
	}
	return nil
}

// UpdateUserPassword replaces an active user's password hash.
func UpdateUserPassword(ctx context.Context, q Querier, id int64, passwordHash string) error {
	return updateActiveUser(ctx, q, "updating user password",
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`, passwordHash, id)
}

// UpdateUserRole changes an active user's role.
func UpdateUserRole(ctx context.Context, q Querier, id int64, role string) error {
	return updateActiveUser(ctx, q, "updating user role",
		`UPDATE users SET role = ? WHERE id = ? AND deleted_at IS NULL`, role, id)
}

func updateActiveUser(ctx context.Context, q Querier, op, query string, args ...any) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
	}
	return nil
}

// DeleteUser soft-deletes a user.
func DeleteUser(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.OfficeID, &u.CreatedAt, &u.DeletedAt); err != nil {
		return nil, err
	}
	return u, nil
}
