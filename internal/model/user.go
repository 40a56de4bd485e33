package model

import (
	"fmt"
	"slices"
	"time"
)

// User is an account belonging to exactly one office. A user sees and
// manages the items of their current office.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	OfficeID     int64      `json:"office_id"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// roleOrder lists roles from least to most privileged.
var roleOrder = []string{RoleUser, RoleManager, RoleAdmin}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

func roleRank(role string) int {
	return slices.Index(roleOrder, role)
}

// RoleAtLeast reports whether role grants at least the minimum role.
// Unknown roles never satisfy and are never satisfied.
func RoleAtLeast(role, minimum string) bool {
	m := roleRank(minimum)
	return m >= 0 && roleRank(role) >= m
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return roleRank(role) >= 0
}

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
