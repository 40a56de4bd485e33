package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GetSetting returns the value stored under key, or "" if it is unset.
func GetSetting(ctx context.Context, q Querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE((SELECT value FROM settings WHERE key = ?), '')`, key,
	).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("getting setting %s: %w", key, err)
	}
	return value, nil
}

// GetJWTSecret returns the token signing key, generating and storing a random
// one on first use. INSERT OR IGNORE followed by a re-read keeps concurrent
// first starts from ending up with different secrets.
func GetJWTSecret(ctx context.Context, q Querier) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}

	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES ('jwt_secret', ?)`,
		hex.EncodeToString(buf),
	)
	if err != nil {
		return "", fmt.Errorf("storing jwt secret: %w", err)
	}

	return GetSetting(ctx, q, "jwt_secret")
}
