package inventory

import (
	"context"
	"fmt"

	"github.com/erazemk/porabnik/internal/model"
	"github.com/erazemk/porabnik/internal/store"
)

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID int64
	Role   string
}

// resolveOffice looks up the principal's office through q, which is the
// operation's own transaction. Unknown and deleted users get ErrNotFound.
func resolveOffice(ctx context.Context, q store.Querier, p Principal) (int64, error) {
	user, err := store.GetUser(ctx, q, p.UserID)
	if err != nil {
		return 0, storeErr("resolving office", err)
	}
	if user == nil || user.DeletedAt != nil {
		return 0, fmt.Errorf("user %d: %w", p.UserID, ErrNotFound)
	}
	return user.OfficeID, nil
}

// Authorized reports whether a caller in officeID may see or change item.
func Authorized(officeID int64, item *model.Item) bool {
	return item != nil && officeID != 0 && item.OfficeID == officeID
}
