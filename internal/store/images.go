package store

import (
	"context"
	"fmt"
)

// AddItemImage attaches a stored blob to an item.
func AddItemImage(ctx context.Context, q Querier, itemID int64, filename string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO item_images (item_id, filename) VALUES (?, ?)`,
		itemID, filename,
	)
	if err != nil {
		return fmt.Errorf("adding item image: %w", err)
	}
	return nil
}

// RemoveItemImage detaches a filename from an item. Removing a filename that
// is not attached is not an error.
func RemoveItemImage(ctx context.Context, q Querier, itemID int64, filename string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM item_images WHERE item_id = ? AND filename = ?`,
		itemID, filename,
	)
	if err != nil {
		return fmt.Errorf("removing item image: %w", err)
	}
	return nil
}

// ListItemImages returns the filenames attached to an item, sorted.
func ListItemImages(ctx context.Context, q Querier, itemID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT filename FROM item_images WHERE item_id = ? ORDER BY filename`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing item images: %w", err)
	}
	defer rows.Close()

	var filenames []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scanning item image: %w", err)
		}
		filenames = append(filenames, f)
	}
	return filenames, rows.Err()
}

// ListOfficeImages returns the filenames of every item in an office, keyed by
// item ID.
func ListOfficeImages(ctx context.Context, q Querier, officeID int64) (map[int64][]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT im.item_id, im.filename
		 FROM item_images im
		 JOIN items i ON i.id = im.item_id
		 JOIN users u ON u.id = i.owner_id
		 WHERE u.office_id = ?
		 ORDER BY im.item_id, im.filename`, officeID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing office images: %w", err)
	}
	defer rows.Close()

	images := make(map[int64][]string)
	for rows.Next() {
		var itemID int64
		var f string
		if err := rows.Scan(&itemID, &f); err != nil {
			return nil, fmt.Errorf("scanning office image: %w", err)
		}
		images[itemID] = append(images[itemID], f)
	}
	return images, rows.Err()
}

// ReferencedFilenames returns every filename attached to any item.
func ReferencedFilenames(ctx context.Context, q Querier) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT filename FROM item_images`)
	if err != nil {
		return nil, fmt.Errorf("listing referenced filenames: %w", err)
	}
	defer rows.Close()

	refs := make(map[string]bool)
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scanning referenced filename: %w", err)
		}
		refs[f] = true
	}
	return refs, rows.Err()
}
