// Package inventory keeps item rows and their image blobs consistent.
//
// Rows live in SQLite and images live in a blob.Store, so no single
// transaction covers both. New blobs are written before the transaction and
// deleted again if it fails. Blobs that an update detaches are deleted last,
// just before commit; if the commit then fails they are reported in a
// LostBlobsError.
package inventory

import (
	"bytes"
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/porabnik/internal/blob"
	"github.com/erazemk/porabnik/internal/events"
	"github.com/erazemk/porabnik/internal/model"
	"github.com/erazemk/porabnik/internal/store"
)

// Engine runs inventory operations.
type Engine struct {
	db     *sql.DB
	blobs  blob.Store
	events events.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// New creates an Engine. A nil publisher drops events and a nil logger
// discards logs.
func New(database *sql.DB, blobs blob.Store, publisher events.Publisher, logger *zap.Logger) *Engine {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:     database,
		blobs:  blobs,
		events: publisher,
		logger: logger,
		now:    time.Now,
	}
}

// Create stores a new item owned by the principal, with archived quantity 0.
func (e *Engine) Create(ctx context.Context, p Principal, in ItemInput) (*model.Item, error) {
	f, err := in.fields(1)
	if err != nil {
		return nil, err
	}
	// Checked again inside the transaction.
	if _, err := resolveOffice(ctx, e.db, p); err != nil {
		return nil, err
	}

	keys, err := e.writeBlobs(ctx, f.Name, in.Images)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	item, err := e.insert(ctx, p, f, keys)
	if err != nil {
		e.compensate(ctx, keys)
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	e.logger.Info("item created",
		zap.Int64("item_id", item.ID),
		zap.Int64("user_id", p.UserID),
		zap.Int("images", len(keys)),
	)
	e.publish(ctx, events.ItemCreated, item)
	return item, nil
}

func (e *Engine) insert(ctx context.Context, p Principal, f store.ItemFields, keys []string) (*model.Item, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("beginning transaction", err)
	}
	defer tx.Rollback()

	if _, err := resolveOffice(ctx, tx, p); err != nil {
		return nil, err
	}

	id, err := store.CreateItem(ctx, tx, p.UserID, f)
	if err != nil {
		return nil, storeErr("inserting item", err)
	}
	for _, key := range keys {
		if err := store.AddItemImage(ctx, tx, id, key); err != nil {
			return nil, storeErr("inserting image reference", err)
		}
	}

	item, err := loadItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("committing item", err)
	}
	return item, nil
}

// Update overwrites an item's fields and reconciles its images. See
// UpdateInput for how the image lists are read.
func (e *Engine) Update(ctx context.Context, p Principal, id int64, in UpdateInput) (*model.Item, error) {
	f, err := in.fields(0)
	if err != nil {
		return nil, err
	}
	// Checked again inside the transaction.
	if _, err := authorizedItem(ctx, e.db, p, id); err != nil {
		return nil, err
	}

	keys, err := e.writeBlobs(ctx, f.Name, in.Images)
	if err != nil {
		return nil, err
	}

	item, deleted, err := e.update(ctx, p, id, f, in, keys)
	if err != nil {
		e.compensate(ctx, keys)
		if len(deleted) > 0 {
			e.logger.Error("update failed after deleting blobs",
				zap.Int64("item_id", id),
				zap.Strings("lost", deleted),
				zap.Error(err),
			)
			return nil, &LostBlobsError{Filenames: deleted, Err: err}
		}
		return nil, err
	}

	e.logger.Info("item updated",
		zap.Int64("item_id", id),
		zap.Int64("user_id", p.UserID),
		zap.Int("added", len(keys)),
		zap.Int("removed", len(deleted)),
	)
	e.publish(ctx, events.ItemUpdated, item)
	return item, nil
}

// update returns the blobs it deleted even when it fails.
func (e *Engine) update(ctx context.Context, p Principal, id int64, f store.ItemFields, in UpdateInput, keys []string) (*model.Item, []string, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, storeErr("beginning transaction", err)
	}
	defer tx.Rollback()

	if _, err := authorizedItem(ctx, tx, p, id); err != nil {
		return nil, nil, err
	}
	if err := store.UpdateItem(ctx, tx, id, f); err != nil {
		return nil, nil, storeErr("updating item", err)
	}

	current, err := store.ListItemImages(ctx, tx, id)
	if err != nil {
		return nil, nil, storeErr("loading images", err)
	}
	doomed := reconcile(current, in.ExistingImages, in.DeletedImages)
	for _, filename := range doomed {
		if err := store.RemoveItemImage(ctx, tx, id, filename); err != nil {
			return nil, nil, storeErr("removing image reference", err)
		}
	}

	deleted, err := e.deleteBlobs(ctx, doomed)
	if err != nil {
		return nil, deleted, err
	}

	for _, key := range keys {
		if err := store.AddItemImage(ctx, tx, id, key); err != nil {
			return nil, deleted, storeErr("inserting image reference", err)
		}
	}

	item, err := loadItem(ctx, tx, id)
	if err != nil {
		return nil, deleted, err
	}
	if err := tx.Commit(); err != nil {
		return nil, deleted, storeErr("committing item", err)
	}
	return item, deleted, nil
}

// reconcile returns the current filenames that an update removes, in their
// current order. Names that are not attached to the item are ignored.
func reconcile(current []string, existing, deleted Filenames) []string {
	drop := make(map[string]bool)
	for _, f := range deleted.Values {
		drop[f] = true
	}

	keep := make(map[string]bool)
	if existing.Present {
		for _, f := range existing.Values {
			if !drop[f] {
				keep[f] = true
			}
		}
	}

	var doomed []string
	for _, f := range current {
		if drop[f] || !keep[f] {
			doomed = append(doomed, f)
		}
	}
	return doomed
}

// Archive moves k active units to the archived bucket.
func (e *Engine) Archive(ctx context.Context, p Principal, id int64, k int) (quantity, archived int, err error) {
	return e.move(ctx, p, id, k, events.ItemArchived)
}

// Restore moves k archived units back to the active bucket.
func (e *Engine) Restore(ctx context.Context, p Principal, id int64, k int) (quantity, archived int, err error) {
	return e.move(ctx, p, id, k, events.ItemRestored)
}

func (e *Engine) move(ctx context.Context, p Principal, id int64, k int, key string) (int, int, error) {
	if k < 1 {
		return 0, 0, fmt.Errorf("%w: amount must be at least 1, got %d", ErrQuantityRange, k)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, storeErr("beginning transaction", err)
	}
	defer tx.Rollback()

	item, err := authorizedItem(ctx, tx, p, id)
	if err != nil {
		return 0, 0, err
	}

	delta := k
	if key == events.ItemRestored {
		delta = -k
		if k > item.ArchivedQuantity {
			return 0, 0, fmt.Errorf("%w: cannot restore %d of %d archived units", ErrQuantityRange, k, item.ArchivedQuantity)
		}
	} else if k > item.Quantity {
		return 0, 0, fmt.Errorf("%w: cannot archive %d of %d active units", ErrQuantityRange, k, item.Quantity)
	}

	moved, err := store.MoveToArchive(ctx, tx, id, delta)
	if err != nil {
		return 0, 0, storeErr("moving units", err)
	}
	if !moved {
		return 0, 0, fmt.Errorf("%w: item %d changed concurrently", ErrQuantityRange, id)
	}

	item, err = loadItem(ctx, tx, id)
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, storeErr("committing move", err)
	}

	e.logger.Info("units moved",
		zap.String("op", key),
		zap.Int64("item_id", id),
		zap.Int64("user_id", p.UserID),
		zap.Int("amount", k),
		zap.Int("quantity", item.Quantity),
		zap.Int("archived_quantity", item.ArchivedQuantity),
	)
	e.publish(ctx, key, item)
	return item.Quantity, item.ArchivedQuantity, nil
}

// List returns the items of the principal's office, each with its images.
func (e *Engine) List(ctx context.Context, p Principal, q ListQuery) ([]model.Item, error) {
	q, err := q.normalized()
	if err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("beginning transaction", err)
	}
	defer tx.Rollback()

	office, err := resolveOffice(ctx, tx, p)
	if err != nil {
		return nil, err
	}
	items, err := store.ListItems(ctx, tx, store.ItemFilter{
		OfficeID:     office,
		Search:       q.Search,
		Model:        q.Model,
		ShowArchived: q.ShowArchived,
	})
	if err != nil {
		return nil, storeErr("listing items", err)
	}
	images, err := store.ListOfficeImages(ctx, tx, office)
	if err != nil {
		return nil, storeErr("listing images", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("committing list", err)
	}

	for i := range items {
		items[i].Images = images[items[i].ID]
	}
	if q.SortBy != "" {
		slices.SortStableFunc(items, compareItems(q.SortBy, q.SortOrder))
	}

	e.logger.Debug("items listed", zap.Int64("office_id", office), zap.Stringer("query", q), zap.Int("count", len(items)))
	return items, nil
}

func compareItems(by, order string) func(a, b model.Item) int {
	return func(a, b model.Item) int {
		var c int
		switch by {
		case SortWattage:
			c = a.Wattage.Cmp(b.Wattage)
		case SortTotalPower:
			c = a.TotalPower.Cmp(b.TotalPower)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if order == OrderDesc {
			return -c
		}
		return c
	}
}

// Get returns one item of the principal's office with its images.
func (e *Engine) Get(ctx context.Context, p Principal, id int64) (*model.Item, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("beginning transaction", err)
	}
	defer tx.Rollback()

	if _, err := authorizedItem(ctx, tx, p, id); err != nil {
		return nil, err
	}
	item, err := loadItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("committing read", err)
	}
	return item, nil
}

// Image opens an image attached to an item of the principal's office. The
// caller closes the reader.
func (e *Engine) Image(ctx context.Context, p Principal, id int64, filename string) (io.ReadCloser, error) {
	item, err := e.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(item.Images, filename) {
		return nil, fmt.Errorf("image %s of item %d: %w", filename, id, ErrNotFound)
	}

	r, err := e.blobs.Get(ctx, filename)
	if errors.Is(err, blob.ErrNotExist) {
		e.logger.Warn("referenced blob is missing", zap.Int64("item_id", id), zap.String("key", filename))
		return nil, fmt.Errorf("image %s of item %d: %w", filename, id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("reading image", err)
	}
	return r, nil
}

// authorizedItem loads an item and checks it belongs to the principal's
// office. Missing and foreign items both yield ErrNotFound.
func authorizedItem(ctx context.Context, q store.Querier, p Principal, id int64) (*model.Item, error) {
	office, err := resolveOffice(ctx, q, p)
	if err != nil {
		return nil, err
	}
	item, err := store.GetItem(ctx, q, id)
	if err != nil {
		return nil, storeErr("loading item", err)
	}
	if !Authorized(office, item) {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return item, nil
}

func loadItem(ctx context.Context, q store.Querier, id int64) (*model.Item, error) {
	item, err := store.GetItem(ctx, q, id)
	if err != nil {
		return nil, storeErr("loading item", err)
	}
	if item == nil {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	item.Images, err = store.ListItemImages(ctx, q, id)
	if err != nil {
		return nil, storeErr("loading images", err)
	}
	return item, nil
}

// writeBlobs stores every upload concurrently under a fresh key. On failure
// nothing it wrote is left behind.
func (e *Engine) writeBlobs(ctx context.Context, itemName string, uploads []Upload) ([]string, error) {
	if len(uploads) == 0 {
		return nil, nil
	}

	keys := make([]string, len(uploads))
	var size uint64
	for i, u := range uploads {
		keys[i] = blobKey(itemName, u.Filename)
		size += uint64(len(u.Data))
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range uploads {
		g.Go(func() error {
			if err := e.blobs.Put(gctx, keys[i], bytes.NewReader(u.Data)); err != nil {
				return fmt.Errorf("writing blob %s: %w", keys[i], err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.compensate(ctx, keys)
		return nil, storeErr("writing images", err)
	}

	e.logger.Debug("blobs written", zap.Strings("keys", keys), zap.String("size", humanize.Bytes(size)))
	return keys, nil
}

// deleteBlobs removes doomed blobs in order and stops at the first failure.
// A blob that is already gone is skipped. It returns the keys it deleted.
func (e *Engine) deleteBlobs(ctx context.Context, keys []string) ([]string, error) {
	var deleted []string
	for _, key := range keys {
		err := e.blobs.Delete(ctx, key)
		if errors.Is(err, blob.ErrNotExist) {
			e.logger.Warn("detached blob was already missing", zap.String("key", key))
			continue
		}
		if err != nil {
			return deleted, storeErr("deleting image "+key, err)
		}
		deleted = append(deleted, key)
	}
	return deleted, nil
}

// compensate deletes blobs written for an operation that did not commit.
// Failures are logged and left for the orphan sweep.
func (e *Engine) compensate(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	var errs error
	for _, key := range keys {
		if err := e.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotExist) {
			errs = multierr.Append(errs, fmt.Errorf("deleting blob %s: %w", key, err))
		}
	}
	if errs != nil {
		e.logger.Error("compensation incomplete, blobs left for the orphan sweep",
			zap.Strings("keys", keys),
			zap.Errors("errors", multierr.Errors(errs)),
		)
	}
}

func (e *Engine) publish(ctx context.Context, key string, item *model.Item) {
	event := events.ItemEvent{
		ItemID:           item.ID,
		OfficeID:         item.OfficeID,
		Quantity:         item.Quantity,
		ArchivedQuantity: item.ArchivedQuantity,
		Images:           item.Images,
		At:               e.now().UTC(),
	}
	if err := e.events.Publish(context.WithoutCancel(ctx), key, event); err != nil {
		e.logger.Warn("publishing event failed", zap.String("key", key), zap.Int64("item_id", item.ID), zap.Error(err))
	}
}
