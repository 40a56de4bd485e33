package inventory

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/porabnik/internal/blob"
	"github.com/erazemk/porabnik/internal/db"
	"github.com/erazemk/porabnik/internal/events"
	"github.com/erazemk/porabnik/internal/model"
	"github.com/erazemk/porabnik/internal/store"
)

type fixture struct {
	db     *sql.DB
	blobs  *blob.Memory
	events *recorder
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:     db.NewTestDB(t),
		blobs:  blob.NewMemory(),
		events: &recorder{},
	}
	f.engine = New(f.db, f.blobs, f.events, nil)
	return f
}

// principal creates a manager in the named office, creating the office on
// first use.
func (f *fixture) principal(t *testing.T, office, username string) Principal {
	t.Helper()
	ctx := context.Background()

	var officeID int64
	err := f.db.QueryRowContext(ctx, `SELECT id FROM offices WHERE name = ?`, office).Scan(&officeID)
	if errors.Is(err, sql.ErrNoRows) {
		o, err := store.CreateOffice(ctx, f.db, office)
		require.NoError(t, err)
		officeID = o.ID
	} else {
		require.NoError(t, err)
	}

	u, err := store.CreateUser(ctx, f.db, username, "hash", model.RoleManager, officeID)
	require.NoError(t, err)
	return Principal{UserID: u.ID, Role: u.Role}
}

// attach stores a blob under filename and references it from the item.
func (f *fixture) attach(t *testing.T, itemID int64, filenames ...string) {
	t.Helper()
	ctx := context.Background()
	for _, name := range filenames {
		require.NoError(t, f.blobs.Put(ctx, name, strings.NewReader("img:"+name)))
		require.NoError(t, store.AddItemImage(ctx, f.db, itemID, name))
	}
}

func (f *fixture) countItems(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func input(name, wattage string, quantity int, uploads ...Upload) ItemInput {
	return ItemInput{
		Name:     name,
		Wattage:  decimal.RequireFromString(wattage),
		Quantity: quantity,
		Images:   uploads,
	}
}

func upload(name string) Upload {
	return Upload{Filename: name, Data: []byte("data:" + name)}
}

type recorder struct {
	mu   sync.Mutex
	keys []string
	last events.ItemEvent
}

func (r *recorder) Publish(_ context.Context, key string, event events.ItemEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	r.last = event
	return nil
}

func (r *recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

// faultyStore wraps a blob.Store, counts writes and fails selected calls.
type faultyStore struct {
	blob.Store
	failPut    func(key string) bool
	failDelete func(key string) bool
	puts       atomic.Int32
}

var errInjected = errors.New("injected failure")

func (s *faultyStore) Put(ctx context.Context, key string, r io.Reader) error {
	s.puts.Add(1)
	if s.failPut != nil && s.failPut(key) {
		return errInjected
	}
	return s.Store.Put(ctx, key, r)
}

func (s *faultyStore) Delete(ctx context.Context, key string) error {
	if s.failDelete != nil && s.failDelete(key) {
		return errInjected
	}
	return s.Store.Delete(ctx, key)
}
