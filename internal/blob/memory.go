package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Memory keeps blobs in a map. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	data    []byte
	modTime time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryObject), now: time.Now}
}

// Put stores a copy of data under key.
func (m *Memory) Put(ctx context.Context, key string, data io.Reader) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	b, err := io.ReadAll(readerWithContext(ctx, data))
	if err != nil {
		return fmt.Errorf("reading blob %s: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: b, modTime: m.now()}
	return nil
}

// Get returns a reader over the blob stored under key.
func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("getting blob %s: %w", key, ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete removes the blob stored under key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("deleting blob %s: %w", key, ErrNotExist)
	}
	delete(m.objects, key)
	return nil
}

// List returns every blob, sorted by key.
func (m *Memory) List(_ context.Context) ([]Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	objects := make([]Object, 0, len(m.objects))
	for k, obj := range m.objects {
		objects = append(objects, Object{Key: k, Size: int64(len(obj.data)), ModTime: obj.modTime})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Keys returns the stored keys, sorted.
func (m *Memory) Keys() []string {
	objects, _ := m.List(context.Background())
	keys := make([]string, len(objects))
	for i, obj := range objects {
		keys[i] = obj.Key
	}
	return keys
}

// Has reports whether a blob is stored under key.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// SetClock replaces the time source used for ModTime.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
