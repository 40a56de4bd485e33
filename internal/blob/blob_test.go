package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	valid := []string{"pump.0b9e.jpg", "a", "heat_pump-2.png"}
	for _, k := range valid {
		assert.NoError(t, ValidateKey(k), k)
	}

	invalid := []string{"", ".", "..", "../etc/passwd", "a/b.jpg", `a\b.jpg`, ".hidden", "nul\x00.jpg"}
	for _, k := range invalid {
		assert.Error(t, ValidateKey(k), k)
	}
}

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "one.jpg", strings.NewReader("first")))
	require.NoError(t, s.Put(ctx, "two.png", strings.NewReader("second")))
	require.NoError(t, s.Put(ctx, "one.jpg", strings.NewReader("replaced")))

	rc, err := s.Get(ctx, "one.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))

	objects, err := s.List(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	assert.ElementsMatch(t, []string{"one.jpg", "two.png"}, keys)

	require.NoError(t, s.Delete(ctx, "one.jpg"))
	assert.True(t, errors.Is(s.Delete(ctx, "one.jpg"), ErrNotExist))

	_, err = s.Get(ctx, "one.jpg")
	assert.True(t, errors.Is(err, ErrNotExist))

	assert.Error(t, s.Put(ctx, "../escape.jpg", strings.NewReader("x")))
}

func TestFS(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFSListSkipsTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFS(dir)
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "kept.jpg", strings.NewReader("x")))
	tmp, err := createTempIn(dir)
	require.NoError(t, err)
	defer tmp.Close()

	objects, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "kept.jpg", objects[0].Key)
	assert.EqualValues(t, 1, objects[0].Size)
}

func TestFSPutHonoursCancelledContext(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Put(ctx, "late.jpg", strings.NewReader("data")))

	objects, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}
