package kvstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSetGetRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("slot", payload{Name: "hello", Count: 3}))

	var got payload
	require.NoError(t, store.Get("slot", &got))
	assert.Equal(t, payload{Name: "hello", Count: 3}, got)
}

func TestGetMissingSlot(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	var got payload
	assert.ErrorIs(t, store.Get("nope", &got), ErrNotFound)
}

func TestGetCorruptSlot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o600))

	var got payload
	assert.ErrorIs(t, store.Get("bad", &got), ErrNotFound)
}

func TestGetVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	content := `{"version": 99, "value": {"name": "x", "count": 1}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.json"), []byte(content), 0o600))

	var got payload
	assert.ErrorIs(t, store.Get("old", &got), ErrNotFound)
}

func TestDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("slot", payload{Name: "x"}))
	require.NoError(t, store.Delete("slot"))

	var got payload
	assert.ErrorIs(t, store.Get("slot", &got), ErrNotFound)

	// 删除不存在的槽不报错
	assert.NoError(t, store.Delete("slot"))
}

func TestSetOverwrites(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("slot", payload{Name: "a"}))
	require.NoError(t, store.Set("slot", payload{Name: "b"}))

	var got payload
	require.NoError(t, store.Get("slot", &got))
	assert.Equal(t, "b", got.Name)
}
