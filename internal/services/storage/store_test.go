package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageStore_SaveAndSize(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	store := NewImageStore(dir)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Zero(t, size)

	path, err := store.Save("a.jpg", []byte("12345"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.jpg"), path)

	_, err = store.Save("b.jpg", []byte("123"))
	require.NoError(t, err)

	size, err = store.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)
}

func TestImageStore_Delete(t *testing.T) {
	store := NewImageStore(t.TempDir())
	path, err := store.Save("a.jpg", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, store.Delete("a.jpg"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Delete("a.jpg"))
}

func TestImageStore_RejectsTraversal(t *testing.T) {
	store := NewImageStore(t.TempDir())

	for _, name := range []string{"", "..", "../secret.jpg", "/etc/passwd", `dir\file.jpg`, "file\x00name.jpg"} {
		_, err := store.Save(name, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidName, name)

		_, err = store.Path(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestImageStore_Clear(t *testing.T) {
	store := NewImageStore(filepath.Join(t.TempDir(), "images"))

	removed, err := store.Clear()
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = store.Save("a.jpg", []byte("a"))
	require.NoError(t, err)
	_, err = store.Save("b.jpg", []byte("b"))
	require.NoError(t, err)

	removed, err = store.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}
