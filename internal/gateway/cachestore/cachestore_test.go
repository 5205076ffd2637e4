package cachestore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dineatlas/dineatlas-client/internal/gateway/cachestore"
)

func setupStore(t *testing.T) *cachestore.Store {
	t.Helper()

	s, err := cachestore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := setupStore(t)

	entry := &cachestore.Entry{
		Status:  200,
		Headers: map[string]string{"Content-Type": "text/css"},
		Body:    []byte("body{}"),
	}
	require.NoError(t, s.Put("static-v1", "/css/style.css", entry))

	got, err := s.Get("static-v1", "/css/style.css")
	require.NoError(t, err)
	assert.Equal(t, entry.Status, got.Status)
	assert.Equal(t, entry.Headers, got.Headers)
	assert.Equal(t, entry.Body, got.Body)
}

func TestGet_Miss(t *testing.T) {
	s := setupStore(t)

	_, err := s.Get("static-v1", "/nope")
	require.ErrorIs(t, err, cachestore.ErrNotFound)
}

func TestPut_OverwritesSlot(t *testing.T) {
	s := setupStore(t)

	require.NoError(t, s.Put("images", "/img/3.jpg", &cachestore.Entry{Status: 200, Body: []byte("v1")}))
	require.NoError(t, s.Put("images", "/img/3.jpg", &cachestore.Entry{Status: 200, Body: []byte("v2")}))

	got, err := s.Get("images", "/img/3.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got.Body)
}

func TestNames(t *testing.T) {
	s := setupStore(t)

	names, err := s.Names()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, s.Put("static-v1", "/", &cachestore.Entry{Status: 200}))
	require.NoError(t, s.Put("static-v2", "/", &cachestore.Entry{Status: 200}))
	require.NoError(t, s.Put("images", "/img/3.jpg", &cachestore.Entry{Status: 200}))

	names, err = s.Names()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"static-v1", "static-v2", "images"}, names)
}

func TestDeleteCache(t *testing.T) {
	s := setupStore(t)

	require.NoError(t, s.Put("static-v1", "/", &cachestore.Entry{Status: 200}))
	require.NoError(t, s.Put("static-v1", "/css/style.css", &cachestore.Entry{Status: 200}))
	require.NoError(t, s.Put("images", "/img/3.jpg", &cachestore.Entry{Status: 200}))

	require.NoError(t, s.DeleteCache("static-v1"))

	_, err := s.Get("static-v1", "/")
	require.ErrorIs(t, err, cachestore.ErrNotFound)

	// Other caches are untouched.
	_, err = s.Get("images", "/img/3.jpg")
	require.NoError(t, err)

	names, err := s.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"images"}, names)

	// Deleting a cache that is already gone is not an error.
	require.NoError(t, s.DeleteCache("static-v1"))
}
