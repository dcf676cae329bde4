package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parentsync/parentsync/pkg/credentials"
)

func testBundle() credentials.Bundle {
	return credentials.Bundle{Cookies: []credentials.Cookie{
		{Name: "session-id", Value: "abc", Domain: ".amazon.com", Path: "/"},
		{Name: credentials.DefaultCSRFCookieName, Value: "csrf", Domain: "www.amazon.com", Secure: true},
	}}
}

func TestStoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/share/parentsync")
	require.NoError(t, err)

	require.NoError(t, s.Save(testBundle()))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, testBundle().Cookies, loaded.Cookies)
}

func TestStoreLoadNotFound(t *testing.T) {
	s, err := New(afero.NewMemMapFs(), "/share/parentsync")
	require.NoError(t, err)

	_, err = s.Load()
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, s.Exists())
}

func TestStoreSaveSupersedes(t *testing.T) {
	s, err := New(afero.NewMemMapFs(), "/share/parentsync")
	require.NoError(t, err)

	first := testBundle()
	second := credentials.Bundle{Cookies: []credentials.Cookie{
		{Name: "session-id", Value: "new", Domain: ".amazon.com"},
	}}

	require.NoError(t, s.Save(first))
	require.NoError(t, s.Save(second))

	loaded, err := s.Load()
	require.NoError(t, err)
	// The second save replaces the bundle wholesale, never merges.
	assert.Equal(t, second.Cookies, loaded.Cookies)
}

func TestStoreKeyIsReusedAcrossInstances(t *testing.T) {
	fs := afero.NewMemMapFs()

	writer, err := New(fs, "/share/parentsync")
	require.NoError(t, err)
	require.NoError(t, writer.Save(testBundle()))

	// A second process opening the same directory must load the same
	// key and be able to decrypt what the first one wrote.
	reader, err := New(fs, "/share/parentsync")
	require.NoError(t, err)

	loaded, err := reader.Load()
	require.NoError(t, err)
	assert.Equal(t, testBundle().Cookies, loaded.Cookies)
}

func TestStoreKeyMismatchSurfacesStorageError(t *testing.T) {
	fs := afero.NewMemMapFs()

	writer, err := New(fs, "/share/parentsync")
	require.NoError(t, err)
	require.NoError(t, writer.Save(testBundle()))

	// Simulate a regenerated key: the artifact survives but the key is gone.
	require.NoError(t, fs.Remove(filepath.Join("/share/parentsync", KeyFileName)))

	reader, err := New(fs, "/share/parentsync")
	require.NoError(t, err)

	_, err = reader.Load()
	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr), "expected StorageError, got %v", err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestStoreCorruptArtifact(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/share/parentsync")
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, filepath.Join("/share/parentsync", ArtifactName), []byte("not age ciphertext"), 0o644))

	_, err = s.Load()
	var storageErr *StorageError
	assert.True(t, errors.As(err, &storageErr), "expected StorageError, got %v", err)
}

func TestStoreClear(t *testing.T) {
	s, err := New(afero.NewMemMapFs(), "/share/parentsync")
	require.NoError(t, err)

	// Clearing an empty store is a no-op.
	require.NoError(t, s.Clear())

	require.NoError(t, s.Save(testBundle()))
	assert.True(t, s.Exists())

	require.NoError(t, s.Clear())
	assert.False(t, s.Exists())

	_, err = s.Load()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreNoTempFileLeftBehind(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/share/parentsync")
	require.NoError(t, err)
	require.NoError(t, s.Save(testBundle()))

	exists, err := afero.Exists(fs, filepath.Join("/share/parentsync", ArtifactName+".tmp"))
	require.NoError(t, err)
	assert.False(t, exists)
}
