package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
)

func TestFileStore_DefaultsWithoutFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "settings.yaml"), logging.NewNopLogger())

	require.NoError(t, store.Load())
	assert.Equal(t, DefaultUserSettings(), store.Get())
	assert.True(t, store.Get().ShowDisconnectNotifications)
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	store := NewFileStore(path, logging.NewNopLogger())

	store.Set(UserSettings{ShowDisconnectNotifications: false, FavoriteProviders: []string{"0xabc"}})
	require.NoError(t, store.Save())

	reloaded := NewFileStore(path, logging.NewNopLogger())
	require.NoError(t, reloaded.Load())
	assert.Equal(t, UserSettings{ShowDisconnectNotifications: false, FavoriteProviders: []string{"0xabc"}}, reloaded.Get())
}

func TestFileStore_MissingKeysKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("favorite_providers: [\"0x1\"]\n"), 0644))

	store := NewFileStore(path, logging.NewNopLogger())
	require.NoError(t, store.Load())
	assert.True(t, store.Get().ShowDisconnectNotifications)
	assert.Equal(t, []string{"0x1"}, store.Get().FavoriteProviders)
}

func TestFileStore_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("show_disconnect_notifications: [oops"), 0644))

	store := NewFileStore(path, logging.NewNopLogger())
	err := store.Load()
	assert.True(t, errors.IsValidationError(err))
	assert.Equal(t, DefaultUserSettings(), store.Get())
}

func TestFileStore_GetReturnsCopy(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "settings.yaml"), logging.NewNopLogger())
	store.Set(UserSettings{FavoriteProviders: []string{"a"}})

	got := store.Get()
	got.FavoriteProviders[0] = "mutated"
	assert.Equal(t, "a", store.Get().FavoriteProviders[0])
}
