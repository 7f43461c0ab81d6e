package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroguard/leafguard-go/internal/conf"
	"github.com/agroguard/leafguard-go/internal/datastore"
)

func createDatabase(t *testing.T) datastore.Interface {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/taxonomy_test.db"

	ds := datastore.New(settings)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func TestResolveCreatesPlaceholder(t *testing.T) {
	ds := createDatabase(t)
	r := NewResolver(ds)

	entry, err := r.Resolve("tomato_late_blight")
	require.NoError(t, err)
	assert.Equal(t, "tomato_late_blight", entry.Label)
	assert.Equal(t, "tomato_late_blight", entry.DisplayName)
	assert.NotZero(t, entry.ID)
}

func TestResolveIsIdempotent(t *testing.T) {
	ds := createDatabase(t)
	r := NewResolver(ds)

	first, err := r.Resolve("pepper_bacterial_spot")
	require.NoError(t, err)

	second, err := r.Resolve("pepper_bacterial_spot")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestResolveServesFromCache(t *testing.T) {
	ds := createDatabase(t)
	r := NewResolver(ds)

	entry, err := r.Resolve("corn_rust")
	require.NoError(t, err)

	// A lookup after the store is closed still succeeds because the entry is
	// cached from the first call.
	require.NoError(t, ds.Close())
	cached, err := r.Resolve("corn_rust")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, cached.ID)
}

func TestInvalidateForcesReload(t *testing.T) {
	ds := createDatabase(t)
	r := NewResolver(ds)

	entry, err := r.Resolve("tomato_early_blight")
	require.NoError(t, err)

	// Simulate a curator filling in treatment guidance.
	entry.Treatment = "Remove infected leaves and rotate crops next season."
	store, ok := ds.(*datastore.SQLiteStore)
	require.True(t, ok)
	require.NoError(t, store.DB.Save(&entry).Error)

	stale, err := r.Resolve("tomato_early_blight")
	require.NoError(t, err)
	assert.Empty(t, stale.Treatment)

	r.Invalidate("tomato_early_blight")
	fresh, err := r.Resolve("tomato_early_blight")
	require.NoError(t, err)
	assert.Equal(t, entry.Treatment, fresh.Treatment)
}
