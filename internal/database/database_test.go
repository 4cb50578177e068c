package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/vidprev/internal/config"
)

func openTestDB(t *testing.T) *Manager {
	t.Helper()
	m, err := Open(filepath.Join(t.TempDir(), "vidprev.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestSplitSQLStatements(t *testing.T) {
	sql := `
		-- comment
		CREATE TABLE a (id INTEGER);

		CREATE TABLE b (
			id INTEGER
		);
		SELECT 1`

	stmts := splitSQLStatements(sql)
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (id INTEGER);", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE b")
	assert.Equal(t, "SELECT 1", stmts[2])
}

func TestOpenSeedsDefaults(t *testing.T) {
	m := openTestDB(t)

	p, err := config.LoadPreview(config.NewLoader(m))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPreview(), p)

	all, err := m.GetAllSettings()
	require.NoError(t, err)
	assert.Equal(t, "300", all[config.KeyStartTime])
	assert.Equal(t, "auto", all[config.KeyInputMode])
}

func TestReopenKeepsUserSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vidprev.db")

	m, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, m.SetSetting(config.KeyStartTime, "60"))
	require.NoError(t, m.Close())

	m, err = Open(path)
	require.NoError(t, err)
	defer m.Close()

	got, err := m.GetSetting(config.KeyStartTime)
	require.NoError(t, err)
	assert.Equal(t, "60", got)
}

func TestSettingsRoundTrip(t *testing.T) {
	m := openTestDB(t)

	got, err := m.GetSetting("missing")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, m.SetSetting("preview.playback_speed", "1.5"))
	require.NoError(t, m.SetSetting("preview.playback_speed", "2"))
	got, err = m.GetSetting("preview.playback_speed")
	require.NoError(t, err)
	assert.Equal(t, "2", got)

	require.NoError(t, m.DeleteSetting("preview.playback_speed"))
	got, err = m.GetSetting("preview.playback_speed")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLocalStorage(t *testing.T) {
	m := openTestDB(t)

	_, err := m.GetItem("jellyfin_credentials")
	assert.ErrorIs(t, err, ErrItemNotFound)

	require.NoError(t, m.SetItem("jellyfin_credentials", `{"Servers":[]}`))
	require.NoError(t, m.SetItem("b", "2"))

	got, err := m.GetItem("jellyfin_credentials")
	require.NoError(t, err)
	assert.Equal(t, `{"Servers":[]}`, got)

	keys, err := m.ItemKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "jellyfin_credentials"}, keys)

	require.NoError(t, m.RemoveItem("b"))
	require.NoError(t, m.RemoveItem("b"))
	_, err = m.GetItem("b")
	assert.ErrorIs(t, err, ErrItemNotFound)
}
