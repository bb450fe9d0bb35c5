package prefs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestChannelOverrides(t *testing.T) {
	s := openTestStore(t)

	_, ok := s.Channel(ScopePackage, "org.example.app")
	assert.False(t, ok)

	require.NoError(t, s.SetChannel(ScopePackage, "org.example.app", "beta"))
	require.NoError(t, s.SetChannel(ScopeGroup, "org.example.app", "alpha"))

	ch, ok := s.Channel(ScopePackage, "org.example.app")
	require.True(t, ok)
	assert.Equal(t, "beta", ch)

	require.NoError(t, s.SetChannel(ScopePackage, "org.example.app", "stable"))
	ch, _ = s.Channel(ScopePackage, "org.example.app")
	assert.Equal(t, "stable", ch)

	assert.Equal(t, map[string]string{"org.example.app": "alpha"}, s.Channels(ScopeGroup))

	require.NoError(t, s.ClearChannel(ScopeGroup, "org.example.app"))
	assert.Empty(t, s.Channels(ScopeGroup))
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)

	assert.False(t, s.Bool(KeyLegacyCacheRemoved))
	require.NoError(t, s.SetBool(KeyLegacyCacheRemoved, true))
	assert.True(t, s.Bool(KeyLegacyCacheRemoved))

	require.NoError(t, s.SetString(KeyDefaultChannel, "beta"))
	v, ok := s.String(KeyDefaultChannel)
	require.True(t, ok)
	assert.Equal(t, "beta", v)
}

func TestLocales(t *testing.T) {
	s := openTestStore(t)

	assert.Nil(t, s.Locales("org.example.app"))
	require.NoError(t, s.SetLocales("org.example.app", []string{"de-DE", "fr"}))
	assert.Equal(t, []string{"de-DE", "fr"}, s.Locales("org.example.app"))
	require.NoError(t, s.SetLocales("org.example.app", nil))
	assert.Nil(t, s.Locales("org.example.app"))
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	s, err := Open(path, false)
	require.NoError(t, err)
	require.NoError(t, s.SetChannel(ScopeGroup, "fonts", "beta"))
	require.NoError(t, s.Close())

	s, err = Open(path, false)
	require.NoError(t, err)
	defer s.Close()
	ch, ok := s.Channel(ScopeGroup, "fonts")
	require.True(t, ok)
	assert.Equal(t, "beta", ch)
}
