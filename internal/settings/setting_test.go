package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSettingLifecycle(t *testing.T) {
	t0 := time.UnixMilli(1000)
	s := NewLocalSetting(English, t0)
	require.NoError(t, s.Validate())
	assert.True(t, s.IsDirty())
	assert.True(t, s.NeedsSync())

	same := s.WithValue(English, t0.Add(time.Second))
	assert.Equal(t, s, same, "setting the current value must not bump the version")

	changed := s.WithValue(German, t0.Add(time.Second))
	assert.EqualValues(t, 2, changed.LocalVersion)
	assert.Equal(t, StatusPending, changed.SyncStatus)
	assert.Equal(t, English, s.Value, "transforms must not mutate the receiver")

	syncing := changed.MarkSyncing()
	assert.Equal(t, StatusSyncing, syncing.SyncStatus)
	assert.False(t, syncing.NeedsSync())

	synced := syncing.MarkSynced(2, 9)
	require.NoError(t, synced.Validate())
	assert.False(t, synced.IsDirty())
	assert.Equal(t, StatusSynced, synced.SyncStatus)
	assert.EqualValues(t, 9, synced.ServerVersion)

	assert.Equal(t, StatusFailed, changed.MarkFailed().SyncStatus)
	assert.True(t, changed.MarkFailed().NeedsSync())
}

func TestMarkSyncedKeepsLaterChangesPending(t *testing.T) {
	s := NewLocalSetting(English, time.UnixMilli(1)).
		WithValue(German, time.UnixMilli(2)).
		WithValue(English, time.UnixMilli(3))

	// Version 2 was pushed; version 3 happened while it was in flight.
	got := s.MarkSynced(2, 5)
	require.NoError(t, got.Validate())
	assert.EqualValues(t, 2, got.SyncedVersion)
	assert.True(t, got.IsDirty())
	assert.Equal(t, StatusPending, got.SyncStatus)
}

func TestAcceptServer(t *testing.T) {
	at := time.UnixMilli(5000)
	got := NewLocalSetting(English, time.UnixMilli(1)).AcceptServer(German, 8, at)
	require.NoError(t, got.Validate())
	assert.Equal(t, German, got.Value)
	assert.EqualValues(t, 8, got.LocalVersion)
	assert.EqualValues(t, 8, got.SyncedVersion)
	assert.EqualValues(t, 8, got.ServerVersion)
	assert.True(t, got.ModifiedAt.Equal(at))
	assert.Equal(t, StatusSynced, got.SyncStatus)
}

func TestValidate(t *testing.T) {
	bad := []LocalSetting[string]{
		{LocalVersion: 0},
		{LocalVersion: 1, SyncedVersion: 2},
		{LocalVersion: 1, ServerVersion: -1},
	}
	for _, s := range bad {
		assert.Error(t, s.Validate(), "%+v", s)
	}
	assert.NoError(t, SyncedAt("x", 0, time.Now()).Validate(), "server version 0 still yields local version 1")
}

func TestParseUILanguage(t *testing.T) {
	lang, ok := ParseUILanguage("German")
	assert.True(t, ok)
	assert.Equal(t, German, lang)

	_, ok = ParseUILanguage("Klingon")
	assert.False(t, ok)
}
