package settings

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/remote/remotetest"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const user = "u1"

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testService(t *testing.T, src *remotetest.Source) (*Service, *store.DB, *bus.Bus) {
	t.Helper()
	db := testDB(t)
	b := bus.New()
	svc := NewService(db, src, b, zap.NewNop())
	svc.now = func() time.Time { return time.UnixMilli(10_000) }
	return svc, db, b
}

func seed(t *testing.T, db *store.DB, row store.SettingRow) {
	t.Helper()
	row.UserID = user
	if row.Key == "" {
		row.Key = string(KeyUILanguage)
	}
	require.NoError(t, db.UpsertSettings(row))
}

func stored(t *testing.T, db *store.DB) store.SettingRow {
	t.Helper()
	row, err := db.GetSetting(user, string(KeyUILanguage))
	require.NoError(t, err)
	require.NotNil(t, row)
	return *row
}

func TestGetRecoversFromServer(t *testing.T) {
	src := &remotetest.Source{GetSettingsFunc: func(ctx context.Context) ([]remote.SettingItem, error) {
		return []remote.SettingItem{{Key: "ui_language", Value: "German", Version: 5}}, nil
	}}
	svc, db, _ := testService(t, src)

	got, err := svc.Get(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, German, got.UILanguage.Value)
	assert.Equal(t, StatusSynced, got.UILanguage.SyncStatus)

	row := stored(t, db)
	assert.EqualValues(t, 5, row.LocalVersion)
	assert.EqualValues(t, 5, row.SyncedVersion)
	assert.EqualValues(t, 5, row.ServerVersion)

	// Stored now; the server is not asked again.
	_, err = svc.Get(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, []string{"GetSettings"}, src.Calls())
}

func TestRecoverInvalidAndMissingValues(t *testing.T) {
	src := &remotetest.Source{GetSettingsFunc: func(ctx context.Context) ([]remote.SettingItem, error) {
		return []remote.SettingItem{{Key: "ui_language", Value: "Klingon", Version: 3}}, nil
	}}
	svc, db, _ := testService(t, src)

	got, err := svc.Recover(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, English, got.UILanguage.Value)
	assert.EqualValues(t, 3, stored(t, db).ServerVersion)

	src.GetSettingsFunc = func(ctx context.Context) ([]remote.SettingItem, error) { return nil, nil }
	got, err = svc.Recover(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.UILanguage.SyncStatus)
	assert.EqualValues(t, 1, got.UILanguage.LocalVersion)
}

func TestGetResetsToDefaultsWhenOffline(t *testing.T) {
	src := &remotetest.Source{GetSettingsFunc: func(ctx context.Context) ([]remote.SettingItem, error) {
		return nil, remote.ErrNetworkNotAvailable
	}}
	svc, db, b := testService(t, src)
	changed, unsub := b.Subscribe(bus.KindSettingsChanged, 4)
	defer unsub()

	got, err := svc.Get(context.Background(), user)
	assert.ErrorIs(t, err, ErrSettingsResetToDefaults)
	require.NotNil(t, got)
	assert.Equal(t, English, got.UILanguage.Value)

	row := stored(t, db)
	assert.Equal(t, "PENDING", row.SyncStatus)
	assert.EqualValues(t, 1, row.LocalVersion)

	select {
	case evt := <-changed:
		assert.Equal(t, Changed{UserID: user, Key: KeyUILanguage}, evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("defaults were not announced for sync")
	}
}

func TestChangeUILanguageRecoversMissingSettings(t *testing.T) {
	src := &remotetest.Source{GetSettingsFunc: func(ctx context.Context) ([]remote.SettingItem, error) {
		return nil, remote.ErrServerUnreachable
	}}
	svc, db, _ := testService(t, src)

	require.NoError(t, svc.ChangeUILanguage(context.Background(), user, German))

	row := stored(t, db)
	assert.Equal(t, "German", row.Value)
	assert.EqualValues(t, 2, row.LocalVersion)
	assert.EqualValues(t, 0, row.SyncedVersion)
	assert.Equal(t, "PENDING", row.SyncStatus)
}

func TestChangeUILanguageSameValueKeepsVersion(t *testing.T) {
	svc, db, _ := testService(t, &remotetest.Source{})
	seed(t, db, store.SettingRow{Value: "German", LocalVersion: 4, SyncedVersion: 4, ServerVersion: 6, SyncStatus: "SYNCED"})

	require.NoError(t, svc.ChangeUILanguage(context.Background(), user, German))
	row := stored(t, db)
	assert.EqualValues(t, 4, row.LocalVersion)
	assert.Equal(t, "SYNCED", row.SyncStatus)
}

func TestChangeRejectsInvalidValue(t *testing.T) {
	svc, _, _ := testService(t, &remotetest.Source{})
	var te *TransformError
	assert.ErrorAs(t, svc.change(context.Background(), user, KeyUILanguage, "Klingon", true), &te)
}

func TestSyncSettingPushAck(t *testing.T) {
	var got remote.SettingSyncRequest
	src := &remotetest.Source{SyncSettingFunc: func(ctx context.Context, req remote.SettingSyncRequest) (*remote.SettingSyncResult, error) {
		got = req
		return &remote.SettingSyncResult{Key: req.Key, Status: remote.SyncSuccess, NewVersion: 7}, nil
	}}
	svc, db, _ := testService(t, src)
	seed(t, db, store.SettingRow{Value: "German", LocalVersion: 2, SyncStatus: "PENDING", ModifiedAt: time.UnixMilli(500)})

	assert.Equal(t, OutcomeSuccess, svc.SyncSetting(context.Background(), user, KeyUILanguage))

	assert.EqualValues(t, 2, got.ClientVersion)
	assert.EqualValues(t, 0, got.LastKnownServerVersion)
	assert.Equal(t, "German", got.Value)

	row := stored(t, db)
	assert.EqualValues(t, 2, row.LocalVersion)
	assert.EqualValues(t, 2, row.SyncedVersion)
	assert.EqualValues(t, 7, row.ServerVersion)
	assert.Equal(t, "SYNCED", row.SyncStatus)
}

func TestSyncSettingSkipsCleanSetting(t *testing.T) {
	src := &remotetest.Source{}
	svc, db, _ := testService(t, src)
	seed(t, db, store.SettingRow{Value: "German", LocalVersion: 3, SyncedVersion: 3, ServerVersion: 3, SyncStatus: "SYNCED"})

	assert.Equal(t, OutcomeSuccess, svc.SyncSetting(context.Background(), user, KeyUILanguage))
	assert.Empty(t, src.Calls())
}

func TestSyncSettingMissingIsFailure(t *testing.T) {
	svc, _, _ := testService(t, &remotetest.Source{})
	assert.Equal(t, OutcomeFailure, svc.SyncSetting(context.Background(), user, KeyUILanguage))
}

func TestSyncSettingErrorMarksFailed(t *testing.T) {
	src := &remotetest.Source{SyncSettingFunc: func(ctx context.Context, req remote.SettingSyncRequest) (*remote.SettingSyncResult, error) {
		return nil, remote.ErrServerError
	}}
	svc, db, _ := testService(t, src)
	seed(t, db, store.SettingRow{Value: "German", LocalVersion: 2, SyncStatus: "PENDING"})

	assert.Equal(t, OutcomeRetry, svc.SyncSetting(context.Background(), user, KeyUILanguage))
	row := stored(t, db)
	assert.Equal(t, "FAILED", row.SyncStatus)
	assert.EqualValues(t, 0, row.SyncedVersion)
}

func TestSyncSettingConflictLocalWins(t *testing.T) {
	src := &remotetest.Source{SyncSettingFunc: func(ctx context.Context, req remote.SettingSyncRequest) (*remote.SettingSyncResult, error) {
		return &remote.SettingSyncResult{
			Key: req.Key, Status: remote.SyncConflict, NewVersion: 9,
			ServerValue: "English", ServerVersion: 8, ServerModifiedAt: time.UnixMilli(400),
		}, nil
	}}
	svc, db, _ := testService(t, src)
	seed(t, db, store.SettingRow{Value: "German", LocalVersion: 2, ServerVersion: 3, SyncStatus: "PENDING", ModifiedAt: time.UnixMilli(500)})

	assert.Equal(t, OutcomeSuccess, svc.SyncSetting(context.Background(), user, KeyUILanguage))
	row := stored(t, db)
	assert.Equal(t, "German", row.Value)
	assert.EqualValues(t, 2, row.SyncedVersion)
	assert.EqualValues(t, 9, row.ServerVersion)
	assert.Equal(t, "SYNCED", row.SyncStatus)
}

func TestSyncSettingConflictServerWins(t *testing.T) {
	serverAt := time.UnixMilli(900)
	src := &remotetest.Source{SyncSettingFunc: func(ctx context.Context, req remote.SettingSyncRequest) (*remote.SettingSyncResult, error) {
		return &remote.SettingSyncResult{
			Key: req.Key, Status: remote.SyncConflict, NewVersion: 9,
			ServerValue: "English", ServerVersion: 8, ServerModifiedAt: serverAt,
		}, nil
	}}
	svc, db, b := testService(t, src)
	conflicts, unsub := b.Subscribe(bus.KindSettingsConflict, 4)
	defer unsub()
	seed(t, db, store.SettingRow{Value: "German", LocalVersion: 2, ServerVersion: 3, SyncStatus: "PENDING", ModifiedAt: time.UnixMilli(500)})

	assert.Equal(t, OutcomeSuccess, svc.SyncSetting(context.Background(), user, KeyUILanguage))
	row := stored(t, db)
	assert.Equal(t, "English", row.Value)
	assert.EqualValues(t, 9, row.LocalVersion)
	assert.EqualValues(t, 9, row.SyncedVersion)
	assert.EqualValues(t, 9, row.ServerVersion)
	assert.True(t, row.ModifiedAt.Equal(serverAt))
	assert.Equal(t, "SYNCED", row.SyncStatus)

	select {
	case evt := <-conflicts:
		assert.Equal(t, ConflictEvent{
			UserID: user, Key: KeyUILanguage, LocalValue: "German", ServerValue: "English",
			AcceptedValue: "English", ConflictedAt: serverAt,
		}, evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("no conflict event")
	}
}

func TestSyncSettingConflictInvalidServerValueKeepsLocal(t *testing.T) {
	src := &remotetest.Source{SyncSettingFunc: func(ctx context.Context, req remote.SettingSyncRequest) (*remote.SettingSyncResult, error) {
		return &remote.SettingSyncResult{
			Key: req.Key, Status: remote.SyncConflict, NewVersion: 4,
			ServerValue: "Klingon", ServerVersion: 3, ServerModifiedAt: time.UnixMilli(900),
		}, nil
	}}
	svc, db, _ := testService(t, src)
	seed(t, db, store.SettingRow{Value: "German", LocalVersion: 2, SyncStatus: "PENDING", ModifiedAt: time.UnixMilli(500)})

	assert.Equal(t, OutcomeSuccess, svc.SyncSetting(context.Background(), user, KeyUILanguage))
	row := stored(t, db)
	assert.Equal(t, "German", row.Value)
	assert.EqualValues(t, 4, row.ServerVersion)
}

func TestSyncSettingChangedDuringPushStaysPending(t *testing.T) {
	src := &remotetest.Source{}
	svc, db, _ := testService(t, src)
	seed(t, db, store.SettingRow{Value: "German", LocalVersion: 2, SyncStatus: "PENDING", ModifiedAt: time.UnixMilli(500)})

	src.SyncSettingFunc = func(ctx context.Context, req remote.SettingSyncRequest) (*remote.SettingSyncResult, error) {
		require.NoError(t, svc.ChangeUILanguage(ctx, user, English))
		return &remote.SettingSyncResult{Key: req.Key, Status: remote.SyncSuccess, NewVersion: 5}, nil
	}

	assert.Equal(t, OutcomeSuccess, svc.SyncSetting(context.Background(), user, KeyUILanguage))
	row := stored(t, db)
	assert.Equal(t, "English", row.Value)
	assert.EqualValues(t, 3, row.LocalVersion)
	assert.EqualValues(t, 2, row.SyncedVersion)
	assert.EqualValues(t, 5, row.ServerVersion)
	assert.Equal(t, "PENDING", row.SyncStatus)
}

func TestSyncAllPending(t *testing.T) {
	src := &remotetest.Source{}
	svc, db, _ := testService(t, src)

	assert.Equal(t, OutcomeSuccess, svc.SyncAllPending(context.Background(), user), "nothing to push")
	assert.Empty(t, src.Calls())

	seed(t, db, store.SettingRow{Value: "German", LocalVersion: 2, ServerVersion: 1, SyncStatus: "FAILED"})
	assert.Equal(t, OutcomeSuccess, svc.SyncAllPending(context.Background(), user))
	row := stored(t, db)
	assert.Equal(t, "SYNCED", row.SyncStatus)
	assert.EqualValues(t, 2, row.ServerVersion)

	seed(t, db, store.SettingRow{Value: "English", LocalVersion: 3, SyncedVersion: 2, ServerVersion: 2, SyncStatus: "PENDING"})
	src.SyncSettingFunc = func(ctx context.Context, req remote.SettingSyncRequest) (*remote.SettingSyncResult, error) {
		return nil, remote.ErrServerUnreachable
	}
	assert.Equal(t, OutcomeRetry, svc.SyncAllPending(context.Background(), user))
	assert.Equal(t, "FAILED", stored(t, db).SyncStatus)
}
