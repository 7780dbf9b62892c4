package store

import (
	"database/sql"
	"fmt"
	"time"
)

// LastSyncTimestamp returns the chat list watermark, or nil before the first
// successful sync.
func (db *DB) LastSyncTimestamp() (*time.Time, error) {
	md, err := db.SyncMetadata(ChatListSyncKey)
	if err != nil || md == nil {
		return nil, err
	}
	return md.LastSyncAt, nil
}

// UpdateLastSyncTimestamp moves the chat list watermark forward. An older
// timestamp leaves it unchanged.
func (db *DB) UpdateLastSyncTimestamp(t time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return mapError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := writeWatermarkTx(tx, ChatListSyncKey, t, nowMillis()); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit())
}

func writeWatermarkTx(tx *sql.Tx, key string, t time.Time, now int64) error {
	var ts sql.NullInt64
	if !t.IsZero() {
		ts = sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
	}
	_, err := tx.Exec(`
		INSERT INTO sync_metadata (key, last_sync_at, status, last_error, updated_at)
		VALUES (?, ?, ?, '', ?)
		ON CONFLICT(key) DO UPDATE SET
			last_sync_at = CASE
				WHEN excluded.last_sync_at IS NULL THEN sync_metadata.last_sync_at
				WHEN sync_metadata.last_sync_at IS NULL THEN excluded.last_sync_at
				ELSE MAX(sync_metadata.last_sync_at, excluded.last_sync_at)
			END,
			status = excluded.status,
			last_error = '',
			updated_at = excluded.updated_at`,
		key, ts, SyncStatusSynced, now)
	if err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	return nil
}

// MarkSyncFailed records a failed sync attempt. The watermark is kept.
func (db *DB) MarkSyncFailed(key, reason string) error {
	_, err := db.Exec(`
		INSERT INTO sync_metadata (key, status, last_error, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			status = excluded.status,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		key, SyncStatusFailed, reason, nowMillis())
	if err != nil {
		return mapError(fmt.Errorf("mark sync failed: %w", err))
	}
	return nil
}

// SyncMetadata returns the sync record for key, or nil if none exists.
func (db *DB) SyncMetadata(key string) (*SyncMetadata, error) {
	return withReadRetry(func() (*SyncMetadata, error) {
		var (
			md        SyncMetadata
			last      sql.NullInt64
			updatedAt int64
		)
		err := db.QueryRow(`
			SELECT key, last_sync_at, status, last_error, updated_at
			FROM sync_metadata WHERE key = ?`, key).
			Scan(&md.Key, &last, &md.Status, &md.LastError, &updatedAt)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		md.LastSyncAt = ptrMillis(last)
		md.UpdatedAt = fromMillis(updatedAt)
		return &md, nil
	})
}
