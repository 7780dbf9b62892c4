package store

import (
	"database/sql"
	"fmt"
)

const settingSelect = `
	SELECT user_id, key, value, local_version, synced_version, server_version, modified_at, sync_status
	FROM settings`

func scanSetting(s rowScanner) (*SettingRow, error) {
	var (
		r          SettingRow
		modifiedAt int64
	)
	if err := s.Scan(&r.UserID, &r.Key, &r.Value, &r.LocalVersion, &r.SyncedVersion, &r.ServerVersion,
		&modifiedAt, &r.SyncStatus); err != nil {
		return nil, err
	}
	r.ModifiedAt = fromMillis(modifiedAt)
	return &r, nil
}

// GetSetting returns a setting, or nil if it does not exist.
func (db *DB) GetSetting(userID, key string) (*SettingRow, error) {
	return withReadRetry(func() (*SettingRow, error) {
		r, err := scanSetting(db.QueryRow(settingSelect+` WHERE user_id = ? AND key = ?`, userID, key))
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return r, err
	})
}

// ListSettings returns all settings of a user ordered by key.
func (db *DB) ListSettings(userID string) ([]SettingRow, error) {
	return withReadRetry(func() ([]SettingRow, error) {
		return db.querySettings(settingSelect+` WHERE user_id = ? ORDER BY key`, userID)
	})
}

// UnsyncedSettings returns the settings of a user that still need a push:
// PENDING, FAILED, or SYNCING left behind by an interrupted push.
func (db *DB) UnsyncedSettings(userID string) ([]SettingRow, error) {
	return withReadRetry(func() ([]SettingRow, error) {
		return db.querySettings(settingSelect+`
			WHERE user_id = ? AND sync_status IN ('PENDING', 'FAILED', 'SYNCING')
			ORDER BY key`, userID)
	})
}

func (db *DB) querySettings(query string, args ...any) ([]SettingRow, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []SettingRow
	for rows.Next() {
		r, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpsertSettings writes the given rows in one transaction.
func (db *DB) UpsertSettings(rows ...SettingRow) error {
	tx, err := db.Begin()
	if err != nil {
		return mapError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	for i := range rows {
		if err := upsertSettingTx(tx, &rows[i]); err != nil {
			return mapError(err)
		}
	}
	return mapError(tx.Commit())
}

func upsertSettingTx(tx *sql.Tx, r *SettingRow) error {
	_, err := tx.Exec(`
		INSERT INTO settings (user_id, key, value, local_version, synced_version, server_version, modified_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET
			value = excluded.value,
			local_version = excluded.local_version,
			synced_version = excluded.synced_version,
			server_version = excluded.server_version,
			modified_at = excluded.modified_at,
			sync_status = excluded.sync_status`,
		r.UserID, r.Key, r.Value, r.LocalVersion, r.SyncedVersion, r.ServerVersion, toMillis(r.ModifiedAt), r.SyncStatus)
	if err != nil {
		return fmt.Errorf("upsert setting %s: %w", r.Key, err)
	}
	return nil
}

// TransformSetting reads a setting, applies fn and writes the result in one
// transaction. Failures are reported as *SettingOpError naming the phase; a
// missing row is a read failure wrapping ErrSettingNotFound.
func (db *DB) TransformSetting(userID, key string, fn func(SettingRow) (SettingRow, error)) (*SettingRow, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, &SettingOpError{Phase: PhaseRead, Err: mapError(err)}
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanSetting(tx.QueryRow(settingSelect+` WHERE user_id = ? AND key = ?`, userID, key))
	if err == sql.ErrNoRows {
		return nil, &SettingOpError{Phase: PhaseRead, Err: ErrSettingNotFound}
	}
	if err != nil {
		return nil, &SettingOpError{Phase: PhaseRead, Err: mapError(err)}
	}

	next, err := fn(*cur)
	if err != nil {
		return nil, &SettingOpError{Phase: PhaseTransform, Err: err}
	}
	next.UserID, next.Key = userID, key

	if err := upsertSettingTx(tx, &next); err != nil {
		return nil, &SettingOpError{Phase: PhaseWrite, Err: mapError(err)}
	}
	if err := tx.Commit(); err != nil {
		return nil, &SettingOpError{Phase: PhaseWrite, Err: mapError(err)}
	}
	return &next, nil
}
