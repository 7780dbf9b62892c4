package store

import (
	"database/sql"
	"time"

	"github.com/matheus3301/chatsync/internal/domain"
)

// ChatListSyncKey is the sync_metadata key of the chat list watermark.
const ChatListSyncKey = "chat_list"

// Sync status values recorded in sync_metadata.
const (
	SyncStatusSynced = "synced"
	SyncStatusFailed = "failed"
)

// SyncMetadata is a row of sync_metadata.
type SyncMetadata struct {
	Key        string
	LastSyncAt *time.Time
	Status     string
	LastError  string
	UpdatedAt  time.Time
}

// SettingRow is a persisted user setting with its version triple.
type SettingRow struct {
	UserID        string
	Key           string
	Value         string
	LocalVersion  int64
	SyncedVersion int64
	ServerVersion int64
	ModifiedAt    time.Time
	SyncStatus    string
}

// ChatListSnapshot is one emission of WatchChatList.
type ChatListSnapshot struct {
	Chats []domain.ChatPreview
	Err   error
}

// ChatSnapshot is one emission of WatchChat. Chat is nil once the chat is gone.
type ChatSnapshot struct {
	Chat *domain.Chat
	Err  error
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func ptrMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
