// Package remote talks to the chat service: the delta long-poll, chat and
// message mutations, and settings sync.
package remote

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/domain"
)

// DeltaResult is one emission of a delta stream: a batch or a transport error.
type DeltaResult struct {
	Delta *domain.ChatListDelta
	Err   error
}

// MessageResult is one progressively confirmed state of a sent or edited message.
type MessageResult struct {
	Message *domain.Message
	Err     error
}

// DeltaSource produces the chat delta stream.
type DeltaSource interface {
	// ChatDeltas streams batches newer than since (everything when nil).
	// Transport errors are emitted and polling resumes after a backoff. The
	// channel is closed when ctx is done.
	ChatDeltas(ctx context.Context, since *time.Time) <-chan DeltaResult
}

// ChatSource accepts chat and message mutations.
type ChatSource interface {
	CreateChat(ctx context.Context, chat *domain.Chat) (*domain.Chat, error)
	DeleteChat(ctx context.Context, chatID string) error
	JoinChat(ctx context.Context, chatID, inviteLink string) (*domain.Chat, error)
	LeaveChat(ctx context.Context, chatID string) error
	MarkMessagesAsRead(ctx context.Context, chatID, upToMessageID string) error
	SendMessage(ctx context.Context, msg *domain.Message) <-chan MessageResult
	EditMessage(ctx context.Context, msg *domain.Message) <-chan MessageResult
	DeleteMessage(ctx context.Context, messageID string, mode domain.DeleteMode) error
}

// SettingsSource syncs per-user settings.
type SettingsSource interface {
	GetSettings(ctx context.Context) ([]SettingItem, error)
	SyncSetting(ctx context.Context, req SettingSyncRequest) (*SettingSyncResult, error)
	SyncSettingsBatch(ctx context.Context, reqs []SettingSyncRequest) ([]SettingSyncResult, error)
}

// Source is the complete remote contract.
type Source interface {
	DeltaSource
	ChatSource
	SettingsSource
}

// SettingItem is a setting as stored on the server.
type SettingItem struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Version int64  `json:"version"`
}

// SettingSyncRequest pushes one local setting.
type SettingSyncRequest struct {
	Key                    string    `json:"key"`
	Value                  string    `json:"value"`
	ClientVersion          int64     `json:"clientVersion"`
	LastKnownServerVersion int64     `json:"lastKnownServerVersion"`
	ModifiedAt             time.Time `json:"modifiedAt"`
}

// SyncStatus is the server verdict for a pushed setting.
type SyncStatus string

const (
	SyncSuccess  SyncStatus = "success"
	SyncConflict SyncStatus = "conflict"
)

// SettingSyncResult answers a SettingSyncRequest. The server fields are only
// set for SyncConflict.
type SettingSyncResult struct {
	Key              string     `json:"key"`
	Status           SyncStatus `json:"status"`
	NewVersion       int64      `json:"newVersion"`
	ServerValue      string     `json:"serverValue,omitempty"`
	ServerVersion    int64      `json:"serverVersion,omitempty"`
	ServerModifiedAt time.Time  `json:"serverModifiedAt,omitzero"`
}
