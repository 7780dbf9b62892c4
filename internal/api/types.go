package api

import (
	"encoding/json"
	"time"

	"github.com/matheus3301/chatsync/internal/domain"
)

// Chat is the wire form of a chat.
type Chat struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	PictureURL          string        `json:"picture_url,omitempty"`
	Participants        []Participant `json:"participants,omitempty"`
	UnreadMessagesCount int           `json:"unread_messages_count"`
	LastReadMessageID   string        `json:"last_read_message_id,omitempty"`
	IsClosed            bool          `json:"is_closed"`
	IsArchived          bool          `json:"is_archived"`
	IsOneToOne          bool          `json:"is_one_to_one"`
	LastActivityAt      time.Time     `json:"last_activity_at,omitzero"`
}

// ChatPreview is the wire form of a chat list entry.
type ChatPreview struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	UnreadMessagesCount int       `json:"unread_messages_count"`
	LastMessageText     string    `json:"last_message_text,omitempty"`
	LastMessageAt       time.Time `json:"last_message_at,omitzero"`
	LastActivityAt      time.Time `json:"last_activity_at,omitzero"`
	ParticipantCount    int       `json:"participant_count"`
}

// Participant is the wire form of a chat member.
type Participant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsAdmin     bool   `json:"is_admin,omitempty"`
	IsModerator bool   `json:"is_moderator,omitempty"`
}

// Message is the wire form of a message.
type Message struct {
	ID             string     `json:"id"`
	ChatID         string     `json:"chat_id"`
	ParentID       string     `json:"parent_id,omitempty"`
	SenderID       string     `json:"sender_id,omitempty"`
	SenderName     string     `json:"sender_name,omitempty"`
	Text           string     `json:"text"`
	CreatedAt      time.Time  `json:"created_at"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	DeliveryStatus string     `json:"delivery_status,omitempty"`
}

// Event is a bus event forwarded to a watching client.
type Event struct {
	ID         string          `json:"id"`
	Session    string          `json:"session"`
	Kind       string          `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Session   string `json:"session"`
	Status    string `json:"status"`
	UserID    string `json:"user_id,omitempty"`
	UptimeMs  int64  `json:"uptime_ms"`
	ChatCount int    `json:"chat_count"`
}

type GetSyncStatusRequest struct{}

type GetSyncStatusResponse struct {
	Watermark *time.Time `json:"watermark,omitempty"`
	Status    string     `json:"status,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Updating  bool       `json:"updating"`
	State     string     `json:"state"`
}

type WatchEventsRequest struct {
	// Prefixes filters events by kind prefix. Empty means sync and session events.
	Prefixes []string `json:"prefixes,omitempty"`
}

type ListChatsRequest struct{}

type ListChatsResponse struct {
	Chats []ChatPreview `json:"chats"`
}

type GetChatRequest struct {
	ChatID string `json:"chat_id"`
}

type GetChatResponse struct {
	Chat Chat `json:"chat"`
}

type CreateChatRequest struct {
	Name           string   `json:"name"`
	ParticipantIDs []string `json:"participant_ids,omitempty"`
	OneToOne       bool     `json:"one_to_one,omitempty"`
}

type CreateChatResponse struct {
	Chat Chat `json:"chat"`
}

type DeleteChatRequest struct {
	ChatID string `json:"chat_id"`
}

type JoinChatRequest struct {
	ChatID     string `json:"chat_id"`
	InviteLink string `json:"invite_link"`
}

type JoinChatResponse struct {
	Chat Chat `json:"chat"`
}

type LeaveChatRequest struct {
	ChatID string `json:"chat_id"`
}

type MarkReadRequest struct {
	ChatID        string `json:"chat_id"`
	UpToMessageID string `json:"up_to_message_id"`
}

type Empty struct{}

type ListMessagesRequest struct {
	ChatID   string `json:"chat_id"`
	BeforeID string `json:"before_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

type SendMessageRequest struct {
	ChatID   string `json:"chat_id"`
	ParentID string `json:"parent_id,omitempty"`
	SenderID string `json:"sender_id,omitempty"`
	Text     string `json:"text"`
}

type EditMessageRequest struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

type DeleteMessageRequest struct {
	MessageID string `json:"message_id"`
	Mode      string `json:"mode,omitempty"`
}

type GetSettingsRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type Setting struct {
	Key           string    `json:"key"`
	Value         string    `json:"value"`
	LocalVersion  int64     `json:"local_version"`
	SyncedVersion int64     `json:"synced_version"`
	ServerVersion int64     `json:"server_version"`
	SyncStatus    string    `json:"sync_status"`
	ModifiedAt    time.Time `json:"modified_at,omitzero"`
}

type GetSettingsResponse struct {
	Settings []Setting `json:"settings"`
	// ResetToDefaults is set when the server could not be reached and
	// defaults were stored instead.
	ResetToDefaults bool `json:"reset_to_defaults,omitempty"`
}

type ChangeLanguageRequest struct {
	UserID   string `json:"user_id,omitempty"`
	Language string `json:"language"`
}

type SyncSettingsRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type SyncSettingsResponse struct {
	Outcome string `json:"outcome"`
}

func chatToWire(c *domain.Chat) Chat {
	out := Chat{
		ID:                  c.ID,
		Name:                c.Name,
		PictureURL:          c.PictureURL,
		UnreadMessagesCount: c.UnreadMessagesCount,
		LastReadMessageID:   c.LastReadMessageID,
		IsClosed:            c.IsClosed,
		IsArchived:          c.IsArchived,
		IsOneToOne:          c.IsOneToOne,
		LastActivityAt:      c.LastActivityAt,
	}
	for _, p := range c.Participants {
		out.Participants = append(out.Participants, Participant{
			ID:          p.ID,
			Name:        p.Name,
			IsAdmin:     p.IsAdmin,
			IsModerator: p.IsModerator,
		})
	}
	return out
}

func previewToWire(p *domain.ChatPreview) ChatPreview {
	return ChatPreview{
		ID:                  p.ID,
		Name:                p.Name,
		UnreadMessagesCount: p.UnreadMessagesCount,
		LastMessageText:     p.LastMessageText,
		LastMessageAt:       p.LastMessageAt,
		LastActivityAt:      p.LastActivityAt,
		ParticipantCount:    p.ParticipantCount,
	}
}

func messageToWire(m *domain.Message) Message {
	return Message{
		ID:             m.ID,
		ChatID:         m.ChatID,
		ParentID:       m.ParentID,
		SenderID:       m.Sender.ID,
		SenderName:     m.Sender.Name,
		Text:           m.Text,
		CreatedAt:      m.CreatedAt,
		SentAt:         m.SentAt,
		DeliveredAt:    m.DeliveredAt,
		EditedAt:       m.EditedAt,
		DeliveryStatus: m.DeliveryStatus.String(),
	}
}
