package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/domain"
)

// envelope wraps every HTTP response body.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code        string `json:"code"`
	Message     string `json:"message,omitempty"`
	RemainingMs int64  `json:"remainingMs,omitempty"`
}

type participantDTO struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	PictureURL  string     `json:"pictureUrl,omitempty"`
	JoinedAt    time.Time  `json:"joinedAt"`
	OnlineAt    *time.Time `json:"onlineAt,omitempty"`
	IsAdmin     bool       `json:"isAdmin"`
	IsModerator bool       `json:"isModerator"`
}

type messageDTO struct {
	ID             string                 `json:"id"`
	ParentID       string                 `json:"parentId,omitempty"`
	Sender         participantDTO         `json:"sender"`
	ChatID         string                 `json:"recipient"`
	Text           string                 `json:"text"`
	CreatedAt      time.Time              `json:"createdAt"`
	SentAt         *time.Time             `json:"sentAt,omitempty"`
	DeliveredAt    *time.Time             `json:"deliveredAt,omitempty"`
	EditedAt       *time.Time             `json:"editedAt,omitempty"`
	DeliveryStatus *domain.DeliveryStatus `json:"deliveryStatus,omitempty"`
}

type chatDTO struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	PictureURL          string           `json:"pictureUrl,omitempty"`
	Participants        []participantDTO `json:"participants"`
	Messages            []messageDTO     `json:"messages,omitempty"`
	Rules               []domain.Rule    `json:"rules"`
	UnreadMessagesCount int              `json:"unreadMessagesCount"`
	LastReadMessageID   string           `json:"lastReadMessageId,omitempty"`
	IsClosed            bool             `json:"isClosed"`
	IsArchived          bool             `json:"isArchived"`
	IsOneToOne          bool             `json:"isOneToOne"`
	LastActivityAt      time.Time        `json:"lastActivityAt"`
}

// Delta types on the wire.
const (
	deltaCreated = "created"
	deltaUpdated = "updated"
	deltaDeleted = "deleted"
)

type chatDeltaDTO struct {
	Type               string       `json:"type"`
	ChatID             string       `json:"chatId"`
	Chat               *chatDTO     `json:"chat,omitempty"`
	Messages           []messageDTO `json:"messages,omitempty"`
	MessageIDsToDelete []string     `json:"messageIdsToDelete,omitempty"`
	Timestamp          time.Time    `json:"timestamp"`
}

type chatListDeltaDTO struct {
	Changes        []chatDeltaDTO `json:"changes"`
	ToTimestamp    time.Time      `json:"toTimestamp"`
	HasMoreChanges bool           `json:"hasMoreChanges"`
}

type joinChatRequest struct {
	InviteLink string `json:"inviteLink,omitempty"`
}

type markReadRequest struct {
	UpToMessageID string `json:"upToMessageId"`
}

type settingsResponse struct {
	Settings []SettingItem `json:"settings"`
}

type syncSettingsRequest struct {
	Settings []SettingSyncRequest `json:"settings"`
}

type syncSettingsResponse struct {
	Results []SettingSyncResult `json:"results"`
}

func participantToDTO(p domain.Participant) participantDTO {
	return participantDTO{
		ID: p.ID, Name: p.Name, PictureURL: p.PictureURL, JoinedAt: p.JoinedAt,
		OnlineAt: p.OnlineAt, IsAdmin: p.IsAdmin, IsModerator: p.IsModerator,
	}
}

func (d participantDTO) toDomain() domain.Participant {
	return domain.Participant{
		ID: d.ID, Name: d.Name, PictureURL: d.PictureURL, JoinedAt: d.JoinedAt,
		OnlineAt: d.OnlineAt, IsAdmin: d.IsAdmin, IsModerator: d.IsModerator,
	}
}

func messageToDTO(m *domain.Message) messageDTO {
	return messageDTO{
		ID: m.ID, ParentID: m.ParentID, Sender: participantToDTO(m.Sender), ChatID: m.ChatID,
		Text: m.Text, CreatedAt: m.CreatedAt, SentAt: m.SentAt, DeliveredAt: m.DeliveredAt,
		EditedAt: m.EditedAt, DeliveryStatus: m.DeliveryStatus,
	}
}

func (d messageDTO) toDomain() domain.Message {
	return domain.Message{
		ID: d.ID, ParentID: d.ParentID, Sender: d.Sender.toDomain(), ChatID: d.ChatID,
		Text: d.Text, CreatedAt: d.CreatedAt, SentAt: d.SentAt, DeliveredAt: d.DeliveredAt,
		EditedAt: d.EditedAt, DeliveryStatus: d.DeliveryStatus,
	}
}

func messagesToDomain(in []messageDTO) []domain.Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Message, len(in))
	for i, m := range in {
		out[i] = m.toDomain()
	}
	return out
}

func messagesToDTO(in []domain.Message) []messageDTO {
	if len(in) == 0 {
		return nil
	}
	out := make([]messageDTO, len(in))
	for i := range in {
		out[i] = messageToDTO(&in[i])
	}
	return out
}

func chatToDTO(c *domain.Chat) chatDTO {
	d := chatDTO{
		ID: c.ID, Messages: messagesToDTO(c.Messages),
	}
	d.setMetadata(c.Metadata())
	return d
}

func (d *chatDTO) setMetadata(m domain.ChatMetadata) {
	d.Name = m.Name
	d.PictureURL = m.PictureURL
	d.Rules = m.Rules
	d.UnreadMessagesCount = m.UnreadMessagesCount
	d.LastReadMessageID = m.LastReadMessageID
	d.IsClosed = m.IsClosed
	d.IsArchived = m.IsArchived
	d.IsOneToOne = m.IsOneToOne
	d.LastActivityAt = m.LastActivityAt
	d.Participants = make([]participantDTO, len(m.Participants))
	for i, p := range m.Participants {
		d.Participants[i] = participantToDTO(p)
	}
}

func (d *chatDTO) metadata() domain.ChatMetadata {
	m := domain.ChatMetadata{
		Name: d.Name, PictureURL: d.PictureURL, Rules: d.Rules,
		UnreadMessagesCount: d.UnreadMessagesCount, LastReadMessageID: d.LastReadMessageID,
		IsClosed: d.IsClosed, IsArchived: d.IsArchived, IsOneToOne: d.IsOneToOne,
		LastActivityAt: d.LastActivityAt,
	}
	for _, p := range d.Participants {
		m.Participants = append(m.Participants, p.toDomain())
	}
	return m
}

func (d *chatDTO) toDomain() *domain.Chat {
	m := d.metadata()
	return &domain.Chat{
		ID: d.ID, Name: m.Name, PictureURL: m.PictureURL, Participants: m.Participants,
		Messages: messagesToDomain(d.Messages), Rules: m.Rules,
		UnreadMessagesCount: m.UnreadMessagesCount, LastReadMessageID: m.LastReadMessageID,
		IsClosed: m.IsClosed, IsArchived: m.IsArchived, IsOneToOne: m.IsOneToOne,
		LastActivityAt: m.LastActivityAt,
	}
}

func (d *chatDeltaDTO) toDomain() (domain.ChatDelta, error) {
	switch d.Type {
	case deltaCreated, deltaUpdated:
		if d.Chat == nil {
			return nil, fmt.Errorf("%s delta for %s has no chat", d.Type, d.ChatID)
		}
		if d.Type == deltaCreated {
			return &domain.ChatCreated{
				ID: d.ChatID, Metadata: d.Chat.metadata(),
				InitialMessages: messagesToDomain(d.Messages), At: d.Timestamp,
			}, nil
		}
		return &domain.ChatUpdated{
			ID: d.ChatID, Metadata: d.Chat.metadata(), MessagesToAdd: messagesToDomain(d.Messages),
			MessageIDsToDelete: d.MessageIDsToDelete, At: d.Timestamp,
		}, nil
	case deltaDeleted:
		return &domain.ChatDeleted{ID: d.ChatID, At: d.Timestamp}, nil
	}
	return nil, fmt.Errorf("unknown delta type %q", d.Type)
}

func (d *chatListDeltaDTO) toDomain() (*domain.ChatListDelta, error) {
	out := &domain.ChatListDelta{ToTimestamp: d.ToTimestamp, HasMoreChanges: d.HasMoreChanges}
	for i := range d.Changes {
		change, err := d.Changes[i].toDomain()
		if err != nil {
			return nil, err
		}
		out.Changes = append(out.Changes, change)
	}
	return out, nil
}

// deltaToDTO encodes a change for the wire.
func deltaToDTO(c domain.ChatDelta) chatDeltaDTO {
	switch c := c.(type) {
	case *domain.ChatCreated:
		chat := &chatDTO{ID: c.ID}
		chat.setMetadata(c.Metadata)
		return chatDeltaDTO{Type: deltaCreated, ChatID: c.ID, Chat: chat, Messages: messagesToDTO(c.InitialMessages), Timestamp: c.At}
	case *domain.ChatUpdated:
		chat := &chatDTO{ID: c.ID}
		chat.setMetadata(c.Metadata)
		return chatDeltaDTO{
			Type: deltaUpdated, ChatID: c.ID, Chat: chat, Messages: messagesToDTO(c.MessagesToAdd),
			MessageIDsToDelete: c.MessageIDsToDelete, Timestamp: c.At,
		}
	}
	return chatDeltaDTO{Type: deltaDeleted, ChatID: c.ChatID(), Timestamp: c.Timestamp()}
}

func chatListDeltaToDTO(d *domain.ChatListDelta) chatListDeltaDTO {
	out := chatListDeltaDTO{ToTimestamp: d.ToTimestamp, HasMoreChanges: d.HasMoreChanges}
	for _, c := range d.Changes {
		out.Changes = append(out.Changes, deltaToDTO(c))
	}
	return out
}
