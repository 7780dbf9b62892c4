package domain

import "time"

// MaxTextLength is the longest message text accepted by the store.
const MaxTextLength = 2000

// Chat is a conversation mirrored from the remote service.
type Chat struct {
	ID                  string
	Name                string
	PictureURL          string
	Participants        []Participant
	Messages            []Message
	Rules               []Rule
	UnreadMessagesCount int
	LastReadMessageID   string
	IsClosed            bool
	IsArchived          bool
	IsOneToOne          bool
	LastActivityAt      time.Time
}

// Metadata returns the chat fields carried by a delta snapshot.
func (c *Chat) Metadata() ChatMetadata {
	return ChatMetadata{
		Name:                c.Name,
		PictureURL:          c.PictureURL,
		Participants:        c.Participants,
		Rules:               c.Rules,
		UnreadMessagesCount: c.UnreadMessagesCount,
		LastReadMessageID:   c.LastReadMessageID,
		IsClosed:            c.IsClosed,
		IsArchived:          c.IsArchived,
		IsOneToOne:          c.IsOneToOne,
		LastActivityAt:      c.LastActivityAt,
	}
}

// ChatPreview is the chat list projection.
type ChatPreview struct {
	ID                  string
	Name                string
	PictureURL          string
	UnreadMessagesCount int
	LastMessageText     string
	LastMessageAt       time.Time
	LastActivityAt      time.Time
	ParticipantCount    int
}

// Participant is a chat member. JoinedAt and the role flags are chat-scoped.
type Participant struct {
	ID          string
	Name        string
	PictureURL  string
	JoinedAt    time.Time
	OnlineAt    *time.Time
	IsAdmin     bool
	IsModerator bool
}

// Message is a text message belonging to exactly one chat.
type Message struct {
	ID             string
	ParentID       string
	Sender         Participant
	ChatID         string
	Text           string
	CreatedAt      time.Time
	SentAt         *time.Time
	DeliveredAt    *time.Time
	EditedAt       *time.Time
	DeliveryStatus *DeliveryStatus
}

// DeleteMode selects who loses a deleted message.
type DeleteMode string

const (
	DeleteForSenderOnly DeleteMode = "for_sender_only"
	DeleteForEveryone   DeleteMode = "for_everyone"
)
