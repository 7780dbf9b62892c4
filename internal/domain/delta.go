package domain

import (
	"sort"
	"time"
)

// ChatMetadata is the snapshot of chat fields carried by Created and Updated deltas.
type ChatMetadata struct {
	Name                string
	PictureURL          string
	Participants        []Participant
	Rules               []Rule
	UnreadMessagesCount int
	LastReadMessageID   string
	IsClosed            bool
	IsArchived          bool
	IsOneToOne          bool
	LastActivityAt      time.Time
}

// ChatDelta is one change to a chat. Implementations: *ChatCreated,
// *ChatUpdated, *ChatDeleted.
type ChatDelta interface {
	ChatID() string
	Timestamp() time.Time
	isChatDelta()
}

// ChatCreated introduces a chat with its initial messages.
type ChatCreated struct {
	ID              string
	Metadata        ChatMetadata
	InitialMessages []Message
	At              time.Time
}

// ChatUpdated replaces chat metadata and adds or removes messages.
type ChatUpdated struct {
	ID                 string
	Metadata           ChatMetadata
	MessagesToAdd      []Message
	MessageIDsToDelete []string
	At                 time.Time
}

// ChatDeleted removes a chat and everything hanging off it.
type ChatDeleted struct {
	ID string
	At time.Time
}

func (d *ChatCreated) ChatID() string       { return d.ID }
func (d *ChatCreated) Timestamp() time.Time { return d.At }
func (*ChatCreated) isChatDelta()           {}

func (d *ChatUpdated) ChatID() string       { return d.ID }
func (d *ChatUpdated) Timestamp() time.Time { return d.At }
func (*ChatUpdated) isChatDelta()           {}

func (d *ChatDeleted) ChatID() string       { return d.ID }
func (d *ChatDeleted) Timestamp() time.Time { return d.At }
func (*ChatDeleted) isChatDelta()           {}

// ChatListDelta is one page of changes from the delta stream.
type ChatListDelta struct {
	Changes        []ChatDelta
	ToTimestamp    time.Time
	HasMoreChanges bool
}

// Sorted returns the changes in ascending timestamp order. Changes with equal
// timestamps keep their stream order.
func (d *ChatListDelta) Sorted() []ChatDelta {
	out := make([]ChatDelta, len(d.Changes))
	copy(out, d.Changes)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp().Before(out[j].Timestamp())
	})
	return out
}

// ChatIDs returns the distinct chat ids touched by the batch, sorted.
func (d *ChatListDelta) ChatIDs() []string {
	seen := make(map[string]struct{}, len(d.Changes))
	var ids []string
	for _, c := range d.Changes {
		if _, ok := seen[c.ChatID()]; ok {
			continue
		}
		seen[c.ChatID()] = struct{}{}
		ids = append(ids, c.ChatID())
	}
	sort.Strings(ids)
	return ids
}
