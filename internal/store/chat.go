package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/matheus3301/chatsync/internal/domain"
)

// UpsertChat inserts or replaces a chat with its participants and messages.
func (db *DB) UpsertChat(c *domain.Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return mapError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	now := nowMillis()
	if err := upsertChatTx(tx, c.ID, c.Metadata(), now); err != nil {
		return mapError(err)
	}
	if err := upsertMessagesTx(tx, c.ID, c.Messages, now); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit chat: %w", err))
	}
	db.notifyChats(c.ID)
	return nil
}

// upsertChatTx writes the chat row and replaces its participant cross references.
func upsertChatTx(tx *sql.Tx, id string, meta domain.ChatMetadata, now int64) error {
	rules := meta.Rules
	if rules == nil {
		rules = []domain.Rule{}
	}
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return &InvalidDataError{Field: "rules", Reason: err.Error()}
	}
	if _, err := tx.Exec(`
		INSERT INTO chats (id, name, picture_url, rules, unread_count, last_read_message_id,
			is_closed, is_archived, is_one_to_one, last_activity_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			picture_url = excluded.picture_url,
			rules = excluded.rules,
			unread_count = excluded.unread_count,
			last_read_message_id = excluded.last_read_message_id,
			is_closed = excluded.is_closed,
			is_archived = excluded.is_archived,
			is_one_to_one = excluded.is_one_to_one,
			last_activity_at = excluded.last_activity_at,
			updated_at = excluded.updated_at`,
		id, meta.Name, meta.PictureURL, string(rulesJSON), meta.UnreadMessagesCount, meta.LastReadMessageID,
		meta.IsClosed, meta.IsArchived, meta.IsOneToOne, toMillis(meta.LastActivityAt), now); err != nil {
		return fmt.Errorf("upsert chat %s: %w", id, err)
	}
	return replaceParticipantsTx(tx, id, meta.Participants, now)
}

// GetChat returns a chat with participants and messages, or nil if it does not exist.
func (db *DB) GetChat(id string) (*domain.Chat, error) {
	return withReadRetry(func() (*domain.Chat, error) {
		return db.getChat(id)
	})
}

// getChat reads the chat row, participants and messages inside one read
// transaction so a concurrently committed batch is seen entirely or not at all.
func (db *DB) getChat(id string) (*domain.Chat, error) {
	tx, err := db.BeginTx(context.Background(), &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		c            domain.Chat
		rules        string
		lastActivity int64
	)
	err = tx.QueryRow(`
		SELECT id, name, picture_url, rules, unread_count, last_read_message_id,
			is_closed, is_archived, is_one_to_one, last_activity_at
		FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.PictureURL, &rules, &c.UnreadMessagesCount, &c.LastReadMessageID,
			&c.IsClosed, &c.IsArchived, &c.IsOneToOne, &lastActivity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rules), &c.Rules); err != nil {
		return nil, fmt.Errorf("%w: chat %s rules: %v", ErrCorrupted, id, err)
	}
	c.LastActivityAt = fromMillis(lastActivity)

	if c.Participants, err = listParticipantsTx(tx, id); err != nil {
		return nil, err
	}
	if c.Messages, err = allMessagesTx(tx, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChats returns chat previews sorted by last activity descending.
func (db *DB) ListChats() ([]domain.ChatPreview, error) {
	return withReadRetry(db.listChats)
}

func (db *DB) listChats() ([]domain.ChatPreview, error) {
	rows, err := db.Query(`
		SELECT c.id, c.name, c.picture_url, c.unread_count, c.last_activity_at,
			COALESCE(lm.text, ''), COALESCE(lm.created_at, 0),
			(SELECT COUNT(*) FROM chat_participants cp WHERE cp.chat_id = c.id)
		FROM chats c
		LEFT JOIN messages lm ON lm.id = (
			SELECT m.id FROM messages m WHERE m.chat_id = c.id
			ORDER BY m.created_at DESC, m.id DESC LIMIT 1)
		ORDER BY c.last_activity_at DESC, c.id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []domain.ChatPreview
	for rows.Next() {
		var (
			p                       domain.ChatPreview
			lastActivity, lastMsgAt int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.PictureURL, &p.UnreadMessagesCount, &lastActivity,
			&p.LastMessageText, &lastMsgAt, &p.ParticipantCount); err != nil {
			return nil, err
		}
		p.LastActivityAt = fromMillis(lastActivity)
		p.LastMessageAt = fromMillis(lastMsgAt)
		chats = append(chats, p)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat; messages and cross references cascade.
func (db *DB) DeleteChat(id string) error {
	res, err := db.Exec(`DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return mapError(fmt.Errorf("delete chat: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChatNotFound
	}
	db.notifyChats(id)
	return nil
}

func deleteChatTx(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(`DELETE FROM chats WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete chat %s: %w", id, err)
	}
	return nil
}

// ClearAllData wipes every table, including settings and the watermark.
func (db *DB) ClearAllData() error {
	tx, err := db.Begin()
	if err != nil {
		return mapError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"messages", "chat_participants", "chats", "participants", "sync_metadata", "settings"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return mapError(fmt.Errorf("clear %s: %w", table, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit clear: %w", err))
	}
	db.notifyCleared()
	return nil
}
