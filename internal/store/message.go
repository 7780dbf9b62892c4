package store

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/matheus3301/chatsync/internal/domain"
)

const messageSelect = `
	SELECT m.id, m.chat_id, m.parent_id, m.text, m.delivery_status,
		m.created_at, m.sent_at, m.delivered_at, m.edited_at,
		p.id, p.name, p.picture_url, p.online_at,
		COALESCE(cp.joined_at, 0), COALESCE(cp.is_admin, 0), COALESCE(cp.is_moderator, 0)
	FROM messages m
	JOIN participants p ON p.id = m.sender_id
	LEFT JOIN chat_participants cp ON cp.chat_id = m.chat_id AND cp.participant_id = m.sender_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(s rowScanner) (*domain.Message, error) {
	var (
		m                           domain.Message
		status                      string
		createdAt, joinedAt         int64
		sentAt, deliveredAt, edited sql.NullInt64
		onlineAt                    sql.NullInt64
	)
	if err := s.Scan(&m.ID, &m.ChatID, &m.ParentID, &m.Text, &status,
		&createdAt, &sentAt, &deliveredAt, &edited,
		&m.Sender.ID, &m.Sender.Name, &m.Sender.PictureURL, &onlineAt,
		&joinedAt, &m.Sender.IsAdmin, &m.Sender.IsModerator); err != nil {
		return nil, err
	}
	ds, err := domain.ParseDeliveryStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: message %s: %v", ErrCorrupted, m.ID, err)
	}
	m.DeliveryStatus = ds
	m.CreatedAt = fromMillis(createdAt)
	m.SentAt = ptrMillis(sentAt)
	m.DeliveredAt = ptrMillis(deliveredAt)
	m.EditedAt = ptrMillis(edited)
	m.Sender.OnlineAt = ptrMillis(onlineAt)
	m.Sender.JoinedAt = fromMillis(joinedAt)
	return &m, nil
}

// validateMessage checks the invariants enforced on locally authored messages.
func validateMessage(m *domain.Message) error {
	switch {
	case m.ID == "":
		return &InvalidDataError{Field: "id", Reason: "must not be empty"}
	case m.ChatID == "":
		return &InvalidDataError{Field: "chat_id", Reason: "must not be empty"}
	case m.Sender.ID == "":
		return &InvalidDataError{Field: "sender_id", Reason: "must not be empty"}
	case strings.TrimSpace(m.Text) == "":
		return &InvalidDataError{Field: "text", Reason: "must not be blank"}
	case utf8.RuneCountInString(m.Text) > domain.MaxTextLength:
		return &InvalidDataError{Field: "text", Reason: fmt.Sprintf("exceeds %d characters", domain.MaxTextLength)}
	case m.SentAt != nil && m.SentAt.Before(m.CreatedAt):
		return &InvalidDataError{Field: "sent_at", Reason: "before created_at"}
	case m.DeliveredAt != nil && m.SentAt != nil && m.DeliveredAt.Before(*m.SentAt):
		return &InvalidDataError{Field: "delivered_at", Reason: "before sent_at"}
	case m.DeliveredAt != nil && m.DeliveredAt.Before(m.CreatedAt):
		return &InvalidDataError{Field: "delivered_at", Reason: "before created_at"}
	}
	return nil
}

// upsertMessagesTx writes messages by id. Senders are stored as participants.
func upsertMessagesTx(tx *sql.Tx, chatID string, msgs []domain.Message, now int64) error {
	for i := range msgs {
		m := &msgs[i]
		if err := upsertParticipantTx(tx, &m.Sender, now); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (id, chat_id, sender_id, parent_id, text, delivery_status,
				created_at, sent_at, delivered_at, edited_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				chat_id = excluded.chat_id,
				sender_id = excluded.sender_id,
				parent_id = excluded.parent_id,
				text = excluded.text,
				delivery_status = excluded.delivery_status,
				created_at = excluded.created_at,
				sent_at = excluded.sent_at,
				delivered_at = excluded.delivered_at,
				edited_at = excluded.edited_at`,
			m.ID, chatID, m.Sender.ID, m.ParentID, m.Text, m.DeliveryStatus.String(),
			toMillis(m.CreatedAt), nullMillis(m.SentAt), nullMillis(m.DeliveredAt), nullMillis(m.EditedAt)); err != nil {
			return fmt.Errorf("upsert message %s: %w", m.ID, err)
		}
	}
	return nil
}

// InsertMessage stores a new locally authored message. The chat must exist.
func (db *DB) InsertMessage(m *domain.Message) error {
	if err := validateMessage(m); err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return mapError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM chats WHERE id = ?`, m.ChatID).Scan(&exists); err != nil {
		return mapError(fmt.Errorf("check chat: %w", err))
	}
	if exists == 0 {
		return ErrChatNotFound
	}
	if err := upsertParticipantTx(tx, &m.Sender, nowMillis()); err != nil {
		return mapError(err)
	}
	if _, err := tx.Exec(`
		INSERT INTO messages (id, chat_id, sender_id, parent_id, text, delivery_status,
			created_at, sent_at, delivered_at, edited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.Sender.ID, m.ParentID, m.Text, m.DeliveryStatus.String(),
		toMillis(m.CreatedAt), nullMillis(m.SentAt), nullMillis(m.DeliveredAt), nullMillis(m.EditedAt)); err != nil {
		return mapError(fmt.Errorf("insert message: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit message: %w", err))
	}
	db.notifyChats(m.ChatID)
	return nil
}

// UpdateMessage overwrites an existing message. It never inserts.
func (db *DB) UpdateMessage(m *domain.Message) error {
	if err := validateMessage(m); err != nil {
		return err
	}
	res, err := db.Exec(`
		UPDATE messages SET
			parent_id = ?, text = ?, delivery_status = ?,
			created_at = ?, sent_at = ?, delivered_at = ?, edited_at = ?
		WHERE id = ? AND chat_id = ?`,
		m.ParentID, m.Text, m.DeliveryStatus.String(),
		toMillis(m.CreatedAt), nullMillis(m.SentAt), nullMillis(m.DeliveredAt), nullMillis(m.EditedAt),
		m.ID, m.ChatID)
	if err != nil {
		return mapError(fmt.Errorf("update message: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMessageNotFound
	}
	db.notifyChats(m.ChatID)
	return nil
}

// DeleteMessage removes a message by id.
func (db *DB) DeleteMessage(id string) error {
	var chatID string
	err := db.QueryRow(`DELETE FROM messages WHERE id = ? RETURNING chat_id`, id).Scan(&chatID)
	if err == sql.ErrNoRows {
		return ErrMessageNotFound
	}
	if err != nil {
		return mapError(fmt.Errorf("delete message: %w", err))
	}
	db.notifyChats(chatID)
	return nil
}

// GetMessage returns a message by id, or nil if it does not exist.
func (db *DB) GetMessage(id string) (*domain.Message, error) {
	return withReadRetry(func() (*domain.Message, error) {
		m, err := scanMessage(db.QueryRow(messageSelect+` WHERE m.id = ?`, id))
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return m, err
	})
}

// ListMessages returns up to limit messages of a chat older than the message
// beforeID (newest page when empty), using keyset pagination on
// (created_at, id). The page is returned oldest first.
func (db *DB) ListMessages(chatID, beforeID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	return withReadRetry(func() ([]domain.Message, error) {
		var (
			rows *sql.Rows
			err  error
		)
		if beforeID == "" {
			rows, err = db.Query(messageSelect+`
				WHERE m.chat_id = ?
				ORDER BY m.created_at DESC, m.id DESC
				LIMIT ?`, chatID, limit)
		} else {
			rows, err = db.Query(messageSelect+`
				WHERE m.chat_id = ?
					AND (m.created_at, m.id) < (SELECT created_at, id FROM messages WHERE id = ?)
				ORDER BY m.created_at DESC, m.id DESC
				LIMIT ?`, chatID, beforeID, limit)
		}
		if err != nil {
			return nil, err
		}
		msgs, err := collectMessages(rows)
		if err != nil {
			return nil, err
		}
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
		return msgs, nil
	})
}

func allMessagesTx(tx *sql.Tx, chatID string) ([]domain.Message, error) {
	rows, err := tx.Query(messageSelect+`
		WHERE m.chat_id = ?
		ORDER BY m.created_at, m.id`, chatID)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]domain.Message, error) {
	defer func() { _ = rows.Close() }()
	var msgs []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}
