package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/domain"
)

// upsertParticipantTx stores the global identity of a participant. Empty
// names and pictures never overwrite known ones.
func upsertParticipantTx(tx *sql.Tx, p *domain.Participant, now int64) error {
	_, err := tx.Exec(`
		INSERT INTO participants (id, name, picture_url, online_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE participants.name END,
			picture_url = CASE WHEN excluded.picture_url != '' THEN excluded.picture_url ELSE participants.picture_url END,
			online_at = COALESCE(excluded.online_at, participants.online_at),
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.PictureURL, nullMillis(p.OnlineAt), now)
	if err != nil {
		return fmt.Errorf("upsert participant %s: %w", p.ID, err)
	}
	return nil
}

// replaceParticipantsTx replaces the chat's cross references with the given set.
func replaceParticipantsTx(tx *sql.Tx, chatID string, participants []domain.Participant, now int64) error {
	if _, err := tx.Exec(`DELETE FROM chat_participants WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("clear chat participants: %w", err)
	}
	for i := range participants {
		p := &participants[i]
		if err := upsertParticipantTx(tx, p, now); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO chat_participants (chat_id, participant_id, joined_at, is_admin, is_moderator)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(chat_id, participant_id) DO UPDATE SET
				joined_at = excluded.joined_at,
				is_admin = excluded.is_admin,
				is_moderator = excluded.is_moderator`,
			chatID, p.ID, toMillis(p.JoinedAt), p.IsAdmin, p.IsModerator); err != nil {
			return fmt.Errorf("insert chat participant %s: %w", p.ID, err)
		}
	}
	return nil
}

func listParticipantsTx(tx *sql.Tx, chatID string) ([]domain.Participant, error) {
	rows, err := tx.Query(`
		SELECT p.id, p.name, p.picture_url, p.online_at, cp.joined_at, cp.is_admin, cp.is_moderator
		FROM chat_participants cp
		JOIN participants p ON p.id = cp.participant_id
		WHERE cp.chat_id = ?
		ORDER BY cp.joined_at, p.id`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Participant
	for rows.Next() {
		var (
			p        domain.Participant
			onlineAt sql.NullInt64
			joinedAt int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.PictureURL, &onlineAt, &joinedAt, &p.IsAdmin, &p.IsModerator); err != nil {
			return nil, err
		}
		p.OnlineAt = ptrMillis(onlineAt)
		p.JoinedAt = fromMillis(joinedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func nowMillis() int64 { return time.Now().UnixMilli() }
