package store

import (
	"database/sql"
	"fmt"

	"github.com/matheus3301/chatsync/internal/domain"
)

// ApplyChatListDelta applies a batch of changes in ascending timestamp order
// and advances the chat list watermark, all in one transaction. On failure
// nothing is written.
func (db *DB) ApplyChatListDelta(d *domain.ChatListDelta) error {
	tx, err := db.Begin()
	if err != nil {
		return mapError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	now := nowMillis()
	for _, change := range d.Sorted() {
		if err := applyDeltaTx(tx, change, now); err != nil {
			return mapError(err)
		}
	}
	if err := writeWatermarkTx(tx, ChatListSyncKey, d.ToTimestamp, now); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit delta batch: %w", err))
	}
	db.notifyChats(d.ChatIDs()...)
	return nil
}

// ApplyChatDelta applies a single change without touching the watermark.
func (db *DB) ApplyChatDelta(d domain.ChatDelta) error {
	tx, err := db.Begin()
	if err != nil {
		return mapError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := applyDeltaTx(tx, d, nowMillis()); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit delta: %w", err))
	}
	db.notifyChats(d.ChatID())
	return nil
}

// applyDeltaTx applies one change. Created and Updated are upserts, so a
// replayed or out of order delta converges on the same rows. Deleting a
// missing chat is a no-op.
func applyDeltaTx(tx *sql.Tx, d domain.ChatDelta, now int64) error {
	switch d := d.(type) {
	case *domain.ChatCreated:
		if err := upsertChatTx(tx, d.ID, d.Metadata, now); err != nil {
			return err
		}
		return upsertMessagesTx(tx, d.ID, d.InitialMessages, now)
	case *domain.ChatUpdated:
		if err := upsertChatTx(tx, d.ID, d.Metadata, now); err != nil {
			return err
		}
		if err := upsertMessagesTx(tx, d.ID, d.MessagesToAdd, now); err != nil {
			return err
		}
		for _, id := range d.MessageIDsToDelete {
			if _, err := tx.Exec(`DELETE FROM messages WHERE id = ? AND chat_id = ?`, id, d.ID); err != nil {
				return fmt.Errorf("delete message %s: %w", id, err)
			}
		}
		return nil
	case *domain.ChatDeleted:
		return deleteChatTx(tx, d.ID)
	}
	return &InvalidDataError{Field: "delta", Reason: fmt.Sprintf("unsupported change %T", d)}
}
