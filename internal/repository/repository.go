// Package repository is the entry point for chat and message mutations. It
// writes optimistically where the operation allows it, calls the remote
// service and mirrors confirmed results into the local store.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// MessageResult is one confirmed state of a sent or edited message, or the
// error that ended the stream.
type MessageResult struct {
	Message *domain.Message
	Err     error
}

// ChatUpdate is a snapshot of one chat. Err is ErrChatNotFound while the chat
// does not exist locally.
type ChatUpdate struct {
	Chat *domain.Chat
	Err  error
}

// Repository coordinates the local store and the remote chat service.
type Repository struct {
	db     *store.DB
	source remote.ChatSource
	locks  *lock.Keyed
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a repository. locks must be the same instance the sync engine
// uses so local writes and delta application on a chat are serialized.
func New(db *store.DB, source remote.ChatSource, locks *lock.Keyed, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		db:     db,
		source: source,
		locks:  locks,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// CreateChat creates the chat remotely and mirrors the server's copy.
func (r *Repository) CreateChat(ctx context.Context, chat *domain.Chat) (*domain.Chat, error) {
	c := *chat
	if c.ID == "" {
		c.ID = r.newID()
	}
	if c.LastActivityAt.IsZero() {
		c.LastActivityAt = r.now()
	}
	created, err := r.source.CreateChat(ctx, &c)
	if err != nil {
		return nil, createChatErrors.mapError(err)
	}
	r.mirrorChat(created)
	return created, nil
}

// DeleteChat deletes the chat remotely, then locally.
func (r *Repository) DeleteChat(ctx context.Context, chatID string) error {
	if err := r.source.DeleteChat(ctx, chatID); err != nil {
		return deleteChatErrors.mapError(err)
	}
	r.forgetChat(chatID)
	return nil
}

// JoinChat joins a chat, optionally through an invite link, and mirrors it.
func (r *Repository) JoinChat(ctx context.Context, chatID, inviteLink string) (*domain.Chat, error) {
	chat, err := r.source.JoinChat(ctx, chatID, inviteLink)
	if err != nil {
		return nil, joinChatErrors.mapError(err)
	}
	r.mirrorChat(chat)
	return chat, nil
}

// LeaveChat leaves a chat remotely and drops the local copy.
func (r *Repository) LeaveChat(ctx context.Context, chatID string) error {
	if err := r.source.LeaveChat(ctx, chatID); err != nil {
		return leaveChatErrors.mapError(err)
	}
	r.forgetChat(chatID)
	return nil
}

// MarkMessagesAsRead marks messages up to upToMessageID as read. The unread
// count comes back through the delta stream.
func (r *Repository) MarkMessagesAsRead(ctx context.Context, chatID, upToMessageID string) error {
	return markReadErrors.mapError(r.source.MarkMessagesAsRead(ctx, chatID, upToMessageID))
}

// SendMessage stores msg immediately with a Sending status, then follows the
// remote confirmation stream. Every confirmed state overwrites the local row
// and is forwarded. If the stream fails the local row is marked Failed and
// the mapped error is the last value. Store errors on the optimistic insert
// are returned as the only value.
func (r *Repository) SendMessage(ctx context.Context, msg *domain.Message) <-chan MessageResult {
	out := make(chan MessageResult, 1)

	m := *msg
	if m.ID == "" {
		m.ID = r.newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}
	if m.DeliveryStatus == nil {
		m.DeliveryStatus = domain.Sending(0)
	}

	unlock := r.locks.Lock(m.ChatID)
	err := r.db.InsertMessage(&m)
	unlock()
	if err != nil {
		out <- MessageResult{Err: fmt.Errorf("store message: %w", err)}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		for res := range r.source.SendMessage(ctx, &m) {
			if res.Err != nil {
				r.markFailed(&m, res.Err)
				send(ctx, out, MessageResult{Err: sendMessageErrors.mapError(res.Err)})
				return
			}
			confirmed := r.reconcile(res.Message)
			if !send(ctx, out, MessageResult{Message: confirmed}) {
				return
			}
		}
	}()
	return out
}

// EditMessage follows the remote edit stream and overwrites the local copy
// with each confirmed state. It never inserts.
func (r *Repository) EditMessage(ctx context.Context, msg *domain.Message) <-chan MessageResult {
	out := make(chan MessageResult)

	go func() {
		defer close(out)
		for res := range r.source.EditMessage(ctx, msg) {
			if res.Err != nil {
				send(ctx, out, MessageResult{Err: editMessageErrors.mapError(res.Err)})
				return
			}
			confirmed := r.reconcile(res.Message)
			if !send(ctx, out, MessageResult{Message: confirmed}) {
				return
			}
		}
	}()
	return out
}

// DeleteMessage deletes a message remotely, then locally.
func (r *Repository) DeleteMessage(ctx context.Context, messageID string, mode domain.DeleteMode) error {
	if err := r.source.DeleteMessage(ctx, messageID, mode); err != nil {
		return deleteMessageErrors.mapError(err)
	}

	local, err := r.db.GetMessage(messageID)
	if err != nil {
		r.logger.Warn("failed to load deleted message", zap.String("msg_id", messageID), zap.Error(err))
		return nil
	}
	if local == nil {
		return nil
	}
	unlock := r.locks.Lock(local.ChatID)
	defer unlock()
	if err := r.db.DeleteMessage(messageID); err != nil && !errors.Is(err, store.ErrMessageNotFound) {
		r.logger.Warn("failed to delete local message", zap.String("msg_id", messageID), zap.Error(err))
	}
	return nil
}

// ChatList streams the local chat list, re-emitted after every change.
func (r *Repository) ChatList(ctx context.Context) <-chan store.ChatListSnapshot {
	return r.db.WatchChatList(ctx)
}

// ChatUpdates streams one chat from the local store.
func (r *Repository) ChatUpdates(ctx context.Context, chatID string) <-chan ChatUpdate {
	out := make(chan ChatUpdate)
	go func() {
		defer close(out)
		for snap := range r.db.WatchChat(ctx, chatID) {
			u := ChatUpdate{Chat: snap.Chat, Err: snap.Err}
			if u.Chat == nil && u.Err == nil {
				u.Err = ErrChatNotFound
			}
			if !send(ctx, out, u) {
				return
			}
		}
	}()
	return out
}

// Messages returns a page of a chat's messages older than beforeID.
func (r *Repository) Messages(chatID, beforeID string, limit int) ([]domain.Message, error) {
	msgs, err := r.db.ListMessages(chatID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// reconcile writes a confirmed message state under the chat lock. A state
// that ranks below the stored one (e.g. a late Sending after a delta already
// brought Delivered) keeps the stored delivery fields. It returns the state
// now in effect.
func (r *Repository) reconcile(confirmed *domain.Message) *domain.Message {
	unlock := r.locks.Lock(confirmed.ChatID)
	defer unlock()

	m := *confirmed
	current, err := r.db.GetMessage(m.ID)
	if err != nil {
		r.logger.Warn("failed to load message", zap.String("msg_id", m.ID), zap.Error(err))
	}
	if current != nil && current.DeliveryStatus.Rank() > m.DeliveryStatus.Rank() {
		m.DeliveryStatus = current.DeliveryStatus
		m.SentAt = current.SentAt
		m.DeliveredAt = current.DeliveredAt
	}
	if err := r.db.UpdateMessage(&m); err != nil {
		r.logger.Warn("failed to store confirmed message",
			zap.String("chat_id", m.ChatID), zap.String("msg_id", m.ID), zap.Error(err))
	}
	return &m
}

func (r *Repository) markFailed(m *domain.Message, cause error) {
	unlock := r.locks.Lock(m.ChatID)
	defer unlock()

	current, err := r.db.GetMessage(m.ID)
	if err != nil || current == nil {
		return
	}
	if current.DeliveryStatus.Rank() > domain.Sending(0).Rank() {
		return
	}
	current.DeliveryStatus = domain.Failed(cause.Error())
	if err := r.db.UpdateMessage(current); err != nil {
		r.logger.Warn("failed to mark message failed", zap.String("msg_id", m.ID), zap.Error(err))
	}
}

// mirrorChat stores a chat the server confirmed. Failures are logged; the
// delta stream brings the chat again.
func (r *Repository) mirrorChat(chat *domain.Chat) {
	if chat == nil {
		return
	}
	unlock := r.locks.Lock(chat.ID)
	defer unlock()
	if err := r.db.UpsertChat(chat); err != nil {
		r.logger.Warn("failed to mirror chat", zap.String("chat_id", chat.ID), zap.Error(err))
	}
}

func (r *Repository) forgetChat(chatID string) {
	unlock := r.locks.Lock(chatID)
	defer unlock()
	if err := r.db.DeleteChat(chatID); err != nil && !errors.Is(err, store.ErrChatNotFound) {
		r.logger.Warn("failed to delete local chat", zap.String("chat_id", chatID), zap.Error(err))
	}
}

func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
