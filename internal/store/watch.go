package store

import (
	"context"

	"github.com/matheus3301/chatsync/internal/bus"
)

// WatchChatList emits the chat list now and again after every committed
// change. The channel is closed when ctx is done.
func (db *DB) WatchChatList(ctx context.Context) <-chan ChatListSnapshot {
	out := make(chan ChatListSnapshot, 1)
	events, unsub := db.changes.Subscribe("store.", 16)

	go func() {
		defer close(out)
		defer unsub()
		for {
			chats, err := db.ListChats()
			select {
			case out <- ChatListSnapshot{Chats: chats, Err: err}:
			case <-ctx.Done():
				return
			}
			select {
			case <-events:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// WatchChat emits the chat now and again after each committed change to it.
// A nil Chat means the chat does not exist (yet, or any more).
func (db *DB) WatchChat(ctx context.Context, id string) <-chan ChatSnapshot {
	out := make(chan ChatSnapshot, 1)
	events, unsub := db.changes.Subscribe("store.", 16)

	go func() {
		defer close(out)
		defer unsub()
		for {
			chat, err := db.GetChat(id)
			select {
			case out <- ChatSnapshot{Chat: chat, Err: err}:
			case <-ctx.Done():
				return
			}
			if !waitForChat(ctx, events, id) {
				return
			}
		}
	}()
	return out
}

func waitForChat(ctx context.Context, events <-chan bus.Event, id string) bool {
	for {
		select {
		case evt := <-events:
			if evt.Kind == EventChatsCleared {
				return true
			}
			if changed, _ := evt.Payload.(string); changed == id {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}
