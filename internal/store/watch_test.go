package store

import (
	"context"
	"testing"
	"time"
)

func TestWatchChatListEmitsOnChange(t *testing.T) {
	db := testDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := db.WatchChatList(ctx)
	first := recvList(t, ch)
	if len(first.Chats) != 0 {
		t.Fatalf("initial snapshot has %d chats, want 0", len(first.Chats))
	}

	if err := db.UpsertChat(testChat("c1")); err != nil {
		t.Fatal(err)
	}
	next := recvList(t, ch)
	if len(next.Chats) != 1 {
		t.Errorf("snapshot has %d chats, want 1", len(next.Chats))
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// Drain a snapshot that raced with cancel.
			if _, ok := <-ch; ok {
				t.Error("channel should close after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestWatchChatFiltersOtherChats(t *testing.T) {
	db := testDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := db.WatchChat(ctx, "c1")
	if snap := recvChat(t, ch); snap.Chat != nil {
		t.Fatal("c1 should not exist yet")
	}

	if err := db.UpsertChat(testChat("other")); err != nil {
		t.Fatal(err)
	}
	select {
	case snap := <-ch:
		t.Errorf("unexpected snapshot for unrelated change: %+v", snap)
	case <-time.After(100 * time.Millisecond):
	}

	if err := db.UpsertChat(testChat("c1")); err != nil {
		t.Fatal(err)
	}
	if snap := recvChat(t, ch); snap.Chat == nil || snap.Chat.ID != "c1" {
		t.Errorf("snapshot = %+v, want c1", snap)
	}
}

func recvList(t *testing.T, ch <-chan ChatListSnapshot) ChatListSnapshot {
	t.Helper()
	select {
	case snap := <-ch:
		if snap.Err != nil {
			t.Fatal(snap.Err)
		}
		return snap
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for chat list snapshot")
	}
	return ChatListSnapshot{}
}

func recvChat(t *testing.T, ch <-chan ChatSnapshot) ChatSnapshot {
	t.Helper()
	select {
	case snap := <-ch:
		if snap.Err != nil {
			t.Fatal(snap.Err)
		}
		return snap
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for chat snapshot")
	}
	return ChatSnapshot{}
}
