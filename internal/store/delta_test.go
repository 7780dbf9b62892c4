package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/domain"
)

func created(id string, at int64, msgs ...domain.Message) *domain.ChatCreated {
	c := testChat(id)
	return &domain.ChatCreated{ID: id, Metadata: c.Metadata(), InitialMessages: msgs, At: time.UnixMilli(at)}
}

func TestApplyCreatedIsIdempotent(t *testing.T) {
	db := testDB(t)

	d := created("c1", 100, *testMessage("m1", "c1", 50))
	for i := 0; i < 2; i++ {
		if err := db.ApplyChatDelta(d); err != nil {
			t.Fatalf("apply #%d: %v", i+1, err)
		}
	}

	var chats, msgs, refs int
	_ = db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&chats)
	_ = db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&msgs)
	_ = db.QueryRow(`SELECT COUNT(*) FROM chat_participants`).Scan(&refs)
	if chats != 1 || msgs != 1 || refs != 2 {
		t.Errorf("rows = %d chats, %d messages, %d refs; want 1, 1, 2", chats, msgs, refs)
	}
}

func TestApplyBatchSortsByTimestamp(t *testing.T) {
	db := testDB(t)

	meta := testChat("c1").Metadata()
	final := meta
	final.Name = "final"

	t1 := created("c1", 1000, *testMessage("m1", "c1", 900))
	t2 := &domain.ChatUpdated{
		ID: "c1", Metadata: meta, At: time.UnixMilli(2000),
		MessagesToAdd:      []domain.Message{*testMessage("m2", "c1", 1900)},
		MessageIDsToDelete: []string{"m1"},
	}
	t3 := &domain.ChatUpdated{ID: "c1", Metadata: final, At: time.UnixMilli(3000)}

	batch := &domain.ChatListDelta{
		Changes:     []domain.ChatDelta{t3, t1, t2},
		ToTimestamp: time.UnixMilli(3000),
	}
	if err := db.ApplyChatListDelta(batch); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "final" {
		t.Errorf("name = %q, want final", got.Name)
	}
	if len(got.Messages) != 1 || got.Messages[0].ID != "m2" {
		t.Errorf("messages = %v, want [m2]", ids(got.Messages))
	}

	ts, err := db.LastSyncTimestamp()
	if err != nil {
		t.Fatal(err)
	}
	if ts == nil || !ts.Equal(time.UnixMilli(3000)) {
		t.Errorf("watermark = %v, want 3000ms", ts)
	}
}

func TestApplyBatchRollsBackOnConstraintViolation(t *testing.T) {
	db := testDB(t)
	if err := db.UpdateLastSyncTimestamp(time.UnixMilli(500)); err != nil {
		t.Fatal(err)
	}

	bad := testChat("c2").Metadata()
	bad.UnreadMessagesCount = -1
	batch := &domain.ChatListDelta{
		Changes: []domain.ChatDelta{
			created("c1", 1000),
			&domain.ChatUpdated{ID: "c2", Metadata: bad, At: time.UnixMilli(1100)},
		},
		ToTimestamp: time.UnixMilli(1100),
	}

	err := db.ApplyChatListDelta(batch)
	var invalid *InvalidDataError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidDataError", err)
	}

	if c, _ := db.GetChat("c1"); c != nil {
		t.Error("c1 should have been rolled back")
	}
	ts, _ := db.LastSyncTimestamp()
	if ts == nil || !ts.Equal(time.UnixMilli(500)) {
		t.Errorf("watermark = %v, want unchanged 500ms", ts)
	}
}

func TestApplyUpdatedAndDeletedEdgeCases(t *testing.T) {
	db := testDB(t)

	// Updated for a chat we never saw inserts it.
	upd := &domain.ChatUpdated{
		ID: "c1", Metadata: testChat("c1").Metadata(), At: time.UnixMilli(100),
		MessagesToAdd: []domain.Message{*testMessage("m1", "c1", 10), *testMessage("m1", "c1", 20)},
	}
	if err := db.ApplyChatDelta(upd); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetChat("c1")
	if got == nil {
		t.Fatal("updated delta should insert a missing chat")
	}
	if len(got.Messages) != 1 || !got.Messages[0].CreatedAt.Equal(time.UnixMilli(20)) {
		t.Errorf("messages = %+v, want one m1 overwritten by the later copy", got.Messages)
	}

	// Deleting a missing chat is a no-op.
	if err := db.ApplyChatDelta(&domain.ChatDeleted{ID: "ghost", At: time.UnixMilli(200)}); err != nil {
		t.Errorf("delete missing chat: %v", err)
	}
	if err := db.ApplyChatDelta(&domain.ChatDeleted{ID: "c1", At: time.UnixMilli(300)}); err != nil {
		t.Fatal(err)
	}
	if got, _ := db.GetChat("c1"); got != nil {
		t.Error("c1 should be deleted")
	}
}

func TestWatermarkOnlyMovesForward(t *testing.T) {
	db := testDB(t)

	ts, err := db.LastSyncTimestamp()
	if err != nil {
		t.Fatal(err)
	}
	if ts != nil {
		t.Fatalf("fresh watermark = %v, want nil", ts)
	}

	for _, ms := range []int64{2000, 1000, 3000, 2500} {
		if err := db.UpdateLastSyncTimestamp(time.UnixMilli(ms)); err != nil {
			t.Fatal(err)
		}
	}
	ts, _ = db.LastSyncTimestamp()
	if ts == nil || !ts.Equal(time.UnixMilli(3000)) {
		t.Errorf("watermark = %v, want 3000ms", ts)
	}

	// An older batch still applies but cannot move the watermark back.
	if err := db.ApplyChatListDelta(&domain.ChatListDelta{ToTimestamp: time.UnixMilli(10)}); err != nil {
		t.Fatal(err)
	}
	ts, _ = db.LastSyncTimestamp()
	if !ts.Equal(time.UnixMilli(3000)) {
		t.Errorf("watermark = %v after older batch, want 3000ms", ts)
	}
}

func TestMarkSyncFailedKeepsWatermark(t *testing.T) {
	db := testDB(t)
	if err := db.UpdateLastSyncTimestamp(time.UnixMilli(1000)); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkSyncFailed(ChatListSyncKey, "disk on fire"); err != nil {
		t.Fatal(err)
	}

	md, err := db.SyncMetadata(ChatListSyncKey)
	if err != nil {
		t.Fatal(err)
	}
	if md.Status != SyncStatusFailed || md.LastError != "disk on fire" {
		t.Errorf("metadata = %+v, want failed with error text", md)
	}
	if md.LastSyncAt == nil || !md.LastSyncAt.Equal(time.UnixMilli(1000)) {
		t.Errorf("watermark = %v, want 1000ms", md.LastSyncAt)
	}

	// The next successful batch clears the failure.
	if err := db.ApplyChatListDelta(&domain.ChatListDelta{ToTimestamp: time.UnixMilli(2000)}); err != nil {
		t.Fatal(err)
	}
	md, _ = db.SyncMetadata(ChatListSyncKey)
	if md.Status != SyncStatusSynced || md.LastError != "" {
		t.Errorf("metadata = %+v, want synced without error", md)
	}
}

func TestGetChatSeesWholeBatches(t *testing.T) {
	db := testDB(t)

	meta := testChat("c1").Metadata()
	meta.Name = "v0"
	if err := db.ApplyChatDelta(&domain.ChatCreated{
		ID: "c1", Metadata: meta, At: time.UnixMilli(1000),
		InitialMessages: []domain.Message{*testMessage("m0", "c1", 1000)},
	}); err != nil {
		t.Fatal(err)
	}

	const batches = 200
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for i := 1; i <= batches; i++ {
			next := meta
			next.Name = fmt.Sprintf("v%d", i)
			at := time.UnixMilli(int64(1000 + i))
			batch := &domain.ChatListDelta{
				Changes: []domain.ChatDelta{&domain.ChatUpdated{
					ID: "c1", Metadata: next, At: at,
					MessagesToAdd:      []domain.Message{*testMessage(fmt.Sprintf("m%d", i), "c1", int64(1000+i))},
					MessageIDsToDelete: []string{fmt.Sprintf("m%d", i-1)},
				}},
				ToTimestamp: at,
			}
			if err := db.ApplyChatListDelta(batch); err != nil {
				errc <- err
				return
			}
		}
	}()

	for {
		select {
		case err, ok := <-errc:
			if ok {
				t.Fatalf("apply: %v", err)
			}
			return
		default:
		}
		got, err := db.GetChat("c1")
		if err != nil {
			t.Fatalf("get chat: %v", err)
		}
		var n int
		if _, err := fmt.Sscanf(got.Name, "v%d", &n); err != nil {
			t.Fatalf("name = %q", got.Name)
		}
		if want := fmt.Sprintf("m%d", n); len(got.Messages) != 1 || got.Messages[0].ID != want {
			t.Fatalf("name = %s but messages = %v, want [%s]", got.Name, ids(got.Messages), want)
		}
	}
}
