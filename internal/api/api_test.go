package api

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/remote/remotetest"
	"github.com/matheus3301/chatsync/internal/repository"
	"github.com/matheus3301/chatsync/internal/settings"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

var alice = domain.Participant{ID: "u1", Name: "Alice", JoinedAt: time.UnixMilli(1)}

type harness struct {
	client  *Client
	db      *store.DB
	bus     *bus.Bus
	machine *status.Machine
	src     *remotetest.Source
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	// Short path to stay under the Unix socket length limit.
	tmpDir, err := os.MkdirTemp("/tmp", "chatsync-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	db, err := store.Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	src := &remotetest.Source{}
	b := bus.New()
	machine := status.NewMachine(b)
	locks := lock.NewKeyed()
	repo := repository.New(db, src, locks, zap.NewNop())
	engine := intsync.NewEngine(db, src, locks, b, machine, zap.NewNop(), intsync.Config{})

	srv := grpc.NewServer()
	RegisterSessionServer(srv, NewSessionService("test", "u1", machine, db))
	RegisterSyncServer(srv, NewSyncService(engine, b, machine, "test", zap.NewNop()))
	RegisterChatServer(srv, NewChatService(repo, db))
	RegisterMessageServer(srv, NewMessageService(repo, db, "u1"))
	RegisterSettingsServer(srv, NewSettingsService(settings.NewService(db, src, b, zap.NewNop()), "u1"))

	socketPath := filepath.Join(tmpDir, "d.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(srv.Stop)

	c, err := Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return &harness{client: c, db: db, bus: b, machine: machine, src: src}
}

func (h *harness) seedChat(t *testing.T) {
	t.Helper()
	if err := h.db.UpsertChat(&domain.Chat{
		ID: "c1", Name: "Team", Participants: []domain.Participant{alice}, LastActivityAt: time.UnixMilli(10),
		Messages: []domain.Message{{ID: "m1", ChatID: "c1", Sender: alice, Text: "hello", CreatedAt: time.UnixMilli(5)}},
	}); err != nil {
		t.Fatal(err)
	}
}

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := grpcstatus.Code(err); got != code {
		t.Fatalf("code = %v (%v), want %v", got, err, code)
	}
}

func TestStatusAndSyncStatus(t *testing.T) {
	h := newHarness(t)
	ctx := ctxTimeout(t)
	h.seedChat(t)

	resp, err := h.client.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus error = %v", err)
	}
	if resp.Session != "test" || resp.UserID != "u1" {
		t.Errorf("session = %q user = %q", resp.Session, resp.UserID)
	}
	if resp.Status != string(status.Booting) {
		t.Errorf("status = %q, want BOOTING", resp.Status)
	}
	if resp.ChatCount != 1 {
		t.Errorf("chat count = %d, want 1", resp.ChatCount)
	}

	syncResp, err := h.client.GetSyncStatus(ctx)
	if err != nil {
		t.Fatalf("GetSyncStatus error = %v", err)
	}
	if syncResp.Watermark != nil || syncResp.Updating {
		t.Errorf("fresh store sync status = %+v", syncResp)
	}

	if err := h.db.UpdateLastSyncTimestamp(time.UnixMilli(1234)); err != nil {
		t.Fatal(err)
	}
	syncResp, err = h.client.GetSyncStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if syncResp.Watermark == nil || !syncResp.Watermark.Equal(time.UnixMilli(1234)) {
		t.Errorf("watermark = %v, want 1234ms", syncResp.Watermark)
	}
}

func TestChatQueries(t *testing.T) {
	h := newHarness(t)
	ctx := ctxTimeout(t)

	list, err := h.client.ListChats(ctx)
	if err != nil {
		t.Fatalf("ListChats error = %v", err)
	}
	if len(list.Chats) != 0 {
		t.Errorf("expected 0 chats, got %d", len(list.Chats))
	}

	h.seedChat(t)
	list, err = h.client.ListChats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Chats) != 1 || list.Chats[0].LastMessageText != "hello" {
		t.Fatalf("chats = %+v", list.Chats)
	}

	got, err := h.client.GetChat(ctx, "c1")
	if err != nil {
		t.Fatalf("GetChat error = %v", err)
	}
	if got.Chat.Name != "Team" || len(got.Chat.Participants) != 1 {
		t.Errorf("chat = %+v", got.Chat)
	}

	_, err = h.client.GetChat(ctx, "nope")
	wantCode(t, err, codes.NotFound)
}

func TestChatMutations(t *testing.T) {
	h := newHarness(t)
	ctx := ctxTimeout(t)

	created, err := h.client.CreateChat(ctx, &CreateChatRequest{Name: "New", ParticipantIDs: []string{"u1"}})
	if err != nil {
		t.Fatalf("CreateChat error = %v", err)
	}
	if created.Chat.ID == "" {
		t.Fatal("created chat has no id")
	}
	if c, _ := h.db.GetChat(created.Chat.ID); c == nil {
		t.Error("created chat not mirrored locally")
	}

	_, err = h.client.CreateChat(ctx, &CreateChatRequest{})
	wantCode(t, err, codes.InvalidArgument)

	h.src.JoinChatFunc = func(ctx context.Context, chatID, inviteLink string) (*domain.Chat, error) {
		return nil, remote.ErrAlreadyJoined
	}
	_, err = h.client.JoinChat(ctx, "c9", "link")
	wantCode(t, err, codes.AlreadyExists)

	h.src.JoinChatFunc = func(ctx context.Context, chatID, inviteLink string) (*domain.Chat, error) {
		return nil, &remote.CooldownError{Remaining: time.Minute}
	}
	_, err = h.client.JoinChat(ctx, "c9", "link")
	wantCode(t, err, codes.ResourceExhausted)

	if err := h.client.DeleteChat(ctx, created.Chat.ID); err != nil {
		t.Fatalf("DeleteChat error = %v", err)
	}
	if c, _ := h.db.GetChat(created.Chat.ID); c != nil {
		t.Error("deleted chat still stored")
	}

	h.src.MarkMessagesAsReadFunc = func(ctx context.Context, chatID, upToMessageID string) error {
		return remote.ErrServerUnreachable
	}
	wantCode(t, h.client.MarkRead(ctx, "c1", "m1"), codes.Unavailable)
}

func TestSendMessageStreamsStates(t *testing.T) {
	h := newHarness(t)
	ctx := ctxTimeout(t)
	h.seedChat(t)

	stream, err := h.client.SendMessage(ctx, &SendMessageRequest{ChatID: "c1", Text: "hi"})
	if err != nil {
		t.Fatalf("SendMessage error = %v", err)
	}
	var states []string
	for {
		m, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv error = %v", err)
		}
		states = append(states, m.DeliveryStatus)
	}
	if len(states) < 2 || states[len(states)-1] != "delivered" {
		t.Errorf("states = %v, want ending in delivered", states)
	}

	page, err := h.client.ListMessages(ctx, &ListMessagesRequest{ChatID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(page.Messages))
	}
}

func TestSendMessageFailureEndsStream(t *testing.T) {
	h := newHarness(t)
	ctx := ctxTimeout(t)
	h.seedChat(t)
	h.src.SendMessageFunc = func(ctx context.Context, msg *domain.Message) []remote.MessageResult {
		return []remote.MessageResult{{Err: remote.ErrNetworkNotAvailable}}
	}

	stream, err := h.client.SendMessage(ctx, &SendMessageRequest{ChatID: "c1", Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	for {
		_, err = stream.Recv()
		if err != nil {
			break
		}
	}
	wantCode(t, err, codes.Unavailable)
}

func TestEditAndDeleteMessage(t *testing.T) {
	h := newHarness(t)
	ctx := ctxTimeout(t)
	h.seedChat(t)

	stream, err := h.client.EditMessage(ctx, &EditMessageRequest{MessageID: "m1", Text: "edited"})
	if err != nil {
		t.Fatal(err)
	}
	m, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv error = %v", err)
	}
	if m.Text != "edited" || m.EditedAt == nil {
		t.Errorf("edited message = %+v", m)
	}

	missing, err := h.client.EditMessage(ctx, &EditMessageRequest{MessageID: "nope", Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = missing.Recv()
	wantCode(t, err, codes.NotFound)

	wantCode(t, h.client.DeleteMessage(ctx, &DeleteMessageRequest{MessageID: "m1", Mode: "sideways"}), codes.InvalidArgument)
	if err := h.client.DeleteMessage(ctx, &DeleteMessageRequest{MessageID: "m1", Mode: "for_everyone"}); err != nil {
		t.Fatalf("DeleteMessage error = %v", err)
	}
	if got, _ := h.db.GetMessage("m1"); got != nil {
		t.Error("message still stored after delete")
	}
}

func TestSettings(t *testing.T) {
	h := newHarness(t)
	ctx := ctxTimeout(t)
	h.src.GetSettingsFunc = func(ctx context.Context) ([]remote.SettingItem, error) {
		return nil, remote.ErrServerUnreachable
	}

	got, err := h.client.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings error = %v", err)
	}
	if !got.ResetToDefaults || len(got.Settings) != 1 || got.Settings[0].Value != "English" {
		t.Fatalf("settings = %+v", got)
	}

	changed, err := h.client.ChangeLanguage(ctx, "German")
	if err != nil {
		t.Fatalf("ChangeLanguage error = %v", err)
	}
	s := changed.Settings[0]
	if s.Value != "German" || s.LocalVersion != 2 || s.SyncStatus != "PENDING" {
		t.Errorf("setting after change = %+v", s)
	}

	_, err = h.client.ChangeLanguage(ctx, "Klingon")
	wantCode(t, err, codes.InvalidArgument)

	res, err := h.client.SyncSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != "success" {
		t.Errorf("outcome = %q, want success", res.Outcome)
	}
}

func TestWatchEventsFiltersByPrefix(t *testing.T) {
	h := newHarness(t)
	ctx := ctxTimeout(t)

	stream, err := h.client.WatchEvents(ctx, &WatchEventsRequest{Prefixes: []string{"session."}})
	if err != nil {
		t.Fatal(err)
	}

	// The subscription starts inside the handler; keep emitting until it sees one.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.bus.Emit(bus.KindSettingsSynced, nil)
				h.bus.Emit(bus.KindStatusChanged, status.StatusChange{From: status.Booting, To: status.Connecting})
			case <-done:
				return
			}
		}
	}()

	evt, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv error = %v", err)
	}
	if evt.Kind != bus.KindStatusChanged || evt.Session != "test" || evt.ID == "" {
		t.Errorf("event = %+v", evt)
	}
	if string(evt.Payload) != `{"From":"BOOTING","To":"CONNECTING"}` {
		t.Errorf("payload = %s", evt.Payload)
	}
}
