// Package remotetest provides an in-memory remote.Source for tests.
package remotetest

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/remote"
)

// Source is a scriptable remote.Source. Each *Func field overrides the
// default behaviour of its method; calls are recorded in order.
type Source struct {
	ChatDeltasFunc         func(ctx context.Context, since *time.Time) <-chan remote.DeltaResult
	CreateChatFunc         func(ctx context.Context, chat *domain.Chat) (*domain.Chat, error)
	DeleteChatFunc         func(ctx context.Context, chatID string) error
	JoinChatFunc           func(ctx context.Context, chatID, inviteLink string) (*domain.Chat, error)
	LeaveChatFunc          func(ctx context.Context, chatID string) error
	MarkMessagesAsReadFunc func(ctx context.Context, chatID, upToMessageID string) error
	SendMessageFunc        func(ctx context.Context, msg *domain.Message) []remote.MessageResult
	EditMessageFunc        func(ctx context.Context, msg *domain.Message) []remote.MessageResult
	DeleteMessageFunc      func(ctx context.Context, messageID string, mode domain.DeleteMode) error
	GetSettingsFunc        func(ctx context.Context) ([]remote.SettingItem, error)
	SyncSettingFunc        func(ctx context.Context, req remote.SettingSyncRequest) (*remote.SettingSyncResult, error)

	mu     sync.Mutex
	calls  []string
	sinces []*time.Time
}

var _ remote.Source = (*Source)(nil)

func (s *Source) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

// Calls returns the names of the methods called so far.
func (s *Source) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Sinces returns the watermark passed to each ChatDeltas call.
func (s *Source) Sinces() []*time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*time.Time(nil), s.sinces...)
}

// ChatDeltas delegates to ChatDeltasFunc. The default stream stays silent
// until ctx is done.
func (s *Source) ChatDeltas(ctx context.Context, since *time.Time) <-chan remote.DeltaResult {
	s.mu.Lock()
	s.calls = append(s.calls, "ChatDeltas")
	s.sinces = append(s.sinces, since)
	s.mu.Unlock()

	if s.ChatDeltasFunc != nil {
		return s.ChatDeltasFunc(ctx, since)
	}
	out := make(chan remote.DeltaResult)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out
}

// Stream returns a channel that emits results in order and then stays open
// until ctx is done.
func Stream(ctx context.Context, results ...remote.DeltaResult) <-chan remote.DeltaResult {
	out := make(chan remote.DeltaResult)
	go func() {
		defer close(out)
		for _, r := range results {
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return out
}

// CreateChat echoes the chat by default.
func (s *Source) CreateChat(ctx context.Context, chat *domain.Chat) (*domain.Chat, error) {
	s.record("CreateChat")
	if s.CreateChatFunc != nil {
		return s.CreateChatFunc(ctx, chat)
	}
	c := *chat
	return &c, nil
}

func (s *Source) DeleteChat(ctx context.Context, chatID string) error {
	s.record("DeleteChat")
	if s.DeleteChatFunc != nil {
		return s.DeleteChatFunc(ctx, chatID)
	}
	return nil
}

// JoinChat returns a bare chat with the given id by default.
func (s *Source) JoinChat(ctx context.Context, chatID, inviteLink string) (*domain.Chat, error) {
	s.record("JoinChat")
	if s.JoinChatFunc != nil {
		return s.JoinChatFunc(ctx, chatID, inviteLink)
	}
	return &domain.Chat{ID: chatID, Name: chatID}, nil
}

func (s *Source) LeaveChat(ctx context.Context, chatID string) error {
	s.record("LeaveChat")
	if s.LeaveChatFunc != nil {
		return s.LeaveChatFunc(ctx, chatID)
	}
	return nil
}

func (s *Source) MarkMessagesAsRead(ctx context.Context, chatID, upToMessageID string) error {
	s.record("MarkMessagesAsRead")
	if s.MarkMessagesAsReadFunc != nil {
		return s.MarkMessagesAsReadFunc(ctx, chatID, upToMessageID)
	}
	return nil
}

// SendMessage emits the message as Sent and then Delivered by default.
func (s *Source) SendMessage(ctx context.Context, msg *domain.Message) <-chan remote.MessageResult {
	s.record("SendMessage")
	var results []remote.MessageResult
	if s.SendMessageFunc != nil {
		results = s.SendMessageFunc(ctx, msg)
	} else {
		now := time.Now()
		sent := *msg
		sent.SentAt = &now
		sent.DeliveryStatus = domain.Sent()
		delivered := sent
		delivered.DeliveredAt = &now
		delivered.DeliveryStatus = domain.Delivered()
		results = []remote.MessageResult{{Message: &sent}, {Message: &delivered}}
	}
	return emit(ctx, results)
}

// EditMessage echoes the message with EditedAt set by default.
func (s *Source) EditMessage(ctx context.Context, msg *domain.Message) <-chan remote.MessageResult {
	s.record("EditMessage")
	var results []remote.MessageResult
	if s.EditMessageFunc != nil {
		results = s.EditMessageFunc(ctx, msg)
	} else {
		now := time.Now()
		edited := *msg
		edited.EditedAt = &now
		results = []remote.MessageResult{{Message: &edited}}
	}
	return emit(ctx, results)
}

func emit(ctx context.Context, results []remote.MessageResult) <-chan remote.MessageResult {
	out := make(chan remote.MessageResult)
	go func() {
		defer close(out)
		for _, r := range results {
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (s *Source) DeleteMessage(ctx context.Context, messageID string, mode domain.DeleteMode) error {
	s.record("DeleteMessage")
	if s.DeleteMessageFunc != nil {
		return s.DeleteMessageFunc(ctx, messageID, mode)
	}
	return nil
}

func (s *Source) GetSettings(ctx context.Context) ([]remote.SettingItem, error) {
	s.record("GetSettings")
	if s.GetSettingsFunc != nil {
		return s.GetSettingsFunc(ctx)
	}
	return nil, nil
}

// SyncSetting acknowledges with the next server version by default.
func (s *Source) SyncSetting(ctx context.Context, req remote.SettingSyncRequest) (*remote.SettingSyncResult, error) {
	s.record("SyncSetting")
	if s.SyncSettingFunc != nil {
		return s.SyncSettingFunc(ctx, req)
	}
	return &remote.SettingSyncResult{Key: req.Key, Status: remote.SyncSuccess, NewVersion: req.LastKnownServerVersion + 1}, nil
}

// SyncSettingsBatch answers each request through SyncSetting.
func (s *Source) SyncSettingsBatch(ctx context.Context, reqs []remote.SettingSyncRequest) ([]remote.SettingSyncResult, error) {
	out := make([]remote.SettingSyncResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := s.SyncSetting(ctx, req)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, nil
}
