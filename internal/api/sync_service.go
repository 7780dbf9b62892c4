package api

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// defaultWatchPrefixes are streamed when a watcher names none.
var defaultWatchPrefixes = []string{"sync.", "session."}

// SyncService exposes the sync loop's progress.
type SyncService struct {
	engine      *intsync.Engine
	bus         *bus.Bus
	machine     *status.Machine
	sessionName string
	logger      *zap.Logger
}

// NewSyncService creates a new sync service.
func NewSyncService(engine *intsync.Engine, b *bus.Bus, machine *status.Machine, sessionName string, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		engine:      engine,
		bus:         b,
		machine:     machine,
		sessionName: sessionName,
		logger:      logger,
	}
}

func (s *SyncService) GetSyncStatus(_ context.Context, _ *GetSyncStatusRequest) (*GetSyncStatusResponse, error) {
	resp := &GetSyncStatusResponse{
		State:    string(s.machine.Current()),
		Updating: s.engine.IsUpdating(),
	}
	md, err := s.engine.Reconciler().Status(store.ChatListSyncKey)
	if err != nil {
		return nil, toStatus(err)
	}
	if md != nil {
		resp.Watermark = md.LastSyncAt
		resp.Status = md.Status
		resp.LastError = md.LastError
	}
	return resp, nil
}

func (s *SyncService) WatchEvents(req *WatchEventsRequest, stream grpc.ServerStreamingServer[Event]) error {
	prefixes := req.Prefixes
	if len(prefixes) == 0 {
		prefixes = defaultWatchPrefixes
	}
	// Subscribe to everything and filter here so one channel preserves order.
	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if !hasAnyPrefix(evt.Kind, prefixes) {
				continue
			}
			payload, err := json.Marshal(evt.Payload)
			if err != nil {
				s.logger.Warn("unencodable event payload", zap.String("kind", evt.Kind), zap.Error(err))
				payload = nil
			}
			if err := stream.Send(&Event{
				ID:         uuid.New().String(),
				Session:    s.sessionName,
				Kind:       evt.Kind,
				OccurredAt: evt.Timestamp,
				Payload:    payload,
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func hasAnyPrefix(kind string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(kind, p) {
			return true
		}
	}
	return false
}
