package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
)

// SessionService reports the daemon's state.
type SessionService struct {
	sessionName string
	userID      string
	startedAt   time.Time
	machine     *status.Machine
	db          *store.DB
}

// NewSessionService creates a new session service.
func NewSessionService(sessionName, userID string, machine *status.Machine, db *store.DB) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		userID:      userID,
		startedAt:   time.Now(),
		machine:     machine,
		db:          db,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	resp := &GetStatusResponse{
		Session:  s.sessionName,
		Status:   string(s.machine.Current()),
		UserID:   s.userID,
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	}

	if s.db != nil {
		if chats, err := s.db.ListChats(); err == nil {
			resp.ChatCount = len(chats)
		}
	}
	return resp, nil
}
