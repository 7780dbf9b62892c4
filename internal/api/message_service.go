package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/repository"
	"github.com/matheus3301/chatsync/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const defaultPageSize = 50

// MessageService serves message pages and streams send/edit progress.
type MessageService struct {
	repo   *repository.Repository
	db     *store.DB
	userID string
}

// NewMessageService creates a new message service. userID is the sender of
// messages sent without one.
func NewMessageService(repo *repository.Repository, db *store.DB, userID string) *MessageService {
	return &MessageService{repo: repo, db: db, userID: userID}
}

func (s *MessageService) ListMessages(_ context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	limit := defaultPageSize
	if req.Limit > 0 {
		limit = req.Limit
	}
	msgs, err := s.repo.Messages(req.ChatID, req.BeforeID, limit)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListMessagesResponse{
		Messages: make([]Message, 0, len(msgs)),
		HasMore:  len(msgs) == limit,
	}
	for i := range msgs {
		resp.Messages = append(resp.Messages, messageToWire(&msgs[i]))
	}
	return resp, nil
}

func (s *MessageService) SendMessage(req *SendMessageRequest, stream grpc.ServerStreamingServer[Message]) error {
	if req.ChatID == "" || req.Text == "" {
		return grpcstatus.Error(codes.InvalidArgument, "chat_id and text are required")
	}
	sender := req.SenderID
	if sender == "" {
		sender = s.userID
	}
	msg := &domain.Message{
		ChatID:   req.ChatID,
		ParentID: req.ParentID,
		Sender:   domain.Participant{ID: sender},
		Text:     req.Text,
	}
	return forwardResults(stream, s.repo.SendMessage(stream.Context(), msg))
}

func (s *MessageService) EditMessage(req *EditMessageRequest, stream grpc.ServerStreamingServer[Message]) error {
	m, err := s.db.GetMessage(req.MessageID)
	if err != nil {
		return toStatus(err)
	}
	if m == nil {
		return grpcstatus.Errorf(codes.NotFound, "message %q not found", req.MessageID)
	}
	m.Text = req.Text
	return forwardResults(stream, s.repo.EditMessage(stream.Context(), m))
}

func (s *MessageService) DeleteMessage(ctx context.Context, req *DeleteMessageRequest) (*Empty, error) {
	mode := domain.DeleteMode(req.Mode)
	switch mode {
	case "":
		mode = domain.DeleteForSenderOnly
	case domain.DeleteForSenderOnly, domain.DeleteForEveryone:
	default:
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown delete mode %q", req.Mode)
	}
	if err := s.repo.DeleteMessage(ctx, req.MessageID, mode); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

// forwardResults streams message states until the repository closes results.
// An error result ends the call with its status.
func forwardResults(stream grpc.ServerStreamingServer[Message], results <-chan repository.MessageResult) error {
	for res := range results {
		if res.Err != nil {
			return toStatus(res.Err)
		}
		m := messageToWire(res.Message)
		if err := stream.Send(&m); err != nil {
			return err
		}
	}
	return nil
}
