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

// ChatService serves the local chat list and forwards chat mutations to the
// repository.
type ChatService struct {
	repo *repository.Repository
	db   *store.DB
}

// NewChatService creates a new chat service.
func NewChatService(repo *repository.Repository, db *store.DB) *ChatService {
	return &ChatService{repo: repo, db: db}
}

func (s *ChatService) ListChats(_ context.Context, _ *ListChatsRequest) (*ListChatsResponse, error) {
	chats, err := s.db.ListChats()
	if err != nil {
		return nil, toStatus(err)
	}
	return previewsToWire(chats), nil
}

func (s *ChatService) GetChat(_ context.Context, req *GetChatRequest) (*GetChatResponse, error) {
	c, err := s.db.GetChat(req.ChatID)
	if err != nil {
		return nil, toStatus(err)
	}
	if c == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "chat %q not found", req.ChatID)
	}
	return &GetChatResponse{Chat: chatToWire(c)}, nil
}

func (s *ChatService) CreateChat(ctx context.Context, req *CreateChatRequest) (*CreateChatResponse, error) {
	if req.Name == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat name is required")
	}
	chat := &domain.Chat{Name: req.Name, IsOneToOne: req.OneToOne}
	for _, id := range req.ParticipantIDs {
		chat.Participants = append(chat.Participants, domain.Participant{ID: id})
	}
	created, err := s.repo.CreateChat(ctx, chat)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CreateChatResponse{Chat: chatToWire(created)}, nil
}

func (s *ChatService) DeleteChat(ctx context.Context, req *DeleteChatRequest) (*Empty, error) {
	if err := s.repo.DeleteChat(ctx, req.ChatID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ChatService) JoinChat(ctx context.Context, req *JoinChatRequest) (*JoinChatResponse, error) {
	chat, err := s.repo.JoinChat(ctx, req.ChatID, req.InviteLink)
	if err != nil {
		return nil, toStatus(err)
	}
	return &JoinChatResponse{Chat: chatToWire(chat)}, nil
}

func (s *ChatService) LeaveChat(ctx context.Context, req *LeaveChatRequest) (*Empty, error) {
	if err := s.repo.LeaveChat(ctx, req.ChatID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ChatService) MarkRead(ctx context.Context, req *MarkReadRequest) (*Empty, error) {
	if err := s.repo.MarkMessagesAsRead(ctx, req.ChatID, req.UpToMessageID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ChatService) WatchChatList(_ *ListChatsRequest, stream grpc.ServerStreamingServer[ListChatsResponse]) error {
	for snap := range s.repo.ChatList(stream.Context()) {
		if snap.Err != nil {
			return toStatus(snap.Err)
		}
		if err := stream.Send(previewsToWire(snap.Chats)); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChatService) WatchChat(req *GetChatRequest, stream grpc.ServerStreamingServer[GetChatResponse]) error {
	for u := range s.repo.ChatUpdates(stream.Context(), req.ChatID) {
		if u.Err != nil {
			return toStatus(u.Err)
		}
		if err := stream.Send(&GetChatResponse{Chat: chatToWire(u.Chat)}); err != nil {
			return err
		}
	}
	return nil
}

func previewsToWire(chats []domain.ChatPreview) *ListChatsResponse {
	resp := &ListChatsResponse{Chats: make([]ChatPreview, 0, len(chats))}
	for i := range chats {
		resp.Chats = append(resp.Chats, previewToWire(&chats[i]))
	}
	return resp
}
