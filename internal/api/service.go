package api

import (
	"context"

	"google.golang.org/grpc"
)

// Fully qualified service names.
const (
	sessionServiceName  = "chatsync.v1.SessionService"
	syncServiceName     = "chatsync.v1.SyncService"
	chatServiceName     = "chatsync.v1.ChatService"
	messageServiceName  = "chatsync.v1.MessageService"
	settingsServiceName = "chatsync.v1.SettingsService"
)

// SessionServer is the server API for the session service.
type SessionServer interface {
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
}

// SyncServer is the server API for the sync service.
type SyncServer interface {
	GetSyncStatus(context.Context, *GetSyncStatusRequest) (*GetSyncStatusResponse, error)
	WatchEvents(*WatchEventsRequest, grpc.ServerStreamingServer[Event]) error
}

// ChatServer is the server API for the chat service.
type ChatServer interface {
	ListChats(context.Context, *ListChatsRequest) (*ListChatsResponse, error)
	GetChat(context.Context, *GetChatRequest) (*GetChatResponse, error)
	CreateChat(context.Context, *CreateChatRequest) (*CreateChatResponse, error)
	DeleteChat(context.Context, *DeleteChatRequest) (*Empty, error)
	JoinChat(context.Context, *JoinChatRequest) (*JoinChatResponse, error)
	LeaveChat(context.Context, *LeaveChatRequest) (*Empty, error)
	MarkRead(context.Context, *MarkReadRequest) (*Empty, error)
	WatchChatList(*ListChatsRequest, grpc.ServerStreamingServer[ListChatsResponse]) error
	WatchChat(*GetChatRequest, grpc.ServerStreamingServer[GetChatResponse]) error
}

// MessageServer is the server API for the message service.
type MessageServer interface {
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	SendMessage(*SendMessageRequest, grpc.ServerStreamingServer[Message]) error
	EditMessage(*EditMessageRequest, grpc.ServerStreamingServer[Message]) error
	DeleteMessage(context.Context, *DeleteMessageRequest) (*Empty, error)
}

// SettingsServer is the server API for the settings service.
type SettingsServer interface {
	GetSettings(context.Context, *GetSettingsRequest) (*GetSettingsResponse, error)
	ChangeLanguage(context.Context, *ChangeLanguageRequest) (*GetSettingsResponse, error)
	SyncSettings(context.Context, *SyncSettingsRequest) (*SyncSettingsResponse, error)
}

// unary builds the method descriptor of a unary RPC from a server method
// expression such as ChatServer.ListChats.
func unary[S, Req, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			})
		},
	}
}

// serverStream builds the descriptor of a server-streaming RPC.
func serverStream[S, Req, Resp any](method string, call func(S, *Req, grpc.ServerStreamingServer[Resp]) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    method,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(S), in, &grpc.GenericServerStream[Req, Resp]{ServerStream: stream})
		},
	}
}

var (
	watchEventsStream   = serverStream("WatchEvents", SyncServer.WatchEvents)
	watchChatListStream = serverStream("WatchChatList", ChatServer.WatchChatList)
	watchChatStream     = serverStream("WatchChat", ChatServer.WatchChat)
	sendMessageStream   = serverStream("SendMessage", MessageServer.SendMessage)
	editMessageStream   = serverStream("EditMessage", MessageServer.EditMessage)
)

var sessionServiceDesc = grpc.ServiceDesc{
	ServiceName: sessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(sessionServiceName, "GetStatus", SessionServer.GetStatus),
	},
	Metadata: "chatsync/v1/session",
}

var syncServiceDesc = grpc.ServiceDesc{
	ServiceName: syncServiceName,
	HandlerType: (*SyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(syncServiceName, "GetSyncStatus", SyncServer.GetSyncStatus),
	},
	Streams:  []grpc.StreamDesc{watchEventsStream},
	Metadata: "chatsync/v1/sync",
}

var chatServiceDesc = grpc.ServiceDesc{
	ServiceName: chatServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(chatServiceName, "ListChats", ChatServer.ListChats),
		unary(chatServiceName, "GetChat", ChatServer.GetChat),
		unary(chatServiceName, "CreateChat", ChatServer.CreateChat),
		unary(chatServiceName, "DeleteChat", ChatServer.DeleteChat),
		unary(chatServiceName, "JoinChat", ChatServer.JoinChat),
		unary(chatServiceName, "LeaveChat", ChatServer.LeaveChat),
		unary(chatServiceName, "MarkRead", ChatServer.MarkRead),
	},
	Streams:  []grpc.StreamDesc{watchChatListStream, watchChatStream},
	Metadata: "chatsync/v1/chat",
}

var messageServiceDesc = grpc.ServiceDesc{
	ServiceName: messageServiceName,
	HandlerType: (*MessageServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(messageServiceName, "ListMessages", MessageServer.ListMessages),
		unary(messageServiceName, "DeleteMessage", MessageServer.DeleteMessage),
	},
	Streams:  []grpc.StreamDesc{sendMessageStream, editMessageStream},
	Metadata: "chatsync/v1/message",
}

var settingsServiceDesc = grpc.ServiceDesc{
	ServiceName: settingsServiceName,
	HandlerType: (*SettingsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(settingsServiceName, "GetSettings", SettingsServer.GetSettings),
		unary(settingsServiceName, "ChangeLanguage", SettingsServer.ChangeLanguage),
		unary(settingsServiceName, "SyncSettings", SettingsServer.SyncSettings),
	},
	Metadata: "chatsync/v1/settings",
}

func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&sessionServiceDesc, srv)
}

func RegisterSyncServer(s grpc.ServiceRegistrar, srv SyncServer) {
	s.RegisterService(&syncServiceDesc, srv)
}

func RegisterChatServer(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&chatServiceDesc, srv)
}

func RegisterMessageServer(s grpc.ServiceRegistrar, srv MessageServer) {
	s.RegisterService(&messageServiceDesc, srv)
}

func RegisterSettingsServer(s grpc.ServiceRegistrar, srv SettingsServer) {
	s.RegisterService(&settingsServiceDesc, srv)
}
