package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a control API client for one daemon.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, service, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, "/"+service+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func openStream[Req, Resp any](ctx context.Context, c *Client, service string, desc *grpc.StreamDesc, in *Req) (grpc.ServerStreamingClient[Resp], error) {
	stream, err := c.conn.NewStream(ctx, desc, "/"+service+"/"+desc.StreamName)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Req, Resp]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *Client) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	return invoke[GetStatusResponse](ctx, c, sessionServiceName, "GetStatus", &GetStatusRequest{})
}

func (c *Client) GetSyncStatus(ctx context.Context) (*GetSyncStatusResponse, error) {
	return invoke[GetSyncStatusResponse](ctx, c, syncServiceName, "GetSyncStatus", &GetSyncStatusRequest{})
}

func (c *Client) WatchEvents(ctx context.Context, req *WatchEventsRequest) (grpc.ServerStreamingClient[Event], error) {
	return openStream[WatchEventsRequest, Event](ctx, c, syncServiceName, &watchEventsStream, req)
}

func (c *Client) ListChats(ctx context.Context) (*ListChatsResponse, error) {
	return invoke[ListChatsResponse](ctx, c, chatServiceName, "ListChats", &ListChatsRequest{})
}

func (c *Client) GetChat(ctx context.Context, chatID string) (*GetChatResponse, error) {
	return invoke[GetChatResponse](ctx, c, chatServiceName, "GetChat", &GetChatRequest{ChatID: chatID})
}

func (c *Client) CreateChat(ctx context.Context, req *CreateChatRequest) (*CreateChatResponse, error) {
	return invoke[CreateChatResponse](ctx, c, chatServiceName, "CreateChat", req)
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	_, err := invoke[Empty](ctx, c, chatServiceName, "DeleteChat", &DeleteChatRequest{ChatID: chatID})
	return err
}

func (c *Client) JoinChat(ctx context.Context, chatID, inviteLink string) (*JoinChatResponse, error) {
	return invoke[JoinChatResponse](ctx, c, chatServiceName, "JoinChat", &JoinChatRequest{ChatID: chatID, InviteLink: inviteLink})
}

func (c *Client) LeaveChat(ctx context.Context, chatID string) error {
	_, err := invoke[Empty](ctx, c, chatServiceName, "LeaveChat", &LeaveChatRequest{ChatID: chatID})
	return err
}

func (c *Client) MarkRead(ctx context.Context, chatID, upToMessageID string) error {
	_, err := invoke[Empty](ctx, c, chatServiceName, "MarkRead", &MarkReadRequest{ChatID: chatID, UpToMessageID: upToMessageID})
	return err
}

func (c *Client) WatchChatList(ctx context.Context) (grpc.ServerStreamingClient[ListChatsResponse], error) {
	return openStream[ListChatsRequest, ListChatsResponse](ctx, c, chatServiceName, &watchChatListStream, &ListChatsRequest{})
}

func (c *Client) WatchChat(ctx context.Context, chatID string) (grpc.ServerStreamingClient[GetChatResponse], error) {
	return openStream[GetChatRequest, GetChatResponse](ctx, c, chatServiceName, &watchChatStream, &GetChatRequest{ChatID: chatID})
}

func (c *Client) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c, messageServiceName, "ListMessages", req)
}

func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (grpc.ServerStreamingClient[Message], error) {
	return openStream[SendMessageRequest, Message](ctx, c, messageServiceName, &sendMessageStream, req)
}

func (c *Client) EditMessage(ctx context.Context, req *EditMessageRequest) (grpc.ServerStreamingClient[Message], error) {
	return openStream[EditMessageRequest, Message](ctx, c, messageServiceName, &editMessageStream, req)
}

func (c *Client) DeleteMessage(ctx context.Context, req *DeleteMessageRequest) error {
	_, err := invoke[Empty](ctx, c, messageServiceName, "DeleteMessage", req)
	return err
}

func (c *Client) GetSettings(ctx context.Context) (*GetSettingsResponse, error) {
	return invoke[GetSettingsResponse](ctx, c, settingsServiceName, "GetSettings", &GetSettingsRequest{})
}

func (c *Client) ChangeLanguage(ctx context.Context, language string) (*GetSettingsResponse, error) {
	return invoke[GetSettingsResponse](ctx, c, settingsServiceName, "ChangeLanguage", &ChangeLanguageRequest{Language: language})
}

func (c *Client) SyncSettings(ctx context.Context) (*SyncSettingsResponse, error) {
	return invoke[SyncSettingsResponse](ctx, c, settingsServiceName, "SyncSettings", &SyncSettingsRequest{})
}
