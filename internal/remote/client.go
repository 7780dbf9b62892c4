package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/domain"
	"go.uber.org/zap"
)

// Routes of the chat service API.
const (
	routeChats       = "/chats"
	routeMessages    = "/messages"
	routeStream      = "/messages/stream"
	routeChatDeltas  = "/sync/chats/deltas"
	routeSettings    = "/settings"
	routeSettingSync = "/settings/sync"
)

// Config configures a Client.
type Config struct {
	BaseURL           string
	Token             string
	HTTPClient        *http.Client
	PollInterval      time.Duration
	ShortPollInterval time.Duration
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.ShortPollInterval <= 0 {
		c.ShortPollInterval = 500 * time.Millisecond
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Client is the HTTP and websocket implementation of Source.
type Client struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

var _ Source = (*Client)(nil)

// NewClient creates a client for the chat service at cfg.BaseURL.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, logger: logger, now: time.Now}
}

// do sends a JSON request and decodes the envelope's data into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := checkToken(c.cfg.Token, c.now()); err != nil {
		return err
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &UnknownError{Cause: fmt.Errorf("marshal request: %w", err)}
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return &UnknownError{Cause: fmt.Errorf("create request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return errorFromTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorFromTransport(err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode >= 300 {
			return errorFromStatus(resp.StatusCode)
		}
		c.logger.Warn("undecodable response", zap.String("path", path), zap.Error(err))
		return ErrServerError
	}
	if resp.StatusCode >= 300 || !env.Success {
		return errorFromAPI(env.Error, resp.StatusCode)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		c.logger.Warn("undecodable response data", zap.String("path", path), zap.Error(err))
		return ErrServerError
	}
	return nil
}

// CreateChat creates a chat and returns the server's copy.
func (c *Client) CreateChat(ctx context.Context, chat *domain.Chat) (*domain.Chat, error) {
	var out chatDTO
	if err := c.do(ctx, http.MethodPost, routeChats, nil, chatToDTO(chat), &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, routeChats+"/"+url.PathEscape(chatID), nil, nil, nil)
}

// JoinChat joins a chat, optionally through an invite link.
func (c *Client) JoinChat(ctx context.Context, chatID, inviteLink string) (*domain.Chat, error) {
	var out chatDTO
	path := routeChats + "/" + url.PathEscape(chatID) + "/join"
	if err := c.do(ctx, http.MethodPost, path, nil, joinChatRequest{InviteLink: inviteLink}, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) LeaveChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodPost, routeChats+"/"+url.PathEscape(chatID)+"/leave", nil, nil, nil)
}

// MarkMessagesAsRead marks every message up to and including upToMessageID as read.
func (c *Client) MarkMessagesAsRead(ctx context.Context, chatID, upToMessageID string) error {
	path := routeChats + "/" + url.PathEscape(chatID) + "/mark-read"
	return c.do(ctx, http.MethodPost, path, nil, markReadRequest{UpToMessageID: upToMessageID}, nil)
}

// DeleteMessage deletes a message for the sender only or for everyone.
func (c *Client) DeleteMessage(ctx context.Context, messageID string, mode domain.DeleteMode) error {
	q := url.Values{"mode": {string(mode)}}
	err := c.do(ctx, http.MethodDelete, routeMessages+"/"+url.PathEscape(messageID), q, nil, nil)
	if errors.Is(err, ErrChatNotFound) {
		// A bare 404 on a message route refers to the message.
		return ErrMessageNotFound
	}
	return err
}

// GetSettings returns the user's settings as stored on the server.
func (c *Client) GetSettings(ctx context.Context) ([]SettingItem, error) {
	var out settingsResponse
	if err := c.do(ctx, http.MethodGet, routeSettings, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Settings, nil
}

// SyncSetting pushes one setting.
func (c *Client) SyncSetting(ctx context.Context, req SettingSyncRequest) (*SettingSyncResult, error) {
	results, err := c.SyncSettingsBatch(ctx, []SettingSyncRequest{req})
	if err != nil {
		return nil, err
	}
	for i := range results {
		if results[i].Key == req.Key {
			return &results[i], nil
		}
	}
	c.logger.Warn("sync response missing key", zap.String("key", req.Key))
	return nil, ErrServerError
}

// SyncSettingsBatch pushes several settings in one request.
func (c *Client) SyncSettingsBatch(ctx context.Context, reqs []SettingSyncRequest) ([]SettingSyncResult, error) {
	var out syncSettingsResponse
	if err := c.do(ctx, http.MethodPost, routeSettingSync, nil, syncSettingsRequest{Settings: reqs}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
