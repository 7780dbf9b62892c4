package remote

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/matheus3301/chatsync/internal/domain"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Stream operations.
const (
	opSend = "send"
	opEdit = "edit"
)

type streamRequest struct {
	Op      string     `json:"op"`
	Message messageDTO `json:"message"`
}

// streamFrame is one server frame: a message state, an error, or done.
type streamFrame struct {
	Message *messageDTO `json:"message,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
	Done    bool        `json:"done,omitempty"`
}

// SendMessage sends a message and streams its progressively confirmed states.
func (c *Client) SendMessage(ctx context.Context, msg *domain.Message) <-chan MessageResult {
	return c.streamMessage(ctx, opSend, msg)
}

// EditMessage edits a message and streams its confirmed states.
func (c *Client) EditMessage(ctx context.Context, msg *domain.Message) <-chan MessageResult {
	return c.streamMessage(ctx, opEdit, msg)
}

func (c *Client) streamMessage(ctx context.Context, op string, msg *domain.Message) <-chan MessageResult {
	out := make(chan MessageResult)

	go func() {
		defer close(out)
		fail := func(err error) { sendResult(ctx, out, MessageResult{Err: err}) }

		if err := checkToken(c.cfg.Token, c.now()); err != nil {
			fail(err)
			return
		}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+c.cfg.Token)
		conn, resp, err := websocket.Dial(ctx, c.wsURL(routeStream), &websocket.DialOptions{HTTPHeader: header})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
				fail(errorFromStatus(resp.StatusCode))
				return
			}
			fail(errorFromTransport(err))
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

		if err := wsjson.Write(ctx, conn, streamRequest{Op: op, Message: messageToDTO(msg)}); err != nil {
			fail(errorFromTransport(err))
			return
		}

		for {
			var f streamFrame
			if err := wsjson.Read(ctx, conn, &f); err != nil {
				if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					return
				}
				c.logger.Warn("message stream broken", zap.String("msg_id", msg.ID), zap.Error(err))
				fail(streamReadError(err))
				return
			}
			switch {
			case f.Error != nil:
				fail(errorFromAPI(f.Error, http.StatusOK))
				return
			case f.Message != nil:
				m := f.Message.toDomain()
				if !sendResult(ctx, out, MessageResult{Message: &m}) {
					return
				}
			}
			if f.Done {
				return
			}
		}
	}()
	return out
}

func streamReadError(err error) error {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.StatusGoingAway, websocket.StatusAbnormalClosure:
			return ErrServerUnreachable
		case websocket.StatusInternalError, websocket.StatusTryAgainLater:
			return ErrServerError
		}
	}
	return errorFromTransport(err)
}

func (c *Client) wsURL(path string) string {
	u := strings.Replace(c.cfg.BaseURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + path
}
