package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/remote"
)

// Errors returned by repository operations. Each remote failure maps to
// exactly one of these (or to *CooldownError / *UnknownError) per operation.
var (
	ErrNetworkNotAvailable = errors.New("network not available")
	ErrServiceDown         = errors.New("service down")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrChatNotFound        = errors.New("chat not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrInvalidInviteLink   = errors.New("invalid invite link")
	ErrExpiredInviteLink   = errors.New("expired invite link")
	ErrChatClosed          = errors.New("chat closed")
	ErrChatFull            = errors.New("chat full")
	ErrAlreadyJoined       = errors.New("already joined")
	ErrUserBlocked         = errors.New("user blocked")
)

// CooldownError reports that joining is throttled for Remaining.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active, %s remaining", e.Remaining)
}

// UnknownError is a remote failure the operation has no mapping for.
type UnknownError struct {
	Op    string
	Cause error
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("%s: unknown remote error: %v", e.Op, e.Cause)
}

func (e *UnknownError) Unwrap() error { return e.Cause }

// errorMap is the remote-to-domain error table of one operation.
type errorMap struct {
	op        string
	sentinels map[error]error
	cooldown  bool
}

var common = map[error]error{
	remote.ErrNetworkNotAvailable: ErrNetworkNotAvailable,
	remote.ErrServerUnreachable:   ErrServiceDown,
	remote.ErrServerError:         ErrServiceDown,
	remote.ErrUnauthorized:        ErrUnauthenticated,
}

func newErrorMap(op string, extra map[error]error) errorMap {
	m := make(map[error]error, len(common)+len(extra))
	for k, v := range common {
		m[k] = v
	}
	for k, v := range extra {
		m[k] = v
	}
	return errorMap{op: op, sentinels: m}
}

var (
	createChatErrors = newErrorMap("create chat", nil)
	deleteChatErrors = newErrorMap("delete chat", map[error]error{
		remote.ErrChatNotFound: ErrChatNotFound,
	})
	joinChatErrors = func() errorMap {
		m := newErrorMap("join chat", map[error]error{
			remote.ErrAlreadyJoined:     ErrAlreadyJoined,
			remote.ErrChatClosed:        ErrChatClosed,
			remote.ErrChatFull:          ErrChatFull,
			remote.ErrChatNotFound:      ErrChatNotFound,
			remote.ErrExpiredInviteLink: ErrExpiredInviteLink,
			remote.ErrInvalidInviteLink: ErrInvalidInviteLink,
			remote.ErrRateLimitExceeded: ErrServiceDown,
			remote.ErrUserBlocked:       ErrUserBlocked,
		})
		m.cooldown = true
		return m
	}()
	leaveChatErrors = newErrorMap("leave chat", map[error]error{
		remote.ErrChatNotFound: ErrChatNotFound,
	})
	markReadErrors = newErrorMap("mark messages as read", map[error]error{
		remote.ErrChatNotFound: ErrChatNotFound,
	})
	sendMessageErrors   = newErrorMap("send message", nil)
	editMessageErrors   = newErrorMap("edit message", nil)
	deleteMessageErrors = newErrorMap("delete message", map[error]error{
		remote.ErrMessageNotFound: ErrMessageNotFound,
	})
)

// mapError converts a remote error. Context errors are returned unchanged.
func (m errorMap) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if m.cooldown {
		var cd *remote.CooldownError
		if errors.As(err, &cd) {
			return &CooldownError{Remaining: cd.Remaining}
		}
	}
	for from, to := range m.sentinels {
		if errors.Is(err, from) {
			return to
		}
	}
	return &UnknownError{Op: m.op, Cause: err}
}
