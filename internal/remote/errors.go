package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Transport failures reported by a Source. Anything else is an *UnknownError
// or a *CooldownError.
var (
	ErrNetworkNotAvailable     = errors.New("network not available")
	ErrServerUnreachable       = errors.New("server unreachable")
	ErrServerError             = errors.New("server error")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrChatNotFound            = errors.New("chat not found")
	ErrMessageNotFound         = errors.New("message not found")
	ErrInvalidInviteLink       = errors.New("invalid invite link")
	ErrExpiredInviteLink       = errors.New("expired invite link")
	ErrChatClosed              = errors.New("chat closed")
	ErrChatFull                = errors.New("chat full")
	ErrAlreadyJoined           = errors.New("already joined")
	ErrUserBlocked             = errors.New("user blocked")
	ErrRateLimitExceeded       = errors.New("rate limit exceeded")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
)

// CooldownError is returned while an action is throttled for the user.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active, %s remaining", e.Remaining)
}

// UnknownError carries a failure that has no closer classification.
type UnknownError struct {
	Cause error
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown remote error: %v", e.Cause)
}

func (e *UnknownError) Unwrap() error { return e.Cause }

// API error codes carried in the response envelope.
const (
	CodeChatNotFound            = "CHAT_NOT_FOUND"
	CodeMessageNotFound         = "MESSAGE_NOT_FOUND"
	CodeInvalidInviteLink       = "INVALID_INVITE_LINK"
	CodeExpiredInviteLink       = "EXPIRED_INVITE_LINK"
	CodeChatClosed              = "CHAT_CLOSED"
	CodeChatFull                = "CHAT_FULL"
	CodeAlreadyJoined           = "ALREADY_JOINED"
	CodeUserBlocked             = "USER_BLOCKED"
	CodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	CodeCooldownActive          = "COOLDOWN_ACTIVE"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeServerError             = "SERVER_ERROR"
)

var codeErrors = map[string]error{
	CodeChatNotFound:            ErrChatNotFound,
	CodeMessageNotFound:         ErrMessageNotFound,
	CodeInvalidInviteLink:       ErrInvalidInviteLink,
	CodeExpiredInviteLink:       ErrExpiredInviteLink,
	CodeChatClosed:              ErrChatClosed,
	CodeChatFull:                ErrChatFull,
	CodeAlreadyJoined:           ErrAlreadyJoined,
	CodeUserBlocked:             ErrUserBlocked,
	CodeRateLimitExceeded:       ErrRateLimitExceeded,
	CodeUnauthorized:            ErrUnauthorized,
	CodeInsufficientPermissions: ErrInsufficientPermissions,
	CodeServerError:             ErrServerError,
}

// errorFromAPI maps an envelope error. Unknown codes fall back to the HTTP status.
func errorFromAPI(e *apiError, status int) error {
	if e != nil {
		if e.Code == CodeCooldownActive {
			return &CooldownError{Remaining: time.Duration(e.RemainingMs) * time.Millisecond}
		}
		if err, ok := codeErrors[e.Code]; ok {
			return err
		}
	}
	if status >= 200 && status < 300 {
		msg := "request failed"
		if e != nil {
			msg = e.Code + ": " + e.Message
		}
		return &UnknownError{Cause: errors.New(msg)}
	}
	return errorFromStatus(status)
}

// errorFromStatus maps an HTTP status code.
func errorFromStatus(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrChatNotFound
	case http.StatusForbidden:
		return ErrUserBlocked
	case http.StatusConflict:
		return ErrAlreadyJoined
	case http.StatusGone:
		return ErrExpiredInviteLink
	case http.StatusUnprocessableEntity:
		return ErrInvalidInviteLink
	case http.StatusTooManyRequests:
		return ErrRateLimitExceeded
	case http.StatusBadRequest:
		return ErrChatClosed
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		return ErrServerError
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return ErrServerUnreachable
	}
	return &UnknownError{Cause: fmt.Errorf("unexpected status %d", status)}
}

// errorFromTransport maps a failure to reach the server at all. Context
// cancellation is returned unchanged.
func errorFromTransport(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrNetworkNotAvailable
	}
	if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return ErrNetworkNotAvailable
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return ErrServerUnreachable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrServerUnreachable
	}
	return &UnknownError{Cause: err}
}
