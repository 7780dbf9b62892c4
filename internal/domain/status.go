package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// DeliveryState enumerates message delivery states.
type DeliveryState string

const (
	StateSending   DeliveryState = "sending"
	StateFailed    DeliveryState = "failed"
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
)

// DeliveryStatus is the delivery state of a message. Progress is set for
// Sending, Reason for Failed.
type DeliveryStatus struct {
	State    DeliveryState
	Progress int
	Reason   string
}

func Sending(progress int) *DeliveryStatus {
	return &DeliveryStatus{State: StateSending, Progress: progress}
}

func Failed(reason string) *DeliveryStatus {
	return &DeliveryStatus{State: StateFailed, Reason: reason}
}

func Sent() *DeliveryStatus      { return &DeliveryStatus{State: StateSent} }
func Delivered() *DeliveryStatus { return &DeliveryStatus{State: StateDelivered} }
func Read() *DeliveryStatus      { return &DeliveryStatus{State: StateRead} }

// Rank orders states along the delivery path. Failed ranks with Sending so a
// retried send can leave it.
func (s *DeliveryStatus) Rank() int {
	if s == nil {
		return 0
	}
	switch s.State {
	case StateSending, StateFailed:
		return 1
	case StateSent:
		return 2
	case StateDelivered:
		return 3
	case StateRead:
		return 4
	}
	return 0
}

// String encodes the status for storage, e.g. "sending:40" or "failed:timeout".
func (s *DeliveryStatus) String() string {
	if s == nil {
		return ""
	}
	switch s.State {
	case StateSending:
		return string(s.State) + ":" + strconv.Itoa(s.Progress)
	case StateFailed:
		return string(s.State) + ":" + s.Reason
	}
	return string(s.State)
}

// MarshalText implements encoding.TextMarshaler.
func (s DeliveryStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *DeliveryStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseDeliveryStatus(string(b))
	if err != nil {
		return err
	}
	if parsed == nil {
		*s = DeliveryStatus{}
		return nil
	}
	*s = *parsed
	return nil
}

// ParseDeliveryStatus decodes a stored status. The empty string means no status.
func ParseDeliveryStatus(v string) (*DeliveryStatus, error) {
	if v == "" {
		return nil, nil
	}
	state, arg, _ := strings.Cut(v, ":")
	switch DeliveryState(state) {
	case StateSending:
		progress := 0
		if arg != "" {
			p, err := strconv.Atoi(arg)
			if err != nil {
				return nil, fmt.Errorf("parse sending progress %q: %w", arg, err)
			}
			progress = p
		}
		return Sending(progress), nil
	case StateFailed:
		return Failed(arg), nil
	case StateSent:
		return Sent(), nil
	case StateDelivered:
		return Delivered(), nil
	case StateRead:
		return Read(), nil
	}
	return nil, fmt.Errorf("unknown delivery status %q", v)
}
