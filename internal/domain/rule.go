package domain

import (
	"encoding/json"
	"time"
)

// RuleKind names a chat policy.
type RuleKind string

const (
	RuleCanNotWriteAfterJoining  RuleKind = "can_not_write_after_joining"
	RuleDebounce                 RuleKind = "debounce"
	RuleEditWindow               RuleKind = "edit_window"
	RuleSenderIDCanNotChange     RuleKind = "sender_id_can_not_change"
	RuleRecipientCanNotChange    RuleKind = "recipient_can_not_change"
	RuleCreationTimeCanNotChange RuleKind = "creation_time_can_not_change"
	RuleDeleteWindow             RuleKind = "delete_window"
	RuleSenderCanDeleteOwn       RuleKind = "sender_can_delete_own"
	RuleAdminCanDeleteAny        RuleKind = "admin_can_delete_any"
	RuleModeratorCanDeleteAny    RuleKind = "moderator_can_delete_any"
	RuleNoDeleteAfterDelivered   RuleKind = "no_delete_after_delivered"
	RuleDeleteForEveryoneWindow  RuleKind = "delete_for_everyone_window"
	RuleOnlyAdminCanDelete       RuleKind = "only_admin_can_delete"
)

// Rule is a chat policy constraint. Duration is zero for flag-like rules.
type Rule struct {
	Kind     RuleKind
	Duration time.Duration
}

type ruleJSON struct {
	Kind       RuleKind `json:"kind"`
	DurationMs int64    `json:"duration_ms,omitempty"`
}

// MarshalJSON stores durations as milliseconds.
func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(ruleJSON{Kind: r.Kind, DurationMs: r.Duration.Milliseconds()})
}

// UnmarshalJSON reads durations as milliseconds.
func (r *Rule) UnmarshalJSON(b []byte) error {
	var v ruleJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	r.Kind = v.Kind
	r.Duration = time.Duration(v.DurationMs) * time.Millisecond
	return nil
}
