package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionID identifies one connection for its whole lifetime.
type SessionID = uuid.UUID

// Kind distinguishes public chat from direct messages.
type Kind string

const (
	KindChat   Kind = "chat"
	KindDirect Kind = "dm"
)

// MessageEvent is a decoded client message. Target is empty for chat
// messages and AttachmentURL is empty when nothing was uploaded.
type MessageEvent struct {
	ID            uuid.UUID `json:"id"`
	Kind          Kind      `json:"message_type"`
	Sender        string    `json:"sender"`
	Target        string    `json:"target_username,omitempty"`
	Body          string    `json:"message"`
	AttachmentURL string    `json:"upload_url,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Validate enforces the direct message addressing rules.
func (e MessageEvent) Validate() error {
	switch e.Kind {
	case KindChat:
		return nil
	case KindDirect:
		if strings.TrimSpace(e.Target) == "" {
			return ErrMissingTarget
		}
		if SameName(e.Target, e.Sender) {
			return fmt.Errorf("%w: %q", ErrSelfTarget, e.Target)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrParse, e.Kind)
	}
}

// SameName reports whether two display names refer to the same user. It is
// the comparison used for history lookups: trimmed and case-insensitive.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// SystemKind is the kind of a presence announcement.
type SystemKind int

const (
	SystemJoined SystemKind = iota
	SystemLeft
)

// SystemEvent announces a session joining or leaving.
type SystemEvent struct {
	Kind        SystemKind
	DisplayName string
}

// Text renders the announcement as shown to clients.
func (e SystemEvent) Text() string {
	if e.Kind == SystemJoined {
		return e.DisplayName + " joined"
	}
	return e.DisplayName + " left"
}
