package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrParse marks an inbound frame that is not a well-formed message.
	ErrParse = errors.New("malformed frame")
	// ErrMissingTarget marks a direct message without a recipient.
	ErrMissingTarget = errors.New("direct message requires a recipient")
	// ErrSelfTarget marks a direct message addressed to its own sender.
	ErrSelfTarget = errors.New("direct message addressed to sender")

	ErrDuplicateSession     = errors.New("session already registered")
	ErrRegistryInconsistent = errors.New("registry maps diverged")

	ErrTransport       = errors.New("transport failure")
	ErrQueueClosed     = errors.New("outbound queue closed")
	ErrBroadcastClosed = errors.New("broadcast channel closed")
	ErrSessionClosed   = errors.New("session already closed")
	ErrHubClosed       = errors.New("hub is shut down")
)

// LaggedError is returned by Subscription.Recv when the subscriber fell
// further behind than the broadcast backlog and older messages were dropped.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("%d messages were skipped", e.Skipped)
}
