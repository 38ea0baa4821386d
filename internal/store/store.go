// Package store persists chat history and accounts. Two backends are
// provided: Badger, an embedded key-value store that needs no setup, and
// Postgres.
package store

import (
	"strings"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/chat"
)

// Store is everything the server needs from a backend.
type Store interface {
	chat.MessageStore
	auth.UserStore
	Close() error
}

var (
	_ Store = (*Badger)(nil)
	_ Store = (*Postgres)(nil)
)

// normalizeName is the form DM participants are matched in.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return chat.DefaultHistoryLimit
	}
	return limit
}
