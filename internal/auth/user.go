//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_store.go -package=mocks
package auth

import (
	"context"

	"github.com/google/uuid"
)

// User is a registered account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	AvatarURL    string    `json:"avatar_url"`
}

// UserStore persists accounts. Usernames are unique; implementations return
// ErrUserExists on a duplicate and ErrUserNotFound when a lookup misses.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	UserByName(ctx context.Context, username string) (User, error)
	UserByID(ctx context.Context, id uuid.UUID) (User, error)
	ListUsernames(ctx context.Context) ([]string, error)
	SetAvatar(ctx context.Context, id uuid.UUID, avatarURL string) (User, error)
}
