package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Service implements account registration, login and bearer-token
// authentication on top of a UserStore.
type Service struct {
	users  UserStore
	tokens *Tokens
	log    *slog.Logger
}

// NewService creates an account service.
func NewService(users UserStore, tokens *Tokens, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{users: users, tokens: tokens, log: log}
}

// Register validates the credentials, hashes the password and creates the
// account.
func (s *Service) Register(ctx context.Context, c Credentials) (User, error) {
	if err := ValidateRegister(c); err != nil {
		return User{}, err
	}

	hash, err := HashPassword(c.Password)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, c.Username, hash)
	if err != nil {
		return User{}, err
	}
	s.log.Info("user registered", "user", user.ID, "username", user.Username)
	return user, nil
}

// Login checks the credentials and issues a token. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, c Credentials) (LoginResult, error) {
	user, err := s.users.UserByName(ctx, c.Username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			s.log.Error("looking up user", "username", c.Username, "error", err)
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	match, err := ComparePassword(c.Password, user.PasswordHash)
	if err != nil {
		return LoginResult{}, fmt.Errorf("verifying password: %w", err)
	}
	if !match {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, User: user}, nil
}

// Authenticate resolves a bearer token to the current state of its user.
func (s *Service) Authenticate(ctx context.Context, raw string) (User, error) {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return User{}, err
	}
	id, err := claims.UserID()
	if err != nil {
		return User{}, fmt.Errorf("%w: bad subject: %w", ErrUnauthorized, err)
	}
	user, err := s.users.UserByID(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return user, nil
}

// Users lists every registered username.
func (s *Service) Users(ctx context.Context) ([]string, error) {
	return s.users.ListUsernames(ctx)
}

// SetAvatar records a new avatar URL for the user.
func (s *Service) SetAvatar(ctx context.Context, user User, url string) (User, error) {
	return s.users.SetAvatar(ctx, user.ID, url)
}
