package store_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/Tyrowin/relaychat/internal/store"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/suite"
)

type postgresTestConfig struct {
	// TEST_DATABASE_URL points at a disposable database; the suite is
	// skipped when it is unset.
	DatabaseURL string `envconfig:"TEST_DATABASE_URL"`
}

type PostgresSuite struct {
	suite.Suite
	store *store.Postgres
}

func TestPostgresSuite(t *testing.T) {
	var cfg postgresTestConfig
	if err := envconfig.Process("", &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.DatabaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := store.Connect(ctx, store.PostgresConfig{URL: cfg.DatabaseURL, MaxConns: 4})
	if err != nil {
		t.Fatal(err)
	}

	s := store.NewPostgres(pool, slog.Default())
	defer s.Close()
	suite.Run(t, &PostgresSuite{store: s})
}

func (s *PostgresSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.store.EnsureSchema(ctx))
}

func (s *PostgresSuite) TestMessages() {
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Microsecond)
	alice, bob := "alice-"+uuid.NewString()[:8], "bob-"+uuid.NewString()[:8]

	s.Require().NoError(s.store.Save(ctx, chat.MessageEvent{Kind: chat.KindDirect, Sender: alice, Target: bob, Body: "one", Timestamp: at}))
	s.Require().NoError(s.store.Save(ctx, chat.MessageEvent{Kind: chat.KindDirect, Sender: bob, Target: " " + alice, Body: "two", Timestamp: at.Add(time.Second)}))
	s.Require().NoError(s.store.Save(ctx, chat.MessageEvent{Kind: chat.KindChat, Sender: alice, Body: "public", AttachmentURL: "/uploads/x.png", Timestamp: at.Add(time.Hour)}))

	conv, err := s.store.QueryDirect(ctx, bob, alice)
	s.Require().NoError(err)
	s.Require().Len(conv, 2)
	s.Equal("one", conv[0].Body)
	s.Equal("two", conv[1].Body)

	recent, err := s.store.QueryPublic(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal("public", recent[0].Body)
	s.Equal("/uploads/x.png", recent[0].AttachmentURL)
	s.Empty(recent[0].Target)
}

func (s *PostgresSuite) TestUsers() {
	ctx := context.Background()
	name := "user-" + uuid.NewString()[:8]

	created, err := s.store.CreateUser(ctx, name, "hash")
	s.Require().NoError(err)

	_, err = s.store.CreateUser(ctx, name, "hash")
	s.ErrorIs(err, auth.ErrUserExists)
	_, err = s.store.CreateUser(ctx, strings.ToUpper(name), "hash")
	s.ErrorIs(err, auth.ErrUserExists)

	byName, err := s.store.UserByName(ctx, strings.ToUpper(name))
	s.Require().NoError(err)
	s.Equal(created.ID, byName.ID)
	s.Equal(name, byName.Username)

	byID, err := s.store.UserByID(ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(name, byID.Username)

	_, err = s.store.UserByName(ctx, name+"-missing")
	s.ErrorIs(err, auth.ErrUserNotFound)

	updated, err := s.store.SetAvatar(ctx, created.ID, "/avatars/me.png")
	s.Require().NoError(err)
	s.Equal("/avatars/me.png", updated.AvatarURL)

	names, err := s.store.ListUsernames(ctx)
	s.Require().NoError(err)
	s.Contains(names, name)
}
