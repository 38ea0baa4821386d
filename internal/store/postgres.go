package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresConfig configures the connection pool.
type PostgresConfig struct {
	URL      string
	MinConns int
	MaxConns int
}

// Connect creates a connection pool and checks it with a ping.
func Connect(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Postgres stores history and accounts in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgres wraps a pool.
func NewPostgres(pool *pgxpool.Pool, log *slog.Logger) *Postgres {
	if log == nil {
		log = slog.Default()
	}
	return &Postgres{pool: pool, log: log}
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	avatar_url    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id              UUID PRIMARY KEY,
	sender          TEXT NOT NULL,
	target_username TEXT,
	message_type    TEXT NOT NULL,
	message         TEXT NOT NULL,
	upload_url      TEXT,
	timestamp       TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_idx ON users (LOWER(TRIM(username)));

CREATE INDEX IF NOT EXISTS messages_type_timestamp_idx ON messages (message_type, timestamp);
`

// EnsureSchema creates the tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Save persists ev.
func (p *Postgres) Save(ctx context.Context, ev chat.MessageEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (id, sender, target_username, message_type, message, upload_url, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, ev.Sender, nullable(ev.Target), string(ev.Kind), ev.Body, nullable(ev.AttachmentURL), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

const messageColumns = `id, sender, target_username, message_type, message, upload_url, timestamp`

func scanMessage(row pgx.CollectableRow) (chat.MessageEvent, error) {
	var (
		ev             chat.MessageEvent
		target, upload *string
		kind           string
	)
	if err := row.Scan(&ev.ID, &ev.Sender, &target, &kind, &ev.Body, &upload, &ev.Timestamp); err != nil {
		return chat.MessageEvent{}, err
	}
	ev.Kind = chat.Kind(kind)
	if target != nil {
		ev.Target = *target
	}
	if upload != nil {
		ev.AttachmentURL = *upload
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return ev, nil
}

// QueryPublic returns the most recent limit chat messages, oldest first.
func (p *Postgres) QueryPublic(ctx context.Context, limit int) ([]chat.MessageEvent, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE message_type = 'chat'
			ORDER BY timestamp DESC
			LIMIT $1
		) recent
		ORDER BY timestamp ASC
	`, historyLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query public messages: %w", err)
	}
	return pgx.CollectRows(rows, scanMessage)
}

// QueryDirect returns the conversation between a and b, oldest first.
func (p *Postgres) QueryDirect(ctx context.Context, a, b string) ([]chat.MessageEvent, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE message_type = 'dm'
		AND (
			(LOWER(TRIM(sender)) = LOWER(TRIM($1)) AND LOWER(TRIM(target_username)) = LOWER(TRIM($2)))
			OR
			(LOWER(TRIM(sender)) = LOWER(TRIM($2)) AND LOWER(TRIM(target_username)) = LOWER(TRIM($1)))
		)
		ORDER BY timestamp ASC
	`, a, b)
	if err != nil {
		return nil, fmt.Errorf("query direct messages: %w", err)
	}
	return pgx.CollectRows(rows, scanMessage)
}

const userColumns = `id, username, password_hash, avatar_url`

func scanUser(row pgx.CollectableRow) (auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.AvatarURL)
	return u, err
}

func (p *Postgres) queryUser(ctx context.Context, sql string, args ...any) (auth.User, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return auth.User{}, err
	}
	user, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	return user, err
}

// CreateUser stores a new account. Names differing only in case collide on
// users_username_lower_idx.
func (p *Postgres) CreateUser(ctx context.Context, username, passwordHash string) (auth.User, error) {
	user, err := p.queryUser(ctx,
		`INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3) RETURNING `+userColumns,
		uuid.New(), username, passwordHash)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return auth.User{}, auth.ErrUserExists
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// UserByName looks an account up by username, ignoring case.
func (p *Postgres) UserByName(ctx context.Context, username string) (auth.User, error) {
	return p.queryUser(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(TRIM(username)) = LOWER(TRIM($1))`, username)
}

// UserByID looks an account up by id.
func (p *Postgres) UserByID(ctx context.Context, id uuid.UUID) (auth.User, error) {
	return p.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// ListUsernames returns every username, alphabetically.
func (p *Postgres) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT username FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// SetAvatar replaces the avatar URL of the account with id.
func (p *Postgres) SetAvatar(ctx context.Context, id uuid.UUID, avatarURL string) (auth.User, error) {
	user, err := p.queryUser(ctx,
		`UPDATE users SET avatar_url = $1 WHERE id = $2 RETURNING `+userColumns, avatarURL, id)
	if err != nil {
		return auth.User{}, err
	}
	p.log.Debug("avatar updated", "user", id, "avatar_url", avatarURL)
	return user, nil
}
