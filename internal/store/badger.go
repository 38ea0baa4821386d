package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	publicPrefix = "chat:"
	directPrefix = "dm:"
	userPrefix   = "user:"
	userIDPrefix = "userid:"
)

// Badger stores history and accounts in an embedded BadgerDB.
//
// Keys:
//
//	chat:{unix_nano_padded}:{id}                 public message
//	dm:{lower_a}\x00{lower_b}\x00{unix_nano}:{id}  direct message, a <= b
//	user:{username}                              account record
//	userid:{id}                                  username index
//
// The 19-digit zero padding keeps keys in chronological order.
type Badger struct {
	db  *badger.DB
	log *slog.Logger
}

// OpenBadger opens (creating if needed) the database in dir.
func OpenBadger(dir string, log *slog.Logger) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return NewBadger(db, log), nil
}

// OpenBadgerReadOnly opens an existing database for inspection while a
// server may still hold it.
func OpenBadgerReadOnly(dir string, log *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(dir).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger read-only at %s: %w", dir, err)
	}
	return NewBadger(db, log), nil
}

// NewBadger wraps an open database.
func NewBadger(db *badger.DB, log *slog.Logger) *Badger {
	if log == nil {
		log = slog.Default()
	}
	return &Badger{db: db, log: log}
}

// Close flushes and closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func publicKey(ev chat.MessageEvent) []byte {
	return fmt.Appendf(nil, "%s%019d:%s", publicPrefix, ev.Timestamp.UnixNano(), ev.ID)
}

func directPairPrefix(a, b string) string {
	a, b = normalizeName(a), normalizeName(b)
	if b < a {
		a, b = b, a
	}
	return directPrefix + a + "\x00" + b + "\x00"
}

func directKey(ev chat.MessageEvent) []byte {
	return fmt.Appendf(nil, "%s%019d:%s", directPairPrefix(ev.Sender, ev.Target), ev.Timestamp.UnixNano(), ev.ID)
}

// Save persists ev.
func (b *Badger) Save(_ context.Context, ev chat.MessageEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	var key []byte
	switch ev.Kind {
	case chat.KindChat:
		key = publicKey(ev)
	case chat.KindDirect:
		key = directKey(ev)
	default:
		return fmt.Errorf("%w: unknown kind %q", chat.ErrParse, ev.Kind)
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// QueryPublic scans the public prefix backwards from the newest key and
// returns the result oldest first.
func (b *Badger) QueryPublic(_ context.Context, limit int) ([]chat.MessageEvent, error) {
	limit = historyLimit(limit)
	prefix := []byte(publicPrefix)

	var out []chat.MessageEvent
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append([]byte(publicPrefix), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if len(out) == limit {
				break
			}
			ev, err := decodeMessage(it.Item())
			if err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Reverse(out), nil
}

// QueryDirect returns the conversation between a and b, oldest first.
func (b *Badger) QueryDirect(_ context.Context, a, bName string) ([]chat.MessageEvent, error) {
	prefix := []byte(directPairPrefix(a, bName))
	return b.scan(prefix)
}

// Messages returns every stored message, public and direct, in timestamp
// order.
func (b *Badger) Messages(_ context.Context) ([]chat.MessageEvent, error) {
	public, err := b.scan([]byte(publicPrefix))
	if err != nil {
		return nil, err
	}
	direct, err := b.scan([]byte(directPrefix))
	if err != nil {
		return nil, err
	}
	all := append(public, direct...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return all, nil
}

func (b *Badger) scan(prefix []byte) ([]chat.MessageEvent, error) {
	var out []chat.MessageEvent
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ev, err := decodeMessage(it.Item())
			if err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

func decodeMessage(item *badger.Item) (chat.MessageEvent, error) {
	var ev chat.MessageEvent
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ev)
	})
	if err != nil {
		return chat.MessageEvent{}, fmt.Errorf("decode %s: %w", item.Key(), err)
	}
	return ev, nil
}

type userRecord struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	AvatarURL    string    `json:"avatar_url"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r userRecord) user() auth.User {
	return auth.User{ID: r.ID, Username: r.Username, PasswordHash: r.PasswordHash, AvatarURL: r.AvatarURL}
}

// CreateUser stores a new account. Usernames are unique ignoring case and
// surrounding space; the record keeps the name as written.
func (b *Badger) CreateUser(_ context.Context, username, passwordHash string) (auth.User, error) {
	rec := userRecord{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		key := []byte(userPrefix + normalizeName(username))
		if _, err := txn.Get(key); err == nil {
			return auth.ErrUserExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putUser(txn, rec)
	})
	if err != nil {
		return auth.User{}, err
	}
	return rec.user(), nil
}

func putUser(txn *badger.Txn, rec userRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	key := normalizeName(rec.Username)
	if err := txn.Set([]byte(userPrefix+key), value); err != nil {
		return err
	}
	return txn.Set([]byte(userIDPrefix+rec.ID.String()), []byte(key))
}

func getUser(txn *badger.Txn, username string) (userRecord, error) {
	var rec userRecord
	item, err := txn.Get([]byte(userPrefix + normalizeName(username)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, auth.ErrUserNotFound
	}
	if err != nil {
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func getUserByID(txn *badger.Txn, id uuid.UUID) (userRecord, error) {
	item, err := txn.Get([]byte(userIDPrefix + id.String()))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return userRecord{}, auth.ErrUserNotFound
	}
	if err != nil {
		return userRecord{}, err
	}
	name, err := item.ValueCopy(nil)
	if err != nil {
		return userRecord{}, err
	}
	return getUser(txn, string(name))
}

// UserByName looks an account up by username, ignoring case.
func (b *Badger) UserByName(_ context.Context, username string) (auth.User, error) {
	var rec userRecord
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getUser(txn, username)
		return err
	})
	return rec.user(), err
}

// UserByID looks an account up by id.
func (b *Badger) UserByID(_ context.Context, id uuid.UUID) (auth.User, error) {
	var rec userRecord
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getUserByID(txn, id)
		return err
	})
	return rec.user(), err
}

// ListUsernames returns every username as registered, ordered by its
// lowercase form.
func (b *Badger) ListUsernames(_ context.Context) ([]string, error) {
	names := []string{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec userRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			names = append(names, rec.Username)
		}
		return nil
	})
	return names, err
}

// SetAvatar replaces the avatar URL of the account with id.
func (b *Badger) SetAvatar(_ context.Context, id uuid.UUID, avatarURL string) (auth.User, error) {
	var rec userRecord
	err := b.db.Update(func(txn *badger.Txn) error {
		var err error
		if rec, err = getUserByID(txn, id); err != nil {
			return err
		}
		rec.AvatarURL = avatarURL
		return putUser(txn, rec)
	})
	if err != nil {
		return auth.User{}, err
	}
	b.log.Debug("avatar updated", "user", id, "avatar_url", avatarURL)
	return rec.user(), nil
}
