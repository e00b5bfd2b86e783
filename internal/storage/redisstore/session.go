// Package redisstore stores guest sessions in Redis hashes that expire with the
// session.
package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/shopcart/internal/domain/auth"
)

const keyPrefix = "session:"

const (
	fieldShopID    = "shop_id"
	fieldUserID    = "user_id"
	fieldExpiresAt = "expires_at"
)

var _ auth.SessionStore = (*SessionStore)(nil)

// SessionStore implements auth.SessionStore on Redis.
type SessionStore struct {
	rdb redis.UniversalClient
	now func() time.Time
}

// NewSessionStore returns a SessionStore that uses the given client.
func NewSessionStore(rdb redis.UniversalClient) *SessionStore {
	return &SessionStore{rdb: rdb, now: time.Now}
}

// Create stores s and lets Redis drop it at s.ExpiresAt. Creating an id that
// already exists fails.
func (st *SessionStore) Create(ctx context.Context, s *auth.Session) error {
	key := keyPrefix + s.ID

	created, err := st.rdb.HSetNX(ctx, key, fieldShopID, s.ShopID).Result()
	if err != nil {
		return errors.Wrap(err, "create session")
	}
	if !created {
		return errors.Errorf("session %s already exists", s.ID)
	}

	_, err = st.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			fieldUserID, s.UserID,
			fieldExpiresAt, strconv.FormatInt(s.ExpiresAt.UnixMilli(), 10),
		)
		p.ExpireAt(ctx, key, s.ExpiresAt)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "store session")
	}
	return nil
}

// Get returns a live session or auth.ErrSessionExpired.
func (st *SessionStore) Get(ctx context.Context, id string) (*auth.Session, error) {
	fields, err := st.rdb.HGetAll(ctx, keyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, auth.ErrSessionExpired
		}
		return nil, errors.Wrap(err, "get session")
	}
	raw, ok := fields[fieldExpiresAt]
	if !ok {
		return nil, auth.ErrSessionExpired
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse session expiry")
	}

	s := &auth.Session{
		ID:        id,
		ShopID:    fields[fieldShopID],
		UserID:    fields[fieldUserID],
		ExpiresAt: time.UnixMilli(ms).UTC(),
	}
	if !st.now().Before(s.ExpiresAt) {
		return nil, auth.ErrSessionExpired
	}
	return s, nil
}
