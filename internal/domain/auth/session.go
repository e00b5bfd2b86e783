package auth

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// StartSession issues a new guest session for the shop.
func (s *Service) StartSession(ctx context.Context, shopID, userID string) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		ShopID:    shopID,
		UserID:    userID,
		ExpiresAt: s.now().Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "create session")
	}
	return sess, nil
}

// ResolveSession returns the live session id of shopID.
func (s *Service) ResolveSession(ctx context.Context, shopID, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionExpired
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return nil, ErrSessionExpired
		}
		return nil, errors.Wrap(err, "get session")
	}
	if sess.ShopID != shopID || !s.now().Before(sess.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	return sess, nil
}
