// Package auth resolves the two caller identities of the storefront: guest
// sessions bound to one shop, and shop admins holding bearer tokens.
package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrSessionExpired is returned for unknown, expired, or foreign-shop
	// sessions.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidCredentials is returned when an email and password pair does
	// not match an active admin of the shop.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrAdminNotFound is returned by AdminRepository lookups.
	ErrAdminNotFound = errors.New("admin not found")
)

// Session is a guest browsing session in one shop.
type Session struct {
	ID        string
	ShopID    string
	UserID    string
	ExpiresAt time.Time
}

// Admin is a shop staff account.
type Admin struct {
	ID           string
	ShopID       string
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
}

// SessionStore persists sessions until they expire.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	// Get returns the session, or ErrSessionExpired when it is unknown or
	// past ExpiresAt.
	Get(ctx context.Context, id string) (*Session, error)
}

// AdminRepository looks up admins.
type AdminRepository interface {
	GetByEmail(ctx context.Context, shopID, email string) (*Admin, error)
	GetByID(ctx context.Context, id string) (*Admin, error)
}

// Config holds token and session lifetimes.
type Config struct {
	JWTSecret  []byte
	TokenTTL   time.Duration
	SessionTTL time.Duration
}

// Service issues and verifies sessions and admin tokens.
type Service struct {
	sessions SessionStore
	admins   AdminRepository
	cfg      Config
	now      func() time.Time
}

// NewService creates an auth Service.
func NewService(sessions SessionStore, admins AdminRepository, cfg Config) *Service {
	return &Service{
		sessions: sessions,
		admins:   admins,
		cfg:      cfg,
		now:      time.Now,
	}
}
