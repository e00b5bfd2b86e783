package auth

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Claims are the bearer token claims of an admin. Subject is the admin id.
type Claims struct {
	ShopID string `json:"shop_id"`
	jwt.RegisteredClaims
}

// Login checks the password of an active shop admin and issues a token.
func (s *Service) Login(ctx context.Context, shopID, email, password string) (string, *Admin, error) {
	admin, err := s.admins.GetByEmail(ctx, shopID, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrAdminNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, errors.Wrap(err, "get admin")
	}
	if !admin.IsActive || admin.ShopID != shopID {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.issueToken(admin)
	if err != nil {
		return "", nil, errors.Wrap(err, "issue token")
	}
	return token, admin, nil
}

// VerifyToken checks a bearer token and that its admin is still active in
// shopID.
func (s *Service) VerifyToken(ctx context.Context, shopID, token string) (*Admin, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.cfg.JWTSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ShopID != shopID {
		return nil, ErrInvalidToken
	}

	admin, err := s.admins.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAdminNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, errors.Wrap(err, "get admin")
	}
	if !admin.IsActive || admin.ShopID != shopID {
		return nil, ErrInvalidToken
	}
	return admin, nil
}

func (s *Service) issueToken(a *Admin) (string, error) {
	now := s.now()
	claims := Claims{
		ShopID: a.ShopID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.JWTSecret)
}

// HashPassword returns the bcrypt hash stored for an admin password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(h), nil
}
