package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken signals a missing, malformed, expired or wrongly signed token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrForbidden signals the identity lacks the required role.
	ErrForbidden = errors.New("auth: forbidden")
)

// Service issues and verifies HS256 bearer tokens. Login lives with the
// identity provider; this service only trusts tokens signed with the shared secret.
type Service struct {
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewService creates a token service for the shared secret.
func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		ttl:       24 * time.Hour,
		now:       time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithTTL(ttl time.Duration) *Service {
	s.ttl = ttl
	return s
}

// IssueToken creates a signed token for the identity.
func (s *Service) IssueToken(id Identity) (string, error) {
	if _, err := uuid.Parse(id.UserID); err != nil {
		return "", fmt.Errorf("auth: user id %q is not a UUID", id.UserID)
	}
	if !isValidRole(id.Role) {
		return "", fmt.Errorf("auth: invalid role %q", id.Role)
	}

	now := s.now()
	claims := jwt.MapClaims{
		"user_id": id.UserID,
		"role":    string(id.Role),
		"exp":     now.Add(s.ttl).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return tokenString, nil
}

// VerifyToken validates a JWT token and returns the identity it carries.
func (s *Service) VerifyToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return Identity{}, fmt.Errorf("%w: invalid user_id", ErrInvalidToken)
	}
	if _, err := uuid.Parse(userID); err != nil {
		return Identity{}, fmt.Errorf("%w: user_id is not a UUID", ErrInvalidToken)
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("%w: invalid role", ErrInvalidToken)
	}
	role := Role(roleStr)
	if !isValidRole(role) {
		return Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, roleStr)
	}
	return Identity{UserID: userID, Role: role}, nil
}

type ctxKey struct{}

// WithIdentity stores the identity on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

func isValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleInspector:
		return true
	default:
		return false
	}
}
