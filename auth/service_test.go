package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const userID = "3f1c2a9e-8b7d-4c3a-9f21-6d5e4b3a2c10"

func TestService_IssueAndVerify(t *testing.T) {
	svc := NewService("test-secret")

	token, err := svc.IssueToken(Identity{UserID: userID, Role: RoleAdmin})
	if err != nil {
		t.Fatalf("issue token: unexpected error: %v", err)
	}
	if token == "" {
		t.Fatal("issue token: expected token, got empty string")
	}

	id, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if id.UserID != userID {
		t.Fatalf("verify token: expected %s got %q", userID, id.UserID)
	}
	if !id.IsAdmin() {
		t.Fatalf("verify token: expected admin role got %s", id.Role)
	}
}

func TestService_VerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewService("secret-a").IssueToken(Identity{UserID: userID, Role: RoleInspector})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := NewService("secret-b").VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestService_VerifyRejectsExpired(t *testing.T) {
	issuedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService("secret").WithClock(func() time.Time { return issuedAt }).WithTTL(time.Hour)

	token, err := svc.IssueToken(Identity{UserID: userID, Role: RoleAdmin})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	later := svc.WithClock(func() time.Time { return issuedAt.Add(2 * time.Hour) })
	if _, err := later.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestService_VerifyRejectsUnknownRole(t *testing.T) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    "broker_admin",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := NewService("secret").VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestService_IssueValidatesIdentity(t *testing.T) {
	svc := NewService("secret")
	if _, err := svc.IssueToken(Identity{Role: RoleAdmin}); err == nil {
		t.Fatal("expected error for missing user id")
	}
	if _, err := svc.IssueToken(Identity{UserID: userID, Role: "client"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if _, err := svc.IssueToken(Identity{UserID: "bob", Role: RoleAdmin}); err == nil {
		t.Fatal("expected error for non-UUID user id")
	}
}

func TestService_VerifyRejectsNonUUIDUser(t *testing.T) {
	claims := jwt.MapClaims{
		"user_id": "bob",
		"role":    string(RoleAdmin),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := NewService("secret").VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIdentityContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("expected no identity on empty context")
	}
	ctx := WithIdentity(context.Background(), Identity{UserID: "u1", Role: RoleInspector})
	id, ok := FromContext(ctx)
	if !ok || id.UserID != "u1" || id.IsAdmin() {
		t.Fatalf("unexpected identity %+v", id)
	}
}
