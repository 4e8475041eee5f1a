package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/craftbid/backend/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	s := NewService(nil, nil, 0)
	userID := uuid.New()

	token, err := s.issueToken(userID, models.RoleContractor)
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}
	p, err := s.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if p.ID != userID {
		t.Errorf("principal id = %s, want %s", p.ID, userID)
	}
	if p.Role != models.RoleContractor {
		t.Errorf("principal role = %q, want contractor", p.Role)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	s := NewService(nil, nil, 0)
	for _, tok := range []string{"", "not-a-jwt", "aaa.bbb.ccc"} {
		if _, err := s.ValidateToken(context.Background(), tok); err == nil {
			t.Errorf("token %q accepted", tok)
		}
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	s := NewService(nil, nil, 0)

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: models.RoleCustomer,
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.ValidateToken(context.Background(), forged); err == nil {
		t.Error("token signed with a different secret accepted")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	s := NewService(nil, nil, 0)

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Role: models.RoleCustomer,
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.ValidateToken(context.Background(), expired); err == nil {
		t.Error("expired token accepted")
	}
}

func TestValidateTokenRejectsUnknownRole(t *testing.T) {
	s := NewService(nil, nil, 0)

	token, err := s.issueToken(uuid.New(), "superadmin")
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}
	if _, err := s.ValidateToken(context.Background(), token); err == nil {
		t.Error("token with unknown role claim accepted")
	}
}
