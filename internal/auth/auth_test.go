package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"campus-care-api/internal/model"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("testpass123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "testpass123") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrongpass") {
		t.Error("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	iss := NewIssuer("s3cret", time.Minute)
	tok, err := iss.MakeToken(model.Account{ID: "u1", Email: "a@b.com"})
	if err != nil {
		t.Fatalf("make: %v", err)
	}
	c, err := iss.ParseToken(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.UserID != "u1" || c.Email != "a@b.com" {
		t.Errorf("claims: %+v", c)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	tok, _ := NewIssuer("one", time.Minute).MakeToken(model.Account{ID: "u1"})
	if _, err := NewIssuer("two", time.Minute).ParseToken(tok); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestTokenExpired(t *testing.T) {
	iss := NewIssuer("s3cret", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, _ := iss.MakeToken(model.Account{ID: "u1"})

	iss.now = time.Now
	if _, err := iss.ParseToken(tok); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestTokenRejectsNoneAlg(t *testing.T) {
	c := Claims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewIssuer("s3cret", time.Minute).ParseToken(tok); err == nil {
		t.Fatal("none alg must be rejected")
	}
}

func TestRefreshTokenHash(t *testing.T) {
	raw, hash, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(raw) != 64 {
		t.Errorf("raw length: %d", len(raw))
	}
	if HashRefreshToken(raw) != hash {
		t.Error("hash mismatch")
	}
}
