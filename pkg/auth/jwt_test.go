package auth_test

import (
	"errors"
	"testing"
	"time"

	"poker-service/pkg/auth"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParseUserToken(t *testing.T) {
	signer := auth.NewSigner("secret", time.Hour, "test")

	token, err := signer.GenerateToken("alice")
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	claims, err := signer.ParseUserToken(token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if claims.UserID != "alice" {
		t.Fatalf("expected userId alice, got %q", claims.UserID)
	}
}

func TestParseTokenRejectsOtherSecret(t *testing.T) {
	token, err := auth.NewSigner("secret", time.Hour, "test").GenerateToken("alice")
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	if _, err := auth.NewSigner("other", time.Hour, "test").ParseUserToken(token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	signer := auth.NewSigner("secret", -time.Minute, "test")
	token, err := signer.GenerateToken("alice")
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	if _, err := signer.ParseUserToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := auth.NewSigner("secret", time.Hour, "test").ParseUserToken("not-a-token")
	if err == nil {
		t.Fatalf("expected error for garbage token")
	}
	if errors.Is(err, auth.ErrWrongScope) {
		t.Fatalf("expected parse error, got scope error")
	}
}

func TestParseUserTokenRejectsOtherScopes(t *testing.T) {
	claims := auth.Claims{
		UserID: "bot:t1:0",
		Scope:  "service",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	signer := auth.NewSigner("secret", time.Hour, "test")
	if _, err := signer.ParseToken(token); err != nil {
		t.Fatalf("token itself should be valid: %v", err)
	}
	if _, err := signer.ParseUserToken(token); !errors.Is(err, auth.ErrWrongScope) {
		t.Fatalf("expected ErrWrongScope, got %v", err)
	}
}
