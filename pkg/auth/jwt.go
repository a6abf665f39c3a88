package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongScope   = errors.New("token scope not allowed")
)

// ScopeUser is the only scope accepted from clients.
const ScopeUser = "user"

type Claims struct {
	UserID string `json:"userId"`
	Scope  string `json:"scope"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 bearer tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func NewSigner(secret string, ttl time.Duration, issuer string) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl, issuer: issuer}
}

func (s *Signer) GenerateToken(userID string) (string, error) {
	return s.generateToken(userID, ScopeUser)
}

func (s *Signer) generateToken(userID, scope string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Scope:  scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Signer) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseUserToken accepts only human user tokens. Bot identities never
// authenticate from the outside.
func (s *Signer) ParseUserToken(tokenString string) (*Claims, error) {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope != ScopeUser {
		return nil, ErrWrongScope
	}
	return claims, nil
}
