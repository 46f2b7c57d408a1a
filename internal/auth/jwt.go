// Package auth issues and validates the bearer tokens accepted by the dev backend.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// RoleUser is the only role a companion client authenticates as
	RoleUser = "user"

	defaultTTL = 7 * 24 * time.Hour // 7 days
)

var (
	ErrMissingToken = errors.New("missing authorization token")
	ErrEmptySecret  = errors.New("jwt secret is required")
)

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Signer signs and validates HS256 tokens with a shared secret
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. ttl defaults to seven days.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// GenerateUserToken generates a JWT token for user authentication
func (s *Signer) GenerateUserToken(userID, username string) (string, error) {
	now := s.now()
	claims := &JWTClaims{
		UserID:   userID,
		Username: username,
		Role:     RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (s *Signer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		if claims.Role != RoleUser {
			return nil, fmt.Errorf("unexpected role %q", claims.Role)
		}
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}

// TokenFromHeader extracts the token of an "Authorization: Bearer <t>" or "Token <t>" header
func TokenFromHeader(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	switch strings.ToLower(scheme) {
	case "bearer", "token":
		return strings.TrimSpace(token), nil
	default:
		return "", fmt.Errorf("unsupported authorization scheme %q", scheme)
	}
}
