package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "chemoward"

// ErrInvalidToken is returned by Verify for any token that fails signature,
// expiry or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller attached to each request.
type Identity struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
}

type Claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
}

// TokenVerifier is the part of the issuer the request guard depends on.
type TokenVerifier interface {
	Verify(token string) (*Identity, error)
}

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{key: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for id and the time it expires.
func (t *TokenIssuer) Sign(id Identity) (string, time.Time, error) {
	if id.UserID <= 0 {
		return "", time.Time{}, fmt.Errorf("sign token: user id is required")
	}
	if !IsKnownRole(id.Role) {
		return "", time.Time{}, fmt.Errorf("sign token: unknown role %q", id.Role)
	}

	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: id.UserID,
		Role:   id.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (t *TokenIssuer) Verify(tokenStr string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID <= 0 || !IsKnownRole(claims.Role) {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: claims.UserID, Role: claims.Role}, nil
}
