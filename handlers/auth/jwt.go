package auth

import (
	"car-management/service/accounts"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	accessKind  = "access"
	refreshKind = "refresh"
)

// AppClaims represents the custom claims for the JWT. Subject is the user id.
type AppClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"typ"`
}

// Tokens issues and verifies HS256 access and refresh tokens. The two
// kinds use different secrets and are not interchangeable.
type Tokens struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokens(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (t *Tokens) sign(userID, kind string, ttl time.Duration, secret []byte) (string, error) {
	now := t.now()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (t *Tokens) IssuePair(userID string) (accounts.TokenPair, error) {
	access, err := t.sign(userID, accessKind, t.accessTTL, t.accessSecret)
	if err != nil {
		return accounts.TokenPair{}, err
	}
	refresh, err := t.sign(userID, refreshKind, t.refreshTTL, t.refreshSecret)
	if err != nil {
		return accounts.TokenPair{}, err
	}
	return accounts.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *Tokens) parse(tokenString, kind string, secret []byte) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AppClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("not an %s token", kind)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// ParseAccessToken verifies an access token and returns its claims.
func (t *Tokens) ParseAccessToken(token string) (*AppClaims, error) {
	return t.parse(token, accessKind, t.accessSecret)
}

func (t *Tokens) ParseRefreshToken(token string) (string, error) {
	claims, err := t.parse(token, refreshKind, t.refreshSecret)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
