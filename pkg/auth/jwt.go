// Package auth issues and validates the bearer tokens that guard the admin
// API's mutating endpoints (kill, schedlog on/off) and its audit query. There is
// exactly one principal — the operator account configured in
// internal/config.AuthConfig — so this is deliberately simpler than a
// multi-role RBAC system: a valid token means "the operator", full stop.
package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bfsched/kernel/internal/config"
)

// JWTService issues and verifies RS256 bearer tokens for the operator
// account. The key pair is generated fresh per process: tokens do not need
// to survive a restart, since the only client is the operator's own CLI or
// browser session talking to a freshly booted scheduler.
type JWTService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	expiration time.Duration
}

// Claims identifies the operator and carries standard registered claims.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// NewJWTService generates a fresh RSA key pair and configures token
// lifetime from cfg.
func NewJWTService(cfg *config.AuthConfig) (*JWTService, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("auth: generate RSA key: %w", err)
	}

	svc := &JWTService{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		issuer:     "bfsched",
		expiration: 8 * time.Hour,
	}
	if cfg != nil {
		if cfg.Issuer != "" {
			svc.issuer = cfg.Issuer
		}
		if cfg.TokenExpiry > 0 {
			svc.expiration = cfg.TokenExpiry
		}
	}
	return svc, nil
}

// GenerateToken issues a signed access token for username, valid for the
// service's configured expiration.
func (j *JWTService) GenerateToken(username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.expiration)

	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        fmt.Sprintf("%s_%d", username, now.UnixNano()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(j.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and verifies tokenString, returning its claims.
func (j *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Header["alg"])
		}
		return j.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token claims")
	}
	return claims, nil
}
