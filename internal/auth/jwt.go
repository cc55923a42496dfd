// Package auth verifies subscriber JWTs and evaluates channel-access
// policy. It never issues tokens — the signing authority is an external
// collaborator (spec: "the core verifies, does not issue").
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumiere-trade/courier/internal/channel"
	"github.com/lumiere-trade/courier/internal/courier"
)

// Claims is the subset of a verified token's payload the broker cares
// about.
type Claims struct {
	UserID        string `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
}

type registeredClaims struct {
	UserID        string `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
	jwt.RegisteredClaims
}

// Verifier verifies HS256-signed tokens under a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier bound to a shared secret. The
// algorithm is fixed to HS256, the spec's default.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyToken decodes and verifies a token's signature and expiry, and
// extracts its required claims. Failures are always one of
// courier.ErrTokenExpired or courier.ErrTokenInvalid.
func (v *Verifier) VerifyToken(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &registeredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if strings.Contains(err.Error(), "token is expired") {
			return Claims{}, courier.ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", courier.ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*registeredClaims)
	if !ok || !parsed.Valid {
		return Claims{}, courier.ErrTokenInvalid
	}

	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return Claims{}, courier.ErrTokenInvalid
	}
	if claims.ExpiresAt.Before(time.Now()) {
		return Claims{}, courier.ErrTokenExpired
	}
	if claims.UserID == "" || claims.WalletAddress == "" {
		return Claims{}, courier.ErrTokenInvalid
	}

	return Claims{UserID: claims.UserID, WalletAddress: claims.WalletAddress}, nil
}

// VerifyChannelAccess evaluates the channel-access policy for a given user
// and channel kind/name pair:
//   - global: always allowed
//   - user.<id>: allowed iff <id> equals userID
//   - strategy.*, forge.job.*, backtest.*: allowed for any authenticated user
//   - public topics: allowed for anyone
//   - otherwise: denied
//
// userID is empty for anonymous callers.
func VerifyChannelAccess(userID string, name string, kind channel.Kind) bool {
	switch kind {
	case channel.Global, channel.Public:
		return true
	case channel.User:
		return userID != "" && channel.UserID(name) == userID
	case channel.Strategy, channel.EphemeralForge, channel.EphemeralBacktest:
		return userID != ""
	default:
		return false
	}
}

// AnonymousChannelAccess evaluates access for a connection that presented
// no token while REQUIRE_AUTH is false: anonymous callers are treated as
// having access to public and ephemeral channels only.
func AnonymousChannelAccess(kind channel.Kind) bool {
	switch kind {
	case channel.Public, channel.EphemeralForge, channel.EphemeralBacktest:
		return true
	default:
		return false
	}
}
