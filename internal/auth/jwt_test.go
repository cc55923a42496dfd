package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumiere-trade/courier/internal/channel"
	"github.com/lumiere-trade/courier/internal/courier"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID, wallet string, exp time.Time) string {
	t.Helper()
	claims := &registeredClaims{
		UserID:        userID,
		WalletAddress: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func TestVerifyToken_Valid(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, "123", "0xabc", time.Now().Add(time.Hour))

	claims, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.UserID != "123" || claims.WalletAddress != "0xabc" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, "123", "0xabc", time.Now().Add(-time.Hour))

	_, err := v.VerifyToken(token)
	if !errors.Is(err, courier.ErrTokenExpired) {
		t.Errorf("VerifyToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	token := signToken(t, "123", "0xabc", time.Now().Add(time.Hour))

	wrong := NewVerifier("not-the-real-secret")
	_, err := wrong.VerifyToken(token)
	if !errors.Is(err, courier.ErrTokenInvalid) {
		t.Errorf("VerifyToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyToken_MissingClaims(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, "", "", time.Now().Add(time.Hour))

	_, err := v.VerifyToken(token)
	if !errors.Is(err, courier.ErrTokenInvalid) {
		t.Errorf("VerifyToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyChannelAccess(t *testing.T) {
	cases := []struct {
		userID string
		name   string
		kind   channel.Kind
		want   bool
	}{
		{"123", "global", channel.Global, true},
		{"123", "user.123", channel.User, true},
		{"123", "user.456", channel.User, false},
		{"123", "strategy.momentum", channel.Strategy, true},
		{"123", "trade", channel.Public, true},
		{"123", "something.else", channel.Other, false},
	}
	for _, tc := range cases {
		got := VerifyChannelAccess(tc.userID, tc.name, tc.kind)
		if got != tc.want {
			t.Errorf("VerifyChannelAccess(%q, %q, %v) = %v, want %v", tc.userID, tc.name, tc.kind, got, tc.want)
		}
	}
}

func TestAnonymousChannelAccess(t *testing.T) {
	if !AnonymousChannelAccess(channel.Public) {
		t.Error("anonymous should access public channels")
	}
	if !AnonymousChannelAccess(channel.EphemeralForge) {
		t.Error("anonymous should access ephemeral forge channels")
	}
	if AnonymousChannelAccess(channel.User) {
		t.Error("anonymous should not access user channels")
	}
	if AnonymousChannelAccess(channel.Global) {
		t.Error("anonymous should not access global without auth")
	}
}
