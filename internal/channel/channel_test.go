package channel

import (
	"strings"
	"testing"
)

func TestValidate_Rules(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"", true},
		{strings.Repeat("a", 100), false},
		{strings.Repeat("a", 101), true},
		{"global", false},
		{"user.123", false},
		{"User.123", true}, // uppercase not allowed
		{"has_underscore", true},
		{".leading", true},
		{"trailing.", true},
		{"valid-name.one", false},
	}

	for _, tc := range cases {
		_, err := Validate(tc.name)
		if (err != nil) != tc.wantErr {
			t.Errorf("Validate(%q) err=%v, wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestValidate_Classification(t *testing.T) {
	cases := []struct {
		name string
		kind Kind
	}{
		{"global", Global},
		{"user.42", User},
		{"strategy.momentum", Strategy},
		{"forge.job.abc-123", EphemeralForge},
		{"backtest.run-7", EphemeralBacktest},
		{"trade", Public},
		{"candles", Public},
		{"something.else", Other},
	}

	for _, tc := range cases {
		kind, err := Validate(tc.name)
		if err != nil {
			t.Fatalf("Validate(%q) unexpected error: %v", tc.name, err)
		}
		if kind != tc.kind {
			t.Errorf("Validate(%q) kind=%v, want=%v", tc.name, kind, tc.kind)
		}
	}
}

func TestKind_Ephemeral(t *testing.T) {
	if !EphemeralForge.Ephemeral() || !EphemeralBacktest.Ephemeral() {
		t.Error("forge/backtest channels must be ephemeral")
	}
	if Global.Ephemeral() || User.Ephemeral() || Public.Ephemeral() || Other.Ephemeral() {
		t.Error("only forge/backtest channels are ephemeral")
	}
}

func TestKind_Retained(t *testing.T) {
	if !Global.Retained() || !User.Retained() || !Public.Retained() {
		t.Error("global/user/public channels must be retained when empty")
	}
	if Other.Retained() || EphemeralForge.Retained() || EphemeralBacktest.Retained() {
		t.Error("ephemeral and other channels must not be retained when empty")
	}
}

func TestUserID(t *testing.T) {
	if got := UserID("user.123"); got != "123" {
		t.Errorf("UserID = %q, want 123", got)
	}
}
