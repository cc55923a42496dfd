// Package channel validates and classifies channel names.
//
// A channel name is the routing key producers and subscribers use to find
// each other. Validation and classification are pure functions: no I/O, no
// locks, safe to call from any goroutine.
package channel

import (
	"fmt"
	"strings"
)

// Kind classifies a channel name into one of a fixed set of categories.
type Kind int

const (
	Global Kind = iota
	User
	Strategy
	EphemeralForge
	EphemeralBacktest
	Public
	Other
)

func (k Kind) String() string {
	switch k {
	case Global:
		return "global"
	case User:
		return "user"
	case Strategy:
		return "strategy"
	case EphemeralForge:
		return "forge_job"
	case EphemeralBacktest:
		return "backtest"
	case Public:
		return "public"
	default:
		return "other"
	}
}

// Ephemeral reports whether channels of this kind are reclaimed once empty.
func (k Kind) Ephemeral() bool {
	return k == EphemeralForge || k == EphemeralBacktest
}

// Retained reports whether a channel of this kind is kept even when its
// subscriber set is empty. Ephemeral and "other" channels are reclaimable;
// every kind named here is not. Pre-declared channels are kept regardless
// of kind.
func (k Kind) Retained() bool {
	return k == Global || k == User || k == Strategy || k == Public
}

const maxNameLength = 100

// publicTopics is the fixed set of well-known public channel names.
var publicTopics = map[string]struct{}{
	"trade":        {},
	"candles":      {},
	"sys":          {},
	"rsi":          {},
	"extrema":      {},
	"analysis":     {},
	"subscription": {},
	"payment":      {},
	"deposit":      {},
}

// ErrInvalid describes why a channel name failed validation.
type ErrInvalid struct {
	Name   string
	Reason string
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("invalid channel name %q: %s", e.Name, e.Reason)
}

// Validate checks a channel name against the syntactic rule set and, if
// valid, classifies it. All rules must hold:
//   - non-empty
//   - length <= 100
//   - characters drawn from [a-z0-9.-] only
//   - no leading or trailing dot
func Validate(name string) (Kind, error) {
	if name == "" {
		return Other, &ErrInvalid{Name: name, Reason: "must not be empty"}
	}
	if len(name) > maxNameLength {
		return Other, &ErrInvalid{Name: name, Reason: fmt.Sprintf("length %d exceeds %d", len(name), maxNameLength)}
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		ok := (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '.' || c == '-'
		if !ok {
			return Other, &ErrInvalid{Name: name, Reason: fmt.Sprintf("character %q not allowed", string(c))}
		}
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return Other, &ErrInvalid{Name: name, Reason: "must not start or end with a dot"}
	}

	return classify(name), nil
}

func classify(name string) Kind {
	switch {
	case name == "global":
		return Global
	case strings.HasPrefix(name, "user."):
		return User
	case strings.HasPrefix(name, "strategy."):
		return Strategy
	case strings.HasPrefix(name, "forge.job."):
		return EphemeralForge
	case strings.HasPrefix(name, "backtest."):
		return EphemeralBacktest
	}
	if _, ok := publicTopics[name]; ok {
		return Public
	}
	return Other
}

// UserID extracts the id suffix from a "user.<id>" channel name. It is the
// caller's responsibility to have already confirmed the channel's kind is
// User.
func UserID(name string) string {
	return strings.TrimPrefix(name, "user.")
}
