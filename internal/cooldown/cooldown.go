// Package cooldown remembers when the backend's daily import limit lifts
// and refuses imports until then.
package cooldown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Veraticus/bankflow/internal/api"
	"github.com/Veraticus/bankflow/internal/service"
)

// DailyLimitMessage opens every message about an exhausted import allowance.
const DailyLimitMessage = "You’ve used all available bank synchronizations for today"

// ActiveError is returned while a recorded cooldown has not elapsed.
type ActiveError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *ActiveError) Error() string {
	return fmt.Sprintf("%s. Try again in %s.", DailyLimitMessage, FormatRemaining(e.Remaining))
}

// UserMessage returns the text shown to users.
func (e *ActiveError) UserMessage() string {
	return e.Error()
}

// LimitError is a rate limit hit while starting an import.
type LimitError struct {
	Cause *api.RateLimitError
}

func (e *LimitError) Error() string {
	return Message(e.Cause)
}

// UserMessage returns the text shown to users.
func (e *LimitError) UserMessage() string {
	return e.Error()
}

func (e *LimitError) Unwrap() error {
	return e.Cause
}

// IsDailyLimit reports whether err means imports are blocked for now.
func IsDailyLimit(err error) bool {
	if err == nil {
		return false
	}
	var active *ActiveError
	var limit *LimitError
	var rl *api.RateLimitError
	if errors.As(err, &active) || errors.As(err, &limit) || errors.As(err, &rl) {
		return true
	}
	return strings.HasPrefix(err.Error(), DailyLimitMessage)
}

// Guard persists the cooldown boundary and checks it before imports.
type Guard struct {
	markers service.MarkerStore
	clock   service.Clock
}

// NewGuard creates a Guard. A nil clock uses the wall clock.
func NewGuard(markers service.MarkerStore, clock service.Clock) *Guard {
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &Guard{markers: markers, clock: clock}
}

// Check returns an *ActiveError while a cooldown is in effect. It never
// contacts the backend.
func (g *Guard) Check(ctx context.Context) error {
	remaining, active, err := g.Remaining(ctx)
	if err != nil {
		return err
	}
	if !active {
		return nil
	}
	return &ActiveError{Until: g.clock.Now().Add(remaining), Remaining: remaining}
}

// Remaining returns how long the cooldown still lasts. An elapsed cooldown
// is forgotten.
func (g *Guard) Remaining(ctx context.Context) (time.Duration, bool, error) {
	until, ok, err := g.markers.GetMarker(ctx, service.MarkerCooldownUntil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read sync cooldown: %w", err)
	}
	if !ok {
		return 0, false, nil
	}

	remaining := until.Sub(g.clock.Now())
	if remaining <= 0 {
		if err := g.markers.DeleteMarker(ctx, service.MarkerCooldownUntil); err != nil {
			slog.Warn("Failed to clear elapsed sync cooldown", "error", err)
		}
		return 0, false, nil
	}
	return remaining, true, nil
}

// Record persists now + RetryAfter. Nothing is stored when the backend did
// not say how long to wait.
func (g *Guard) Record(ctx context.Context, rl *api.RateLimitError) error {
	if rl == nil || rl.RetryAfter == nil || *rl.RetryAfter <= 0 {
		return nil
	}
	until := g.clock.Now().Add(*rl.RetryAfter)
	if err := g.markers.SetMarker(ctx, service.MarkerCooldownUntil, until); err != nil {
		return fmt.Errorf("failed to record sync cooldown: %w", err)
	}
	slog.Info("Bank sync limit reached", "until", until.Format(time.RFC3339))
	return nil
}

// Clear forgets any recorded cooldown.
func (g *Guard) Clear(ctx context.Context) error {
	return g.markers.DeleteMarker(ctx, service.MarkerCooldownUntil)
}

// Message returns the backend message with the wait in whole hours, rounded
// up, appended when known.
func Message(rl *api.RateLimitError) string {
	if rl == nil {
		return ""
	}
	if rl.RetryAfter == nil || *rl.RetryAfter <= 0 {
		return rl.Message
	}
	hours := int(math.Ceil(rl.RetryAfter.Hours()))
	return fmt.Sprintf("%s (%dh)", rl.Message, hours)
}

// FormatRemaining renders a wait rounded up to the minute: "45m" under an
// hour, "2h 5m" under four hours, "7h" beyond.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}
	totalMin := int(math.Ceil(d.Minutes()))
	hours := totalMin / 60
	mins := totalMin % 60
	switch {
	case hours <= 0:
		return fmt.Sprintf("%dm", mins)
	case hours < 4:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dh", hours)
	}
}
