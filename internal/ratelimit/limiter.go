package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time

// Limiter admits or rejects requests per key.
type Limiter interface {
	// Admit records and admits the request when the key is under quota.
	// A rejected request leaves the key's history unchanged.
	Admit(ctx context.Context, key string) (bool, error)
	// Live returns the admitted timestamps still inside the window, oldest first.
	Live(ctx context.Context, key string) ([]time.Time, error)
	// Reset forgets all history for key.
	Reset(ctx context.Context, key string) error
	// RetryAfter is how long until key may be admitted again, read on the
	// limiter's own clock. It is 0 when the key has room now.
	RetryAfter(ctx context.Context, key string) (time.Duration, error)
	// Limits returns the quota and window length.
	Limits() (max int, window time.Duration)
}

// untilRoom returns how long until the live count drops below max.
func untilRoom(live []time.Time, max int, window time.Duration, now time.Time) time.Duration {
	if len(live) < max {
		return 0
	}
	d := live[len(live)-max].Add(window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Key joins a purpose tag and a subject into a limiter key.
// The subject is used verbatim; addresses are not case-normalized.
func Key(purpose, subject string) string {
	return purpose + "-" + subject
}

// Describe renders a quota for client-facing messages, e.g. "max 2 requests per hour".
func Describe(max int, window time.Duration) string {
	return fmt.Sprintf("max %d requests per %s", max, windowUnit(window))
}

func windowUnit(d time.Duration) string {
	switch d {
	case time.Hour:
		return "hour"
	case time.Minute:
		return "minute"
	case 24 * time.Hour:
		return "day"
	}
	if d%time.Hour == 0 {
		return strconv.Itoa(int(d/time.Hour)) + " hours"
	}
	return d.String()
}
