package config

import (
	"fmt"
	"strings"
	"time"
)

// Clock is a time of day with second resolution.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// ParseClock parses "HH:MM:SS".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04:05", strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("failed to parse clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

// On places the clock on the given calendar day, in that day's location.
func (c Clock) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, c.Second, 0, day.Location())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}
