package cycle

import (
	"time"

	"bingwall/pkg/config"
	"bingwall/pkg/state"
)

// Status is the retry picture the status subcommand prints.
type Status struct {
	RetryEnabled      bool            `json:"retry_enabled"`
	MaxAttemptsPerDay int             `json:"max_attempts_per_day"`
	DailyResetTime    string          `json:"daily_reset_time"`
	CurrentState      *state.RunState `json:"current_state"`
	ShouldRun         bool            `json:"should_run"`
}

// StatusNow reports the gate's view at the given time without mutating
// anything.
func StatusNow(now time.Time, st *state.RunState, cfg *config.Config) Status {
	return Status{
		RetryEnabled:      cfg.Retry.Enabled,
		MaxAttemptsPerDay: cfg.Retry.MaxAttemptsPerDay,
		DailyResetTime:    cfg.Retry.DailyResetTime,
		CurrentState:      st,
		ShouldRun:         ShouldAttempt(now, st, cfg),
	}
}
