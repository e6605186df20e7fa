// Package cycle runs the retry-governed daily wallpaper cycle: a pure
// fetch gate, bounded attempt bookkeeping, and a coordinator that treats
// fetch, desktop update, and TV delivery as independently retried
// operations.
package cycle

import (
	"time"

	"bingwall/pkg/config"
	"bingwall/pkg/state"
)

// EnabledOps returns the operations the success policy counts, in the
// order they run. Fetch is always counted; the dependent operations only
// when their feature is enabled.
func EnabledOps(cfg *config.Config) []string {
	ops := []string{state.OpFetch}
	if cfg.DesktopImg.Enabled {
		ops = append(ops, state.OpDesktopSet)
	}
	if cfg.FTV.Enabled {
		ops = append(ops, state.OpFTVDeliver)
	}
	return ops
}

// PolicySatisfied reports whether today's operation flags meet the success
// policy. Disabled operations are vacuously successful; with require_all
// off the fetch flag alone decides.
func PolicySatisfied(st *state.RunState, cfg *config.Config) bool {
	if !cfg.Retry.RequireAllOperationsSuccess {
		return st.Flag(state.OpFetch)
	}
	for _, op := range EnabledOps(cfg) {
		if !st.Flag(op) {
			return false
		}
	}
	return true
}

// ShouldAttempt is the fetch gate. Pure: it reads the clock value and the
// state it is given, nothing else.
//
// The gate blocks when today already succeeded under the policy, when the
// daily attempt budget is spent, or when the first attempt of the day
// would run before time_to_fetch. Later retries are not time-gated, so an
// early failure keeps its hourly retry cadence. With retry disabled the
// gate always passes.
func ShouldAttempt(now time.Time, st *state.RunState, cfg *config.Config) bool {
	if !cfg.Retry.Enabled {
		return true
	}

	today := state.DateOf(now)
	if st.LastSuccessDate == today && PolicySatisfied(st, cfg) {
		return false
	}
	if st.AttemptsToday >= cfg.Retry.MaxAttemptsPerDay {
		return false
	}
	if st.AttemptsToday == 0 && now.Before(cfg.FetchClock.On(now)) {
		return false
	}
	return true
}

// Rollover resets the daily counters when the calendar day changed since
// the last run, or when the same day crosses daily_reset_time for the
// first time. At most one reset fires per day; LastResetDate is the guard.
// It reports whether the state was mutated.
func Rollover(now time.Time, st *state.RunState, cfg *config.Config) bool {
	today := state.DateOf(now)
	if st.LastRunDate == "" || st.LastRunDate != today {
		st.ResetDaily(today)
		return true
	}
	if st.LastResetDate != today && !now.Before(cfg.Retry.ResetClock.On(now)) {
		st.ResetDaily(today)
		return true
	}
	return false
}
