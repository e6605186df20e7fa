// Package state persists the daily retry run state.
package state

import (
	"time"
)

// DateFormat is the calendar-date layout used throughout the state file.
const DateFormat = "2006-01-02"

// Operation names tracked in RunState.OperationFlags.
const (
	OpFetch      = "fetch"
	OpDesktopSet = "desktop_set"
	OpFTVDeliver = "ftv_deliver"
)

// RunState is the durable record of today's attempts and per-operation
// success flags. Dates are DateFormat strings, timestamps RFC3339, so the
// file round-trips exactly.
type RunState struct {
	LastRunDate     string          `json:"last_run_date"`
	LastResetDate   string          `json:"last_reset_date"`
	LastSuccessDate string          `json:"last_success_date"`
	AttemptsToday   int             `json:"attempts_today"`
	LastAttemptTime string          `json:"last_attempt_time"`
	LastSuccessTime string          `json:"last_success_time"`
	FailureReasons  []string        `json:"failure_reasons"`
	OperationFlags  map[string]bool `json:"operation_flags"`
	DeliveryMode    string          `json:"delivery_mode"`
}

// New returns a fresh RunState with all flags false.
func New() *RunState {
	return &RunState{
		FailureReasons: []string{},
		OperationFlags: map[string]bool{
			OpFetch:      false,
			OpDesktopSet: false,
			OpFTVDeliver: false,
		},
	}
}

// DateOf formats a calendar date the way the state file stores it.
func DateOf(t time.Time) string {
	return t.Format(DateFormat)
}

// ResetDaily clears today's attempts and flags. Success history
// (LastSuccessDate, LastSuccessTime) is preserved for the gate.
func (st *RunState) ResetDaily(today string) {
	st.LastRunDate = today
	st.LastResetDate = today
	st.AttemptsToday = 0
	st.LastAttemptTime = ""
	st.FailureReasons = []string{}
	st.OperationFlags = map[string]bool{
		OpFetch:      false,
		OpDesktopSet: false,
		OpFTVDeliver: false,
	}
	st.DeliveryMode = ""
}

// Flag reports the success flag for op, treating a missing entry as false.
func (st *RunState) Flag(op string) bool {
	if st.OperationFlags == nil {
		return false
	}
	return st.OperationFlags[op]
}

// SetFlag records an operation result. A failure with a non-empty reason is
// appended to FailureReasons as "op: reason".
func (st *RunState) SetFlag(op string, ok bool, reason string) {
	if st.OperationFlags == nil {
		st.OperationFlags = make(map[string]bool)
	}
	st.OperationFlags[op] = ok
	if !ok && reason != "" {
		st.FailureReasons = append(st.FailureReasons, op+": "+reason)
	}
}

// MarkSuccess records that today's run satisfied the success policy.
func (st *RunState) MarkSuccess(now time.Time) {
	st.LastSuccessDate = DateOf(now)
	st.LastSuccessTime = now.Format(time.RFC3339)
	st.FailureReasons = []string{}
}

// normalize fills nil collections after a load so callers never see nil maps.
func (st *RunState) normalize() {
	if st.OperationFlags == nil {
		st.OperationFlags = map[string]bool{
			OpFetch:      false,
			OpDesktopSet: false,
			OpFTVDeliver: false,
		}
	}
	if st.FailureReasons == nil {
		st.FailureReasons = []string{}
	}
}
