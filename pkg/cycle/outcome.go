package cycle

// Outcome classifies one coordinator invocation.
type Outcome string

const (
	// Skipped means the gate blocked and nothing ran.
	Skipped Outcome = "skipped"

	// Succeeded means today's operation flags satisfy the success
	// policy; the gate stays closed for the rest of the day.
	Succeeded Outcome = "succeeded"

	// PartialFailure means at least one operation failed while retries
	// remain. The next cycle re-runs only the failed operations.
	PartialFailure Outcome = "partial_failure"

	// Failed means the fetch did not succeed and the daily attempt
	// budget is spent. Nothing more runs until the daily reset.
	Failed Outcome = "failed"
)
