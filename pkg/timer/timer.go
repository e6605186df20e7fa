// Package timer measures operation durations and logs them.
package timer

import (
	"time"

	"github.com/sirupsen/logrus"
)

// slowThreshold marks operations worth a warning instead of a debug line.
const slowThreshold = 30 * time.Second

// Timer measures a single named operation from Start to Stop.
type Timer struct {
	operation string
	start     time.Time
	log       *logrus.Entry
}

// Start begins timing the named operation.
func Start(operation string, log *logrus.Entry) *Timer {
	return &Timer{
		operation: operation,
		start:     time.Now(),
		log:       log,
	}
}

// Stop logs how long the operation took and returns the duration.
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)
	entry := t.log.WithFields(logrus.Fields{
		"operation": t.operation,
		"duration":  duration.Round(time.Millisecond).String(),
	})
	if duration > slowThreshold {
		entry.Warn("operation took longer than expected")
	} else {
		entry.Debug("operation completed")
	}
	return duration
}
