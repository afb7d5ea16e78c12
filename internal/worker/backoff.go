package worker

import "time"

// maxBackoffShift caps the exponent so the doubling cannot overflow a
// time.Duration even with a large configured base.
const maxBackoffShift = 20

// BackoffDelay returns the delay scheduled after attempt number
// attemptCount has failed (1-indexed): backoff_seconds * 2^(attemptCount-1).
// Attempt 1 failing schedules the second attempt after one backoff unit.
func BackoffDelay(backoffSeconds, attemptCount int) time.Duration {
	if backoffSeconds < 1 {
		backoffSeconds = 1
	}
	shift := attemptCount - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return time.Duration(backoffSeconds) * time.Second << shift
}
