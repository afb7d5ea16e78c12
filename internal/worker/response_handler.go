package worker

import (
	"fmt"
	"time"

	"github.com/insightops/webhook-engine/internal/models"
)

// Transition is the state-machine step decided after one delivery attempt.
type Transition struct {
	Status       string
	NextRetryAt  *time.Time // set only when Status is retrying
	ErrorMessage *string
}

// ProcessResult classifies one attempt outcome. attemptCount already includes
// the attempt that just ran. A 2xx response succeeds; every other response or
// transport error is retryable until the attempt budget is exhausted.
func ProcessResult(result *AttemptResult, attemptCount, maxAttempts, backoffSeconds int, now time.Time) Transition {
	if result.Succeeded() {
		return Transition{Status: models.DeliveryStatusSuccess}
	}

	errMsg := result.ErrorText()
	if errMsg == nil {
		msg := "no HTTP status code received"
		errMsg = &msg
	}

	if attemptCount >= maxAttempts {
		exhausted := fmt.Sprintf("max attempts reached: %s", *errMsg)
		return Transition{
			Status:       models.DeliveryStatusFailed,
			ErrorMessage: &exhausted,
		}
	}

	nextRetryAt := now.Add(BackoffDelay(backoffSeconds, attemptCount))
	return Transition{
		Status:       models.DeliveryStatusRetrying,
		NextRetryAt:  &nextRetryAt,
		ErrorMessage: errMsg,
	}
}
