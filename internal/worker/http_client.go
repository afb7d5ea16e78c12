package worker

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const userAgent = "insightops-webhooks/1.0"

// AttemptResult is the raw outcome of one outbound HTTP POST.
type AttemptResult struct {
	HTTPStatus   *int
	LatencyMs    int
	ResponseBody string
	Error        error
}

// Succeeded reports whether the attempt got a 2xx response.
func (r *AttemptResult) Succeeded() bool {
	return r.Error == nil && r.HTTPStatus != nil && *r.HTTPStatus >= 200 && *r.HTTPStatus < 300
}

// ErrorText returns a short description of the failure, or nil on success.
func (r *AttemptResult) ErrorText() *string {
	var msg string
	switch {
	case r.Error != nil:
		msg = r.Error.Error()
	case r.HTTPStatus != nil && !r.Succeeded():
		msg = fmt.Sprintf("HTTP %d", *r.HTTPStatus)
	default:
		return nil
	}
	return &msg
}

// postPayload performs a single signed HTTP POST to the webhook URL. The body
// must be the exact bytes the signature was computed over.
func postPayload(
	client *http.Client,
	url string,
	body []byte,
	signature, eventType, deliveryID string,
	maxResponseBodySize int,
	logger *zap.Logger,
) *AttemptResult {
	result := &AttemptResult{}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		result.Error = fmt.Errorf("failed to create HTTP request: %w", err)
		return result
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Event", eventType)
	req.Header.Set("X-Webhook-Delivery", deliveryID)
	req.Header.Set("User-Agent", userAgent)

	startTime := time.Now()
	resp, err := client.Do(req)
	result.LatencyMs = int(time.Since(startTime).Milliseconds())
	if err != nil {
		// Network/timeout error
		result.Error = fmt.Errorf("HTTP request failed: %w", err)
		return result
	}
	defer resp.Body.Close()

	result.LatencyMs = int(time.Since(startTime).Milliseconds())
	result.HTTPStatus = &resp.StatusCode

	// Read at most maxResponseBodySize bytes; anything beyond is discarded.
	responseBody, readErr := io.ReadAll(io.LimitReader(resp.Body, int64(maxResponseBodySize)))
	if readErr != nil {
		logger.Warn("Failed to read response body",
			zap.Error(readErr),
			zap.String("url", url),
		)
	}
	result.ResponseBody = string(responseBody)

	return result
}
