package s3backend

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	minio "github.com/minio/minio-go/v7"
)

// retryer reissues transient S3 failures with jittered exponential backoff.
// Client errors (missing key, bad credentials) fail immediately; only
// throttling, server-side errors, and network failures are worth repeating.
type retryer struct {
	maxAttempts int
	baseDelay   time.Duration
}

func newRetryer() retryer {
	return retryer{maxAttempts: 3, baseDelay: 200 * time.Millisecond}
}

func (r retryer) do(ctx context.Context, fn func() error) error {
	delay := r.baseDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || attempt == r.maxAttempts || !isTransient(err) {
			return err
		}
		jitter := time.Duration(rand.Int63n(int64(delay/2) + 1))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		// Network-level failure, the request never got an S3 answer.
		return true
	}
	switch resp.Code {
	case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
		return true
	}
	return resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= http.StatusInternalServerError
}
