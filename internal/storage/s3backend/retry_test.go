package s3backend

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryer() retryer {
	return retryer{maxAttempts: 3, baseDelay: time.Millisecond}
}

func TestRetryTransientFailureIsRepeated(t *testing.T) {
	throttled := minio.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}

	attempts := 0
	err := fastRetryer().do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return throttled
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := fastRetryer().do(context.Background(), func() error {
		attempts++
		return minio.ErrorResponse{Code: "InternalError", StatusCode: http.StatusInternalServerError}
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryClientErrorFailsImmediately(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}

	attempts := 0
	err := fastRetryer().do(context.Background(), func() error {
		attempts++
		return missing
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := fastRetryer().do(ctx, func() error {
		attempts++
		return errors.New("connection reset")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("connection reset")))
	assert.True(t, isTransient(minio.ErrorResponse{Code: "RequestTimeout", StatusCode: http.StatusBadRequest}))
	assert.True(t, isTransient(minio.ErrorResponse{Code: "Throttled", StatusCode: http.StatusTooManyRequests}))
	assert.False(t, isTransient(minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}))
	assert.False(t, isTransient(context.Canceled))
}
