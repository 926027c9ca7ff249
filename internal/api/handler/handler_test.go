package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind domain.Kind
		want int
	}{
		{domain.KindInvalid, http.StatusBadRequest},
		{domain.KindUnauthenticated, http.StatusUnauthorized},
		{domain.KindForbidden, http.StatusForbidden},
		{domain.KindNotEligible, http.StatusForbidden},
		{domain.KindCapacityExceeded, http.StatusForbidden},
		{domain.KindNotAvailable, http.StatusForbidden},
		{domain.KindNotFound, http.StatusNotFound},
		{domain.KindPreconditionFailed, http.StatusConflict},
		{domain.KindConflict, http.StatusConflict},
		{domain.KindUnavailable, http.StatusServiceUnavailable},
		{domain.KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &domain.Error{Kind: tt.kind})
			assert.Equal(t, tt.want, HTTPStatus(err))
		})
	}

	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "job is no longer available",
		errorMessage(domain.E(domain.KindNotAvailable, "claim", "job is no longer available"), domain.KindNotAvailable, "fallback"))
	assert.Equal(t, "Service temporarily unavailable, retry later",
		errorMessage(domain.Wrap(domain.KindUnavailable, "lock job", errors.New("lock timeout")), domain.KindUnavailable, "fallback"))
	assert.Equal(t, "fallback",
		errorMessage(errors.New("pq: relation does not exist"), domain.KindInternal, "fallback"))
}

func TestJobCursor(t *testing.T) {
	at := time.Date(2026, 1, 10, 8, 0, 0, 123, time.UTC)

	encoded := EncodeJobCursor(&domain.JobCursor{CreatedAt: at, JobID: "job-1"})
	decoded, err := DecodeJobCursor(encoded)
	require.NoError(t, err)
	assert.True(t, at.Equal(decoded.CreatedAt))
	assert.Equal(t, "job-1", decoded.JobID)

	empty, err := DecodeJobCursor("")
	require.NoError(t, err)
	assert.Nil(t, empty)

	for _, bad := range []string{
		"%%%",
		base64.URLEncoding.EncodeToString([]byte("no-separator")),
		base64.URLEncoding.EncodeToString([]byte("abc|job-1")),
		base64.URLEncoding.EncodeToString([]byte("123|")),
	} {
		_, err := DecodeJobCursor(bad)
		assert.Error(t, err, bad)
	}
}
