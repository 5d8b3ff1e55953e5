package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/kazankay/eventpipe/pkg/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		err    error
		want   error
	}{
		{"quota keyword in body", 429, `{"error": {"message": "You exceeded your current quota"}}`, nil, apperrors.ErrQuotaExhausted},
		{"insufficient_quota code", 402, `{"error": {"type": "insufficient_quota"}}`, nil, apperrors.ErrQuotaExhausted},
		{"billing hard limit", 400, "billing hard limit reached", nil, apperrors.ErrQuotaExhausted},
		{"401 unauthorized", 401, "", nil, apperrors.ErrAuth},
		{"403 forbidden", 403, "", nil, apperrors.ErrAuth},
		{"invalid key keyword", 400, "Invalid API key provided", nil, apperrors.ErrAuth},
		{"429 rate limited", 429, "slow down", nil, apperrors.ErrRateLimited},
		{"too many requests keyword", 200, "", errors.New("too many requests"), apperrors.ErrRateLimited},
		{"500 transient", 500, "internal error", nil, apperrors.ErrTransient},
		{"503 transient", 503, "", nil, apperrors.ErrTransient},
		{"deadline exceeded", 0, "", context.DeadlineExceeded, apperrors.ErrTransient},
		{"400 other", 400, "malformed request", nil, apperrors.ErrModel},
		{"unclassifiable", 0, "", errors.New("boom"), apperrors.ErrModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.status, tt.body, tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.Equal(t, tt.status, got.Status)
		})
	}
}

func TestClassify_QuotaBeatsRateLimitStatus(t *testing.T) {
	// providers report billing exhaustion with a 429 as well
	got := classify(429, "quota exceeded for this month", nil)
	assert.ErrorIs(t, got, apperrors.ErrQuotaExhausted)
	assert.NotErrorIs(t, got, apperrors.ErrRateLimited)
}
