package gateway

import (
	"context"
	"errors"
	"net"
	"strings"

	apperrors "github.com/kazankay/eventpipe/pkg/errors"
)

var quotaKeywords = []string{
	"insufficient_quota",
	"quota exceeded",
	"quota_exceeded",
	"out of quota",
	"billing hard limit",
	"exceeded your current quota",
}

var authKeywords = []string{
	"invalid api key",
	"invalid key",
	"unauthorized",
	"authentication",
}

// classify maps a provider failure onto exactly one taxonomy sentinel.
// Quota is checked before auth: providers report billing exhaustion with
// assorted status codes, and it must abort the whole run.
func classify(status int, body string, err error) *apperrors.CallError {
	lower := strings.ToLower(body)
	if err != nil {
		lower = lower + " " + strings.ToLower(err.Error())
	}

	for _, kw := range quotaKeywords {
		if strings.Contains(lower, kw) {
			return apperrors.NewCall(apperrors.ErrQuotaExhausted, status, bodyErr(body, err))
		}
	}

	if status == 401 || status == 403 {
		return apperrors.NewCall(apperrors.ErrAuth, status, bodyErr(body, err))
	}
	for _, kw := range authKeywords {
		if strings.Contains(lower, kw) {
			return apperrors.NewCall(apperrors.ErrAuth, status, bodyErr(body, err))
		}
	}

	if status == 429 || strings.Contains(lower, "too many requests") {
		return apperrors.NewCall(apperrors.ErrRateLimited, status, bodyErr(body, err))
	}

	if isNetworkError(err) || status >= 500 {
		return apperrors.NewCall(apperrors.ErrTransient, status, bodyErr(body, err))
	}

	return apperrors.NewCall(apperrors.ErrModel, status, bodyErr(body, err))
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func bodyErr(body string, err error) error {
	if err != nil {
		return err
	}
	const maxLen = 200
	if len(body) > maxLen {
		body = body[:maxLen]
	}
	return errors.New(strings.TrimSpace(body))
}
