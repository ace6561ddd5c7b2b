package debrid

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"torrentstream/resolver/internal/domain"
)

var ErrNotConfigured = fmt.Errorf("%w: api key is not configured", domain.ErrAuth)

// Remote error codes that change how a failure is classified.
const (
	codeBadToken          = 8
	codePermissionDenied  = 9
	codeHosterUnsupported = 16
	codeTooManyRequests   = 34
	codeAccountLocked     = 22
)

// APIError is a non-2xx answer from the debrid service. It unwraps to the
// matching domain sentinel, if any.
type APIError struct {
	StatusCode int
	Token      string
	Code       int
	kind       error
}

func (e *APIError) Error() string {
	token := e.Token
	if token == "" {
		token = http.StatusText(e.StatusCode)
	}
	if e.Code != 0 {
		return fmt.Sprintf("debrid HTTP %d: %s (code %d)", e.StatusCode, token, e.Code)
	}
	return fmt.Sprintf("debrid HTTP %d: %s", e.StatusCode, token)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

func newAPIError(status int, body []byte) *APIError {
	var parsed errorBody
	_ = json.Unmarshal(body, &parsed)
	apiErr := &APIError{
		StatusCode: status,
		Token:      strings.TrimSpace(parsed.Error),
		Code:       parsed.ErrorCode,
	}
	apiErr.kind = classifyAPIError(apiErr)
	return apiErr
}

func classifyAPIError(e *APIError) error {
	token := strings.ToLower(e.Token)
	switch {
	case token == "hoster_unsupported" || e.Code == codeHosterUnsupported:
		return domain.ErrHosterUnsupported
	case e.StatusCode == http.StatusUnauthorized,
		token == "bad_token", token == "permission_denied", token == "account_locked",
		e.Code == codeBadToken, e.Code == codePermissionDenied, e.Code == codeAccountLocked:
		return domain.ErrAuth
	case e.StatusCode == http.StatusForbidden:
		return domain.ErrAuth
	case e.StatusCode == http.StatusTooManyRequests || e.Code == codeTooManyRequests:
		return domain.ErrRateLimited
	case e.StatusCode >= 500:
		return domain.ErrTransient
	case e.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	default:
		return nil
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, domain.ErrTransient)
}
