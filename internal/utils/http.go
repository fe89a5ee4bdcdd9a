package utils

import "strings"

// HTTP status-code markers matched against the stringified error returned
// by go-git/go-git for a clone over HTTP(S); the library doesn't expose a
// typed status code, so callers are stuck pattern-matching like this.
const (
	StatusCodeUnauthorized       = "401"
	StatusCodeForbidden          = "403"
	StatusCodePageNotFound       = "404"
	StatusCodeTooManyRequests    = "429"
	StatusCodeServiceUnavailable = "503"
)

// IsPermanentCloneError reports whether err looks like an authentication or
// missing-repository failure: retrying with backoff would just repeat the
// same rejection five times, so SourceFetcher classifies these as
// non-transient instead of wrapping them errs.Transient.
func IsPermanentCloneError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, StatusCodeUnauthorized) ||
		strings.Contains(s, StatusCodeForbidden) ||
		strings.Contains(s, StatusCodePageNotFound)
}

// IsTooManyRequestsError reports a rate-limit response from the remote host.
func IsTooManyRequestsError(err error) bool {
	return err != nil && strings.Contains(err.Error(), StatusCodeTooManyRequests)
}

// IsServiceUnavailableError reports a transient outage at the remote host.
func IsServiceUnavailableError(err error) bool {
	return err != nil && strings.Contains(err.Error(), StatusCodeServiceUnavailable)
}
