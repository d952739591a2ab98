package mastodon

import "errors"

var (
	// ErrInvalidInput means the instance rejected what the user supplied
	// (an authorization code, an access token, a timeline name). Not retried.
	ErrInvalidInput = errors.New("invalid api input")

	// ErrConn means the instance could not be reached or kept failing
	// after all retries.
	ErrConn = errors.New("mastodon connection error")

	// ErrUnverifiedDomain means the domain does not answer as a Mastodon instance.
	ErrUnverifiedDomain = errors.New("domain is not a reachable mastodon instance")

	// ErrClientNotStarted is returned when a call needs StartAppClient or
	// StartUserClient first.
	ErrClientNotStarted = errors.New("client has not been started")
)

// APIError is a non-2xx answer from an instance.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "mastodon " + e.Endpoint + ": status " + statusText(e.StatusCode)
	}
	return "mastodon " + e.Endpoint + ": status " + statusText(e.StatusCode) + ": " + e.Message
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
