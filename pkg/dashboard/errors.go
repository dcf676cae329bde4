package dashboard

import "fmt"

// AuthenticationError means no usable credentials could be resolved at
// session-start time. Distinct from SessionExpiredError: nothing was
// ever valid here.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("dashboard: authentication failed: %s", e.Reason)
}

// SessionExpiredError means the dashboard rejected previously valid
// credentials with 401 or 403. The coordinator keys its one-shot
// refresh-and-retry protocol off this exact type, so it must never be
// collapsed into NetworkError.
type SessionExpiredError struct {
	StatusCode int
	Endpoint   string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("dashboard: session expired (status %d) at %s", e.StatusCode, e.Endpoint)
}

// NetworkError covers every other non-2xx response or transport
// failure.
type NetworkError struct {
	StatusCode int
	Endpoint   string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dashboard: request to %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("dashboard: request to %s returned status %d", e.Endpoint, e.StatusCode)
}

func (e *NetworkError) Unwrap() error { return e.Err }
