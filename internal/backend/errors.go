package backend

import "fmt"

// FailureKind classifies an upstream API failure. The dispatcher maps these
// to spoken error envelopes and the retry layer uses them to decide whether
// another attempt can help.
type FailureKind string

const (
	// FailureTimeout is a request that exceeded its deadline. Retryable.
	FailureTimeout FailureKind = "timeout"

	// FailureTransport is a connection-level failure (refused, reset,
	// DNS). Retryable.
	FailureTransport FailureKind = "transport"

	// FailureRateLimited is a 429 from the upstream. Retryable.
	FailureRateLimited FailureKind = "rate_limited"

	// FailureRemote is a 5xx from the upstream. Retryable.
	FailureRemote FailureKind = "remote"

	// FailureUnauthorized is a 401/403; the API key is wrong, retrying
	// cannot help.
	FailureUnauthorized FailureKind = "unauthorized"

	// FailureNotFound is a 404; the looked-up resource does not exist.
	FailureNotFound FailureKind = "not_found"

	// FailureRejected is any other 4xx; the request itself is bad.
	FailureRejected FailureKind = "rejected"
)

// APIError is a typed failure from the customer-data API.
type APIError struct {
	Kind      FailureKind
	Operation string
	Status    int
	Message   string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("backend %s: %s (%d): %s", e.Operation, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("backend %s: %s: %s", e.Operation, e.Kind, e.Message)
}

// Retryable reports whether another attempt could succeed. 4xx rejections
// are structural and never retried; timeouts, transport failures, rate
// limits and 5xx are transient.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case FailureTimeout, FailureTransport, FailureRateLimited, FailureRemote:
		return true
	default:
		return false
	}
}

func classifyStatus(op string, status int, body string) *APIError {
	kind := FailureRejected
	switch {
	case status == 401 || status == 403:
		kind = FailureUnauthorized
	case status == 404:
		kind = FailureNotFound
	case status == 429:
		kind = FailureRateLimited
	case status >= 500:
		kind = FailureRemote
	}
	if len(body) > 500 {
		body = body[:500]
	}
	return &APIError{Kind: kind, Operation: op, Status: status, Message: body}
}
