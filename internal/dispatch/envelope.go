// Package dispatch orchestrates one function-call event: resolve the tool,
// enrich missing parameters from the call's session context, invoke the
// backend with bounded retry, persist newly learned identifiers, and return
// a uniform envelope the voice engine can speak.
package dispatch

// ErrorKind classifies a failed dispatch for the voice engine.
type ErrorKind string

const (
	// ErrUnknownFunction means the function name is not in the registry.
	ErrUnknownFunction ErrorKind = "UnknownFunction"

	// ErrMissingParameter means a required key was neither supplied nor
	// resolvable from session context.
	ErrMissingParameter ErrorKind = "MissingParameter"

	// ErrInvalidParameter means the effective parameters failed the
	// tool's schema.
	ErrInvalidParameter ErrorKind = "InvalidParameter"

	// ErrRemoteTimeout means the backend did not answer within budget.
	ErrRemoteTimeout ErrorKind = "RemoteTimeout"

	// ErrRemoteUnavailable means a transport-level backend failure after
	// retries were exhausted.
	ErrRemoteUnavailable ErrorKind = "RemoteUnavailable"

	// ErrRemoteRejected means the backend refused the request (4xx);
	// the data is bad, not the system.
	ErrRemoteRejected ErrorKind = "RemoteRejected"

	// ErrRemoteServerError means the backend kept failing with 5xx.
	ErrRemoteServerError ErrorKind = "RemoteServerError"

	// ErrUnauthorized means the backend rejected our credentials.
	ErrUnauthorized ErrorKind = "Unauthorized"
)

// Envelope is the uniform dispatch result. Exactly one of Data (with
// Success true) or ErrorKind (with Success false) is populated.
type Envelope struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
}

func succeeded(data any, message string) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

func failed(kind ErrorKind, message string) Envelope {
	return Envelope{Success: false, Message: message, ErrorKind: kind}
}
