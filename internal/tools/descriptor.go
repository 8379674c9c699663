// Package tools defines the closed registry of functions the voice engine
// may call. Each tool is a declarative descriptor: its required parameters,
// the session context keys it may borrow or contribute, and the backend
// operation it performs. The dispatcher's control flow never changes when a
// tool is added; adding one is a table entry plus a thin invoke function.
package tools

import (
	"context"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// InvokeFunc executes the tool's backend operation with the effective
// (request + context-filled) parameter set. It returns the payload for the
// response envelope and a short human-readable summary safe to speak.
type InvokeFunc func(ctx context.Context, params map[string]any) (data any, message string, err error)

// Descriptor describes one tool. Descriptors are immutable after startup.
type Descriptor struct {
	// Name is the function name the voice engine sends.
	Name string

	// Required lists parameter keys that must be present in the effective
	// parameter set. A required key may also appear in ContextReads, in
	// which case a prior turn can satisfy it.
	Required []string

	// ContextReads lists session context keys injected into the parameter
	// set when the request leaves them out. Request-supplied values always
	// win over context.
	ContextReads []string

	// ContextWrites maps result payload fields to session context keys;
	// successful invocations contribute these back to the call session.
	ContextWrites map[string]string

	// Schema validates the effective parameter set. Nil skips validation.
	Schema *jsonschema.Schema

	// Invoke performs the backend operation.
	Invoke InvokeFunc
}

// ValidateParams checks the effective parameter set against the tool's
// schema. Runs after context fill, so a context-supplied key satisfies the
// schema's required list.
func (d *Descriptor) ValidateParams(params map[string]any) error {
	if d.Schema == nil {
		return nil
	}
	// jsonschema validates plain decoded JSON values; params already come
	// from a JSON decode of the webhook body.
	return d.Schema.Validate(map[string]any(params))
}

// mustSchema compiles a schema literal from the static catalog table. The
// table is fixed at build time, so a compile failure is a programming error.
func mustSchema(raw string) *jsonschema.Schema {
	return jsonschema.MustCompileString("tool.schema.json", raw)
}
