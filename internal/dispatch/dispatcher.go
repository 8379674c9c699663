package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/voicegate/internal/backend"
	"github.com/haasonsaas/voicegate/internal/callctx"
	"github.com/haasonsaas/voicegate/internal/observability"
	"github.com/haasonsaas/voicegate/internal/tools"
)

// Request is one inbound function-call event.
type Request struct {
	CallID     string
	Function   string
	Parameters map[string]any
}

// Dispatcher drives the per-request pipeline: validate, resolve context,
// invoke, persist context, respond. It is safe for concurrent use; requests
// for the same call id are serialized in arrival order, requests for
// different calls run independently.
type Dispatcher struct {
	registry *tools.Registry
	store    callctx.Store
	logger   *observability.Logger
	metrics  *observability.Metrics
	locker   *callLocker

	// budget is the hard deadline for one dispatch, kept shorter than the
	// voice engine's silence timeout so a stuck backend surfaces as a
	// spoken error rather than dead air.
	budget time.Duration
}

// New creates a dispatcher. A zero budget defaults to 30s.
func New(registry *tools.Registry, store callctx.Store, logger *observability.Logger, metrics *observability.Metrics, budget time.Duration) *Dispatcher {
	if budget <= 0 {
		budget = 30 * time.Second
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Dispatcher{
		registry: registry,
		store:    store,
		logger:   logger,
		metrics:  metrics,
		locker:   newCallLocker(),
		budget:   budget,
	}
}

// Dispatch processes one function-call event and always returns a
// well-formed envelope; no fault escapes as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Envelope {
	start := time.Now()

	release := d.locker.acquire(req.CallID)
	defer release()

	ctx, cancel := context.WithTimeout(ctx, d.budget)
	defer cancel()

	env := d.run(ctx, req)

	if d.metrics != nil {
		status := "success"
		if !env.Success {
			status = "error"
		}
		d.metrics.ToolExecutions.WithLabelValues(req.Function, status).Inc()
		d.metrics.ToolExecutionDuration.WithLabelValues(req.Function).Observe(time.Since(start).Seconds())
	}
	return env
}

func (d *Dispatcher) run(ctx context.Context, req Request) Envelope {
	// Validating: the function must exist before anything else happens.
	desc, ok := d.registry.Resolve(req.Function)
	if !ok {
		d.logger.Warn(ctx, "unknown function requested", "function", req.Function)
		return failed(ErrUnknownFunction, fmt.Sprintf("I don't have a %q action available.", req.Function))
	}

	// Resolving-Context: fill declared keys from the session when the
	// request leaves them out. An explicit value this turn always beats a
	// stale one from an earlier turn.
	params := d.effectiveParams(ctx, desc, req)

	// A required key still missing after context fill is a structural
	// failure; retrying cannot fix it, so it is terminal.
	for _, key := range desc.Required {
		if isAbsent(params[key]) {
			d.logger.Info(ctx, "required parameter unresolved",
				"function", req.Function, "parameter", key)
			return failed(ErrMissingParameter,
				fmt.Sprintf("I still need the %s to do that. Could you provide it?", key))
		}
	}

	if err := desc.ValidateParams(params); err != nil {
		d.logger.Info(ctx, "parameter validation failed",
			"function", req.Function, "error", err.Error())
		return failed(ErrInvalidParameter, "Some of those details don't look right. Could you repeat them?")
	}

	// Invoking: the only blocking step.
	data, message, err := desc.Invoke(ctx, params)
	if err != nil {
		return d.failureEnvelope(ctx, req.Function, err)
	}

	// Persisting-Context: best effort. The caller already has their
	// answer; losing a write only costs future-turn convenience.
	d.persistContext(ctx, desc, req.CallID, data)

	return succeeded(data, message)
}

// effectiveParams merges request parameters over context-resolved ones.
// JSON null from the voice engine counts as absent, so it falls back to
// context rather than clearing the field.
func (d *Dispatcher) effectiveParams(ctx context.Context, desc *tools.Descriptor, req Request) map[string]any {
	params := make(map[string]any, len(req.Parameters)+len(desc.ContextReads))
	for k, v := range req.Parameters {
		if !isAbsent(v) {
			params[k] = v
		}
	}
	for _, key := range desc.ContextReads {
		if _, present := params[key]; present {
			continue
		}
		value, ok, err := d.store.Get(ctx, req.CallID, key)
		if err != nil {
			// Store outage degrades to "no context", never a failure.
			d.logger.Warn(ctx, "context store read degraded", "key", key, "error", err.Error())
			if d.metrics != nil {
				d.metrics.ContextStoreErrors.WithLabelValues("get").Inc()
			}
			continue
		}
		if ok {
			params[key] = value
			d.logger.Debug(ctx, "parameter resolved from call context",
				"function", desc.Name, "key", key)
			if d.metrics != nil {
				d.metrics.ContextFills.WithLabelValues(desc.Name, key).Inc()
			}
		}
	}
	return params
}

func (d *Dispatcher) persistContext(ctx context.Context, desc *tools.Descriptor, callID string, data any) {
	if len(desc.ContextWrites) == 0 {
		return
	}
	attrs := make(map[string]any, len(desc.ContextWrites))
	for field, key := range desc.ContextWrites {
		if value, ok := fieldFromPayload(data, field); ok && !isAbsent(value) {
			attrs[key] = value
		}
	}
	if len(attrs) == 0 {
		return
	}
	if err := d.store.Merge(ctx, callID, attrs); err != nil {
		d.logger.Warn(ctx, "context store merge degraded", "error", err.Error())
		if d.metrics != nil {
			d.metrics.ContextStoreErrors.WithLabelValues("merge").Inc()
		}
	}
}

// fieldFromPayload finds a result field in the tool payload. Payloads are
// either a single object or a result list; a list contributes context only
// when it has exactly one element, since identifiers from an ambiguous
// match must not be pinned to the call.
func fieldFromPayload(data any, field string) (any, bool) {
	switch v := data.(type) {
	case map[string]any:
		if value, ok := v[field]; ok {
			return value, true
		}
		// Upstream wraps row sets as {"data": [...], "meta": {...}}.
		if inner, ok := v["data"]; ok {
			return fieldFromPayload(inner, field)
		}
		return nil, false
	case []any:
		if len(v) != 1 {
			return nil, false
		}
		return fieldFromPayload(v[0], field)
	default:
		return nil, false
	}
}

// failureEnvelope maps a backend failure to the spoken error taxonomy.
func (d *Dispatcher) failureEnvelope(ctx context.Context, function string, err error) Envelope {
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			d.logger.Error(ctx, "dispatch exceeded budget", "function", function)
			return failed(ErrRemoteTimeout, "That's taking longer than expected. Let me try again in a moment.")
		}
		d.logger.Error(ctx, "function call failed", "function", function, "error", err.Error())
		return failed(ErrRemoteUnavailable, "I'm having trouble retrieving that right now.")
	}

	d.logger.Error(ctx, "backend call failed",
		"function", function, "kind", string(apiErr.Kind), "status", apiErr.Status)

	switch apiErr.Kind {
	case backend.FailureTimeout:
		return failed(ErrRemoteTimeout, "That's taking longer than expected. Let me try again in a moment.")
	case backend.FailureTransport, backend.FailureRateLimited:
		return failed(ErrRemoteUnavailable, "I'm having trouble reaching the account system right now.")
	case backend.FailureRemote:
		return failed(ErrRemoteServerError, "The account system had a problem with that request. Let me connect you with someone who can help.")
	case backend.FailureUnauthorized:
		return failed(ErrUnauthorized, "I'm unable to access the account system right now.")
	case backend.FailureNotFound:
		return failed(ErrRemoteRejected, "I couldn't find a record matching that.")
	default:
		return failed(ErrRemoteRejected, "The account system couldn't process that request.")
	}
}

// isAbsent reports whether a parameter value should be treated as not
// supplied. See the explicit-null note in DESIGN.md.
func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}
