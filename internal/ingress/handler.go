package ingress

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/haasonsaas/voicegate/internal/callctx"
	"github.com/haasonsaas/voicegate/internal/dispatch"
	"github.com/haasonsaas/voicegate/internal/observability"
)

// maxBodyBytes bounds webhook payloads. Function-call events are small;
// anything larger is not a legitimate event.
const maxBodyBytes = 1 << 20

// Handler terminates POST /webhooks/voice.
type Handler struct {
	auth       *Authenticator
	dispatcher *dispatch.Dispatcher
	store      callctx.Store
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewHandler wires the webhook endpoint.
func NewHandler(auth *Authenticator, dispatcher *dispatch.Dispatcher, store callctx.Store, logger *observability.Logger, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Handler{
		auth:       auth,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
		metrics:    metrics,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := observability.WithRequestID(r.Context(), uuid.NewString())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn(ctx, "webhook body read failed", "error", err.Error())
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.auth.Authenticate(r, body); err != nil {
		h.logger.Warn(ctx, "webhook authentication failed",
			"error", err.Error(), "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	event, err := decodeEvent(body)
	if err != nil {
		h.logger.Warn(ctx, "webhook payload malformed", "error", err.Error())
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	callID := event.ResolveCallID()
	if callID != "" {
		ctx = observability.WithCallID(ctx, callID)
	}
	h.countEvent(event.Type)

	// From here on the answer is always 200 with a well-formed body. A
	// live caller is waiting; transport-level errors read as dead air.
	var resp wireResponse
	switch event.Type {
	case EventCallStarted:
		h.handleCallStarted(ctx, callID, event)
		resp = ackResponse("call started")

	case EventFunctionCall:
		env := h.dispatcher.Dispatch(ctx, dispatch.Request{
			CallID:     callID,
			Function:   event.FunctionName,
			Parameters: event.Parameters,
		})
		resp = toWire(env)

	case EventCallEnded, EventHang:
		if err := h.store.End(ctx, callID); err != nil {
			h.logger.Warn(ctx, "session teardown degraded", "error", err.Error())
			if h.metrics != nil {
				h.metrics.ContextStoreErrors.WithLabelValues("end").Inc()
			}
		}
		h.logger.Info(ctx, "call ended", "event_type", event.Type)
		resp = ackResponse("call ended")

	case EventTranscript, EventSpeechUpdate:
		h.logger.Debug(ctx, "conversation event", "event_type", event.Type)
		resp = ackResponse("event received")

	default:
		h.logger.Debug(ctx, "unrecognized event type acked", "event_type", event.Type)
		resp = ackResponse("event received")
	}

	h.writeJSON(ctx, w, resp)
}

// handleCallStarted primes the session with whatever the engine told us
// about the call. Seeding is best effort; a function-call for an unseen
// call id still works because Merge creates sessions lazily.
func (h *Handler) handleCallStarted(ctx context.Context, callID string, event *Event) {
	if callID == "" {
		h.logger.Warn(ctx, "call-started event without call id")
		return
	}
	attrs := event.seedAttributes()
	if len(attrs) == 0 {
		return
	}
	if err := h.store.Merge(ctx, callID, attrs); err != nil {
		h.logger.Warn(ctx, "session priming degraded", "error", err.Error())
		if h.metrics != nil {
			h.metrics.ContextStoreErrors.WithLabelValues("merge").Inc()
		}
		return
	}
	h.logger.Info(ctx, "call started", "seeded_keys", len(attrs))
}

func (h *Handler) countEvent(eventType string) {
	if h.metrics == nil {
		return
	}
	switch eventType {
	case EventCallStarted, EventFunctionCall, EventCallEnded, EventHang:
		h.metrics.WebhookEvents.WithLabelValues(eventType).Inc()
	default:
		h.metrics.WebhookEvents.WithLabelValues("other").Inc()
	}
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, resp wireResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error(ctx, "webhook response write failed", "error", err.Error())
	}
}
