package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haasonsaas/voicegate/internal/callctx"
	"github.com/haasonsaas/voicegate/internal/dispatch"
	"github.com/haasonsaas/voicegate/internal/observability"
	"github.com/haasonsaas/voicegate/internal/tools"
)

const testToken = "webhook-token-for-tests"

func newTestHandler(t *testing.T) (*Handler, *callctx.MemoryStore) {
	t.Helper()
	store := callctx.NewMemoryStore(time.Hour, 0)
	t.Cleanup(func() { store.Close() })

	balance := &tools.Descriptor{
		Name:         "accountBalance",
		Required:     []string{"customerId"},
		ContextReads: []string{"customerId"},
		Invoke: func(ctx context.Context, params map[string]any) (any, string, error) {
			return map[string]any{"balance": 55.0, "customerId": params["customerId"]}, "Balance retrieved.", nil
		},
	}
	registry, err := tools.NewRegistry(balance)
	if err != nil {
		t.Fatal(err)
	}
	dispatcher := dispatch.New(registry, store, observability.NewNopLogger(), nil, 5*time.Second)
	auth := NewAuthenticator(testToken, "")
	return NewHandler(auth, dispatcher, store, observability.NewNopLogger(), observability.NewTestMetrics()), store
}

func postEvent(t *testing.T, h *Handler, payload any, token string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, "/webhooks/voice", bytes.NewReader(body))
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeWire(t *testing.T, w *httptest.ResponseRecorder) wireResponse {
	t.Helper()
	var resp wireResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return resp
}

func TestHandler_RejectsUnauthenticated(t *testing.T) {
	h, _ := newTestHandler(t)

	w := postEvent(t, h, map[string]any{"type": "function-call"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}

	w = postEvent(t, h, map[string]any{"type": "function-call"}, "wrong-token-wrong-token")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHandler_RejectsNonPost(t *testing.T) {
	h, _ := newTestHandler(t)
	r := httptest.NewRequest(http.MethodGet, "/webhooks/voice", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestHandler_MalformedBody(t *testing.T) {
	h, _ := newTestHandler(t)
	r := httptest.NewRequest(http.MethodPost, "/webhooks/voice", bytes.NewReader([]byte("{not json")))
	r.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandler_CallStartedSeedsContext(t *testing.T) {
	h, store := newTestHandler(t)

	w := postEvent(t, h, map[string]any{
		"type":      "call-started",
		"timestamp": "2026-08-30T10:00:00Z",
		"call": map[string]any{
			"id":   "call-1",
			"from": "+15551234567",
			"metadata": map[string]any{
				"customerId": "002864",
				"nested":     map[string]any{"ignored": true},
			},
		},
	}, testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp := decodeWire(t, w); !resp.Success {
		t.Errorf("ack success = false: %s", resp.Message)
	}

	attrs, err := store.GetAll(context.Background(), "call-1")
	if err != nil {
		t.Fatal(err)
	}
	if attrs["callerNumber"] != "+15551234567" {
		t.Errorf("callerNumber = %v", attrs["callerNumber"])
	}
	if attrs["customerId"] != "002864" {
		t.Errorf("customerId = %v", attrs["customerId"])
	}
	if attrs["startedAt"] != "2026-08-30T10:00:00Z" {
		t.Errorf("startedAt = %v", attrs["startedAt"])
	}
	if _, ok := attrs["nested"]; ok {
		t.Error("non-scalar metadata seeded into session")
	}
}

func TestHandler_FunctionCallUsesSeededContext(t *testing.T) {
	h, store := newTestHandler(t)
	if err := store.Merge(context.Background(), "call-1", map[string]any{"customerId": "002864"}); err != nil {
		t.Fatal(err)
	}

	w := postEvent(t, h, map[string]any{
		"type":         "function-call",
		"callId":       "call-1",
		"functionName": "accountBalance",
		"parameters":   map[string]any{},
	}, testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeWire(t, w)
	if !resp.Success {
		t.Fatalf("dispatch failed: %s (%s)", resp.Message, resp.ErrorKind)
	}
	if resp.Result == nil {
		t.Fatal("success response missing result wrapper")
	}
	data, ok := resp.Result.Data.(map[string]any)
	if !ok {
		t.Fatalf("result data = %T", resp.Result.Data)
	}
	if data["customerId"] != "002864" {
		t.Errorf("customerId = %v, want seeded value", data["customerId"])
	}
}

func TestHandler_FunctionCallFailureStillHTTP200(t *testing.T) {
	h, _ := newTestHandler(t)

	w := postEvent(t, h, map[string]any{
		"type":         "function-call",
		"callId":       "call-9",
		"functionName": "accountBalance",
	}, testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even on dispatch failure", w.Code)
	}
	resp := decodeWire(t, w)
	if resp.Success {
		t.Fatal("dispatch succeeded without customerId")
	}
	if resp.ErrorKind != string(dispatch.ErrMissingParameter) {
		t.Errorf("errorKind = %q, want %q", resp.ErrorKind, dispatch.ErrMissingParameter)
	}
	if resp.Result != nil {
		t.Error("failure response carries a result wrapper")
	}
}

func TestHandler_CallEndedTearsDownSession(t *testing.T) {
	h, store := newTestHandler(t)
	ctx := context.Background()
	if err := store.Merge(ctx, "call-1", map[string]any{"customerId": "002864"}); err != nil {
		t.Fatal(err)
	}

	w := postEvent(t, h, map[string]any{"type": "call-ended", "callId": "call-1"}, testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	attrs, err := store.GetAll(ctx, "call-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(attrs) != 0 {
		t.Errorf("session survived call-ended: %v", attrs)
	}
}

func TestHandler_HangTearsDownSession(t *testing.T) {
	h, store := newTestHandler(t)
	ctx := context.Background()
	if err := store.Merge(ctx, "call-1", map[string]any{"customerId": "002864"}); err != nil {
		t.Fatal(err)
	}

	postEvent(t, h, map[string]any{"type": "hang", "call": map[string]any{"id": "call-1"}}, testToken)

	attrs, _ := store.GetAll(ctx, "call-1")
	if len(attrs) != 0 {
		t.Errorf("session survived hang: %v", attrs)
	}
}

func TestHandler_UnknownEventTypeAcked(t *testing.T) {
	h, _ := newTestHandler(t)

	w := postEvent(t, h, map[string]any{"type": "voicemail-detected", "callId": "call-1"}, testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, unknown event types must be acked", w.Code)
	}
	if resp := decodeWire(t, w); !resp.Success {
		t.Errorf("unknown event not acked: %s", resp.Message)
	}
}

func TestHandler_TranscriptAcked(t *testing.T) {
	h, _ := newTestHandler(t)
	w := postEvent(t, h, map[string]any{"type": "transcript", "callId": "call-1"}, testToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestResolveCallID(t *testing.T) {
	e := &Event{CallID: "top"}
	if got := e.ResolveCallID(); got != "top" {
		t.Errorf("top-level id: %q", got)
	}
	e = &Event{Call: &CallInfo{ID: "nested"}}
	if got := e.ResolveCallID(); got != "nested" {
		t.Errorf("nested id: %q", got)
	}
	e = &Event{CallID: "top", Call: &CallInfo{ID: "nested"}}
	if got := e.ResolveCallID(); got != "top" {
		t.Errorf("precedence: %q", got)
	}
}
