// Package ingress terminates the voice engine's webhook: it authenticates
// inbound events, classifies them, routes function calls into the
// dispatcher, and translates envelopes to the engine's wire shape.
package ingress

import (
	"encoding/json"
	"fmt"
)

// Event types delivered by the voice engine. The catalog evolves
// independently of this service; unknown types are acked, not rejected.
const (
	EventCallStarted  = "call-started"
	EventFunctionCall = "function-call"
	EventCallEnded    = "call-ended"
	EventHang         = "hang"
	EventTranscript   = "transcript"
	EventSpeechUpdate = "speech-update"
)

// Event is the inbound webhook envelope.
type Event struct {
	Type         string         `json:"type"`
	CallID       string         `json:"callId"`
	FunctionName string         `json:"functionName"`
	Parameters   map[string]any `json:"parameters"`
	Timestamp    string         `json:"timestamp"`
	Call         *CallInfo      `json:"call,omitempty"`
}

// CallInfo carries call metadata on lifecycle events.
type CallInfo struct {
	ID       string         `json:"id"`
	From     string         `json:"from"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ResolveCallID prefers the top-level call id; some engine versions only
// populate it inside the call block.
func (e *Event) ResolveCallID() string {
	if e.CallID != "" {
		return e.CallID
	}
	if e.Call != nil {
		return e.Call.ID
	}
	return ""
}

func decodeEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("decode event: missing type")
	}
	return &event, nil
}

// seedAttributes extracts the context attributes a call-started event
// contributes. Only scalar metadata survives; nested structures have no
// place in the flat session attribute map.
func (e *Event) seedAttributes() map[string]any {
	attrs := make(map[string]any)
	if e.Timestamp != "" {
		attrs["startedAt"] = e.Timestamp
	}
	if e.Call == nil {
		return attrs
	}
	if e.Call.From != "" {
		attrs["callerNumber"] = e.Call.From
	}
	for k, v := range e.Call.Metadata {
		switch v.(type) {
		case string, float64, bool:
			attrs[k] = v
		}
	}
	return attrs
}
