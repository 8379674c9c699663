package ingress

import (
	"github.com/haasonsaas/voicegate/internal/dispatch"
)

// wireResponse is the shape the voice engine expects for a function-call
// event. It differs from the internal envelope only in the result wrapper.
type wireResponse struct {
	Success   bool        `json:"success"`
	Result    *wireResult `json:"result"`
	Message   string      `json:"message"`
	ErrorKind string      `json:"errorKind,omitempty"`
}

type wireResult struct {
	Data any `json:"data"`
}

func toWire(env dispatch.Envelope) wireResponse {
	resp := wireResponse{
		Success:   env.Success,
		Message:   env.Message,
		ErrorKind: string(env.ErrorKind),
	}
	if env.Success {
		resp.Result = &wireResult{Data: env.Data}
	}
	return resp
}

// ackResponse acknowledges lifecycle and unrecognized events.
func ackResponse(message string) wireResponse {
	return wireResponse{Success: true, Message: message}
}
