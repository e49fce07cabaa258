package models

import "encoding/json"

// StreamEvent types. Every turn produces one ordered event sequence:
// start, then for each text channel text-start .. text-delta* .. text-end,
// and a single terminating finish. Structured payloads are first-class
// events rather than sentinel-delimited JSON smuggled inside text.
const (
	EventStart             = "start"
	EventTextStart         = "text-start"
	EventTextDelta         = "text-delta"
	EventTextEnd           = "text-end"
	EventReasoningDelta    = "reasoning-delta"
	EventStructuredPayload = "structured-payload"
	EventError             = "error"
	EventFinish            = "finish"
)

// Structured payload kinds emitted by the router.
const (
	PayloadVendorHits    = "vendor-hits"
	PayloadVendorDetails = "vendor-details"
	PayloadVendorReviews = "vendor-reviews"
	PayloadGuide         = "guide"
)

// StreamEvent is one unit of the response protocol for a chat turn.
type StreamEvent struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Delta string          `json:"delta,omitempty"`
	Kind  string          `json:"kind,omitempty"`
	JSON  json.RawMessage `json:"json,omitempty"`
	Error string          `json:"error,omitempty"`
}

func StartEvent() StreamEvent { return StreamEvent{Type: EventStart} }

func TextStartEvent(id string) StreamEvent { return StreamEvent{Type: EventTextStart, ID: id} }

func TextDeltaEvent(id, delta string) StreamEvent {
	return StreamEvent{Type: EventTextDelta, ID: id, Delta: delta}
}

func TextEndEvent(id string) StreamEvent { return StreamEvent{Type: EventTextEnd, ID: id} }

func ReasoningDeltaEvent(id, delta string) StreamEvent {
	return StreamEvent{Type: EventReasoningDelta, ID: id, Delta: delta}
}

func StructuredPayloadEvent(kind string, raw json.RawMessage) StreamEvent {
	return StreamEvent{Type: EventStructuredPayload, Kind: kind, JSON: raw}
}

func ErrorEvent(msg string) StreamEvent { return StreamEvent{Type: EventError, Error: msg} }

func FinishEvent() StreamEvent { return StreamEvent{Type: EventFinish} }
