package proto

import "encoding/json"

// Frame is the envelope for every message on the realtime channel,
// both directions: an event name plus a JSON payload.
type Frame struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals v as the payload of an event frame.
func NewFrame(event EventType, v any) (Frame, error) {
	if v == nil {
		return Frame{Event: event}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: data}, nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	return json.Unmarshal(f.Data, v)
}
