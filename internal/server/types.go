// Package server defines the wire envelope shared by client and hub logic.
package server

import (
	"encoding/json"
	"errors"
	"strings"
)

var errMissingEvent = errors.New("envelope has no event name")

// Envelope is the single frame format in both directions: an event name and
// its JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, errMissingEvent
	}
	return env, nil
}

// encodeEnvelope writes data into the frame as given so relayed payloads keep
// their exact bytes.
func encodeEnvelope(event string, data json.RawMessage) ([]byte, error) {
	name, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(name)+len(data)+20)
	frame = append(frame, `{"event":`...)
	frame = append(frame, name...)
	if len(data) > 0 {
		frame = append(frame, `,"data":`...)
		frame = append(frame, data...)
	}
	return append(frame, '}'), nil
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
