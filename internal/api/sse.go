package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSE event types.
const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// ChunkPayload carries one incremental text fragment.
type ChunkPayload struct {
	Text string `json:"text"`
}

// DonePayload signals the end of a turn.
type DonePayload struct {
	MessageID string `json:"message_id,omitempty"`
}

// ErrorPayload carries a stream-level error.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeEvent writes a single SSE event and flushes it to the client.
func writeEvent[T any](w http.ResponseWriter, flusher http.Flusher, event string, data T) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("writing %s event: %w", event, err)
	}
	flusher.Flush()
	return nil
}
