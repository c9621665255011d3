package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gke-notify/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// PushEnvelope reports what happened to one push message.
type PushEnvelope struct {
	MessageID string `json:"message_id"`
	EventType string `json:"event_type"`
	Resource  string `json:"resource"`
	Text      string `json:"text"`
	Outcome   string `json:"outcome"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

// httpError maps pipeline errors to status codes. Malformed messages are
// acknowledged with 202 so Pub/Sub does not redeliver them forever.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrMalformedMessage):
		writeJSON(w, http.StatusAccepted, MessageEnvelope{Error: err.Error(), ErrorCode: http.StatusAccepted})
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
