package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gke-notify/internal/application/format"
	"github.com/gke-notify/internal/application/notification"
	"github.com/gke-notify/internal/domain"
)

// maxPushBody bounds the request body; Pub/Sub messages are at most 10MB
// but GKE notifications are a few KB.
const maxPushBody = 1 << 20

// PushHandler handles Pub/Sub push deliveries.
type PushHandler struct {
	svc    notification.Service
	logger zerolog.Logger
}

func NewPushHandler(svc notification.Service, logger zerolog.Logger) *PushHandler {
	return &PushHandler{svc: svc, logger: logger}
}

// Push processes one push envelope. Any 2xx acknowledges the message.
func (h *PushHandler) Push(w http.ResponseWriter, r *http.Request) {
	env, err := decodeEnvelope(w, r)
	if err != nil {
		httpError(w, err)
		return
	}

	res, err := h.svc.Process(r.Context(), env)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedMessage) {
			h.logger.Warn().
				Err(err).
				Str("message_id", env.Message.ID()).
				Str("subscription", env.Subscription).
				Msg("dropping malformed push message")
		}
		httpError(w, err)
		return
	}

	hdr := res.Event.Header()
	out := PushEnvelope{
		MessageID: res.MessageID,
		EventType: hdr.Type,
		Resource:  hdr.Resource.Label(),
		Text:      res.Message.Text,
		Outcome:   string(res.Outcome.Status),
		Attempts:  res.Outcome.Attempts,
	}
	if res.Outcome.Err != nil {
		out.Error = res.Outcome.Err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// Preview formats an envelope without delivering it.
func (h *PushHandler) Preview(w http.ResponseWriter, r *http.Request) {
	env, err := decodeEnvelope(w, r)
	if err != nil {
		httpError(w, err)
		return
	}

	res, err := h.svc.Preview(r.Context(), env)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, format.Preview(res.Message))
}

func decodeEnvelope(w http.ResponseWriter, r *http.Request) (domain.PushEnvelope, error) {
	var env domain.PushEnvelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBody)).Decode(&env); err != nil {
		return env, fmt.Errorf("%w: invalid push body: %v", domain.ErrBadRequest, err)
	}
	return env, nil
}
