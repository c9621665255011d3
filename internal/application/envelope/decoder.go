package envelope

import (
	"encoding/base64"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gke-notify/internal/domain"
)

// encodings are tried in order. Pub/Sub sends padded standard base64; the
// others cover publishers that strip padding or use the URL alphabet.
var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// Decode extracts the payload bytes from a push envelope.
func Decode(env domain.PushEnvelope) (domain.RawPayload, error) {
	data := strings.TrimSpace(env.Message.Data)
	if data == "" {
		return nil, &domain.EnvelopeError{Kind: domain.EnvelopeMissingData}
	}

	var (
		raw     []byte
		lastErr error
	)
	for _, enc := range encodings {
		b, err := enc.DecodeString(data)
		if err == nil {
			raw = b
			lastErr = nil
			break
		}
		if lastErr == nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, &domain.EnvelopeError{Kind: domain.EnvelopeInvalidEncoding, Err: lastErr}
	}
	if !utf8.Valid(raw) {
		return nil, &domain.EnvelopeError{Kind: domain.EnvelopeInvalidEncoding, Err: errNotUTF8}
	}
	return domain.RawPayload(raw), nil
}

// PublishTime parses the message publish time. It returns the zero time when
// the field is absent or unparseable; the timestamp is informational only.
func PublishTime(env domain.PushEnvelope) time.Time {
	s := env.Message.Published()
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
