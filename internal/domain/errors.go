package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Handlers map these to HTTP status codes without inspecting concrete types.
var (
	// ErrMalformedMessage marks envelope and parse failures. Such messages are
	// acknowledged and dropped since redelivery cannot fix them.
	ErrMalformedMessage = errors.New("malformed message")
	ErrBadRequest       = errors.New("bad request")
)

// EnvelopeErrorKind classifies transport envelope failures.
type EnvelopeErrorKind string

const (
	EnvelopeMissingData     EnvelopeErrorKind = "missing_data"
	EnvelopeInvalidEncoding EnvelopeErrorKind = "invalid_encoding"
)

// EnvelopeError reports a push envelope whose data cannot be extracted.
type EnvelopeError struct {
	Kind EnvelopeErrorKind
	Err  error
}

func (e *EnvelopeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("envelope %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("envelope %s", e.Kind)
}

func (e *EnvelopeError) Unwrap() []error { return malformed(e.Err) }

// ParseErrorKind classifies event payload failures.
type ParseErrorKind string

const (
	ParseMalformedJSON        ParseErrorKind = "malformed_json"
	ParseMissingDiscriminator ParseErrorKind = "missing_discriminator"
)

// ParseError reports a payload that cannot be turned into a NotificationEvent.
type ParseError struct {
	Kind ParseErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("parse %s", e.Kind)
}

func (e *ParseError) Unwrap() []error { return malformed(e.Err) }

func malformed(cause error) []error {
	if cause == nil {
		return []error{ErrMalformedMessage}
	}
	return []error{ErrMalformedMessage, cause}
}

// DeliveryError describes a failed POST to the chat target.
type DeliveryError struct {
	StatusCode int // 0 when no response was received
	Body       string
	Retryable  bool
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("chat webhook returned HTTP %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("chat webhook returned HTTP %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("chat webhook request failed: %v", e.Err)
	default:
		return "chat webhook request failed"
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }
