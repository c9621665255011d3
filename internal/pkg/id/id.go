package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. Used as a correlation id for push messages
// that arrive without a messageId; ULIDs sort by creation time in logs.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// OrNew returns existing when it is non-empty, otherwise a fresh ULID.
func OrNew(existing string) string {
	if existing != "" {
		return existing
	}
	return New()
}
