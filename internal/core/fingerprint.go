package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrInvalidEvent is returned when an event is missing required fields
	ErrInvalidEvent = errors.New("invalid subscription event")
)

// Fingerprint derives the deterministic event id from the sender address,
// subject and a day taken from the email itself. A zero day is hashed as an
// empty field. Rescanning the same mailbox state always yields the same ids.
func Fingerprint(sender, subject string, day Date) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(sender))))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(subject)))
	h.Write([]byte{0})
	h.Write([]byte(day.String()))
	return hex.EncodeToString(h.Sum(nil))[:32]
}
