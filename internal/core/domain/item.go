package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Item is one synchronisable payload unit: a contact, event, task or note.
// Items are append-versioned; "current state" is whatever the classifier
// last resolved from the collection's log.
type Item struct {
	// UID is the item's external identity.
	UID string

	// Revision is the item's last-modified marker.
	Revision string

	// Payload is the serialised item text. The engine copies, hashes and
	// forwards it; it never parses the format beyond line scanning.
	Payload string

	// ResumeHandle is an opaque blob capturing enough remote-side state
	// (item identity plus a pointer into the log) to mutate or delete
	// the item later without re-fetching it.
	ResumeHandle []byte
}

// PayloadHash returns a stable identity hash of a payload. Used as a
// fallback uid/revision when the payload carries none.
func PayloadHash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
