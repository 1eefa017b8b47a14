package services

import (
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

// ItemKind supplies the per-payload-type behaviour the generic engine
// needs: uid and revision extraction and new-uid generation. Payloads stay
// opaque; extraction is line scanning, never format parsing.
type ItemKind interface {
	// Type returns the collection type this kind serves.
	Type() domain.CollectionType

	// UID extracts the item uid from a payload, or returns an empty
	// string when the payload carries none.
	UID(payload string) string

	// Revision extracts the last-modified marker from a payload, falling
	// back to a payload hash so every payload has a stable revision.
	Revision(payload string) string

	// NewUID generates a uid for a payload that carries none.
	NewUID() string
}

// KindFor returns the ItemKind for a collection type.
func KindFor(typ domain.CollectionType) ItemKind {
	switch typ {
	case domain.TypeAddressBook:
		return contactKind{}
	case domain.TypeCalendar:
		return componentKind{typ: domain.TypeCalendar}
	case domain.TypeTaskList:
		return componentKind{typ: domain.TypeTaskList}
	case domain.TypeNotes:
		return componentKind{typ: domain.TypeNotes}
	}
	return componentKind{typ: typ}
}

// scanProperty returns the value of the first line starting with the
// given property name followed by ':' or ';'. Case-insensitive, tolerant
// of both CRLF and LF payloads.
func scanProperty(payload, name string) string {
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) <= len(name) {
			continue
		}
		if !strings.EqualFold(line[:len(name)], name) {
			continue
		}
		rest := line[len(name):]
		if idx := strings.IndexByte(rest, ':'); idx >= 0 && (idx == 0 || rest[0] == ';') {
			return strings.TrimSpace(rest[idx+1:])
		}
	}
	return ""
}

// contactKind serves vCard-shaped contact payloads.
type contactKind struct{}

func (contactKind) Type() domain.CollectionType { return domain.TypeAddressBook }

func (contactKind) UID(payload string) string {
	return scanProperty(payload, "UID")
}

func (contactKind) Revision(payload string) string {
	if rev := scanProperty(payload, "REV"); rev != "" {
		return rev
	}
	return domain.PayloadHash(payload)
}

func (contactKind) NewUID() string { return uuid.NewString() }

// componentKind serves iCalendar-shaped payloads: events, tasks and notes.
type componentKind struct {
	typ domain.CollectionType
}

func (k componentKind) Type() domain.CollectionType { return k.typ }

func (componentKind) UID(payload string) string {
	return scanProperty(payload, "UID")
}

func (componentKind) Revision(payload string) string {
	if rev := scanProperty(payload, "LAST-MODIFIED"); rev != "" {
		return rev
	}
	if rev := scanProperty(payload, "DTSTAMP"); rev != "" {
		return rev
	}
	return domain.PayloadHash(payload)
}

func (componentKind) NewUID() string { return uuid.NewString() }
