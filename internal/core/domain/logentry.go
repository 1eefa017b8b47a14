package domain

// EntryAction is the kind of mutation a log entry records.
type EntryAction string

const (
	// ActionAdd records item creation.
	ActionAdd EntryAction = "ADD"
	// ActionChange records item modification.
	ActionChange EntryAction = "CHANGE"
	// ActionDelete records item deletion.
	ActionDelete EntryAction = "DELETE"
)

// IsValid returns true for a recognised action. Entries with unrecognised
// actions are discarded by the classifier, never an error.
func (a EntryAction) IsValid() bool {
	switch a {
	case ActionAdd, ActionChange, ActionDelete:
		return true
	}
	return false
}

// LogEntry is one atomic record in a collection's append-only history.
// Entries are strictly ordered per collection.
type LogEntry struct {
	// Action is the mutation kind.
	Action EntryAction

	// Payload is the serialised item text at this point in history.
	// Empty for deletes under the item-based protocol.
	Payload string

	// UID is the item uid the entry applies to, when the protocol
	// carries it out of band; otherwise extracted from the payload.
	UID string

	// Position is the entry's opaque position in the log. Comparable
	// only for equality against a previously returned cursor.
	Position string

	// Parent is the declared predecessor position, chained on append so
	// the server can detect a stale expected cursor.
	Parent string

	// ResumeHandle is the opaque remote-side handle for the item as of
	// this entry.
	ResumeHandle []byte
}

// LogPage is one page of a collection's change log.
type LogPage struct {
	// Entries are the decoded log entries, in log order. May be empty.
	Entries []LogEntry

	// Cursor marks everything up to and including this page as consumed.
	// Resumable across process restarts, and usable as the expected head
	// for conflict detection on append.
	Cursor string

	// Done reports that no further pages exist as of this call. An empty
	// page with Done=true is success, not an error.
	Done bool
}
