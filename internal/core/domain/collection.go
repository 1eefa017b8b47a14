package domain

import "time"

// CollectionType identifies what kind of items a collection holds.
type CollectionType string

const (
	// TypeAddressBook holds contact items.
	TypeAddressBook CollectionType = "address-book"
	// TypeCalendar holds event items.
	TypeCalendar CollectionType = "calendar"
	// TypeTaskList holds task items.
	TypeTaskList CollectionType = "task-list"
	// TypeNotes holds note items.
	TypeNotes CollectionType = "notes"
)

// DefaultCollectionTypes are the types a brand-new account is bootstrapped
// with, in creation order.
var DefaultCollectionTypes = []CollectionType{
	TypeAddressBook,
	TypeCalendar,
	TypeTaskList,
	TypeNotes,
}

// DefaultCollectionColour is applied to collections created by pimsync.
const DefaultCollectionColour = "#8BC34A"

// defaultNames maps each default type to its bootstrap display name.
var defaultNames = map[CollectionType]string{
	TypeAddressBook: "My Contacts",
	TypeCalendar:    "My Calendar",
	TypeTaskList:    "My Tasks",
	TypeNotes:       "My Notes",
}

// IsValid returns true for a known collection type.
func (t CollectionType) IsValid() bool {
	_, ok := defaultNames[t]
	return ok
}

// DefaultName returns the bootstrap display name for the type.
func (t CollectionType) DefaultName() string {
	return defaultNames[t]
}

// CollectionMetadata is the user-visible metadata of a collection.
type CollectionMetadata struct {
	// Name is the display name.
	Name string
	// Description is an optional free-text description.
	Description string
	// Colour is a hex colour string, e.g. "#8BC34A".
	Colour string
}

// Collection is a typed remote container for items, owned by an account
// and mirrored 1:1 to a local registry entry.
type Collection struct {
	// ID is the server-assigned collection identity token.
	ID string
	// Type identifies what the collection holds.
	Type CollectionType
	// Metadata carries the display name, description and colour.
	Metadata CollectionMetadata
	// Deleted marks a server-side tombstone.
	Deleted bool
}

// CollectionPage is one page of a paginated collection enumeration.
// The cursor/done contract matches LogPage.
type CollectionPage struct {
	// Collections are the collections on this page, tombstones included.
	Collections []Collection
	// RemovedMemberships lists collection ids the account lost access to.
	// Distinct from tombstones; both must remove the local entry.
	RemovedMemberships []string
	// Cursor resumes the enumeration after this page.
	Cursor string
	// Done reports that no further pages exist as of this call.
	Done bool
}

// RegistryEntry is the local configuration mirror of one collection.
type RegistryEntry struct {
	// CollectionID is the remote collection identity token.
	CollectionID string `toml:"collection_id"`
	// Type is the collection type.
	Type CollectionType `toml:"type"`
	// Name is the mirrored display name.
	Name string `toml:"name"`
	// Description is the mirrored description.
	Description string `toml:"description,omitempty"`
	// Colour is the mirrored colour.
	Colour string `toml:"colour,omitempty"`
	// ResumeBlob is an opaque remote-collection handle needed to operate
	// on the collection without re-fetching it.
	ResumeBlob []byte `toml:"resume_blob,omitempty"`
	// RefreshInterval is how often the collection should be refreshed.
	RefreshInterval time.Duration `toml:"refresh_interval,omitempty"`
	// LastSync is when the collection last completed a refresh.
	LastSync time.Time `toml:"last_sync,omitempty"`
}

// MetadataEquals reports whether the entry already mirrors the given
// collection metadata.
func (e *RegistryEntry) MetadataEquals(meta CollectionMetadata) bool {
	return e.Name == meta.Name && e.Description == meta.Description && e.Colour == meta.Colour
}
