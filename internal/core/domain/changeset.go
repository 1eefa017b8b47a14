package domain

// ChangeSet holds the classifier's three disjoint result sets, each keyed
// by item uid. An item appears in at most one of the three maps.
type ChangeSet struct {
	// Created holds items new to the local cache.
	Created map[string]Item
	// Modified holds items the local cache already knows.
	Modified map[string]Item
	// Removed holds items deleted remotely.
	Removed map[string]Item
}

// NewChangeSet returns an empty change set.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Created:  make(map[string]Item),
		Modified: make(map[string]Item),
		Removed:  make(map[string]Item),
	}
}

// IsEmpty reports whether the set contains no records at all.
func (c *ChangeSet) IsEmpty() bool {
	return len(c.Created) == 0 && len(c.Modified) == 0 && len(c.Removed) == 0
}

// Len returns the total record count across the three sets.
func (c *ChangeSet) Len() int {
	return len(c.Created) + len(c.Modified) + len(c.Removed)
}

// Merge folds other into c, with other's records winning on uid overlap.
// Used to fold staged push output into a refresh result.
func (c *ChangeSet) Merge(other *ChangeSet) {
	if other == nil {
		return
	}
	for uid, item := range other.Created {
		c.remove(uid)
		c.Created[uid] = item
	}
	for uid, item := range other.Modified {
		c.remove(uid)
		c.Modified[uid] = item
	}
	for uid, item := range other.Removed {
		c.remove(uid)
		c.Removed[uid] = item
	}
}

// remove drops uid from all three maps.
func (c *ChangeSet) remove(uid string) {
	delete(c.Created, uid)
	delete(c.Modified, uid)
	delete(c.Removed, uid)
}
