package journal

// Wire types for the v1 JSON API. Journal and entry uids are opaque
// hex strings minted by the client; entry content carries the action
// and the serialised item payload.

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type wireJournal struct {
	UID      string `json:"uid"`
	Version  int    `json:"version"`
	Content  string `json:"content"`
	ReadOnly bool   `json:"readOnly,omitempty"`
	Deleted  bool   `json:"deleted,omitempty"`
}

// journalContent is the decoded form of wireJournal.Content.
type journalContent struct {
	Type        string `json:"type"`
	Name        string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

type wireEntry struct {
	UID     string `json:"uid"`
	Content string `json:"content"`
}

// entryContent is the decoded form of wireEntry.Content.
type entryContent struct {
	Action  string `json:"action"`
	ItemUID string `json:"uid,omitempty"`
	Payload string `json:"content,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}
