package etebase

import "github.com/custodia-labs/pimsync/internal/core/domain"

// Wire types for the v2 JSON API. Item content is an opaque string the
// transport encrypts; positions and stokens are opaque to the client.

type loginRequest struct {
	Username string `json:"username"`
	LoginKey string `json:"loginKey"`
}

type loginResponse struct {
	Token       string `json:"token"`
	SessionBlob []byte `json:"session,omitempty"`
}

type wireCollectionMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

type wireCollection struct {
	UID            string             `json:"uid"`
	CollectionType string             `json:"collectionType"`
	Meta           wireCollectionMeta `json:"meta"`
	Deleted        bool               `json:"deleted,omitempty"`
	Stoken         string             `json:"stoken,omitempty"`
}

type wireRemovedMembership struct {
	UID string `json:"uid"`
}

type collectionListResponse struct {
	Data               []wireCollection        `json:"data"`
	RemovedMemberships []wireRemovedMembership `json:"removedMemberships,omitempty"`
	Stoken             string                  `json:"stoken"`
	Done               bool                    `json:"done"`
}

type collectionCreateRequest struct {
	CollectionType string             `json:"collectionType"`
	Meta           wireCollectionMeta `json:"meta"`
}

type wireItem struct {
	UID     string `json:"uid"`
	Action  string `json:"action"`
	ItemUID string `json:"itemUid,omitempty"`
	Content string `json:"content,omitempty"`
	Parent  string `json:"parent,omitempty"`
	Etag    string `json:"etag,omitempty"`
}

type itemListResponse struct {
	Data   []wireItem `json:"data"`
	Stoken string     `json:"stoken"`
	Done   bool       `json:"done"`
}

type itemBatchRequest struct {
	Items  []wireItem `json:"items"`
	Stoken string     `json:"stoken,omitempty"`
}

type itemBatchResponse struct {
	Stoken string `json:"stoken"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// collectionFromWire maps a wire collection onto the domain type.
func collectionFromWire(col wireCollection) domain.Collection {
	return domain.Collection{
		ID:   col.UID,
		Type: domain.CollectionType(col.CollectionType),
		Metadata: domain.CollectionMetadata{
			Name:        col.Meta.Name,
			Description: col.Meta.Description,
			Colour:      col.Meta.Color,
		},
		Deleted: col.Deleted,
	}
}
